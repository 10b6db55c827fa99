package domain

import (
	"context"
	"time"
)

// TopicPriceUpdated 价格刷新事件主题。
const TopicPriceUpdated = "market.price.updated"

// PriceRefreshedEvent 成功从外部数据源取得并写回缓存后发布。
// 下游（组合估值等）可据此增量更新而无需轮询。
type PriceRefreshedEvent struct {
	Ticker    string    `json:"ticker"`
	Interval  Interval  `json:"interval"`
	Points    int       `json:"points"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher 领域事件发布端口。
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event any) error
}
