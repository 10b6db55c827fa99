package domain

import (
	"strings"
	"time"
)

// 关注列表条目来源标签
const (
	WatchSourceHolding = "held-in-portfolio"
	WatchSourceCommon  = "common-stock"
	WatchSourceQueried = "recently-queried"
	WatchSourceManual  = "manual"
)

// 默认优先级。数值越小越紧急。
const (
	PriorityHolding = 10
	PriorityCommon  = 50
	PriorityQueried = 80
	PriorityManual  = 30
)

// WatchlistEntry 后台刷新候选股票。
// 重复插入时优先级取 min(旧, 新)，来源与加入时间保持不变。
type WatchlistEntry struct {
	Ticker          string
	Priority        int
	Source          string
	AddedAt         time.Time
	LastRefreshedAt *time.Time
	RefreshCount    int64
	ErrorCount      int64
	LastError       string
}

// NewWatchlistEntry 创建关注条目。
func NewWatchlistEntry(ticker, source string, priority int) *WatchlistEntry {
	return &WatchlistEntry{
		Ticker:   strings.ToUpper(ticker),
		Priority: priority,
		Source:   source,
		AddedAt:  time.Now().UTC(),
	}
}

// Stale 判断条目在给定时刻是否超过最大陈旧时长。从未刷新过的条目视为陈旧。
func (e *WatchlistEntry) Stale(maxAge time.Duration, now time.Time) bool {
	if e.LastRefreshedAt == nil {
		return true
	}
	return now.Sub(*e.LastRefreshedAt) > maxAge
}
