package domain

import (
	"context"
	"time"
)

// PriceProvider 外部行情数据源端口。实现负责隔离具体供应商的响应形态，
// 使数据源可替换（真实 HTTP 适配器 / 内存确定性测试适配器）。
type PriceProvider interface {
	// FetchRange 拉取区间内的价格点。供应商按调用计费，因此一次调用覆盖完整区间。
	// 代码不存在时返回 ErrTickerNotFound（永久错误）；其余错误视为瞬态故障。
	FetchRange(ctx context.Context, ticker string, interval Interval, start, end time.Time) ([]*PricePoint, error)
}

// QuotaRemaining 配额快照。
type QuotaRemaining struct {
	Minute float64
	Day    float64
}

// RateLimiter 外部 API 配额闸门，全部并发调用方共享。
// TryConsume 是唯一的变更入口，必须为不可分割的检查加扣减。
type RateLimiter interface {
	// TryConsume 原子地检查分钟窗与日窗是否都有足够令牌，都满足时同时扣减，
	// 否则二者都不扣减并返回 false。返回 false 是高频的预期结果，不是错误。
	TryConsume(ctx context.Context, cost int) (bool, error)
	// Remaining 只读快照。
	Remaining(ctx context.Context) (QuotaRemaining, error)
}
