package domain

import "errors"

// 领域错误。网关吸收并降级限流与缓存层故障；
// 只有全部层级与重试都耗尽时错误才会到达调用方。
var (
	// ErrRateLimitExceeded 配额不足。内部信号，触发缓存降级，从不直接抛给最终调用方。
	ErrRateLimitExceeded = errors.New("marketdata: rate limit exceeded")
	// ErrTickerNotFound 数据源明确报告代码不存在。永久错误，不重试。
	ErrTickerNotFound = errors.New("marketdata: ticker not found")
	// ErrMarketDataUnavailable 数据源暂时不可用且无任何可用缓存。
	ErrMarketDataUnavailable = errors.New("marketdata: market data unavailable")
	// ErrCacheTierUnavailable 某一缓存层不可用。记录日志后跳过，不阻塞响应。
	ErrCacheTierUnavailable = errors.New("marketdata: cache tier unavailable")
	// ErrInvalidPricePoint 价格点不变量被破坏。
	ErrInvalidPricePoint = errors.New("marketdata: invalid price point")
	// ErrInvalidWatchlistEntry 关注列表条目参数非法。
	ErrInvalidWatchlistEntry = errors.New("marketdata: invalid watchlist entry")
)
