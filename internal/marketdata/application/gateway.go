package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
	"github.com/wyfcoding/papertrading/pkg/metrics"
)

// GatewayConfig 网关配置
type GatewayConfig struct {
	// Capability 调用方订阅档位，决定可用粒度
	Capability domain.Capability
	// MaxRetries 瞬态故障最大尝试次数（含首次）
	MaxRetries int
	// FetchTimeout 单轮外部拉取（含重试）总预算
	FetchTimeout time.Duration
}

// MarketDataGateway 价格查询编排：粒度链选择 → 双层缓存探测 →
// 配额闸门 → 外部拉取与写回。吸收限流与缓存层故障并降级，
// 只有全部层级耗尽时错误才会抵达调用方。
type MarketDataGateway struct {
	cache     domain.TieredCache
	provider  domain.PriceProvider
	limiter   domain.RateLimiter
	watchlist domain.WatchlistRepository
	publisher domain.EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	cfg       GatewayConfig
}

// NewMarketDataGateway 创建市场数据网关。
func NewMarketDataGateway(
	cache domain.TieredCache,
	provider domain.PriceProvider,
	limiter domain.RateLimiter,
	watchlist domain.WatchlistRepository,
	publisher domain.EventPublisher,
	logger *slog.Logger,
	m *metrics.Metrics,
	cfg GatewayConfig,
) *MarketDataGateway {
	if cfg.Capability == "" {
		cfg.Capability = domain.CapabilityFree
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	return &MarketDataGateway{
		cache:     cache,
		provider:  provider,
		limiter:   limiter,
		watchlist: watchlist,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		cfg:       cfg,
	}
}

// GetPriceHistory 返回区间内的历史价格，按时间升序且无重复三元组。
// interval 为空时由粒度链自动降级选择。
func (g *MarketDataGateway) GetPriceHistory(ctx context.Context, ticker string, start, end time.Time, interval domain.Interval) (*PriceHistoryDTO, error) {
	ticker, err := normalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: empty range [%s, %s)", domain.ErrInvalidPricePoint, start, end)
	}

	points, resolved, degraded, err := g.resolveHistory(ctx, ticker, start, end, interval)
	if err != nil {
		return nil, err
	}
	g.trackQueried(ctx, ticker)

	dtos := make([]PricePointDTO, len(points))
	for i, p := range points {
		dtos[i] = toPricePointDTO(p)
	}
	return &PriceHistoryDTO{
		Ticker:   ticker,
		Interval: string(resolved),
		Degraded: degraded,
		Points:   dtos,
	}, nil
}

// GetCurrentPrice 返回最新价：最近 7 个日历日的历史收窄为最后一个点，
// 自然跳过周末与节假日回退到最近的交易日。
func (g *MarketDataGateway) GetCurrentPrice(ctx context.Context, ticker string) (*CurrentPriceDTO, error) {
	ticker, err := normalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -7)

	points, _, degraded, err := g.resolveHistory(ctx, ticker, start, now, "")
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s has no recent prices", domain.ErrMarketDataUnavailable, ticker)
	}
	g.trackQueried(ctx, ticker)

	last := points[len(points)-1]
	return &CurrentPriceDTO{
		Ticker:    last.Ticker,
		Price:     last.Price.String(),
		Currency:  last.Currency,
		Timestamp: last.Timestamp.UTC().Format(time.RFC3339),
		Interval:  string(last.Interval),
		Source:    last.Source,
		Degraded:  degraded,
		Stale:     degraded || last.Day().Before(domain.PrevTradingDay(now)),
	}, nil
}

// resolveHistory 沿粒度链逐级尝试，返回第一个产出可用数据的粒度的结果。
func (g *MarketDataGateway) resolveHistory(ctx context.Context, ticker string, start, end time.Time, interval domain.Interval) ([]*domain.PricePoint, domain.Interval, bool, error) {
	var chain []domain.Interval
	if interval != "" {
		if !interval.Valid() || interval == domain.IntervalRealTime {
			return nil, "", false, fmt.Errorf("%w: unsupported interval %q", domain.ErrInvalidPricePoint, interval)
		}
		chain = []domain.Interval{interval}
	} else {
		chain = domain.SelectChain(end.Sub(start), g.cfg.Capability)
	}

	// 区间内没有交易日（纯周末）时无数据是常态而非缺失，直接返回空结果。
	if len(domain.TradingDays(start, end)) == 0 {
		return nil, chain[len(chain)-1], false, nil
	}

	anyDenied := false
	for _, iv := range chain {
		points, degraded, denied, err := g.resolveInterval(ctx, ticker, iv, start, end)
		if err != nil {
			return nil, "", false, err
		}
		anyDenied = anyDenied || denied
		if len(points) > 0 {
			return points, iv, degraded, nil
		}
	}
	if anyDenied {
		return nil, "", false, fmt.Errorf("%w: %w: %s [%s, %s)", domain.ErrMarketDataUnavailable, domain.ErrRateLimitExceeded, ticker, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return nil, "", false, fmt.Errorf("%w: %s [%s, %s)", domain.ErrMarketDataUnavailable, ticker, start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// resolveInterval 处理单个粒度：缓存全命中直接返回；有缺口时经配额闸门
// 决定是否外呼。配额拒绝或瞬态故障耗尽时退回已有缓存（降级），
// 代码不存在为永久错误、立即终止整条链。
func (g *MarketDataGateway) resolveInterval(ctx context.Context, ticker string, iv domain.Interval, start, end time.Time) (points []*domain.PricePoint, degraded, denied bool, err error) {
	// 日线点落在零点。窗口起点对齐到当日零点，下午的窗口才能命中当天的日线点。
	if iv == domain.IntervalDaily {
		start = domain.DayOf(start)
	}

	cached, err := g.cache.GetRange(ctx, ticker, iv, start, end)
	if err != nil {
		// 缓存整体不可用时把全部交易日视作缺口，让外呼路径照常工作。
		g.logger.Warn("cache range read failed", "ticker", ticker, "interval", iv, "error", err)
		cached = &domain.RangeResult{MissingDays: domain.TradingDays(start, end)}
	}
	if len(cached.MissingDays) == 0 {
		return cached.Points, false, false, nil
	}

	allowed, err := g.limiter.TryConsume(ctx, 1)
	if err != nil {
		// 闸门后端不可用时按拒绝处理：宁可降级也不越过配额。
		g.logger.Warn("rate limiter unavailable, treating as denied", "error", err)
		allowed = false
	}
	if !allowed {
		g.metrics.QuotaDeniedTotal.Inc()
		if len(cached.Points) > 0 {
			g.metrics.DegradedResponsesTotal.Inc()
			return cached.Points, true, true, nil
		}
		// 本粒度无任何缓存，尝试链上更粗的粒度。
		return nil, false, true, nil
	}

	// 供应商按调用计费，一次拉取覆盖完整区间而不是只补缺口。
	fetched, err := g.fetchWithRetry(ctx, ticker, iv, start, end)
	if err != nil {
		if errors.Is(err, domain.ErrTickerNotFound) {
			return nil, false, false, err
		}
		g.logger.Warn("provider fetch exhausted retries", "ticker", ticker, "interval", iv, "error", err)
		if len(cached.Points) > 0 {
			g.metrics.DegradedResponsesTotal.Inc()
			return cached.Points, true, false, nil
		}
		return nil, false, false, nil
	}
	if len(fetched) == 0 {
		return cached.Points, false, false, nil
	}

	if err := g.cache.PutRange(ctx, fetched); err != nil {
		// 写回失败不作废本轮已取得的数据。
		g.logger.Error("cache write-back failed", "ticker", ticker, "interval", iv, "error", err)
		return domain.SortDedupe(append(cached.Points, fetched...)), false, false, nil
	}
	g.publishRefreshed(ctx, ticker, iv, fetched)

	merged, err := g.cache.GetRange(ctx, ticker, iv, start, end)
	if err != nil || len(merged.Points) == 0 {
		return domain.SortDedupe(append(cached.Points, fetched...)), false, false, nil
	}
	return merged.Points, false, false, nil
}

func (g *MarketDataGateway) fetchWithRetry(ctx context.Context, ticker string, iv domain.Interval, start, end time.Time) ([]*domain.PricePoint, error) {
	// 调用方中途断开不应浪费已扣减的配额：拉取与写回在独立的超时下完成。
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.FetchTimeout)
	defer cancel()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 200 * time.Millisecond
	expo.MaxInterval = 5 * time.Second

	return backoff.Retry(fetchCtx, func() ([]*domain.PricePoint, error) {
		callStart := time.Now()
		g.metrics.ProviderCallsTotal.Inc()
		points, err := g.provider.FetchRange(fetchCtx, ticker, iv, start, end)
		g.metrics.ProviderDuration.Observe(time.Since(callStart).Seconds())
		if err != nil {
			if errors.Is(err, domain.ErrTickerNotFound) {
				g.metrics.ProviderErrorsTotal.WithLabelValues("not_found").Inc()
				return nil, backoff.Permanent(err)
			}
			g.metrics.ProviderErrorsTotal.WithLabelValues("transient").Inc()
			return nil, err
		}
		return points, nil
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(uint(g.cfg.MaxRetries)))
}

// trackQueried 把被查询的代码挂入关注列表，让自然流量喂给后台刷新。
// 尽力而为，失败只记日志。
func (g *MarketDataGateway) trackQueried(ctx context.Context, ticker string) {
	if g.watchlist == nil {
		return
	}
	entry := domain.NewWatchlistEntry(ticker, domain.WatchSourceQueried, domain.PriorityQueried)
	if err := g.watchlist.Upsert(ctx, entry); err != nil {
		g.logger.Debug("failed to track queried ticker", "ticker", ticker, "error", err)
	}
}

func (g *MarketDataGateway) publishRefreshed(ctx context.Context, ticker string, iv domain.Interval, points []*domain.PricePoint) {
	if g.publisher == nil || len(points) == 0 {
		return
	}
	event := domain.PriceRefreshedEvent{
		Ticker:    ticker,
		Interval:  iv,
		Points:    len(points),
		From:      points[0].Timestamp,
		To:        points[len(points)-1].Timestamp,
		Source:    domain.SourceExternalAPI,
		Timestamp: time.Now().UTC(),
	}
	_ = g.publisher.Publish(ctx, domain.TopicPriceUpdated, ticker, event)
}

func normalizeTicker(ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" || len(ticker) > domain.MaxTickerLength {
		return "", fmt.Errorf("%w: ticker %q", domain.ErrInvalidPricePoint, ticker)
	}
	return ticker, nil
}
