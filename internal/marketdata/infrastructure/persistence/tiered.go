// Package persistence 组合热层（Redis）与温层（MySQL）的双层价格缓存。
package persistence

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
	"github.com/wyfcoding/papertrading/pkg/metrics"
)

// TieredPriceCache 双层缓存门面：读时热层优先、温层兜底，未覆盖的交易日上报给网关补齐；
// 写时双写。热层故障只降级不失败。
type TieredPriceCache struct {
	hot     domain.PriceCache
	warm    domain.PriceStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewTieredPriceCache 创建双层缓存。
func NewTieredPriceCache(hot domain.PriceCache, warm domain.PriceStore, logger *slog.Logger, m *metrics.Metrics) *TieredPriceCache {
	return &TieredPriceCache{hot: hot, warm: warm, logger: logger, metrics: m}
}

// GetRange 逐个交易日归并两层缓存的覆盖情况，结果裁剪到 [start, end)。
// 热层探测是一次批量往返；温层对整个区间做一次索引扫描。
func (t *TieredPriceCache) GetRange(ctx context.Context, ticker string, interval domain.Interval, start, end time.Time) (*domain.RangeResult, error) {
	days := domain.TradingDays(start, end)
	if len(days) == 0 {
		return &domain.RangeResult{}, nil
	}

	hotDays, err := t.hot.GetDays(ctx, ticker, interval, days)
	if err != nil {
		// 热层不可用从不导致读失败，降级为仅温层。
		t.logger.Warn("hot tier unavailable, degrading to warm tier", "ticker", ticker, "interval", interval, "error", err)
		t.metrics.CacheTierErrorsTotal.WithLabelValues("hot").Inc()
		hotDays = map[time.Time][]*domain.PricePoint{}
	}
	t.metrics.CacheHitsTotal.WithLabelValues("hot").Add(float64(len(hotDays)))
	t.metrics.CacheMissesTotal.WithLabelValues("hot").Add(float64(len(days) - len(hotDays)))

	var points []*domain.PricePoint
	var missingFromHot []time.Time
	for _, day := range days {
		if dayPoints, ok := hotDays[day]; ok {
			points = append(points, dayPoints...)
		} else {
			missingFromHot = append(missingFromHot, day)
		}
	}

	warmDays := map[time.Time]bool{}
	if len(missingFromHot) > 0 {
		warmPoints, err := t.warm.GetRange(ctx, ticker, interval, days[0], days[len(days)-1].AddDate(0, 0, 1))
		if err != nil {
			t.logger.Warn("warm tier unavailable", "ticker", ticker, "interval", interval, "error", err)
			t.metrics.CacheTierErrorsTotal.WithLabelValues("warm").Inc()
		}
		hitFromWarm := 0
		for _, p := range warmPoints {
			day := p.Day()
			if _, inHot := hotDays[day]; inHot {
				continue
			}
			if !warmDays[day] {
				warmDays[day] = true
				hitFromWarm++
			}
			points = append(points, p)
		}
		t.metrics.CacheHitsTotal.WithLabelValues("warm").Add(float64(hitFromWarm))
		t.metrics.CacheMissesTotal.WithLabelValues("warm").Add(float64(len(missingFromHot) - hitFromWarm))
	}

	var missing []time.Time
	for _, day := range missingFromHot {
		if !warmDays[day] {
			missing = append(missing, day)
		}
	}

	// 两层都按日历日存取，命中的日可能带有窗口之外的点，返回前裁掉。
	merged := domain.SortDedupe(points)
	clipped := make([]*domain.PricePoint, 0, len(merged))
	for _, p := range merged {
		if p.Timestamp.Before(start.UTC()) || !p.Timestamp.Before(end.UTC()) {
			continue
		}
		clipped = append(clipped, p)
	}

	return &domain.RangeResult{
		Points:      clipped,
		MissingDays: missing,
	}, nil
}

// PutRange 把一批价格点按各自的日历日写入两层。先写温层（持久），再写热层（缓存）；
// 热层写失败只记录日志。整体幂等，重复或重叠写入安全。
func (t *TieredPriceCache) PutRange(ctx context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := t.warm.SaveBatch(ctx, points); err != nil {
		return err
	}

	type dayKey struct {
		ticker   string
		interval domain.Interval
		day      time.Time
	}
	grouped := map[dayKey][]*domain.PricePoint{}
	for _, p := range points {
		k := dayKey{ticker: p.Ticker, interval: p.Interval, day: p.Day()}
		grouped[k] = append(grouped[k], p)
	}
	for k, dayPoints := range grouped {
		if err := t.hot.PutDay(ctx, k.ticker, k.interval, k.day, domain.SortDedupe(dayPoints)); err != nil {
			t.logger.Warn("hot tier write failed", "ticker", k.ticker, "interval", k.interval, "day", k.day, "error", err)
			t.metrics.CacheTierErrorsTotal.WithLabelValues("hot").Inc()
		}
	}
	return nil
}
