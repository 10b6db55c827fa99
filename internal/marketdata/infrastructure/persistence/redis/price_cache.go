// Package redis 市场数据热层缓存：按 (ticker, interval, 日历日) 键、粒度相关 TTL。
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
)

const dayKeyLayout = "2006-01-02"

// PriceRedisCache 基于 Redis 的热层价格缓存。
type PriceRedisCache struct {
	client      redis.UniversalClient
	prefix      string
	ttlSubDaily time.Duration
	ttlDaily    time.Duration
}

// NewPriceRedisCache 创建热层缓存实例。日内数据 TTL 短（分钟级），日线数据 TTL 长（小时级）。
func NewPriceRedisCache(client redis.UniversalClient, ttlSubDaily, ttlDaily time.Duration) *PriceRedisCache {
	return &PriceRedisCache{
		client:      client,
		prefix:      "marketdata:price:",
		ttlSubDaily: ttlSubDaily,
		ttlDaily:    ttlDaily,
	}
}

func (c *PriceRedisCache) key(ticker string, interval domain.Interval, day time.Time) string {
	return c.prefix + ticker + ":" + string(interval) + ":" + day.UTC().Format(dayKeyLayout)
}

// GetDays 用一次 MGET 批量探测全部日键，而不是按天逐次往返。
func (c *PriceRedisCache) GetDays(ctx context.Context, ticker string, interval domain.Interval, days []time.Time) (map[time.Time][]*domain.PricePoint, error) {
	if len(days) == 0 {
		return map[time.Time][]*domain.PricePoint{}, nil
	}
	keys := make([]string, len(days))
	for i, day := range days {
		keys[i] = c.key(ticker, interval, day)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: hot tier mget: %v", domain.ErrCacheTierUnavailable, err)
	}

	found := make(map[time.Time][]*domain.PricePoint, len(days))
	for i, raw := range values {
		if raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var points []*domain.PricePoint
		if err := json.Unmarshal([]byte(s), &points); err != nil {
			// 损坏的缓存值视为未命中，等待下次覆盖写修复。
			continue
		}
		found[domain.DayOf(days[i])] = points
	}
	return found, nil
}

// PutDay 覆盖写入某日的全部价格点。
func (c *PriceRedisCache) PutDay(ctx context.Context, ticker string, interval domain.Interval, day time.Time, points []*domain.PricePoint) error {
	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("failed to marshal price points: %w", err)
	}
	ttl := c.ttlDaily
	if interval.SubDaily() {
		ttl = c.ttlSubDaily
	}
	if err := c.client.Set(ctx, c.key(ticker, interval, day), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: hot tier set: %v", domain.ErrCacheTierUnavailable, err)
	}
	return nil
}
