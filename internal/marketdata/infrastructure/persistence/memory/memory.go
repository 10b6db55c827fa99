// Package memory 进程内的温层/热层实现，用于测试与本地开发。
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
)

// PriceStore 进程内温层存储。
type PriceStore struct {
	mu     sync.RWMutex
	points map[string]*domain.PricePoint
}

// NewPriceStore 创建进程内温层。
func NewPriceStore() *PriceStore {
	return &PriceStore{points: map[string]*domain.PricePoint{}}
}

func (s *PriceStore) SaveBatch(_ context.Context, points []*domain.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		if err := p.Validate(); err != nil {
			return err
		}
		s.points[p.Key()] = p
	}
	return nil
}

func (s *PriceStore) GetRange(_ context.Context, ticker string, interval domain.Interval, start, end time.Time) ([]*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.PricePoint
	for _, p := range s.points {
		if p.Ticker != ticker || p.Interval != interval {
			continue
		}
		if p.Timestamp.Before(start.UTC()) || !p.Timestamp.Before(end.UTC()) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *PriceStore) PruneSubDaily(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned int64
	for key, p := range s.points {
		if p.Interval.SubDaily() && p.Timestamp.Before(olderThan.UTC()) {
			delete(s.points, key)
			pruned++
		}
	}
	return pruned, nil
}

// Len 返回存量价格点数量。
func (s *PriceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

type cacheEntry struct {
	points    []*domain.PricePoint
	expiresAt time.Time
}

// PriceCache 进程内热层缓存，带粒度相关 TTL，时钟可注入。
type PriceCache struct {
	mu          sync.RWMutex
	entries     map[string]cacheEntry
	ttlSubDaily time.Duration
	ttlDaily    time.Duration
	now         func() time.Time
}

// NewPriceCache 创建进程内热层。
func NewPriceCache(ttlSubDaily, ttlDaily time.Duration) *PriceCache {
	return NewPriceCacheWithClock(ttlSubDaily, ttlDaily, time.Now)
}

// NewPriceCacheWithClock 使用注入时钟创建进程内热层。
func NewPriceCacheWithClock(ttlSubDaily, ttlDaily time.Duration, now func() time.Time) *PriceCache {
	return &PriceCache{
		entries:     map[string]cacheEntry{},
		ttlSubDaily: ttlSubDaily,
		ttlDaily:    ttlDaily,
		now:         now,
	}
}

func cacheKey(ticker string, interval domain.Interval, day time.Time) string {
	return strings.Join([]string{ticker, string(interval), domain.DayOf(day).Format("2006-01-02")}, ":")
}

func (c *PriceCache) GetDays(_ context.Context, ticker string, interval domain.Interval, days []time.Time) (map[time.Time][]*domain.PricePoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	found := make(map[time.Time][]*domain.PricePoint)
	for _, day := range days {
		entry, ok := c.entries[cacheKey(ticker, interval, day)]
		if !ok || now.After(entry.expiresAt) {
			continue
		}
		found[domain.DayOf(day)] = entry.points
	}
	return found, nil
}

func (c *PriceCache) PutDay(_ context.Context, ticker string, interval domain.Interval, day time.Time, points []*domain.PricePoint) error {
	ttl := c.ttlDaily
	if interval.SubDaily() {
		ttl = c.ttlSubDaily
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(ticker, interval, day)] = cacheEntry{
		points:    points,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}
