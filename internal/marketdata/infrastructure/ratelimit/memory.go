package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
)

type window struct {
	tokens   float64
	capacity float64
	period   time.Duration
	last     time.Time
}

func (w *window) refill(now time.Time) {
	elapsed := now.Sub(w.last)
	if elapsed <= 0 {
		return
	}
	w.tokens += elapsed.Seconds() * w.capacity / w.period.Seconds()
	if w.tokens > w.capacity {
		w.tokens = w.capacity
	}
	w.last = now
}

// MemoryRateLimiter 进程内配额闸门。单进程部署与测试使用；
// 与 Redis 实现共享同一套回填语义，时钟可注入以便确定性测试。
type MemoryRateLimiter struct {
	mu     sync.Mutex
	minute window
	day    window
	now    func() time.Time
}

// NewMemoryRateLimiter 创建进程内配额闸门。
func NewMemoryRateLimiter(perMinute, perDay int) *MemoryRateLimiter {
	return NewMemoryRateLimiterWithClock(perMinute, perDay, time.Now)
}

// NewMemoryRateLimiterWithClock 使用注入时钟创建进程内配额闸门。
func NewMemoryRateLimiterWithClock(perMinute, perDay int, now func() time.Time) *MemoryRateLimiter {
	start := now()
	return &MemoryRateLimiter{
		minute: window{tokens: float64(perMinute), capacity: float64(perMinute), period: time.Minute, last: start},
		day:    window{tokens: float64(perDay), capacity: float64(perDay), period: 24 * time.Hour, last: start},
		now:    now,
	}
}

// TryConsume 原子地尝试从两个窗口各扣减 cost 个令牌，不满足时二者都不扣减。
func (m *MemoryRateLimiter) TryConsume(_ context.Context, cost int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.minute.refill(now)
	m.day.refill(now)

	c := float64(cost)
	if cost <= 0 || m.minute.tokens < c || m.day.tokens < c {
		return false, nil
	}
	m.minute.tokens -= c
	m.day.tokens -= c
	return true, nil
}

// Remaining 返回两个窗口的剩余令牌快照。
func (m *MemoryRateLimiter) Remaining(_ context.Context) (domain.QuotaRemaining, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.minute.refill(now)
	m.day.refill(now)
	return domain.QuotaRemaining{Minute: m.minute.tokens, Day: m.day.tokens}, nil
}
