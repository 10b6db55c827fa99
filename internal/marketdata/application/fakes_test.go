package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// outageCache 两层缓存整体不可用的替身。
type outageCache struct{}

func (outageCache) GetRange(context.Context, string, domain.Interval, time.Time, time.Time) (*domain.RangeResult, error) {
	return nil, errors.New("both cache tiers unavailable")
}

func (outageCache) PutRange(context.Context, []*domain.PricePoint) error {
	return errors.New("both cache tiers unavailable")
}

// fakeWatchlistRepo 进程内关注列表替身，语义对齐 MySQL 实现。
type fakeWatchlistRepo struct {
	mu      sync.Mutex
	entries map[string]*domain.WatchlistEntry
}

func newFakeWatchlistRepo() *fakeWatchlistRepo {
	return &fakeWatchlistRepo{entries: map[string]*domain.WatchlistEntry{}}
}

func (r *fakeWatchlistRepo) Upsert(_ context.Context, entry *domain.WatchlistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.entries[entry.Ticker]
	if !ok {
		clone := *entry
		r.entries[entry.Ticker] = &clone
		return nil
	}
	if entry.Priority < existing.Priority {
		existing.Priority = entry.Priority
	}
	return nil
}

func (r *fakeWatchlistRepo) Stale(_ context.Context, maxAge time.Duration, limit int) ([]*domain.WatchlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var out []*domain.WatchlistEntry
	for _, e := range r.entries {
		if e.Stale(maxAge, now) {
			clone := *e
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if (out[i].LastRefreshedAt == nil) != (out[j].LastRefreshedAt == nil) {
			return out[i].LastRefreshedAt == nil
		}
		if out[i].LastRefreshedAt == nil {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].LastRefreshedAt.Before(*out[j].LastRefreshedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeWatchlistRepo) RecordSuccess(_ context.Context, ticker string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[ticker]; ok {
		at := at.UTC()
		e.LastRefreshedAt = &at
		e.RefreshCount++
		e.LastError = ""
	}
	return nil
}

func (r *fakeWatchlistRepo) RecordFailure(_ context.Context, ticker string, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[ticker]; ok {
		e.ErrorCount++
		e.LastError = cause
	}
	return nil
}

func (r *fakeWatchlistRepo) List(_ context.Context) ([]*domain.WatchlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.WatchlistEntry, 0, len(r.entries))
	for _, e := range r.entries {
		clone := *e
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (r *fakeWatchlistRepo) get(ticker string) *domain.WatchlistEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[ticker]; ok {
		clone := *e
		return &clone
	}
	return nil
}

// fakeJobRunRepo 进程内执行记录替身。
type fakeJobRunRepo struct {
	mu   sync.Mutex
	runs []*domain.JobRun
}

func (r *fakeJobRunRepo) Save(_ context.Context, run *domain.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.ID = uint64(len(r.runs) + 1)
	clone := *run
	r.runs = append(r.runs, &clone)
	return nil
}

func (r *fakeJobRunRepo) Recent(_ context.Context, limit int) ([]*domain.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.JobRun, 0, limit)
	for i := len(r.runs) - 1; i >= 0 && len(out) < limit; i-- {
		clone := *r.runs[i]
		out = append(out, &clone)
	}
	return out, nil
}
