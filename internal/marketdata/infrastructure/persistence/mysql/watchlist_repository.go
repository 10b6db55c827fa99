package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
)

type watchlistRepository struct {
	db *gorm.DB
}

// NewWatchlistRepository 创建关注列表存储实例。
func NewWatchlistRepository(db *gorm.DB) domain.WatchlistRepository {
	return &watchlistRepository{db: db}
}

// Upsert 不存在则插入；已存在则仅当新优先级更紧急时收紧优先级，
// 来源与加入时间保持首次插入的值。
func (r *watchlistRepository) Upsert(ctx context.Context, entry *domain.WatchlistEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing WatchlistEntryModel
		err := tx.Where("ticker = ?", entry.Ticker).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			model := &WatchlistEntryModel{
				Ticker:   entry.Ticker,
				Priority: entry.Priority,
				Source:   entry.Source,
				AddedAt:  entry.AddedAt.UTC(),
			}
			return tx.Create(model).Error
		}
		if err != nil {
			return fmt.Errorf("failed to load watchlist entry: %w", err)
		}
		if entry.Priority < existing.Priority {
			return tx.Model(&WatchlistEntryModel{}).
				Where("id = ?", existing.ID).
				Update("priority", entry.Priority).Error
		}
		return nil
	})
}

// Stale 返回刷新候选：优先级升序，同优先级内最久未刷新的在前，从未刷新的最前。
func (r *watchlistRepository) Stale(ctx context.Context, maxAge time.Duration, limit int) ([]*domain.WatchlistEntry, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	var models []*WatchlistEntryModel
	err := r.db.WithContext(ctx).
		Where("last_refreshed_at IS NULL OR last_refreshed_at < ?", cutoff).
		Order("priority asc, last_refreshed_at IS NULL desc, last_refreshed_at asc").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query stale watchlist entries: %w", err)
	}
	entries := make([]*domain.WatchlistEntry, len(models))
	for i, m := range models {
		entries[i] = toWatchlistEntry(m)
	}
	return entries, nil
}

func (r *watchlistRepository) RecordSuccess(ctx context.Context, ticker string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&WatchlistEntryModel{}).
		Where("ticker = ?", ticker).
		Updates(map[string]any{
			"last_refreshed_at": at.UTC(),
			"refresh_count":     gorm.Expr("refresh_count + 1"),
			"last_error":        "",
		}).Error
}

// RecordFailure 记录失败但不改动 last_refreshed_at，条目保持陈旧以便尽快重试。
func (r *watchlistRepository) RecordFailure(ctx context.Context, ticker string, cause string) error {
	if len(cause) > 512 {
		cause = cause[:512]
	}
	return r.db.WithContext(ctx).Model(&WatchlistEntryModel{}).
		Where("ticker = ?", ticker).
		Updates(map[string]any{
			"error_count": gorm.Expr("error_count + 1"),
			"last_error":  cause,
		}).Error
}

func (r *watchlistRepository) List(ctx context.Context) ([]*domain.WatchlistEntry, error) {
	var models []*WatchlistEntryModel
	err := r.db.WithContext(ctx).Order("priority asc, ticker asc").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist entries: %w", err)
	}
	entries := make([]*domain.WatchlistEntry, len(models))
	for i, m := range models {
		entries[i] = toWatchlistEntry(m)
	}
	return entries, nil
}
