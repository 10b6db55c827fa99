package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
	"github.com/wyfcoding/papertrading/pkg/metrics"
)

// WatchlistService 关注列表管理：登记刷新候选、查询列表、为后台任务提供陈旧条目。
type WatchlistService struct {
	repo    domain.WatchlistRepository
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewWatchlistService 创建关注列表服务。
func NewWatchlistService(repo domain.WatchlistRepository, logger *slog.Logger, m *metrics.Metrics) *WatchlistService {
	return &WatchlistService{repo: repo, logger: logger, metrics: m}
}

// Track 把股票登记进关注列表。priority 为 0 时使用来源对应的默认优先级。
// 已存在的条目优先级只升不降。
func (s *WatchlistService) Track(ctx context.Context, ticker, source string, priority int) (*WatchlistEntryDTO, error) {
	ticker, err := normalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	if source == "" {
		source = domain.WatchSourceManual
	}
	if priority <= 0 {
		priority = defaultPriority(source)
	}
	switch source {
	case domain.WatchSourceHolding, domain.WatchSourceCommon, domain.WatchSourceQueried, domain.WatchSourceManual:
	default:
		return nil, fmt.Errorf("%w: unknown source %q", domain.ErrInvalidWatchlistEntry, source)
	}

	entry := domain.NewWatchlistEntry(ticker, source, priority)
	if err := s.repo.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to upsert watchlist entry: %w", err)
	}
	s.logger.Info("ticker tracked", "ticker", ticker, "source", source, "priority", priority)

	dto := toWatchlistEntryDTO(entry)
	return &dto, nil
}

// List 返回全部关注条目，优先级升序。
func (s *WatchlistService) List(ctx context.Context) ([]WatchlistEntryDTO, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	s.metrics.WatchlistSize.Set(float64(len(entries)))

	dtos := make([]WatchlistEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toWatchlistEntryDTO(e)
	}
	return dtos, nil
}

func defaultPriority(source string) int {
	switch source {
	case domain.WatchSourceHolding:
		return domain.PriorityHolding
	case domain.WatchSourceCommon:
		return domain.PriorityCommon
	case domain.WatchSourceQueried:
		return domain.PriorityQueried
	default:
		return domain.PriorityManual
	}
}
