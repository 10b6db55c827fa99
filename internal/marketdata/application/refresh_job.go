package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
	"github.com/wyfcoding/papertrading/pkg/metrics"
)

// ErrJobAlreadyRunning 上一轮刷新尚未结束时再次触发。
var ErrJobAlreadyRunning = errors.New("marketdata: refresh job already running")

// RefreshJobConfig 后台刷新任务配置
type RefreshJobConfig struct {
	// Interval 触发间隔
	Interval time.Duration
	// StalenessThreshold 条目超过该时长未刷新才会被处理
	StalenessThreshold time.Duration
	// BatchSize 单轮处理条目上限
	BatchSize int
	// BatchDelay 相邻条目之间的延迟，摊平对供应商的压力
	BatchDelay time.Duration
	// MaxQuotaWait 单轮等待分钟窗回填的时长上限
	MaxQuotaWait time.Duration
	// WarmRetentionDays 日内数据温层保留天数
	WarmRetentionDays int
}

// RefreshJob 后台刷新任务：周期性挑出关注列表中最陈旧的条目，借道网关
// 刷新其日线数据，并顺带裁剪温层过期的日内数据。
// 任务本身不直接调用外部数据源，全部配额语义由网关统一执行，
// 因此缓存已新鲜或配额耗尽的轮次自动退化为空转。
type RefreshJob struct {
	gateway   *MarketDataGateway
	watchlist domain.WatchlistRepository
	store     domain.PriceStore
	runs      domain.JobRunRepository
	limiter   domain.RateLimiter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	cfg       RefreshJobConfig

	running atomic.Bool
}

// NewRefreshJob 创建后台刷新任务。
func NewRefreshJob(
	gateway *MarketDataGateway,
	watchlist domain.WatchlistRepository,
	store domain.PriceStore,
	runs domain.JobRunRepository,
	limiter domain.RateLimiter,
	logger *slog.Logger,
	m *metrics.Metrics,
	cfg RefreshJobConfig,
) *RefreshJob {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &RefreshJob{
		gateway:   gateway,
		watchlist: watchlist,
		store:     store,
		runs:      runs,
		limiter:   limiter,
		logger:    logger,
		metrics:   m,
		cfg:       cfg,
	}
}

// Start 周期性触发刷新，阻塞直到 ctx 取消。
func (j *RefreshJob) Start(ctx context.Context) {
	j.logger.Info("refresh job started", "interval", j.cfg.Interval, "batch_size", j.cfg.BatchSize)
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("refresh job stopped")
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, ErrJobAlreadyRunning) {
				j.logger.Error("refresh run failed", "error", err)
			}
		}
	}
}

// RunOnce 执行一轮刷新并返回执行记录。任意时刻最多一轮在跑，
// 与上一轮重叠的触发返回 ErrJobAlreadyRunning。
// 整轮幂等：缓存已新鲜的条目经网关零外呼返回，重复执行不产生额外配额消耗。
func (j *RefreshJob) RunOnce(ctx context.Context) (*domain.JobRun, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, ErrJobAlreadyRunning
	}
	defer j.running.Store(false)

	now := time.Now().UTC()
	run := domain.NewJobRun(now)
	j.metrics.RefreshRunsTotal.Inc()

	entries, err := j.watchlist.Stale(ctx, j.cfg.StalenessThreshold, j.cfg.BatchSize)
	if err != nil {
		run.Finish(time.Now())
		run.Status = domain.JobStatusFailed
		j.saveRun(ctx, run)
		return run, fmt.Errorf("failed to load stale watchlist entries: %w", err)
	}
	j.logger.Info("refresh run started", "stale_entries", len(entries))

	quotaDeadline := now.Add(j.cfg.MaxQuotaWait)
	for i, entry := range entries {
		if ctx.Err() != nil {
			run.Skipped += len(entries) - i
			break
		}
		if !j.awaitQuota(ctx, quotaDeadline) {
			// 日窗耗尽或等待超限，剩余条目留给下一轮。
			j.logger.Warn("quota exhausted, deferring remaining entries", "deferred", len(entries)-i)
			run.Skipped += len(entries) - i
			break
		}

		outcome := j.refreshTicker(ctx, entry.Ticker, run)
		j.metrics.RefreshTickersTotal.WithLabelValues(outcome).Inc()

		if j.cfg.BatchDelay > 0 && i < len(entries)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(j.cfg.BatchDelay):
			}
		}
	}

	j.pruneWarmTier(ctx)
	j.publishQuotaGauges(ctx)

	run.Finish(time.Now())
	j.metrics.RefreshRunDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	j.saveRun(ctx, run)
	j.logger.Info("refresh run finished",
		"status", run.Status,
		"attempted", run.Attempted,
		"succeeded", run.Succeeded,
		"failed", run.Failed,
		"skipped", run.Skipped,
	)
	return run, nil
}

// RecentRuns 返回最近的执行记录，新的在前。
func (j *RefreshJob) RecentRuns(ctx context.Context, limit int) ([]JobRunDTO, error) {
	if limit <= 0 {
		limit = 20
	}
	runs, err := j.runs.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load job runs: %w", err)
	}
	dtos := make([]JobRunDTO, len(runs))
	for i, r := range runs {
		dtos[i] = toJobRunDTO(r)
	}
	return dtos, nil
}

// refreshTicker 刷新单个股票的日线数据。失败只记账不中断整轮；
// 降级响应说明配额中途耗尽，条目保持陈旧等待下一轮，不算成功也不算失败。
func (j *RefreshJob) refreshTicker(ctx context.Context, ticker string, run *domain.JobRun) string {
	now := time.Now().UTC()
	dto, err := j.gateway.GetPriceHistory(ctx, ticker, now.AddDate(0, 0, -7), now, domain.IntervalDaily)
	if err != nil {
		j.logger.Warn("ticker refresh failed", "ticker", ticker, "error", err)
		run.Attempted++
		run.RecordError(ticker, err)
		if recErr := j.watchlist.RecordFailure(ctx, ticker, err.Error()); recErr != nil {
			j.logger.Error("failed to record refresh failure", "ticker", ticker, "error", recErr)
		}
		return "failed"
	}
	if dto.Degraded {
		run.Skipped++
		return "skipped"
	}

	run.Attempted++
	run.Succeeded++
	if recErr := j.watchlist.RecordSuccess(ctx, ticker, now); recErr != nil {
		j.logger.Error("failed to record refresh success", "ticker", ticker, "error", recErr)
	}
	return "succeeded"
}

// awaitQuota 等到分钟窗有余量或超过 deadline。日窗耗尽直接放弃，
// 等也等不来。
func (j *RefreshJob) awaitQuota(ctx context.Context, deadline time.Time) bool {
	for {
		rem, err := j.limiter.Remaining(ctx)
		if err != nil {
			// 闸门状态读不到就直接尝试，网关侧会按拒绝兜底。
			j.logger.Warn("failed to read quota snapshot", "error", err)
			return true
		}
		if rem.Day < 1 {
			return false
		}
		if rem.Minute >= 1 {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}

		wait := 5 * time.Second
		if until := time.Until(deadline); until < wait {
			wait = until
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

func (j *RefreshJob) pruneWarmTier(ctx context.Context) {
	if j.cfg.WarmRetentionDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -j.cfg.WarmRetentionDays)
	pruned, err := j.store.PruneSubDaily(ctx, cutoff)
	if err != nil {
		j.logger.Error("warm tier prune failed", "cutoff", cutoff, "error", err)
		return
	}
	if pruned > 0 {
		j.metrics.WarmTierPrunedTotal.Add(float64(pruned))
		j.logger.Info("warm tier pruned", "rows", pruned, "cutoff", cutoff)
	}
}

func (j *RefreshJob) publishQuotaGauges(ctx context.Context) {
	rem, err := j.limiter.Remaining(ctx)
	if err != nil {
		return
	}
	j.metrics.QuotaRemaining.WithLabelValues("minute").Set(rem.Minute)
	j.metrics.QuotaRemaining.WithLabelValues("day").Set(rem.Day)
}

func (j *RefreshJob) saveRun(ctx context.Context, run *domain.JobRun) {
	if err := j.runs.Save(ctx, run); err != nil {
		j.logger.Error("failed to persist job run", "error", err)
	}
}
