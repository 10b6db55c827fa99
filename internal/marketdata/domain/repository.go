package domain

import (
	"context"
	"time"
)

// RangeResult 区间查询结果。Points 按时间升序；MissingDays 为两层缓存都未覆盖、
// 需要网关向外部数据源补齐的交易日。
type RangeResult struct {
	Points      []*PricePoint
	MissingDays []time.Time
}

// PriceStore 温层存储：持久化价格点，按 (ticker, timestamp, interval) 唯一。
// 日线数据永久保留，日内数据按保留期裁剪。
type PriceStore interface {
	// SaveBatch 幂等写入一批价格点，同一三元组后写覆盖先写。
	SaveBatch(ctx context.Context, points []*PricePoint) error
	// GetRange 返回区间内的价格点，按时间升序。
	GetRange(ctx context.Context, ticker string, interval Interval, start, end time.Time) ([]*PricePoint, error)
	// PruneSubDaily 删除早于 olderThan 的日内数据，返回删除行数。
	PruneSubDaily(ctx context.Context, olderThan time.Time) (int64, error)
}

// PriceCache 热层缓存：按 (ticker, interval, 日历日) 键存储当日价格点，带粒度相关 TTL。
type PriceCache interface {
	// GetDays 批量探测指定日历日，返回命中的日键到当日价格点的映射。
	GetDays(ctx context.Context, ticker string, interval Interval, days []time.Time) (map[time.Time][]*PricePoint, error)
	// PutDay 覆盖写入某个日历日的全部价格点。
	PutDay(ctx context.Context, ticker string, interval Interval, day time.Time, points []*PricePoint) error
}

// TieredCache 双层缓存读写门面：热层优先、温层兜底、缺口上报。
type TieredCache interface {
	GetRange(ctx context.Context, ticker string, interval Interval, start, end time.Time) (*RangeResult, error)
	PutRange(ctx context.Context, points []*PricePoint) error
}

// WatchlistRepository 关注列表存储。
type WatchlistRepository interface {
	// Upsert 不存在则插入；已存在则优先级取 min(旧, 新)，其余字段不变。
	Upsert(ctx context.Context, entry *WatchlistEntry) error
	// Stale 返回超过 maxAge 未刷新的条目，优先级升序、最久未刷新优先，从未刷新的排最前。
	Stale(ctx context.Context, maxAge time.Duration, limit int) ([]*WatchlistEntry, error)
	// RecordSuccess 更新刷新时间、自增刷新计数并清除最近错误。
	RecordSuccess(ctx context.Context, ticker string, at time.Time) error
	// RecordFailure 自增错误计数并记录错误，不改动刷新时间以便尽快重试。
	RecordFailure(ctx context.Context, ticker string, cause string) error
	// List 返回全部条目，优先级升序。
	List(ctx context.Context) ([]*WatchlistEntry, error)
}

// JobRunRepository 刷新任务执行记录存储。
type JobRunRepository interface {
	Save(ctx context.Context, run *JobRun) error
	Recent(ctx context.Context, limit int) ([]*JobRun, error)
}
