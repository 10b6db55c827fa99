// Package mysql 市场数据服务的 MySQL 持久化实现（温层存储、关注列表、任务记录）。
package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
)

// PricePointModel 温层价格点。(ticker, timestamp, interval_period) 唯一，
// 复合索引支撑 (ticker, interval, timestamp) 的区间扫描。
// interval 为 MySQL 保留字，列名使用 interval_period。
type PricePointModel struct {
	gorm.Model
	Ticker    string              `gorm:"column:ticker;type:varchar(12);not null;uniqueIndex:uk_price_point,priority:1;index:idx_range_scan,priority:1"`
	Interval  string              `gorm:"column:interval_period;type:varchar(10);not null;uniqueIndex:uk_price_point,priority:3;index:idx_range_scan,priority:2"`
	Timestamp time.Time           `gorm:"column:timestamp;type:datetime(3);not null;uniqueIndex:uk_price_point,priority:2;index:idx_range_scan,priority:3"`
	Price     decimal.Decimal     `gorm:"column:price;type:decimal(32,18);not null"`
	Currency  string              `gorm:"column:currency;type:varchar(8);not null"`
	Source    string              `gorm:"column:source;type:varchar(20);not null"`
	Open      decimal.NullDecimal `gorm:"column:open_price;type:decimal(32,18)"`
	High      decimal.NullDecimal `gorm:"column:high_price;type:decimal(32,18)"`
	Low       decimal.NullDecimal `gorm:"column:low_price;type:decimal(32,18)"`
	Close     decimal.NullDecimal `gorm:"column:close_price;type:decimal(32,18)"`
	Volume    decimal.NullDecimal `gorm:"column:volume;type:decimal(32,18)"`
}

// TableName 指定表名
func (PricePointModel) TableName() string { return "price_points" }

// WatchlistEntryModel 关注列表条目
type WatchlistEntryModel struct {
	gorm.Model
	Ticker          string     `gorm:"column:ticker;type:varchar(12);uniqueIndex;not null"`
	Priority        int        `gorm:"column:priority;type:int;not null;index"`
	Source          string     `gorm:"column:source;type:varchar(20);not null"`
	AddedAt         time.Time  `gorm:"column:added_at;type:datetime(3);not null"`
	LastRefreshedAt *time.Time `gorm:"column:last_refreshed_at;type:datetime(3)"`
	RefreshCount    int64      `gorm:"column:refresh_count;type:bigint;not null;default:0"`
	ErrorCount      int64      `gorm:"column:error_count;type:bigint;not null;default:0"`
	LastError       string     `gorm:"column:last_error;type:varchar(512)"`
}

// TableName 指定表名
func (WatchlistEntryModel) TableName() string { return "watchlist_entries" }

// JobRunModel 后台刷新任务执行记录
type JobRunModel struct {
	gorm.Model
	StartedAt  time.Time `gorm:"column:started_at;type:datetime(3);not null;index"`
	FinishedAt time.Time `gorm:"column:finished_at;type:datetime(3)"`
	Status     string    `gorm:"column:status;type:varchar(16);not null"`
	Attempted  int       `gorm:"column:attempted;type:int;not null"`
	Succeeded  int       `gorm:"column:succeeded;type:int;not null"`
	Failed     int       `gorm:"column:failed;type:int;not null"`
	Skipped    int       `gorm:"column:skipped;type:int;not null"`
	Errors     string    `gorm:"column:errors;type:text"`
}

// TableName 指定表名
func (JobRunModel) TableName() string { return "job_runs" }

func toPricePointModel(p *domain.PricePoint) *PricePointModel {
	return &PricePointModel{
		Ticker:    p.Ticker,
		Interval:  string(p.Interval),
		Timestamp: p.Timestamp.UTC(),
		Price:     p.Price,
		Currency:  p.Currency,
		Source:    p.Source,
		Open:      p.Open,
		High:      p.High,
		Low:       p.Low,
		Close:     p.Close,
		Volume:    p.Volume,
	}
}

func toPricePoint(m *PricePointModel) *domain.PricePoint {
	return &domain.PricePoint{
		Ticker:    m.Ticker,
		Interval:  domain.Interval(m.Interval),
		Timestamp: m.Timestamp.UTC(),
		Price:     m.Price,
		Currency:  m.Currency,
		Source:    m.Source,
		Open:      m.Open,
		High:      m.High,
		Low:       m.Low,
		Close:     m.Close,
		Volume:    m.Volume,
	}
}

func toWatchlistEntry(m *WatchlistEntryModel) *domain.WatchlistEntry {
	return &domain.WatchlistEntry{
		Ticker:          m.Ticker,
		Priority:        m.Priority,
		Source:          m.Source,
		AddedAt:         m.AddedAt.UTC(),
		LastRefreshedAt: m.LastRefreshedAt,
		RefreshCount:    m.RefreshCount,
		ErrorCount:      m.ErrorCount,
		LastError:       m.LastError,
	}
}
