// Package application 市场数据服务的应用层：网关编排、关注列表管理与后台刷新任务。
package application

import (
	"time"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
)

// PricePointDTO 价格点视图
type PricePointDTO struct {
	Ticker    string `json:"ticker"`
	Price     string `json:"price"`
	Currency  string `json:"currency"`
	Timestamp string `json:"timestamp"`
	Interval  string `json:"interval"`
	Source    string `json:"source"`
	Open      string `json:"open,omitempty"`
	High      string `json:"high,omitempty"`
	Low       string `json:"low,omitempty"`
	Close     string `json:"close,omitempty"`
	Volume    string `json:"volume,omitempty"`
}

// PriceHistoryDTO 历史价格响应。Degraded 表示配额或数据源故障导致
// 结果完全来自缓存、可能陈旧。
type PriceHistoryDTO struct {
	Ticker   string          `json:"ticker"`
	Interval string          `json:"interval"`
	Degraded bool            `json:"degraded"`
	Points   []PricePointDTO `json:"points"`
}

// CurrentPriceDTO 最新价响应
type CurrentPriceDTO struct {
	Ticker    string `json:"ticker"`
	Price     string `json:"price"`
	Currency  string `json:"currency"`
	Timestamp string `json:"timestamp"`
	Interval  string `json:"interval"`
	Source    string `json:"source"`
	// Degraded 本次响应因配额或数据源故障完全来自缓存
	Degraded bool `json:"degraded"`
	// Stale 数据未覆盖最近一个已完成的交易日
	Stale bool `json:"stale"`
}

// WatchlistEntryDTO 关注列表条目视图
type WatchlistEntryDTO struct {
	Ticker          string `json:"ticker"`
	Priority        int    `json:"priority"`
	Source          string `json:"source"`
	AddedAt         string `json:"added_at"`
	LastRefreshedAt string `json:"last_refreshed_at,omitempty"`
	RefreshCount    int64  `json:"refresh_count"`
	ErrorCount      int64  `json:"error_count"`
	LastError       string `json:"last_error,omitempty"`
}

// JobRunDTO 刷新任务执行记录视图
type JobRunDTO struct {
	ID         uint64   `json:"id"`
	StartedAt  string   `json:"started_at"`
	FinishedAt string   `json:"finished_at"`
	Status     string   `json:"status"`
	Attempted  int      `json:"attempted"`
	Succeeded  int      `json:"succeeded"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}

func toPricePointDTO(p *domain.PricePoint) PricePointDTO {
	dto := PricePointDTO{
		Ticker:    p.Ticker,
		Price:     p.Price.String(),
		Currency:  p.Currency,
		Timestamp: p.Timestamp.UTC().Format(time.RFC3339),
		Interval:  string(p.Interval),
		Source:    p.Source,
	}
	if p.Open.Valid {
		dto.Open = p.Open.Decimal.String()
	}
	if p.High.Valid {
		dto.High = p.High.Decimal.String()
	}
	if p.Low.Valid {
		dto.Low = p.Low.Decimal.String()
	}
	if p.Close.Valid {
		dto.Close = p.Close.Decimal.String()
	}
	if p.Volume.Valid {
		dto.Volume = p.Volume.Decimal.String()
	}
	return dto
}

func toWatchlistEntryDTO(e *domain.WatchlistEntry) WatchlistEntryDTO {
	dto := WatchlistEntryDTO{
		Ticker:       e.Ticker,
		Priority:     e.Priority,
		Source:       e.Source,
		AddedAt:      e.AddedAt.UTC().Format(time.RFC3339),
		RefreshCount: e.RefreshCount,
		ErrorCount:   e.ErrorCount,
		LastError:    e.LastError,
	}
	if e.LastRefreshedAt != nil {
		dto.LastRefreshedAt = e.LastRefreshedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toJobRunDTO(r *domain.JobRun) JobRunDTO {
	return JobRunDTO{
		ID:         r.ID,
		StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: r.FinishedAt.UTC().Format(time.RFC3339),
		Status:     r.Status,
		Attempted:  r.Attempted,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
		Errors:     r.Errors,
	}
}
