// Package domain 市场数据服务的领域模型、值对象、仓储接口与领域错误。
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// 价格点来源标签
const (
	SourceExternalAPI = "external-api"
	SourceCache       = "cache"
	SourceManual      = "manual"
)

// MaxTickerLength 股票代码最大长度
const MaxTickerLength = 12

// PricePoint 单个观测价格点。
// (Ticker, Timestamp, Interval) 三元组唯一：同一三元组的后续写入覆盖旧值，不产生重复。
type PricePoint struct {
	// Ticker 股票代码（大写）
	Ticker string
	// Price 价格（正数）
	Price decimal.Decimal
	// Currency 币种
	Currency string
	// Timestamp 观测时间（UTC，精度与 Interval 对齐）
	Timestamp time.Time
	// Source 数据来源
	Source string
	// Interval 数据粒度
	Interval Interval
	// OHLCV 可选聚合字段
	Open   decimal.NullDecimal
	High   decimal.NullDecimal
	Low    decimal.NullDecimal
	Close  decimal.NullDecimal
	Volume decimal.NullDecimal
}

// NewPricePoint 创建价格点，时间统一归一化为 UTC。
func NewPricePoint(ticker string, price decimal.Decimal, currency string, ts time.Time, source string, interval Interval) *PricePoint {
	return &PricePoint{
		Ticker:    strings.ToUpper(ticker),
		Price:     price,
		Currency:  currency,
		Timestamp: ts.UTC(),
		Source:    source,
		Interval:  interval,
	}
}

// Validate 校验价格点不变量。
func (p *PricePoint) Validate() error {
	if p.Ticker == "" || len(p.Ticker) > MaxTickerLength {
		return fmt.Errorf("%w: ticker %q", ErrInvalidPricePoint, p.Ticker)
	}
	if p.Ticker != strings.ToUpper(p.Ticker) {
		return fmt.Errorf("%w: ticker %q must be uppercase", ErrInvalidPricePoint, p.Ticker)
	}
	if !p.Price.IsPositive() {
		return fmt.Errorf("%w: price %s must be positive", ErrInvalidPricePoint, p.Price)
	}
	if !p.Interval.Valid() {
		return fmt.Errorf("%w: interval %q", ErrInvalidPricePoint, p.Interval)
	}
	for name, v := range map[string]decimal.NullDecimal{
		"open": p.Open, "high": p.High, "low": p.Low, "close": p.Close,
	} {
		if v.Valid && v.Decimal.IsNegative() {
			return fmt.Errorf("%w: %s %s must not be negative", ErrInvalidPricePoint, name, v.Decimal)
		}
	}
	if p.Volume.Valid && p.Volume.Decimal.IsNegative() {
		return fmt.Errorf("%w: volume %s must not be negative", ErrInvalidPricePoint, p.Volume.Decimal)
	}
	if p.Low.Valid && p.High.Valid && p.Low.Decimal.GreaterThan(p.High.Decimal) {
		return fmt.Errorf("%w: low %s greater than high %s", ErrInvalidPricePoint, p.Low.Decimal, p.High.Decimal)
	}
	return nil
}

// Day 返回价格点所属的 UTC 日历日（零点）。
func (p *PricePoint) Day() time.Time {
	return DayOf(p.Timestamp)
}

// Key 返回唯一性三元组的字符串形式，用于去重。
func (p *PricePoint) Key() string {
	return p.Ticker + "|" + p.Timestamp.UTC().Format(time.RFC3339) + "|" + string(p.Interval)
}

// SortDedupe 按时间升序排序并按 (ticker, timestamp, interval) 去重，后出现的覆盖先出现的。
func SortDedupe(points []*PricePoint) []*PricePoint {
	if len(points) == 0 {
		return points
	}
	byKey := make(map[string]*PricePoint, len(points))
	order := make([]string, 0, len(points))
	for _, p := range points {
		if _, seen := byKey[p.Key()]; !seen {
			order = append(order, p.Key())
		}
		byKey[p.Key()] = p
	}
	out := make([]*PricePoint, 0, len(byKey))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
