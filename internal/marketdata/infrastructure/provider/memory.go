package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
)

// MemoryProvider 确定性的内存行情数据源。
// 本地开发与测试使用：同样的 (ticker, interval, 区间) 总是生成同样的序列。
type MemoryProvider struct {
	mu         sync.Mutex
	basePrices map[string]decimal.Decimal
	calls      int
	transient  int
}

// NewMemoryProvider 创建内存数据源。
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{basePrices: map[string]decimal.Decimal{}}
}

// Seed 注册一个可查询的代码及其基准价。未注册的代码一律返回 ErrTickerNotFound。
func (p *MemoryProvider) Seed(ticker string, base decimal.Decimal) *MemoryProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.basePrices[ticker] = base
	return p
}

// FailNext 让接下来的 n 次调用返回瞬态错误，用于重试路径测试。
func (p *MemoryProvider) FailNext(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transient = n
}

// Calls 返回累计调用次数。
func (p *MemoryProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *MemoryProvider) FetchRange(_ context.Context, ticker string, interval domain.Interval, start, end time.Time) ([]*domain.PricePoint, error) {
	p.mu.Lock()
	p.calls++
	if p.transient > 0 {
		p.transient--
		p.mu.Unlock()
		return nil, fmt.Errorf("simulated transient provider failure")
	}
	base, ok := p.basePrices[ticker]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTickerNotFound, ticker)
	}

	var points []*domain.PricePoint
	for _, day := range domain.TradingDays(start, end) {
		for i, ts := range stampsFor(interval, day) {
			if ts.Before(start.UTC()) || !ts.Before(end.UTC()) {
				continue
			}
			// 基准价加上由日序号决定的确定性偏移
			drift := decimal.NewFromInt(int64(day.YearDay()%7 + i)).Div(decimal.NewFromInt(100))
			price := base.Add(drift)
			point := domain.NewPricePoint(ticker, price, "USD", ts, domain.SourceExternalAPI, interval)
			point.Open = decimal.NewNullDecimal(price)
			point.High = decimal.NewNullDecimal(price.Add(decimal.NewFromFloat(0.5)))
			point.Low = decimal.NewNullDecimal(price.Sub(decimal.NewFromFloat(0.5)))
			point.Close = decimal.NewNullDecimal(price)
			point.Volume = decimal.NewNullDecimal(decimal.NewFromInt(1000))
			points = append(points, point)
		}
	}
	return points, nil
}

// stampsFor 日线每个交易日一个点；日内在常规交易时段内按整点生成。
func stampsFor(interval domain.Interval, day time.Time) []time.Time {
	if !interval.SubDaily() {
		return []time.Time{day}
	}
	var stamps []time.Time
	for hour := 14; hour <= 20; hour++ {
		stamps = append(stamps, day.Add(time.Duration(hour)*time.Hour))
	}
	return stamps
}
