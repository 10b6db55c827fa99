package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPoint(ticker string, ts time.Time, interval Interval) *PricePoint {
	return NewPricePoint(ticker, decimal.NewFromFloat(123.45), "USD", ts, SourceExternalAPI, interval)
}

func TestPricePointValidate(t *testing.T) {
	ts := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validPoint("AAPL", ts, IntervalDaily).Validate())
	})

	t.Run("empty ticker", func(t *testing.T) {
		p := validPoint("", ts, IntervalDaily)
		assert.ErrorIs(t, p.Validate(), ErrInvalidPricePoint)
	})

	t.Run("ticker too long", func(t *testing.T) {
		p := validPoint("ABCDEFGHIJKLM", ts, IntervalDaily)
		assert.ErrorIs(t, p.Validate(), ErrInvalidPricePoint)
	})

	t.Run("non-positive price", func(t *testing.T) {
		p := validPoint("AAPL", ts, IntervalDaily)
		p.Price = decimal.Zero
		assert.ErrorIs(t, p.Validate(), ErrInvalidPricePoint)
	})

	t.Run("unknown interval", func(t *testing.T) {
		p := validPoint("AAPL", ts, Interval("2min"))
		assert.ErrorIs(t, p.Validate(), ErrInvalidPricePoint)
	})

	t.Run("low above high", func(t *testing.T) {
		p := validPoint("AAPL", ts, IntervalDaily)
		p.Low = decimal.NewNullDecimal(decimal.NewFromInt(200))
		p.High = decimal.NewNullDecimal(decimal.NewFromInt(100))
		assert.ErrorIs(t, p.Validate(), ErrInvalidPricePoint)
	})
}

func TestNewPricePointNormalizes(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	p := NewPricePoint("aapl", decimal.NewFromInt(10), "USD", time.Date(2026, 8, 25, 10, 0, 0, 0, est), SourceManual, IntervalDaily)
	assert.Equal(t, "AAPL", p.Ticker)
	assert.Equal(t, time.UTC, p.Timestamp.Location())
	assert.Equal(t, 15, p.Timestamp.Hour())
}

func TestSortDedupe(t *testing.T) {
	ts1 := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)
	ts2 := time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)

	older := validPoint("AAPL", ts1, Interval60Min)
	newer := validPoint("AAPL", ts1, Interval60Min)
	newer.Price = decimal.NewFromInt(999)
	other := validPoint("AAPL", ts2, Interval60Min)

	// 同一三元组后出现的覆盖先出现的，结果按时间升序
	out := SortDedupe([]*PricePoint{other, older, newer})
	require.Len(t, out, 2)
	assert.Equal(t, ts1, out[0].Timestamp)
	assert.True(t, out[0].Price.Equal(decimal.NewFromInt(999)))
	assert.Equal(t, ts2, out[1].Timestamp)

	// 不同粒度的同一时间点不算重复
	daily := validPoint("AAPL", ts1, IntervalDaily)
	out = SortDedupe([]*PricePoint{older, daily})
	assert.Len(t, out, 2)

	assert.Empty(t, SortDedupe(nil))
}
