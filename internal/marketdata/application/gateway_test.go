package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/papertrading/internal/marketdata/application"
	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
	"github.com/wyfcoding/papertrading/internal/marketdata/infrastructure/persistence"
	"github.com/wyfcoding/papertrading/internal/marketdata/infrastructure/persistence/memory"
	"github.com/wyfcoding/papertrading/internal/marketdata/infrastructure/provider"
	"github.com/wyfcoding/papertrading/internal/marketdata/infrastructure/ratelimit"
	"github.com/wyfcoding/papertrading/pkg/metrics"
)

type gatewayEnv struct {
	gateway   *application.MarketDataGateway
	provider  *provider.MemoryProvider
	tiered    *persistence.TieredPriceCache
	warm      *memory.PriceStore
	watchlist *fakeWatchlistRepo
}

func newGatewayEnv(t *testing.T, limiter domain.RateLimiter, cap domain.Capability) *gatewayEnv {
	t.Helper()
	warm := memory.NewPriceStore()
	hot := memory.NewPriceCache(15*time.Minute, 6*time.Hour)
	m := metrics.New("test")
	tiered := persistence.NewTieredPriceCache(hot, warm, discardLogger(), m)
	prov := provider.NewMemoryProvider()
	watch := newFakeWatchlistRepo()

	gw := application.NewMarketDataGateway(tiered, prov, limiter, watch, nil, discardLogger(), m, application.GatewayConfig{
		Capability:   cap,
		MaxRetries:   3,
		FetchTimeout: 5 * time.Second,
	})
	return &gatewayEnv{gateway: gw, provider: prov, tiered: tiered, warm: warm, watchlist: watch}
}

// 2026-08-17 到 2026-08-21 是完整的一个交易周
var (
	weekStart = time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
	weekEnd   = time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
)

func TestGatewayFetchesOnceThenServesFromCache(t *testing.T) {
	env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(5, 500), domain.CapabilityFree)
	env.provider.Seed("AAPL", decimal.NewFromInt(230))
	ctx := context.Background()

	first, err := env.gateway.GetPriceHistory(ctx, "AAPL", weekStart, weekEnd, domain.IntervalDaily)
	require.NoError(t, err)
	assert.False(t, first.Degraded)
	assert.Len(t, first.Points, 5)
	assert.Equal(t, "1day", first.Interval)
	assert.Equal(t, 1, env.provider.Calls())

	second, err := env.gateway.GetPriceHistory(ctx, "AAPL", weekStart, weekEnd, domain.IntervalDaily)
	require.NoError(t, err)
	assert.False(t, second.Degraded)
	assert.Len(t, second.Points, 5)
	assert.Equal(t, 1, env.provider.Calls(), "full cache hit must not touch the provider")
}

func TestGatewayNormalizesTicker(t *testing.T) {
	env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(5, 500), domain.CapabilityFree)
	env.provider.Seed("AAPL", decimal.NewFromInt(230))

	dto, err := env.gateway.GetPriceHistory(context.Background(), " aapl ", weekStart, weekEnd, domain.IntervalDaily)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", dto.Ticker)
}

func TestGatewayPartialHitFetchesWholeRangeOnce(t *testing.T) {
	env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(5, 500), domain.CapabilityFree)
	env.provider.Seed("AAPL", decimal.NewFromInt(230))
	ctx := context.Background()

	// 预先只缓存周一
	seed := domain.NewPricePoint("AAPL", decimal.NewFromInt(229), "USD", weekStart, domain.SourceExternalAPI, domain.IntervalDaily)
	require.NoError(t, env.tiered.PutRange(ctx, []*domain.PricePoint{seed}))

	dto, err := env.gateway.GetPriceHistory(ctx, "AAPL", weekStart, weekEnd, domain.IntervalDaily)
	require.NoError(t, err)
	assert.False(t, dto.Degraded)
	assert.Len(t, dto.Points, 5)
	assert.Equal(t, 1, env.provider.Calls(), "one provider call fills all gaps in the range")
}

func TestGatewayDeniedQuotaServesStaleCache(t *testing.T) {
	env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiterWithClock(0, 0, time.Now), domain.CapabilityFree)
	env.provider.Seed("AAPL", decimal.NewFromInt(230))
	ctx := context.Background()

	seed := domain.NewPricePoint("AAPL", decimal.NewFromInt(229), "USD", weekStart, domain.SourceExternalAPI, domain.IntervalDaily)
	require.NoError(t, env.tiered.PutRange(ctx, []*domain.PricePoint{seed}))

	dto, err := env.gateway.GetPriceHistory(ctx, "AAPL", weekStart, weekEnd, domain.IntervalDaily)
	require.NoError(t, err)
	assert.True(t, dto.Degraded, "quota denial with cached data degrades instead of failing")
	assert.Len(t, dto.Points, 1)
	assert.Equal(t, 0, env.provider.Calls())
}

func TestGatewayDeniedQuotaWithEmptyCacheFails(t *testing.T) {
	env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiterWithClock(0, 0, time.Now), domain.CapabilityFree)
	env.provider.Seed("AAPL", decimal.NewFromInt(230))

	_, err := env.gateway.GetPriceHistory(context.Background(), "AAPL", weekStart, weekEnd, domain.IntervalDaily)
	assert.ErrorIs(t, err, domain.ErrMarketDataUnavailable)
	assert.ErrorIs(t, err, domain.ErrRateLimitExceeded, "quota-caused outage carries the quota sentinel")
	assert.Equal(t, 0, env.provider.Calls())
}

func TestGatewayUnknownTickerNotCached(t *testing.T) {
	env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(5, 500), domain.CapabilityFree)

	_, err := env.gateway.GetPriceHistory(context.Background(), "ZZZZ", weekStart, weekEnd, domain.IntervalDaily)
	assert.ErrorIs(t, err, domain.ErrTickerNotFound)
	assert.Equal(t, 1, env.provider.Calls(), "not-found is permanent, no retries")
	assert.Equal(t, 0, env.warm.Len(), "nothing gets cached for an unknown ticker")
}

func TestGatewayRetriesTransientFailures(t *testing.T) {
	env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(5, 500), domain.CapabilityFree)
	env.provider.Seed("AAPL", decimal.NewFromInt(230))
	env.provider.FailNext(1)

	dto, err := env.gateway.GetPriceHistory(context.Background(), "AAPL", weekStart, weekEnd, domain.IntervalDaily)
	require.NoError(t, err)
	assert.False(t, dto.Degraded)
	assert.Len(t, dto.Points, 5)
	assert.Equal(t, 2, env.provider.Calls())
}

func TestGatewayExhaustedRetriesDegradeToCache(t *testing.T) {
	env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(10, 500), domain.CapabilityFree)
	env.provider.Seed("AAPL", decimal.NewFromInt(230))
	ctx := context.Background()

	seed := domain.NewPricePoint("AAPL", decimal.NewFromInt(229), "USD", weekStart, domain.SourceExternalAPI, domain.IntervalDaily)
	require.NoError(t, env.tiered.PutRange(ctx, []*domain.PricePoint{seed}))

	env.provider.FailNext(10)
	dto, err := env.gateway.GetPriceHistory(ctx, "AAPL", weekStart, weekEnd, domain.IntervalDaily)
	require.NoError(t, err)
	assert.True(t, dto.Degraded)
	assert.Len(t, dto.Points, 1)
	assert.Equal(t, 3, env.provider.Calls(), "bounded retries")
}

func TestGatewayAutoIntervalSelection(t *testing.T) {
	t.Run("premium intraday range resolves sub-daily", func(t *testing.T) {
		env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(5, 500), domain.CapabilityPremium)
		env.provider.Seed("AAPL", decimal.NewFromInt(230))

		start := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)
		end := time.Date(2026, 8, 25, 20, 0, 0, 0, time.UTC)
		dto, err := env.gateway.GetPriceHistory(context.Background(), "AAPL", start, end, "")
		require.NoError(t, err)
		assert.Equal(t, "15min", dto.Interval)
		assert.NotEmpty(t, dto.Points)
	})

	t.Run("free tier afternoon window still gets the daily point", func(t *testing.T) {
		env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(5, 500), domain.CapabilityFree)
		env.provider.Seed("AAPL", decimal.NewFromInt(230))

		start := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)
		end := time.Date(2026, 8, 25, 20, 0, 0, 0, time.UTC)
		dto, err := env.gateway.GetPriceHistory(context.Background(), "AAPL", start, end, "")
		require.NoError(t, err)
		assert.Equal(t, "1day", dto.Interval)
		require.Len(t, dto.Points, 1)
		assert.Equal(t, "2026-08-25T00:00:00Z", dto.Points[0].Timestamp)
	})

	t.Run("free tier collapses to daily", func(t *testing.T) {
		env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(5, 500), domain.CapabilityFree)
		env.provider.Seed("AAPL", decimal.NewFromInt(230))

		// 半开区间：终点零点那天不算在内
		start := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
		end := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
		dto, err := env.gateway.GetPriceHistory(context.Background(), "AAPL", start, end, "")
		require.NoError(t, err)
		assert.Equal(t, "1day", dto.Interval)
		assert.Len(t, dto.Points, 2)
	})
}

func TestGatewayClipsHistoryToRequestedWindow(t *testing.T) {
	env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(5, 500), domain.CapabilityPremium)
	env.provider.Seed("AAPL", decimal.NewFromInt(230))
	ctx := context.Background()

	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	wide, err := env.gateway.GetPriceHistory(ctx, "AAPL", day.Add(14*time.Hour), day.Add(21*time.Hour), domain.Interval15Min)
	require.NoError(t, err)
	require.Len(t, wide.Points, 7)
	require.Equal(t, 1, env.provider.Calls())

	// 整日已进缓存，窄窗口不得带出窗口外的点
	narrow, err := env.gateway.GetPriceHistory(ctx, "AAPL", day.Add(16*time.Hour), day.Add(18*time.Hour), domain.Interval15Min)
	require.NoError(t, err)
	assert.Equal(t, 1, env.provider.Calls(), "narrow window is a full cache hit")
	require.Len(t, narrow.Points, 2)
	for _, p := range narrow.Points {
		ts, err := time.Parse(time.RFC3339, p.Timestamp)
		require.NoError(t, err)
		assert.False(t, ts.Before(day.Add(16*time.Hour)), "point %s precedes the window", p.Timestamp)
		assert.True(t, ts.Before(day.Add(18*time.Hour)), "point %s past the window end", p.Timestamp)
	}
}

func TestGatewayCacheOutageStillFetches(t *testing.T) {
	prov := provider.NewMemoryProvider()
	prov.Seed("AAPL", decimal.NewFromInt(230))
	gw := application.NewMarketDataGateway(outageCache{}, prov, ratelimit.NewMemoryRateLimiter(5, 500), newFakeWatchlistRepo(), nil, discardLogger(), metrics.New("test"), application.GatewayConfig{
		Capability:   domain.CapabilityFree,
		MaxRetries:   3,
		FetchTimeout: 5 * time.Second,
	})

	dto, err := gw.GetPriceHistory(context.Background(), "AAPL", weekStart, weekEnd, domain.IntervalDaily)
	require.NoError(t, err)
	assert.False(t, dto.Degraded)
	assert.Len(t, dto.Points, 5)
	assert.Equal(t, 1, prov.Calls(), "cache outage must not suppress the provider fetch")
}

func TestGatewayWeekendRangeReturnsEmpty(t *testing.T) {
	env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(5, 500), domain.CapabilityFree)
	env.provider.Seed("AAPL", decimal.NewFromInt(230))

	saturday := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	dto, err := env.gateway.GetPriceHistory(context.Background(), "AAPL", saturday, sunday, domain.IntervalDaily)
	require.NoError(t, err)
	assert.False(t, dto.Degraded)
	assert.Empty(t, dto.Points, "no trading days means no data, not missing data")
	assert.Equal(t, 0, env.provider.Calls())
}

func TestGatewayRejectsBadInput(t *testing.T) {
	env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(5, 500), domain.CapabilityFree)

	_, err := env.gateway.GetPriceHistory(context.Background(), "", weekStart, weekEnd, domain.IntervalDaily)
	assert.ErrorIs(t, err, domain.ErrInvalidPricePoint)

	_, err = env.gateway.GetPriceHistory(context.Background(), "AAPL", weekEnd, weekStart, domain.IntervalDaily)
	assert.ErrorIs(t, err, domain.ErrInvalidPricePoint)

	_, err = env.gateway.GetPriceHistory(context.Background(), "AAPL", weekStart, weekEnd, domain.Interval("2min"))
	assert.ErrorIs(t, err, domain.ErrInvalidPricePoint)

	_, err = env.gateway.GetPriceHistory(context.Background(), "AAPL", weekStart, weekEnd, domain.IntervalRealTime)
	assert.ErrorIs(t, err, domain.ErrInvalidPricePoint)
}

func TestGatewayTracksQueriedTickers(t *testing.T) {
	env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(5, 500), domain.CapabilityFree)
	env.provider.Seed("AAPL", decimal.NewFromInt(230))

	_, err := env.gateway.GetPriceHistory(context.Background(), "AAPL", weekStart, weekEnd, domain.IntervalDaily)
	require.NoError(t, err)

	entry := env.watchlist.get("AAPL")
	require.NotNil(t, entry, "queried tickers join the watchlist")
	assert.Equal(t, domain.WatchSourceQueried, entry.Source)
	assert.Equal(t, domain.PriorityQueried, entry.Priority)
}

func TestGatewayCurrentPrice(t *testing.T) {
	env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(5, 500), domain.CapabilityFree)
	env.provider.Seed("AAPL", decimal.NewFromInt(230))

	dto, err := env.gateway.GetCurrentPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", dto.Ticker)
	assert.NotEmpty(t, dto.Price)
	assert.False(t, dto.Degraded)
	assert.False(t, dto.Stale, "fresh fetch covers the latest trading day")
}

func TestGatewayCurrentPriceUnknownTicker(t *testing.T) {
	env := newGatewayEnv(t, ratelimit.NewMemoryRateLimiter(5, 500), domain.CapabilityFree)

	_, err := env.gateway.GetCurrentPrice(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, domain.ErrTickerNotFound)
}
