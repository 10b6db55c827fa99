// Package metrics 提供 Prometheus 指标集合与 HTTP 暴露。
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 市场数据服务指标集合
type Metrics struct {
	// 缓存命中/未命中计数，按层（hot/warm）区分
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	// 缓存层故障计数
	CacheTierErrorsTotal *prometheus.CounterVec

	// 外部数据源调用计数与耗时
	ProviderCallsTotal  prometheus.Counter
	ProviderErrorsTotal *prometheus.CounterVec
	ProviderDuration    prometheus.Histogram

	// 配额拒绝计数，按窗口区分
	QuotaDeniedTotal prometheus.Counter
	// 配额剩余量快照
	QuotaRemaining *prometheus.GaugeVec

	// 降级响应计数
	DegradedResponsesTotal prometheus.Counter

	// 后台刷新任务计数
	RefreshRunsTotal     prometheus.Counter
	RefreshTickersTotal  *prometheus.CounterVec
	RefreshRunDuration   prometheus.Histogram
	WatchlistSize        prometheus.Gauge
	WarmTierPrunedTotal  prometheus.Counter
}

// New 创建指标实例。
func New(serviceName string) *Metrics {
	return &Metrics{
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papertrading",
			Subsystem: serviceName,
			Name:      "cache_hits_total",
			Help:      "Cache day-key hits by tier",
		}, []string{"tier"}),
		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papertrading",
			Subsystem: serviceName,
			Name:      "cache_misses_total",
			Help:      "Cache day-key misses by tier",
		}, []string{"tier"}),
		CacheTierErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papertrading",
			Subsystem: serviceName,
			Name:      "cache_tier_errors_total",
			Help:      "Cache tier failures that were degraded around",
		}, []string{"tier"}),
		ProviderCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "papertrading",
			Subsystem: serviceName,
			Name:      "provider_calls_total",
			Help:      "External market data provider calls",
		}),
		ProviderErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papertrading",
			Subsystem: serviceName,
			Name:      "provider_errors_total",
			Help:      "External provider errors by kind",
		}, []string{"kind"}),
		ProviderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "papertrading",
			Subsystem: serviceName,
			Name:      "provider_call_duration_seconds",
			Help:      "External provider call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		QuotaDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "papertrading",
			Subsystem: serviceName,
			Name:      "quota_denied_total",
			Help:      "Rate limiter denials",
		}),
		QuotaRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "papertrading",
			Subsystem: serviceName,
			Name:      "quota_remaining",
			Help:      "Remaining provider quota tokens by window",
		}, []string{"window"}),
		DegradedResponsesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "papertrading",
			Subsystem: serviceName,
			Name:      "degraded_responses_total",
			Help:      "Responses served from possibly-stale cache",
		}),
		RefreshRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "papertrading",
			Subsystem: serviceName,
			Name:      "refresh_runs_total",
			Help:      "Background refresh job runs",
		}),
		RefreshTickersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papertrading",
			Subsystem: serviceName,
			Name:      "refresh_tickers_total",
			Help:      "Background refresh ticker outcomes",
		}, []string{"outcome"}),
		RefreshRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "papertrading",
			Subsystem: serviceName,
			Name:      "refresh_run_duration_seconds",
			Help:      "Background refresh job duration in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 900},
		}),
		WatchlistSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "papertrading",
			Subsystem: serviceName,
			Name:      "watchlist_size",
			Help:      "Number of tracked tickers",
		}),
		WarmTierPrunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "papertrading",
			Subsystem: serviceName,
			Name:      "warm_tier_pruned_rows_total",
			Help:      "Sub-daily rows pruned from the warm tier",
		}),
	}
}

// Register 注册所有指标。
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheTierErrorsTotal,
		m.ProviderCallsTotal,
		m.ProviderErrorsTotal,
		m.ProviderDuration,
		m.QuotaDeniedTotal,
		m.QuotaRemaining,
		m.DegradedResponsesTotal,
		m.RefreshRunsTotal,
		m.RefreshTickersTotal,
		m.RefreshRunDuration,
		m.WatchlistSize,
		m.WarmTierPrunedTotal,
	}
	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ExposeHTTP 在独立端口暴露 /metrics。
func (m *Metrics) ExposeHTTP(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	slog.Info("metrics server starting", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server exited", "error", err)
	}
}
