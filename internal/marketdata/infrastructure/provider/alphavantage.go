// Package provider 外部行情数据源适配器，负责把供应商的响应形态隔离在本包内。
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
)

const defaultBaseURL = "https://www.alphavantage.co"

// 供应商时间序列的两种日期格式：日线为纯日期，日内带时间。
var timeSeriesLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// AlphaVantageConfig 适配器配置
type AlphaVantageConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// AlphaVantageProvider Alpha Vantage 风格的 HTTP 行情适配器。
// 供应商按调用计费且单次调用返回整段历史，FetchRange 总是拉取完整区间。
type AlphaVantageProvider struct {
	client *resty.Client
	apiKey string
}

// NewAlphaVantageProvider 创建 HTTP 适配器。
func NewAlphaVantageProvider(cfg AlphaVantageConfig) *AlphaVantageProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &AlphaVantageProvider{client: client, apiKey: cfg.APIKey}
}

func (p *AlphaVantageProvider) FetchRange(ctx context.Context, ticker string, interval domain.Interval, start, end time.Time) ([]*domain.PricePoint, error) {
	params := map[string]string{
		"symbol":   ticker,
		"apikey":   p.apiKey,
		"datatype": "json",
	}
	if interval.SubDaily() {
		params["function"] = "TIME_SERIES_INTRADAY"
		params["interval"] = string(interval)
		params["outputsize"] = "full"
	} else {
		params["function"] = "TIME_SERIES_DAILY"
		params["outputsize"] = outputSize(start, end)
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/query")
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode())
	}
	return parseTimeSeries(resp.Body(), ticker, interval, start, end)
}

// outputSize 区间落在最近 100 个数据点内时用 compact 档减小响应体。
func outputSize(start, end time.Time) string {
	if time.Since(start) < 100*24*time.Hour {
		return "compact"
	}
	return "full"
}

func parseTimeSeries(body []byte, ticker string, interval domain.Interval, start, end time.Time) ([]*domain.PricePoint, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("provider returned malformed json: %w", err)
	}

	// 供应商用 200 响应携带业务错误："Error Message" 表示代码不存在，
	// "Note"/"Information" 表示供应商侧限流。
	if msg, ok := raw["Error Message"]; ok {
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrTickerNotFound, ticker, trimQuotes(msg))
	}
	if msg, ok := raw["Note"]; ok {
		return nil, fmt.Errorf("provider throttled: %s", trimQuotes(msg))
	}
	if msg, ok := raw["Information"]; ok {
		return nil, fmt.Errorf("provider rejected request: %s", trimQuotes(msg))
	}

	var series map[string]map[string]string
	for key, value := range raw {
		if !strings.Contains(key, "Time Series") {
			continue
		}
		if err := json.Unmarshal(value, &series); err != nil {
			return nil, fmt.Errorf("provider returned malformed time series: %w", err)
		}
		break
	}
	if series == nil {
		return nil, fmt.Errorf("provider response has no time series for %s", ticker)
	}

	points := make([]*domain.PricePoint, 0, len(series))
	for stamp, fields := range series {
		ts, err := parseStamp(stamp)
		if err != nil {
			return nil, err
		}
		if ts.Before(start.UTC()) || !ts.Before(end.UTC()) {
			continue
		}
		point, err := toPricePoint(ticker, interval, ts, fields)
		if err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	return points, nil
}

func parseStamp(stamp string) (time.Time, error) {
	for _, layout := range timeSeriesLayouts {
		if ts, err := time.ParseInLocation(layout, stamp, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("provider returned bad timestamp %q", stamp)
}

func toPricePoint(ticker string, interval domain.Interval, ts time.Time, fields map[string]string) (*domain.PricePoint, error) {
	var ohlcv [5]decimal.NullDecimal
	for i, name := range []string{"1. open", "2. high", "3. low", "4. close", "5. volume"} {
		s, ok := fields[name]
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("provider returned bad %s %q: %w", name, s, err)
		}
		ohlcv[i] = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	if !ohlcv[3].Valid {
		return nil, fmt.Errorf("provider entry for %s at %s has no close price", ticker, ts)
	}

	point := domain.NewPricePoint(ticker, ohlcv[3].Decimal, "USD", ts, domain.SourceExternalAPI, interval)
	point.Open = ohlcv[0]
	point.High = ohlcv[1]
	point.Low = ohlcv[2]
	point.Close = ohlcv[3]
	point.Volume = ohlcv[4]
	if err := point.Validate(); err != nil {
		return nil, err
	}
	return point, nil
}

func trimQuotes(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}
