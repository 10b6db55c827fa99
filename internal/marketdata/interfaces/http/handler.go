package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/papertrading/internal/marketdata/application"
	"github.com/wyfcoding/papertrading/internal/marketdata/domain"
)

// MarketDataHandler 市场数据 HTTP 接口。
type MarketDataHandler struct {
	gateway   *application.MarketDataGateway
	watchlist *application.WatchlistService
	job       *application.RefreshJob
}

func NewMarketDataHandler(gateway *application.MarketDataGateway, watchlist *application.WatchlistService, job *application.RefreshJob) *MarketDataHandler {
	return &MarketDataHandler{gateway: gateway, watchlist: watchlist, job: job}
}

func (h *MarketDataHandler) RegisterRoutes(r *gin.RouterGroup) {
	v1 := r.Group("/v1/marketdata")
	{
		v1.GET("/price", h.GetCurrentPrice)
		v1.GET("/history", h.GetPriceHistory)
		v1.GET("/watchlist", h.ListWatchlist)
		v1.POST("/watchlist", h.TrackTicker)
		v1.GET("/jobs", h.ListJobRuns)
		v1.POST("/jobs/run", h.TriggerRefresh)
	}
}

func (h *MarketDataHandler) GetCurrentPrice(c *gin.Context) {
	ticker := c.Query("ticker")
	if ticker == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker is required"})
		return
	}

	dto, err := h.gateway.GetCurrentPrice(c.Request.Context(), ticker)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *MarketDataHandler) GetPriceHistory(c *gin.Context) {
	ticker := c.Query("ticker")
	if ticker == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker is required"})
		return
	}

	start, _, err := parseTimeParam(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start: " + err.Error()})
		return
	}
	end := time.Now().UTC()
	if raw := c.Query("end"); raw != "" {
		var dateOnly bool
		end, dateOnly, err = parseTimeParam(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end: " + err.Error()})
			return
		}
		// 查询区间为半开 [start, end)；纯日期的 end 按含当日理解，推进一天。
		if dateOnly {
			end = end.AddDate(0, 0, 1)
		}
	}
	interval := domain.Interval(c.Query("interval"))

	dto, err := h.gateway.GetPriceHistory(c.Request.Context(), ticker, start, end, interval)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

type trackRequest struct {
	Ticker   string `json:"ticker" binding:"required"`
	Source   string `json:"source"`
	Priority int    `json:"priority"`
}

func (h *MarketDataHandler) TrackTicker(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dto, err := h.watchlist.Track(c.Request.Context(), req.Ticker, req.Source, req.Priority)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto)
}

func (h *MarketDataHandler) ListWatchlist(c *gin.Context) {
	dtos, err := h.watchlist.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": dtos, "count": len(dtos)})
}

func (h *MarketDataHandler) ListJobRuns(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 {
			limit = l
		}
	}

	dtos, err := h.job.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": dtos})
}

func (h *MarketDataHandler) TriggerRefresh(c *gin.Context) {
	run, err := h.job.RunOnce(c.Request.Context())
	if err != nil {
		if errors.Is(err, application.ErrJobAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    run.Status,
		"attempted": run.Attempted,
		"succeeded": run.Succeeded,
		"failed":    run.Failed,
		"skipped":   run.Skipped,
	})
}

// writeDomainError 把领域错误映射为 HTTP 状态码。
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrTickerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidPricePoint), errors.Is(err, domain.ErrInvalidWatchlistEntry):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrMarketDataUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// parseTimeParam 解析 RFC3339 时间或纯日期，返回是否为纯日期。
func parseTimeParam(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), true, nil
}
