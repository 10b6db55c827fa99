// Package middleware provides shared gin middleware.
package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/papertrading/pkg/ratelimit"
)

// RateLimit creates a gin middleware limiting requests per client IP.
func RateLimit(limiter ratelimit.Limiter, qps, burst int) gin.HandlerFunc {
	limit := ratelimit.Limit{
		Rate:   qps,
		Period: time.Second,
		Burst:  burst,
	}
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:http:%s", c.ClientIP())

		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			// Fail open if the limiter backend is down.
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(res.ResetAfter/time.Second), 10))

		if !res.Allowed {
			c.Header("Retry-After", strconv.FormatInt(int64(res.RetryAfter/time.Second), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too Many Requests",
				"retry_after": res.RetryAfter.String(),
			})
			return
		}
		c.Next()
	}
}
