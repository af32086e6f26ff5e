package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campusworks/interndocs/pkg/errors"
	"github.com/campusworks/interndocs/pkg/logger"
	"github.com/campusworks/interndocs/pkg/metrics"
	"github.com/campusworks/interndocs/pkg/response"
)

// RateLimit bounds requests per client IP within a fixed window. Each scope
// (general API traffic, login, uploads) is an independent limiter instance
// with its own cap and window.
func RateLimit(scope string, store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		key := scope + ":" + c.ClientIP()
		count, ttl, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			// A broken counter store must not take the API down.
			logger.WithModule("ratelimit").Warn("increment failed",
				zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}

		writeRateHeaders(c, maxRequests, count, ttl)

		if count > int64(maxRequests) {
			metrics.RateLimitRejections.WithLabelValues(scope).Inc()
			rejectRateLimited(c, ttl)
			return
		}

		c.Next()
	}
}

// LoginRateLimit bounds failed login attempts per client IP. Successful
// logins do not count against the cap: the counter is only incremented after
// the handler when the response signals failure.
func LoginRateLimit(store RateStore, maxAttempts int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxAttempts <= 0 || window <= 0 {
			c.Next()
			return
		}

		key := "login:" + c.ClientIP()
		count, ttl, err := store.Peek(c.Request.Context(), key)
		if err != nil {
			logger.WithModule("ratelimit").Warn("peek failed", zap.Error(err))
			c.Next()
			return
		}

		writeRateHeaders(c, maxAttempts, count, ttl)

		if count >= int64(maxAttempts) {
			metrics.RateLimitRejections.WithLabelValues("login").Inc()
			rejectRateLimited(c, ttl)
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if _, _, err := store.Increment(c.Request.Context(), key, window); err != nil {
				logger.WithModule("ratelimit").Warn("increment failed", zap.Error(err))
			}
		}
	}
}

func writeRateHeaders(c *gin.Context, limit int, count int64, ttl time.Duration) {
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.Itoa(resetSeconds(ttl)))
}

func rejectRateLimited(c *gin.Context, ttl time.Duration) {
	c.Header("Retry-After", strconv.Itoa(resetSeconds(ttl)))
	response.Error(c, errors.ErrRateLimited)
	c.Abort()
}

func resetSeconds(ttl time.Duration) int {
	secs := int(ttl.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
