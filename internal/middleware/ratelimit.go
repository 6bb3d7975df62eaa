package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"florijn/internal/logger"
)

// RateLimit returns a Gin middleware enforcing a global request rate limit.
// Requests over the limit are rejected with 429.
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			logger.Get().Warnw("rate limit exceeded",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				gin.H{"error": gin.H{"code": "RATE_LIMITED", "message": "Too many requests"}})
			return
		}
		c.Next()
	}
}
