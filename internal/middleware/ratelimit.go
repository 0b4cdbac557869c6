package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Limiter counts hits per scope and subject in a fixed window.
type Limiter interface {
	Exceeded(ctx context.Context, scope, subject string, limit int, window time.Duration) (bool, error)
}

// RateLimit caps requests per client IP (or per user once authenticated) within
// window. scope separates independent budgets, e.g. "auth" and "api".
func RateLimit(limiter Limiter, scope string, maxRequests int, window time.Duration) gin.HandlerFunc {
	if limiter == nil {
		panic("Limiter cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		subject := c.ClientIP()
		if userID := c.GetString(UserIDKey); userID != "" {
			subject = "user:" + userID
		}

		exceeded, err := limiter.Exceeded(c.Request.Context(), scope, subject, maxRequests, window)
		if err != nil {
			logrus.WithError(err).WithField("scope", scope).Error("RateLimit: counter unavailable")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Rate limiting error"})
			return
		}
		if exceeded {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
