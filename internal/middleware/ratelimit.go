package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"drivingschool-api/internal/apperrors"
	"drivingschool-api/internal/metrics"
	"drivingschool-api/internal/ratelimit"
)

// RateLimit caps requests per client address.
func RateLimit(l *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := l.Allow(c.Request.Context(), c.ClientIP())

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		remaining := d.Limit - d.Count
		if remaining < 0 || !d.Allowed {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !d.Allowed {
			metrics.RecordRateLimited()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			RespondError(c, apperrors.New(apperrors.ErrThrottled, "Too many requests, please try again later"))
			return
		}
		c.Next()
	}
}
