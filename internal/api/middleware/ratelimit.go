// Package middleware provides the gin middleware chain for the tracking
// API: rate limiting, the admin gate, and request body size limits.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quickutil/toolstats/internal/ipres"
	"github.com/quickutil/toolstats/internal/ratelimit"
)

// RateLimitMessage is the fixed 429 body. The cooldown is not surfaced
// dynamically; five minutes is the implicit contract.
const RateLimitMessage = "Rate limit exceeded. Try again in a few minutes."

// RateLimit gates every request through the sliding-window limiter,
// keyed by the normalized client IP. Unidentifiable clients share the
// "unknown" bucket.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ipres.Normalize(ipres.FromRequest(c.Request))
		if !limiter.CheckAndRecord(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": RateLimitMessage})
			return
		}
		c.Next()
	}
}
