package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit rejects requests beyond rps with a burst allowance. The limiter is
// shared across all clients; per-client budgets belong to the gateway.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
