package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// In-process fixed-window counters keyed by client IP. This is the /auth
// limiter of last resort for deployments without Redis; each replica
// enforces its own window.
type visitor struct {
	windowStart time.Time
	count       int
}

var (
	visitorMu sync.Mutex
	visitors  = make(map[string]*visitor)
)

// SimpleRateLimit rejects clients that send more than maxRequests per window.
func SimpleRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		visitorMu.Lock()
		if len(visitors) > 10000 {
			for k, v := range visitors {
				if now.Sub(v.windowStart) > window {
					delete(visitors, k)
				}
			}
		}
		v, ok := visitors[ip]
		if !ok || now.Sub(v.windowStart) > window {
			visitors[ip] = &visitor{windowStart: now, count: 1}
			visitorMu.Unlock()
			c.Next()
			return
		}
		v.count++
		count := v.count
		visitorMu.Unlock()

		if count > maxRequests {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
