package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// MoveRateLimit limits protocol moves per account (not per IP) using Redis.
// Requires the JWT middleware to run before it.
func MoveRateLimit(maxMoves int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil {
			// Redis not configured, fail-open
			c.Next()
			return
		}

		addr, exists := c.Get("address")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		address, ok := addr.(string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid caller"})
			return
		}

		key := "move_rl:" + address + ":" + strconv.FormatInt(int64(window.Seconds()), 10)
		ctx := context.Background()

		val, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			// On Redis error, fail-open
			c.Header("X-MoveRateLimit-Error", "redis-error")
			c.Next()
			return
		}

		if val == 1 {
			redisClient.Expire(ctx, key, window)
		}

		c.Header("X-MoveRateLimit-Limit", strconv.Itoa(maxMoves))
		c.Header("X-MoveRateLimit-Remaining", strconv.FormatInt(max(0, int64(maxMoves)-val), 10))

		if val > int64(maxMoves) {
			RLBlocked.WithLabelValues("move:" + c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "move rate limit exceeded",
				"retry_after": int(window.Seconds()),
			})
			return
		}

		RLRequests.WithLabelValues("move:" + c.FullPath()).Inc()
		c.Next()
	}
}
