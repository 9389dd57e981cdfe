package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"telehealth/internal/utils"

	"github.com/gin-gonic/gin"
)

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	perMin   int
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type visitor struct {
	tokens   float64
	lastTime time.Time
	lastSeen time.Time
}

// NewRateLimiter refills perMinute tokens a minute up to burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		perMin:   perMinute,
		burst:    burst,
		idle:     3 * time.Minute,
		now:      time.Now,
	}
}

// Allow checks if request is allowed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{tokens: float64(rl.burst), lastTime: now}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	elapsed := now.Sub(v.lastTime).Minutes()
	v.lastTime = now
	v.tokens += elapsed * float64(rl.perMin)
	if v.tokens > float64(rl.burst) {
		v.tokens = float64(rl.burst)
	}

	if v.tokens >= 1 {
		v.tokens--
		return true
	}
	return false
}

// Run evicts idle visitors until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			for key, v := range rl.visitors {
				if rl.now().Sub(v.lastSeen) > rl.idle {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// RateLimit middleware for API endpoints
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	limit := strconv.Itoa(limiter.perMin)

	return func(c *gin.Context) {
		c.Header("X-RateLimit-Limit", limit)
		if !limiter.Allow(getClientKey(c)) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "60")

			utils.ErrorResponse(c, http.StatusTooManyRequests, "Rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Helper function to get client identifier
func getClientKey(c *gin.Context) string {
	if userID := c.GetString("user_id"); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}
