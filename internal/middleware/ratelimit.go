package middleware

import (
	"context"  // Cleanup lifetime
	"net/http" // HTTP status codes
	"sync"     // Limiter map guard
	"time"     // Idle tracking

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Structured logging
	"golang.org/x/time/rate"     // Token bucket limiter
)

// DefaultLimiterIdle is how long an unused client bucket is kept
const DefaultLimiterIdle = 10 * time.Minute

// clientLimiter is one client's bucket and when it was last used
type clientLimiter struct {
	limiter  *rate.Limiter // Token bucket
	lastSeen time.Time     // Last request from this client
}

// RateLimiter throttles requests per client IP
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter allows perSecond requests per client with the given burst
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// limiter returns the bucket of one client, creating it on first use
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cl, ok := rl.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = rl.now() // Keep active clients around
	return cl.limiter
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Cleanup drops buckets unused for longer than idle and returns how many went.
// A dropped client starts again with a full bucket.
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-idle) // Anything older is idle
	removed := 0
	for key, cl := range rl.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := rl.Cleanup(idle); n > 0 {
					logrus.WithFields(logrus.Fields{
						"removed": n,        // Buckets dropped
						"tracked": rl.Len(), // Buckets left
					}).Debug("Rate limiter cleanup")
				}
			}
		}
	}()
}

// Handler rejects requests over the limit with 429
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP() // One bucket per client address
		if !rl.limiter(key).Allow() {
			logrus.WithFields(logrus.Fields{
				"client_ip": key,                // Client address
				"path":      c.Request.URL.Path, // Throttled route
			}).Warn("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "rate_limited", "message": "Too many attempts, slow down"})
			return
		}
		c.Next()
	}
}
