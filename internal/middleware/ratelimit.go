package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"payment-routing-service/internal/models"
)

// RateLimitSource exposes the settings the rate limiter follows
type RateLimitSource interface {
	SecuritySource
	IsFeatureEnabled(name string) bool
}

type clientLimiter struct {
	limiter  *rate.Limiter
	perMin   int
	lastSeen time.Time
}

// RateLimiter limits requests per client to the configured requests per minute.
// It is a no-op while the rate_limiting feature is off.
type RateLimiter struct {
	mu      sync.Mutex
	source  RateLimitSource
	clients map[string]*clientLimiter
	idle    time.Duration
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiter creates a new rate limiter and starts its cleanup loop
func NewRateLimiter(source RateLimitSource) *RateLimiter {
	rl := &RateLimiter{
		source:  source,
		clients: make(map[string]*clientLimiter),
		idle:    5 * time.Minute,
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// cleanupLoop removes limiters of clients that have gone quiet
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, cl := range rl.clients {
				if now.Sub(cl.lastSeen) > rl.idle {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// Allow reports whether a request from key may proceed
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.source.IsFeatureEnabled(models.FeatureRateLimiting) {
		return true
	}
	perMin := rl.source.Security().MaxRequestsPerMinute
	if perMin <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(perMinute(perMin), perMin), perMin: perMin}
		rl.clients[key] = cl
	} else if cl.perMin != perMin {
		cl.limiter.SetLimit(perMinute(perMin))
		cl.limiter.SetBurst(perMin)
		cl.perMin = perMin
	}
	cl.lastSeen = time.Now()
	return cl.limiter.Allow()
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

// RateLimitMiddleware limits requests by merchant, falling back to client IP
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(MerchantIDKey)
		if key == "" {
			key = c.ClientIP()
		}

		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests, please try again later",
			})
			return
		}

		c.Next()
	}
}
