package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// KeyFunc extracts the limit key. Defaults to the client IP.
	KeyFunc func(c *gin.Context) string
	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns a sensible default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 2,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter keeps one token bucket per client key.
type ClientLimiter struct {
	config  RateLimitConfig
	mu      sync.Mutex
	clients map[string]*clientLimiter
	stop    chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewClientLimiter creates a limiter and starts its cleanup loop when
// CleanupInterval is positive. Call Stop to end it.
func NewClientLimiter(config RateLimitConfig) *ClientLimiter {
	if config.BurstSize < 1 {
		config.BurstSize = 1
	}
	if config.KeyFunc == nil {
		config.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	l := &ClientLimiter{
		config:  config,
		clients: make(map[string]*clientLimiter),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	if config.CleanupInterval > 0 {
		go l.cleanupLoop()
	}
	return l
}

// Allow takes one token for key. It also returns the tokens left.
func (l *ClientLimiter) Allow(key string) (bool, int) {
	now := l.now()
	l.mu.Lock()
	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.BurstSize)}
		l.clients[key] = cl
	}
	cl.lastSeen = now
	l.mu.Unlock()

	allowed := cl.limiter.AllowN(now, 1)
	remaining := int(math.Max(0, math.Floor(cl.limiter.TokensAt(now))))
	return allowed, remaining
}

// Len returns the number of tracked clients.
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *ClientLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

func (l *ClientLimiter) cleanup() {
	threshold := l.now().Add(-l.config.CleanupInterval)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, cl := range l.clients {
		if cl.lastSeen.Before(threshold) {
			delete(l.clients, key)
		}
	}
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (l *ClientLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// RateLimit rejects requests over the client's budget with 429 and a
// Retry-After header.
func RateLimit(l *ClientLimiter) gin.HandlerFunc {
	retryAfter := 1
	if l.config.RequestsPerSecond > 0 {
		retryAfter = int(math.Max(1, math.Ceil(1/l.config.RequestsPerSecond)))
	}
	return func(c *gin.Context) {
		allowed, remaining := l.Allow(l.config.KeyFunc(c))
		c.Header("X-RateLimit-Limit", strconv.Itoa(l.config.BurstSize))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "RATE_LIMITED",
				"message": "rate limit exceeded, please retry later",
			})
			return
		}
		c.Next()
	}
}
