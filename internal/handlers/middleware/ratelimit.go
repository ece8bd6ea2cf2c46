package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerMinute = 30
	defaultBurst             = 10
	limiterIdleTTL           = 10 * time.Minute
)

type RateLimitConfig struct {
	// RequestsPerMinute allowed per client IP on limited routes.
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

func (c *RateLimitConfig) ApplyDefaults() {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = defaultRequestsPerMinute
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter is a token bucket per client IP.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

func NewRateLimiter(conf *RateLimitConfig) *RateLimiter {
	conf.ApplyDefaults()
	return &RateLimiter{
		limit:   rate.Limit(float64(conf.RequestsPerMinute) / 60.0),
		burst:   conf.Burst,
		clients: map[string]*clientLimiter{},
		now:     time.Now,
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cl, ok := rl.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = cl
	}
	cl.lastAccess = now

	// drop idle clients while we hold the lock anyway
	for k, v := range rl.clients {
		if now.Sub(v.lastAccess) > limiterIdleTTL {
			delete(rl.clients, k)
		}
	}

	return cl.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, try again later."})
			return
		}
		c.Next()
	}
}
