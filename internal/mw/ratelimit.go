package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long the limiter of a silent client is kept.
const idleLimiterTTL = 10 * time.Minute

// ClientRateLimiter keeps a token bucket per client address. Buckets of
// clients that stop sending expire.
type ClientRateLimiter struct {
	clients *cache.Cache
	mu      sync.Mutex
	r       rate.Limit
	b       int
}

// NewClientRateLimiter creates a limiter allowing r requests per second
// with bursts of b.
func NewClientRateLimiter(r rate.Limit, b int) *ClientRateLimiter {
	return &ClientRateLimiter{
		clients: cache.New(idleLimiterTTL, idleLimiterTTL),
		r:       r,
		b:       b,
	}
}

// Limiter returns the bucket of client, creating it on first use.
func (l *ClientRateLimiter) Limiter(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.clients.Get(client); ok {
		l.clients.SetDefault(client, v)
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.r, l.b)
	l.clients.SetDefault(client, limiter)
	return limiter
}

// Clients returns the number of tracked clients.
func (l *ClientRateLimiter) Clients() int {
	return l.clients.ItemCount()
}

// RateLimiter is a middleware for per-client rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewClientRateLimiter(r, b)
	return func(c *gin.Context) {
		if !limiter.Limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"kind":    "rate_limited",
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}
