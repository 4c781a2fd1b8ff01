package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/liliang-cn/sitebot/internal/api/response"
	"github.com/liliang-cn/sitebot/internal/domain"
)

const (
	sweepInterval  = time.Minute
	sweepThreshold = 10000
)

// RateLimiter keeps one token bucket per value of a route parameter. Buckets
// that have refilled completely carry no state and are dropped by a sweep that
// runs every minute, or sooner once the table grows past sweepThreshold.
type RateLimiter struct {
	param string
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	lastSweep time.Time
	nextSize  int
}

// NewRateLimiter allows requestsPerMinute per distinct value of param, with
// bursts of up to burst requests.
func NewRateLimiter(param string, requestsPerMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		param:     param,
		limit:     rate.Limit(float64(requestsPerMinute) / 60),
		burst:     burst,
		now:       time.Now,
		limiters:  make(map[string]*rate.Limiter),
		lastSweep: time.Now(),
		nextSize:  sweepThreshold,
	}
}

// Allow reports whether a request for key may proceed now
func (l *RateLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= sweepInterval || len(l.limiters) >= l.nextSize {
		l.sweep(now)
	}

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim.AllowN(now, 1)
}

// sweep drops full buckets, which behave exactly like new ones. Callers hold mu.
func (l *RateLimiter) sweep(now time.Time) {
	for key, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
	l.nextSize = max(sweepThreshold, 2*len(l.limiters))
}

// Len returns the number of tracked buckets
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Middleware aborts with 429 once the bucket for the request's parameter is empty
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.Param(l.param)) {
			response.Error(c, domain.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimit limits requests per value of the route parameter param
func RateLimit(param string, requestsPerMinute, burst int) gin.HandlerFunc {
	return NewRateLimiter(param, requestsPerMinute, burst).Middleware()
}
