package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig controls the per-client token bucket limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings. Extraction
// calls are expensive upstream, so the default is deliberately modest.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
	}
}

// evictAfter is how long an idle client keeps its bucket. An idle bucket is
// full, so dropping it loses nothing.
const evictAfter = 10 * time.Minute

// clientBucket is one client's token balance. lastSeen doubles as the refill
// anchor and the eviction clock.
type clientBucket struct {
	tokens   float64
	lastSeen time.Time
}

// limiter owns all client buckets under a single mutex. Buckets refill
// lazily on access, so there is no background goroutine to manage.
type limiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rate    float64
	burst   float64
	sweepAt time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{
		clients: make(map[string]*clientBucket),
		rate:    cfg.RequestsPerSecond,
		burst:   float64(cfg.BurstSize),
		sweepAt: time.Now().Add(evictAfter),
	}
}

// take refills the client's bucket for the elapsed time, then spends one
// token. When the bucket is empty it reports the whole seconds until a
// token becomes available.
func (l *limiter) take(key string, now time.Time) (ok bool, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		l.sweep(now)
	}

	b, found := l.clients[key]
	if !found {
		b = &clientBucket{tokens: l.burst}
		l.clients[key] = b
	} else {
		b.tokens += now.Sub(b.lastSeen).Seconds() * l.rate
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
	}
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, 1
	}
	return false, int((1-b.tokens)/l.rate) + 1
}

// sweep drops buckets idle past evictAfter. Caller holds mu.
func (l *limiter) sweep(now time.Time) {
	for key, b := range l.clients {
		if now.Sub(b.lastSeen) > evictAfter {
			delete(l.clients, key)
		}
	}
	l.sweepAt = now.Add(evictAfter)
}

// RateLimit limits requests per authenticated user, falling back to client
// IP before auth has run.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	lim := newLimiter(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if userID, ok := c.Get("user_id").(string); ok && userID != "" {
				key = userID
			}

			ok, retryAfter := lim.take(key, time.Now())
			c.Response().Header().Set("X-RateLimit-Limit", limitHeader)
			if !ok {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
