package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/smallbiznis/valora-txauth/internal/metrics"
)

const throttleAction = "api"

// RateLimiter enforces per-client request throttling in process. It guards the
// API surface as a whole; the login and passcode budgets live in the shared
// store and are enforced by the services.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	window   time.Duration
	now      func() time.Time
	recorder metrics.Recorder
	mu       sync.Mutex
	clients  map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter for the provided requests-per-minute budget.
func NewRateLimiter(requestsPerMinute int, recorder metrics.Recorder) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	limit := rate.Limit(float64(requestsPerMinute) / 60.0)
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    limit,
		burst:    burst,
		window:   5 * time.Minute,
		now:      time.Now,
		recorder: metrics.OrNop(recorder),
		clients:  make(map[string]*clientLimiter),
	}
}

// Handler returns the gin middleware enforcing throttling behaviour.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		now := r.now()
		limiter := r.getLimiter(c.ClientIP(), now)
		reservation := limiter.ReserveN(now, 1)
		if !reservation.OK() {
			r.reject(c, time.Minute)
			return
		}
		if delay := reservation.DelayFrom(now); delay > 0 {
			reservation.CancelAt(now)
			r.reject(c, delay)
			return
		}

		r.recorder.RateLimitDecision(throttleAction, true)
		c.Next()
	}
}

func (r *RateLimiter) reject(c *gin.Context, retryAfter time.Duration) {
	r.recorder.RateLimitDecision(throttleAction, false)
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":             "rate_limited",
		"error_description": "Too many requests. Please slow down.",
		"reset_in_seconds":  seconds,
	})
}

func (r *RateLimiter) getLimiter(key string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.clients[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	limiter := rate.NewLimiter(r.limit, r.burst)
	r.clients[key] = &clientLimiter{limiter: limiter, lastSeen: now}
	r.cleanupLocked(now)
	return limiter
}

func (r *RateLimiter) cleanupLocked(now time.Time) {
	for key, entry := range r.clients {
		if now.Sub(entry.lastSeen) > r.window {
			delete(r.clients, key)
		}
	}
}
