package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/metrics"
	"github.com/Surgeonito/fabrica-collaborative-editing/pkg/response"
)

// EditorLimiter hands out one token bucket per editor. Buckets idle for
// longer than idleTTL are dropped on the next sweep.
type EditorLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	limiters map[string]*limiterEntry
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewEditorLimiter(requestsPerMinute int) *EditorLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	burst := requestsPerMinute / 6
	if burst < 1 {
		burst = 1
	}
	return &EditorLimiter{
		limit:    rate.Limit(float64(requestsPerMinute) / 60),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

func (l *EditorLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// RetryAfter is how long an exhausted bucket takes to earn one token.
func (l *EditorLimiter) RetryAfter() time.Duration {
	return time.Duration(float64(time.Second) / float64(l.limit))
}

// Sweep drops idle buckets and returns how many it dropped.
func (l *EditorLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idleTTL)
	swept := 0
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			swept++
		}
	}
	return swept
}

// Len is the number of live buckets.
func (l *EditorLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RateLimitMiddleware rejects requests over the editor's rate with 429.
// Requests without an editor id are keyed by client address.
func RateLimitMiddleware(limiter *EditorLimiter, route string, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := GetEditorID(r)
			if key == "" {
				key = clientAddr(r)
			}

			if !limiter.Allow(key) {
				if m != nil {
					m.IncrementRateLimitHit(route)
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(limiter.RetryAfter().Seconds()))))
				response.Error(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
