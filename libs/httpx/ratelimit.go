package httpx

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(*http.Request) string

// ClientIP keys by the first X-Forwarded-For hop, falling back to the peer address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ClientIPAndPath gives each route its own budget per client.
func ClientIPAndPath(r *http.Request) string {
	return ClientIP(r) + "|" + r.URL.Path
}

// RateLimiter is an in-process fixed-window limiter. Use RedisRateLimiter when
// several replicas must share one budget.
type RateLimiter struct {
	limit  int
	window time.Duration
	key    KeyFunc
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	calls   int
}

type bucket struct {
	count   int
	resetAt time.Time
}

const sweepEvery = 1024

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		key:     ClientIP,
		now:     time.Now,
		buckets: map[string]*bucket{},
	}
}

// WithKey replaces the bucket key, ClientIP by default.
func (rl *RateLimiter) WithKey(key KeyFunc) *RateLimiter {
	if key != nil {
		rl.key = key
	}
	return rl
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, resetIn := rl.take(rl.key(r))
			setLimitHeaders(w, rl.limit, count)
			if count > rl.limit {
				rejectRateLimited(w, resetIn)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// take counts one hit and returns the count in the current window and the time left in it.
func (rl *RateLimiter) take(key string) (int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.calls++
	if rl.calls%sweepEvery == 0 {
		for k, b := range rl.buckets {
			if !now.Before(b.resetAt) {
				delete(rl.buckets, k)
			}
		}
	}

	b := rl.buckets[key]
	if b == nil || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(rl.window)}
		rl.buckets[key] = b
	}
	if b.count <= rl.limit {
		b.count++
	}
	return b.count, b.resetAt.Sub(now)
}

func setLimitHeaders(w http.ResponseWriter, limit, count int) {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
}

func rejectRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"rate_limited","message":"rate limit exceeded"}`))
}
