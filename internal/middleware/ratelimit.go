package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/ferraceros/ferrabot/internal/clock"
)

// maxTrackedVisitors bounds the per-IP state kept by a RateLimiter.
const maxTrackedVisitors = 10000

// RateLimiter is a fixed-window request limiter per client IP. Idle
// visitors expire from an LRU after two windows.
type RateLimiter struct {
	mu       sync.Mutex
	visitors *expirable.LRU[string, *visitor]
	rate     int
	window   time.Duration
	clock    clock.Clock
	logger   *zap.Logger
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// NewRateLimiter allows rate requests per window for each IP.
func NewRateLimiter(rate int, window time.Duration, clk clock.Clock, logger *zap.Logger) *RateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &RateLimiter{
		visitors: expirable.NewLRU[string, *visitor](maxTrackedVisitors, nil, window*2),
		rate:     rate,
		window:   window,
		clock:    clk,
		logger:   logger,
	}
}

// Allow consumes a token for ip and reports whether the request may pass
// along with the tokens left in the current window.
func (rl *RateLimiter) Allow(ip string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()

	v, ok := rl.visitors.Get(ip)
	if !ok || now.Sub(v.lastReset) >= rl.window {
		rl.visitors.Add(ip, &visitor{tokens: rl.rate - 1, lastReset: now})
		return true, rl.rate - 1
	}

	if v.tokens > 0 {
		v.tokens--
		return true, v.tokens
	}
	return false, 0
}

// RateLimit returns HTTP middleware enforcing rl.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)

			allowed, remaining := rl.Allow(ip)
			if !allowed {
				rl.logger.Warn("rate limit exceeded",
					zap.String("ip", ip),
					zap.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP address from a request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
