package middleware

import (
	"net/http"
	"sync"
	"time"

	apperrors "bookswap/pkg/errors"
	httputil "bookswap/pkg/http"
	"bookswap/pkg/logger"

	"golang.org/x/time/rate"
)

// KeyExtractor picks the rate limit bucket for a request. An empty key is
// not limited.
type KeyExtractor func(r *http.Request) string

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RequesterRateLimiter keeps one token bucket per requester. A bucket holds
// limit tokens and refills at limit per window.
type RequesterRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    int
	window   time.Duration
	extract  KeyExtractor
	log      *logger.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRequesterRateLimiter(limit int, window time.Duration, extract KeyExtractor, log *logger.Logger) *RequesterRateLimiter {
	if extract == nil {
		extract = RequesterKey
	}
	rl := &RequesterRateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		window:   window,
		extract:  extract,
		log:      log,
		stopCh:   make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Allow reports whether key may make another request now.
func (rl *RequesterRateLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	rl.mu.Lock()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(rl.window/time.Duration(rl.limit)), rl.limit),
		}
		rl.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

func (rl *RequesterRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// evictIdle drops buckets untouched for a full window; they are full again
// by then, so recreating them later changes nothing.
func (rl *RequesterRateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > rl.window {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RequesterRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func RateLimit(limiter *RequesterRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := limiter.extract(r)
			if limiter.Allow(key) {
				next.ServeHTTP(w, r)
				return
			}

			limiter.log.Warn("Rate limit exceeded",
				"request_id", RequestIDFrom(r.Context()),
				"requester", key,
				"path", r.URL.Path,
			)
			w.Header().Set("Retry-After", "1")
			err := apperrors.New("RATE_LIMITED", "Rate limit exceeded", http.StatusTooManyRequests)
			if writeErr := httputil.WriteError(w, err); writeErr != nil {
				limiter.log.Error("failed to write error response", "handler", "RateLimit", "operation", "WriteError", "error", writeErr)
			}
		})
	}
}

// RequesterKey limits by the authenticated user, falling back to nothing
// for anonymous calls; those are rejected by the handlers anyway.
func RequesterKey(r *http.Request) string {
	return r.Header.Get(httputil.HeaderUserID)
}
