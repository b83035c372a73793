package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/curtistech/unlock-server/internal/audit"
	apperrors "github.com/curtistech/unlock-server/internal/errors"
)

const (
	windowDuration = time.Minute
	sweepEvery     = time.Minute
	maxTrackedKeys = 10000
)

// Limiter is a per-key sliding window of one minute.
type Limiter interface {
	Check(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt int64)
}

// window holds the hit times of one key, oldest first.
type window []time.Time

func (w window) since(cutoff time.Time) window {
	i := 0
	for i < len(w) && !w[i].After(cutoff) {
		i++
	}
	return w[i:]
}

// RateLimiter keeps windows in process memory.
type RateLimiter struct {
	mu        sync.Mutex
	windows   map[string]window
	nextSweep time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows:   make(map[string]window),
		nextSweep: time.Now().Add(sweepEvery),
	}
}

// sweep drops keys with no hits in the current window. Past maxTrackedKeys
// the map is reset outright.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Before(rl.nextSweep) {
		return
	}
	rl.nextSweep = now.Add(sweepEvery)

	cutoff := now.Add(-windowDuration)
	for key, w := range rl.windows {
		if len(w.since(cutoff)) == 0 {
			delete(rl.windows, key)
		}
	}
	if len(rl.windows) > maxTrackedKeys {
		log.Warn().Int("keys", len(rl.windows)).Msg("rate limiter key table full, resetting")
		rl.windows = make(map[string]window)
	}
}

func (rl *RateLimiter) Check(_ context.Context, key string, limit int) (bool, int, int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweep(now)

	w := rl.windows[key].since(now.Add(-windowDuration))

	reset := now
	if len(w) > 0 {
		reset = w[0]
	}
	resetAt := reset.Add(windowDuration).Unix()

	if len(w) >= limit {
		rl.windows[key] = w
		return false, 0, resetAt
	}

	w = append(w, now)
	rl.windows[key] = w
	return true, limit - len(w), resetAt
}

// RateLimitMiddleware limits each client IP on the public redeem routes.
type RateLimitMiddleware struct {
	limiter Limiter
	limit   int
	scope   string
}

func NewRateLimitMiddleware(limiter Limiter, limit int, scope string) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		scope:   scope,
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := audit.ClientIP(r)
		allowed, remaining, resetAt := m.limiter.Check(r.Context(), m.scope+":"+ip, m.limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if !allowed {
			log.Warn().Str("ip", ip).Str("scope", m.scope).Msg("rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]any{"scope": m.scope},
			})
			secondsLeft := resetAt - time.Now().Unix()
			if secondsLeft < 1 {
				secondsLeft = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(secondsLeft, 10))
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
