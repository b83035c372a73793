package middleware

import (
	"sync"
	"time"
)

const (
	authMaxFailures    = 5
	authWindowDuration = time.Minute
	authCleanupPeriod  = 5 * time.Minute
)

type failureWindow struct {
	count       int
	windowStart time.Time
}

// FailureLimiter counts failed attempts per client within a fixed window.
type FailureLimiter struct {
	mu          sync.Mutex
	failures    map[string]*failureWindow
	lastCleanup time.Time
	now         func() time.Time
}

func NewFailureLimiter() *FailureLimiter {
	return &FailureLimiter{
		failures:    make(map[string]*failureWindow),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *FailureLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < authCleanupPeriod {
		return
	}
	l.lastCleanup = now

	for ip, f := range l.failures {
		if now.Sub(f.windowStart) > authWindowDuration {
			delete(l.failures, ip)
		}
	}
}

// Blocked reports whether client has used up its failures for this window.
func (l *FailureLimiter) Blocked(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	f, ok := l.failures[client]
	if !ok {
		return false
	}
	if now.Sub(f.windowStart) > authWindowDuration {
		delete(l.failures, client)
		return false
	}
	return f.count >= authMaxFailures
}

func (l *FailureLimiter) Record(client string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	f, ok := l.failures[client]
	if !ok || now.Sub(f.windowStart) > authWindowDuration {
		l.failures[client] = &failureWindow{count: 1, windowStart: now}
		return
	}
	f.count++
}
