package contractor

import (
	"context"
	"sync"
	"time"
)

// UsageLimiter gates recommendation usage per landlord. Allow reports
// whether another recommendation may run. When the check itself cannot
// be evaluated the service fails open and proceeds; availability wins
// over strictness there.
type UsageLimiter interface {
	Allow(ctx context.Context, landlordID string) (bool, error)
}

// WindowLimiter is a fixed-window in-memory limiter.
type WindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	counts map[string]int
	opened time.Time
}

// NewWindowLimiter allows limit calls per landlord per window.
func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		counts: make(map[string]int),
	}
}

func (l *WindowLimiter) Allow(ctx context.Context, landlordID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.opened) >= l.window {
		l.counts = make(map[string]int)
		l.opened = now
	}

	if l.counts[landlordID] >= l.limit {
		return false, nil
	}
	l.counts[landlordID]++
	return true, nil
}

// Unlimited is a UsageLimiter that always allows.
type Unlimited struct{}

func (Unlimited) Allow(ctx context.Context, landlordID string) (bool, error) {
	return true, nil
}
