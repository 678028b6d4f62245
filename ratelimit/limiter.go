// Package ratelimit provides a sliding-window limiter shared by every
// concurrent scrape task, so raising task parallelism never bypasses the
// outbound-request ceiling.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most n actions within any sliding window of the
// configured period. It never errors on its own; callers bound the wait
// through their context.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	period time.Duration
	window []time.Time

	now func() time.Time
}

// New builds a limiter admitting limit actions per period.
func New(limit int, period time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		period: period,
		now:    time.Now,
	}
}

// Admit blocks until an action may proceed, then reserves a slot at the
// current time. Concurrent callers race for freed slots; a caller that loses
// the race goes back to waiting. Returns the context error if ctx is
// cancelled while waiting.
func (l *Limiter) Admit(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.now()
		l.pruneLocked(now)
		if len(l.window) < l.limit {
			l.window = append(l.window, now)
			l.mu.Unlock()
			return nil
		}
		wait := l.window[0].Add(l.period).Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Remaining returns how many slots are free in the current window.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
	free := l.limit - len(l.window)
	if free < 0 {
		free = 0
	}
	return free
}

// pruneLocked drops reservations older than the period. The window is
// append-only in time order, so only the head needs checking.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.period)
	i := 0
	for i < len(l.window) && !l.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.window = append(l.window[:0], l.window[i:]...)
	}
}
