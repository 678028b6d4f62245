package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrPoolExhausted is returned when no session became available before
	// the caller's context expired.
	ErrPoolExhausted = errors.New("browser: pool exhausted")
	// ErrPoolClosed is returned by Acquire after Shutdown.
	ErrPoolClosed = errors.New("browser: pool closed")
)

// Verdict is the caller's judgement of a session when releasing it.
type Verdict int

const (
	// VerdictHealthy returns the session to the pool for reuse.
	VerdictHealthy Verdict = iota
	// VerdictSuspect counts a failure against the session; it is destroyed
	// once it accumulates enough to be considered degraded.
	VerdictSuspect
	// VerdictBroken destroys the session immediately.
	VerdictBroken
)

// PoolOptions configures a session pool.
type PoolOptions struct {
	// Max caps concurrent live sessions. Each live session is a real
	// browser process, so this also caps OS processes.
	Max int
	// DegradeAfter is how many suspect releases a session survives before
	// it is destroyed instead of reused.
	DegradeAfter int
	// Notify, if set, observes the live-session count after every change.
	Notify func(live int)
}

// Pool owns a bounded set of browser sessions, created lazily up to Max and
// reused across tasks to amortize browser startup cost.
type Pool struct {
	launcher Launcher
	opts     PoolOptions

	slots chan struct{}

	mu     sync.Mutex
	idle   []*Session
	live   map[string]*Session
	closed bool
}

// NewPool builds a pool over the given launcher.
func NewPool(launcher Launcher, opts PoolOptions) *Pool {
	if opts.Max <= 0 {
		opts.Max = 1
	}
	if opts.DegradeAfter <= 0 {
		opts.DegradeAfter = 2
	}
	return &Pool{
		launcher: launcher,
		opts:     opts,
		slots:    make(chan struct{}, opts.Max),
		live:     make(map[string]*Session),
	}
}

// Acquire leases a session, creating one if the pool holds no idle session
// and capacity allows. Blocks while the pool is at capacity with nothing
// idle; the wait is bounded by ctx and surfaces as ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		// keep the context error in the chain so callers can tell a
		// cancelled wait from a saturated pool
		return nil, fmt.Errorf("%w: %w", ErrPoolExhausted, ctx.Err())
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		slog.Debug("session reused from pool", slog.String("session_id", s.ID))
		return s, nil
	}
	p.mu.Unlock()

	driver, err := p.launcher.Launch(ctx)
	if err != nil {
		<-p.slots
		return nil, fmt.Errorf("browser: session startup failed: %w", err)
	}

	s := newSession(driver)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		s.close()
		<-p.slots
		return nil, ErrPoolClosed
	}
	p.live[s.ID] = s
	liveCount := len(p.live)
	p.mu.Unlock()

	p.notify(liveCount)
	slog.Debug("session created", slog.String("session_id", s.ID), slog.Int("live", liveCount))
	return s, nil
}

// Release returns a leased session. A healthy verdict puts it back for the
// next Acquire; a suspect verdict degrades it after repeated failures; a
// degraded or broken session is destroyed and never handed out again.
func (p *Pool) Release(s *Session, verdict Verdict) {
	if s == nil {
		return
	}

	health := s.Health()
	switch verdict {
	case VerdictHealthy:
		if health != Healthy {
			p.destroy(s)
			return
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.destroy(s)
			return
		}
		p.idle = append(p.idle, s)
		p.mu.Unlock()
		<-p.slots
	case VerdictSuspect:
		if s.recordFailure(p.opts.DegradeAfter) != Healthy {
			slog.Warn("session degraded, destroying", slog.String("session_id", s.ID))
			p.destroy(s)
			return
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.destroy(s)
			return
		}
		p.idle = append(p.idle, s)
		p.mu.Unlock()
		<-p.slots
	default:
		p.destroy(s)
	}
}

// destroy closes the session's driver and frees its slot.
func (p *Pool) destroy(s *Session) {
	p.mu.Lock()
	_, tracked := p.live[s.ID]
	delete(p.live, s.ID)
	liveCount := len(p.live)
	p.mu.Unlock()

	if err := s.close(); err != nil {
		slog.Error("closing session", slog.String("session_id", s.ID), slog.Any("error", err))
	}
	if tracked {
		p.notify(liveCount)
		select {
		case <-p.slots:
		default:
		}
	}
	slog.Debug("session destroyed", slog.String("session_id", s.ID), slog.Int("live", liveCount))
}

// Live returns the number of live sessions, leased or idle.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Idle returns the number of sessions waiting in the pool.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Shutdown terminates every session, leased or not, and closes the launcher.
// Acquire fails with ErrPoolClosed afterwards. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	sessions := make([]*Session, 0, len(p.live))
	for _, s := range p.live {
		sessions = append(sessions, s)
	}
	p.live = make(map[string]*Session)
	p.idle = nil
	p.mu.Unlock()

	for _, s := range sessions {
		if err := s.close(); err != nil {
			slog.Error("closing session on shutdown", slog.String("session_id", s.ID), slog.Any("error", err))
		}
	}
	if err := p.launcher.Close(); err != nil {
		slog.Error("closing launcher", slog.Any("error", err))
	}
	p.notify(0)
	slog.Info("session pool shut down", slog.Int("terminated", len(sessions)))
}

func (p *Pool) notify(live int) {
	if p.opts.Notify != nil {
		p.opts.Notify(live)
	}
}
