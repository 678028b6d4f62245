// Package browser manages a bounded pool of headless browser sessions.
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Health is the pool's view of a session's fitness for reuse.
type Health int

const (
	Healthy Health = iota
	Degraded
	Dead
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Driver is one browser automation target. Production code uses a Chrome tab
// via chromedp; tests substitute fakes.
type Driver interface {
	// Navigate loads url and waits for the content marker selector to be
	// ready. The wait is bounded by ctx.
	Navigate(ctx context.Context, url, waitSelector string) error
	// HTML returns the rendered document.
	HTML(ctx context.Context) (string, error)
	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Launcher creates drivers. It owns whatever process-level resources the
// drivers share.
type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
	Close() error
}

// Session is one pooled browser handle. While idle it is owned exclusively
// by the pool; while checked out it is lent exclusively to one caller.
type Session struct {
	ID        string
	CreatedAt time.Time

	driver Driver

	mu       sync.Mutex
	health   Health
	lastUsed time.Time
	failures int
}

func newSession(driver Driver) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		driver:    driver,
		lastUsed:  now,
	}
}

// Navigate loads a page through the underlying driver.
func (s *Session) Navigate(ctx context.Context, url, waitSelector string) error {
	s.touch()
	return s.driver.Navigate(ctx, url, waitSelector)
}

// HTML returns the rendered document text.
func (s *Session) HTML(ctx context.Context) (string, error) {
	s.touch()
	return s.driver.HTML(ctx)
}

// Screenshot captures the current page for diagnostics.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	return s.driver.Screenshot(ctx)
}

// Health returns the session's current health.
func (s *Session) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// LastUsed returns when the session last served a caller.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// recordFailure counts one task failure attributed to this session and
// degrades it once the threshold is reached.
func (s *Session) recordFailure(threshold int) Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	if s.health == Healthy && s.failures >= threshold {
		s.health = Degraded
	}
	return s.health
}

func (s *Session) setHealth(h Health) {
	s.mu.Lock()
	s.health = h
	s.mu.Unlock()
}

func (s *Session) close() error {
	s.setHealth(Dead)
	return s.driver.Close()
}
