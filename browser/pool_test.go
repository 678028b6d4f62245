package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeDriver struct {
	closed atomic.Bool
}

func (d *fakeDriver) Navigate(ctx context.Context, url, waitSelector string) error { return nil }
func (d *fakeDriver) HTML(ctx context.Context) (string, error)                     { return "<html></html>", nil }
func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error)               { return []byte{0x89}, nil }
func (d *fakeDriver) Close() error {
	d.closed.Store(true)
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	launched []*fakeDriver
	failNext error
	closed   bool
}

func (l *fakeLauncher) Launch(ctx context.Context) (Driver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return nil, err
	}
	d := &fakeDriver{}
	l.launched = append(l.launched, d)
	return d, nil
}

func (l *fakeLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launched)
}

func newTestPool(max int) (*Pool, *fakeLauncher) {
	launcher := &fakeLauncher{}
	return NewPool(launcher, PoolOptions{Max: max, DegradeAfter: 2}), launcher
}

func TestAcquireReusesIdleSession(t *testing.T) {
	pool, launcher := newTestPool(2)
	defer pool.Shutdown()
	ctx := context.Background()

	s1, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	pool.Release(s1, VerdictHealthy)

	s2, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if s2.ID != s1.ID {
		t.Fatalf("expected idle session to be reused, got a new one")
	}
	if got := launcher.launchCount(); got != 1 {
		t.Fatalf("launched %d drivers, want 1", got)
	}
}

func TestAcquireCapsLiveSessions(t *testing.T) {
	const max = 2
	pool, _ := newTestPool(max)
	defer pool.Shutdown()
	ctx := context.Background()

	s1, _ := pool.Acquire(ctx)
	s2, _ := pool.Acquire(ctx)
	if s1 == nil || s2 == nil {
		t.Fatalf("expected two leases")
	}
	if got := pool.Live(); got != max {
		t.Fatalf("Live() = %d, want %d", got, max)
	}

	// a third caller blocks until a lease is returned
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(waitCtx); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("Acquire() error = %v, want ErrPoolExhausted", err)
	}

	done := make(chan *Session, 1)
	go func() {
		s, err := pool.Acquire(ctx)
		if err != nil {
			t.Errorf("blocked Acquire() error = %v", err)
		}
		done <- s
	}()

	pool.Release(s1, VerdictHealthy)
	select {
	case s3 := <-done:
		if s3 == nil {
			t.Fatalf("blocked Acquire() returned nil session")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("blocked Acquire() did not wake after Release")
	}
	if got := pool.Live(); got > max {
		t.Fatalf("Live() = %d, exceeds cap %d", got, max)
	}
}

func TestAcquireExhaustedKeepsContextError(t *testing.T) {
	pool, _ := newTestPool(1)
	defer pool.Shutdown()
	ctx := context.Background()

	s1, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer pool.Release(s1, VerdictHealthy)

	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = pool.Acquire(cancelCtx)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("Acquire() error = %v, want ErrPoolExhausted in chain", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire() error = %v, want context.Canceled in chain", err)
	}

	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, time.Millisecond)
	defer cancelTimeout()
	_, err = pool.Acquire(timeoutCtx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire() error = %v, want context.DeadlineExceeded in chain", err)
	}
}

func TestAcquireNeverDoubleLeases(t *testing.T) {
	pool, _ := newTestPool(3)
	defer pool.Shutdown()
	ctx := context.Background()

	const workers = 12
	var (
		mu     sync.Mutex
		leased = make(map[string]bool)
		wg     sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s, err := pool.Acquire(ctx)
				if err != nil {
					t.Errorf("Acquire() error = %v", err)
					return
				}
				mu.Lock()
				if leased[s.ID] {
					t.Errorf("session %s leased twice concurrently", s.ID)
				}
				leased[s.ID] = true
				mu.Unlock()

				mu.Lock()
				leased[s.ID] = false
				mu.Unlock()
				pool.Release(s, VerdictHealthy)
			}
		}()
	}
	wg.Wait()

	if got := pool.Live(); got > 3 {
		t.Fatalf("Live() = %d, exceeds cap 3", got)
	}
}

func TestSuspectReleasesDegradeAndDestroy(t *testing.T) {
	pool, _ := newTestPool(1)
	defer pool.Shutdown()
	ctx := context.Background()

	s1, _ := pool.Acquire(ctx)
	pool.Release(s1, VerdictSuspect) // first strike, still reusable

	s2, _ := pool.Acquire(ctx)
	if s2.ID != s1.ID {
		t.Fatalf("session should survive a single suspect release")
	}
	pool.Release(s2, VerdictSuspect) // second strike, degraded and destroyed

	if s1.Health() != Dead {
		t.Fatalf("degraded session health = %v, want dead", s1.Health())
	}

	s3, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() after degrade error = %v", err)
	}
	if s3.ID == s1.ID {
		t.Fatalf("degraded session was handed out again")
	}
}

func TestBrokenReleaseDestroysImmediately(t *testing.T) {
	pool, launcher := newTestPool(1)
	defer pool.Shutdown()
	ctx := context.Background()

	s1, _ := pool.Acquire(ctx)
	pool.Release(s1, VerdictBroken)
	if !launcher.launched[0].closed.Load() {
		t.Fatalf("broken session's driver should be closed")
	}
	if got := pool.Live(); got != 0 {
		t.Fatalf("Live() = %d, want 0", got)
	}

	s2, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() after broken release error = %v", err)
	}
	if s2.ID == s1.ID {
		t.Fatalf("broken session was handed out again")
	}
}

func TestAcquireStartupFailure(t *testing.T) {
	pool, launcher := newTestPool(1)
	defer pool.Shutdown()
	launcher.failNext = errors.New("chrome exited during startup")

	if _, err := pool.Acquire(context.Background()); err == nil {
		t.Fatalf("Acquire() should surface startup failure")
	}

	// the slot is freed, a later acquire succeeds
	if _, err := pool.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() after startup failure error = %v", err)
	}
}

func TestShutdownTerminatesEverything(t *testing.T) {
	pool, launcher := newTestPool(3)
	ctx := context.Background()

	s1, _ := pool.Acquire(ctx)
	s2, _ := pool.Acquire(ctx)
	pool.Release(s2, VerdictHealthy)
	_ = s1 // still leased, never released

	pool.Shutdown()

	for i, d := range launcher.launched {
		if !d.closed.Load() {
			t.Fatalf("driver %d not closed on shutdown", i)
		}
	}
	if !launcher.closed {
		t.Fatalf("launcher not closed on shutdown")
	}
	if got := pool.Live(); got != 0 {
		t.Fatalf("Live() after shutdown = %d, want 0", got)
	}
	if _, err := pool.Acquire(ctx); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Acquire() after shutdown error = %v, want ErrPoolClosed", err)
	}
}
