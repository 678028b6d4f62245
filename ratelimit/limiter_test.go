package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

// skew tolerated between a slot being reserved and the caller recording it.
const recordSkew = 20 * time.Millisecond

func TestAdmitRespectsSlidingWindow(t *testing.T) {
	const (
		limit  = 2
		period = 150 * time.Millisecond
		total  = 6
	)
	l := New(limit, period)
	ctx := context.Background()

	var admitted []time.Time
	for i := 0; i < total; i++ {
		if err := l.Admit(ctx); err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
		admitted = append(admitted, time.Now())
	}

	for i := 0; i+limit < len(admitted); i++ {
		gap := admitted[i+limit].Sub(admitted[i])
		if gap < period-recordSkew {
			t.Fatalf("admissions %d and %d only %v apart, window is %v", i, i+limit, gap, period)
		}
	}
}

func TestAdmitConcurrentCallers(t *testing.T) {
	const (
		limit   = 3
		period  = 100 * time.Millisecond
		callers = 9
	)
	l := New(limit, period)
	ctx := context.Background()

	var (
		mu       sync.Mutex
		admitted []time.Time
		wg       sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Admit(ctx); err != nil {
				t.Errorf("Admit() error = %v", err)
				return
			}
			now := time.Now()
			mu.Lock()
			admitted = append(admitted, now)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(admitted) != callers {
		t.Fatalf("admitted %d callers, want %d", len(admitted), callers)
	}
	sort.Slice(admitted, func(i, j int) bool { return admitted[i].Before(admitted[j]) })
	for i := 0; i+limit < len(admitted); i++ {
		gap := admitted[i+limit].Sub(admitted[i])
		if gap < period-recordSkew {
			t.Fatalf("admissions %d and %d only %v apart, window is %v", i, i+limit, gap, period)
		}
	}
}

func TestAdmitHonorsCancellation(t *testing.T) {
	l := New(1, time.Hour)
	if err := l.Admit(context.Background()); err != nil {
		t.Fatalf("first Admit() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Admit(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("Admit() error = %v, want context.DeadlineExceeded", err)
	}
	if waited := time.Since(start); waited > time.Second {
		t.Fatalf("cancelled Admit() blocked for %v", waited)
	}
}

func TestRemaining(t *testing.T) {
	l := New(3, time.Hour)
	if got := l.Remaining(); got != 3 {
		t.Fatalf("Remaining() = %d, want 3", got)
	}

	ctx := context.Background()
	l.Admit(ctx)
	l.Admit(ctx)
	if got := l.Remaining(); got != 1 {
		t.Fatalf("Remaining() = %d, want 1", got)
	}
}

func TestWindowPrunesExpiredEntries(t *testing.T) {
	l := New(2, time.Minute)
	base := time.Now()
	current := base
	l.now = func() time.Time { return current }

	ctx := context.Background()
	l.Admit(ctx)
	l.Admit(ctx)
	if got := l.Remaining(); got != 0 {
		t.Fatalf("Remaining() = %d, want 0", got)
	}

	// both reservations fall out once the period has passed
	current = base.Add(time.Minute + time.Second)
	if got := l.Remaining(); got != 2 {
		t.Fatalf("Remaining() after expiry = %d, want 2", got)
	}
}
