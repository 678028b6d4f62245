package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pmarques/go-scrape-fbref/browser"
	"github.com/pmarques/go-scrape-fbref/config"
	"github.com/pmarques/go-scrape-fbref/models"
)

// Task is one fallible unit of work executed against a leased session.
type Task struct {
	ID    string
	Stage string
	Run   func(ctx context.Context, sess *browser.Session) error
}

// Result is the terminal outcome of executing a task. Transient failures
// are resolved inside the executor and never escape except as a Failed
// result; Fatal distinguishes failures the orchestrator must stop for.
type Result struct {
	Status         models.TaskStatus
	Fatal          bool
	Reason         string
	DiagnosticPath string
	Attempts       int
	Duration       time.Duration
}

// Executor wraps tasks with session leasing, failure classification,
// diagnostic capture, and jittered exponential backoff. The same session is
// reused across attempts unless a failure is attributed to it, in which
// case a replacement is acquired before the next attempt.
type Executor struct {
	pool        *browser.Pool
	maxAttempts int
	backoff     time.Duration
	backoffMax  time.Duration
	debugDir    string
	metrics     *Metrics

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewExecutor builds an executor over the given pool.
func NewExecutor(pool *browser.Pool, cfg *config.Config, metrics *Metrics) *Executor {
	return &Executor{
		pool:        pool,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
		backoffMax:  cfg.RetryBackoffMax,
		debugDir:    cfg.DebugDir,
		metrics:     metrics,
		sleep:       sleepCtx,
		now:         time.Now,
	}
}

// Execute runs the task to a terminal outcome within at most maxAttempts
// attempts. The leased session is released on every exit path.
func (e *Executor) Execute(ctx context.Context, task Task) Result {
	start := time.Now()
	res := e.execute(ctx, task)
	res.Duration = time.Since(start)
	return res
}

func (e *Executor) execute(ctx context.Context, task Task) Result {
	var (
		sess     *browser.Session
		lastErr  error
		diagPath string
	)

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			e.releaseHealthy(&sess)
			return Result{Status: models.StatusCancelled, Reason: err.Error(), Attempts: attempt - 1}
		}

		if sess == nil {
			acquired, err := e.pool.Acquire(ctx)
			if err != nil {
				lastErr = err
				if ClassifyError(err) == KindCancelled {
					return Result{Status: models.StatusCancelled, Reason: err.Error(), Attempts: attempt}
				}
				e.metrics.IncError(errorTypeLabel(err))
				if attempt < e.maxAttempts {
					if e.backoffSleep(ctx, attempt) != nil {
						return Result{Status: models.StatusCancelled, Reason: ctx.Err().Error(), Attempts: attempt}
					}
					e.metrics.IncRetries()
				}
				continue
			}
			sess = acquired
		}

		err := task.Run(ctx, sess)
		if err == nil {
			e.releaseHealthy(&sess)
			return Result{Status: models.StatusSucceeded, Attempts: attempt, DiagnosticPath: diagPath}
		}
		lastErr = err

		switch ClassifyError(err) {
		case KindCancelled:
			e.releaseHealthy(&sess)
			return Result{Status: models.StatusCancelled, Reason: err.Error(), Attempts: attempt, DiagnosticPath: diagPath}
		case KindFatal:
			e.releaseHealthy(&sess)
			slog.Error("task failed fatally",
				slog.String("task", task.ID),
				slog.Any("error", err),
			)
			return Result{Status: models.StatusFailed, Fatal: true, Reason: err.Error(), Attempts: attempt, DiagnosticPath: diagPath}
		}

		e.metrics.IncError(errorTypeLabel(err))
		if path := e.captureDiagnostic(ctx, task.ID, attempt, sess); path != "" {
			diagPath = path
		}

		if sessionFault(err) {
			e.pool.Release(sess, browser.VerdictSuspect)
			sess = nil
		}

		if attempt < e.maxAttempts {
			slog.Warn("task retried",
				slog.String("task", task.ID),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			if e.backoffSleep(ctx, attempt) != nil {
				e.releaseHealthy(&sess)
				return Result{Status: models.StatusCancelled, Reason: ctx.Err().Error(), Attempts: attempt, DiagnosticPath: diagPath}
			}
			e.metrics.IncRetries()
		}
	}

	e.releaseHealthy(&sess)
	reason := "retries exhausted"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	slog.Error("task failed",
		slog.String("task", task.ID),
		slog.Int("attempts", e.maxAttempts),
		slog.String("reason", reason),
	)
	return Result{Status: models.StatusFailed, Reason: reason, Attempts: e.maxAttempts, DiagnosticPath: diagPath}
}

func (e *Executor) releaseHealthy(sess **browser.Session) {
	if *sess != nil {
		e.pool.Release(*sess, browser.VerdictHealthy)
		*sess = nil
	}
}

// backoffSleep waits the jittered exponential delay for the given attempt.
func (e *Executor) backoffSleep(ctx context.Context, attempt int) error {
	return e.sleep(ctx, e.backoffDelay(attempt))
}

func (e *Executor) backoffDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := e.backoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := e.backoffMax; max > 0 && delay > max {
		delay = max
	}
	// jitter by up to 25% so concurrent tasks don't retry in lockstep
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay - delay/8 + jitter
}

// captureDiagnostic writes a page snapshot and text dump for postmortem
// analysis. Best effort: a capture failure is logged, never fatal.
func (e *Executor) captureDiagnostic(ctx context.Context, taskID string, attempt int, sess *browser.Session) string {
	if sess == nil {
		return ""
	}
	if err := os.MkdirAll(e.debugDir, 0o755); err != nil {
		slog.Error("creating debug directory", slog.Any("error", err))
		return ""
	}

	stamp := e.now().Format("20060102T150405")
	base := fmt.Sprintf("%s-%s-a%d", sanitizeTaskID(taskID), stamp, attempt)
	pngPath := filepath.Join(e.debugDir, base+".png")
	txtPath := filepath.Join(e.debugDir, base+".txt")

	captured := false
	if shot, err := sess.Screenshot(ctx); err != nil {
		slog.Debug("screenshot capture failed", slog.String("task", taskID), slog.Any("error", err))
	} else if err := os.WriteFile(pngPath, shot, 0o644); err != nil {
		slog.Error("writing screenshot", slog.String("path", pngPath), slog.Any("error", err))
	} else {
		captured = true
	}

	if html, err := sess.HTML(ctx); err != nil {
		slog.Debug("page dump capture failed", slog.String("task", taskID), slog.Any("error", err))
	} else if err := os.WriteFile(txtPath, []byte(html), 0o644); err != nil {
		slog.Error("writing page dump", slog.String("path", txtPath), slog.Any("error", err))
	} else {
		captured = true
	}

	if !captured {
		return ""
	}
	e.metrics.IncDiagnostics()
	slog.Info("diagnostic captured", slog.String("task", taskID), slog.String("path", pngPath))
	return pngPath
}

func sanitizeTaskID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, id)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
