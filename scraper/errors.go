package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/pmarques/go-scrape-fbref/browser"
)

// TransientError marks a failure expected to resolve on retry: timeouts,
// temporary blocks, session hiccups. Session reports whether the failure is
// attributed to the browser session itself, in which case the retry policy
// swaps the session before the next attempt.
type TransientError struct {
	Reason  string
	Session bool
	Err     error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure.
func Transient(reason string, err error) *TransientError {
	return &TransientError{Reason: reason, Err: err}
}

// TransientSession wraps err as a retryable failure attributed to the
// session.
func TransientSession(reason string, err error) *TransientError {
	return &TransientError{Reason: reason, Session: true, Err: err}
}

// FatalError marks a failure retrying cannot fix: bad configuration,
// authentication problems, programming errors. It halts the current run
// stage.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as a non-retryable failure.
func Fatal(reason string, err error) *FatalError {
	return &FatalError{Reason: reason, Err: err}
}

// Kind buckets an error for the retry policy.
type Kind int

const (
	KindTransient Kind = iota
	KindFatal
	KindCancelled
)

// ClassifyError decides how the retry policy treats a failure. Anything not
// explicitly fatal or caused by cancellation is retried.
func ClassifyError(err error) Kind {
	switch {
	case err == nil:
		return KindTransient
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, browser.ErrPoolClosed):
		return KindCancelled
	default:
		var fatal *FatalError
		if errors.As(err, &fatal) {
			return KindFatal
		}
		return KindTransient
	}
}

// sessionFault reports whether the failure is attributed to the leased
// session.
func sessionFault(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient) && transient.Session
}

// errorTypeLabel maps an error to a metrics label.
func errorTypeLabel(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, browser.ErrPoolExhausted):
		return "pool_exhausted"
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return transient.Reason
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return "fatal"
	}
	return "other"
}
