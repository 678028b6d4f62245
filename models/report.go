package models

import (
	"sync"
	"time"
)

// TaskStatus is the terminal state of one scrape task.
type TaskStatus string

const (
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
	StatusSkipped   TaskStatus = "skipped"
	StatusCancelled TaskStatus = "cancelled"
)

// TaskResult records the outcome of one task within a run.
type TaskResult struct {
	Task           string        `json:"task"`
	Stage          string        `json:"stage"`
	Status         TaskStatus    `json:"status"`
	Reason         string        `json:"reason,omitempty"`
	DiagnosticPath string        `json:"diagnosticPath,omitempty"`
	Attempts       int           `json:"attempts"`
	Duration       time.Duration `json:"duration"`
}

// RunReport aggregates task outcomes for one orchestrator invocation. It is
// safe for concurrent Add calls while the run is in flight and is treated as
// immutable once Finish has been called.
type RunReport struct {
	RunID     string       `json:"runId"`
	StartTime time.Time    `json:"startTime"`
	EndTime   time.Time    `json:"endTime"`
	Tasks     []TaskResult `json:"tasks"`
	FatalErr  string       `json:"fatalError,omitempty"`

	mu sync.Mutex
}

// NewRunReport starts a report for the given run identifier.
func NewRunReport(runID string) *RunReport {
	return &RunReport{
		RunID:     runID,
		StartTime: time.Now(),
	}
}

// Add appends a task result.
func (r *RunReport) Add(result TaskResult) {
	r.mu.Lock()
	r.Tasks = append(r.Tasks, result)
	r.mu.Unlock()
}

// SetFatal records the error that aborted the run. Only the first fatal
// error is kept.
func (r *RunReport) SetFatal(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	if r.FatalErr == "" {
		r.FatalErr = err.Error()
	}
	r.mu.Unlock()
}

// Finish stamps the end time.
func (r *RunReport) Finish() {
	r.mu.Lock()
	r.EndTime = time.Now()
	r.mu.Unlock()
}

// HasFatal reports whether the run was aborted by a fatal failure.
func (r *RunReport) HasFatal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.FatalErr != ""
}

// CountByStatus returns how many tasks ended in each status.
func (r *RunReport) CountByStatus() map[TaskStatus]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[TaskStatus]int, 4)
	for _, t := range r.Tasks {
		counts[t.Status]++
	}
	return counts
}

// ByStage returns the results recorded for one stage, in insertion order.
func (r *RunReport) ByStage(stage string) []TaskResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TaskResult
	for _, t := range r.Tasks {
		if t.Stage == stage {
			out = append(out, t)
		}
	}
	return out
}
