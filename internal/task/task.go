// Package task defines the unit of work the engine orchestrates: its
// declared dependencies, resource needs, retry budget, and lifecycle status.
package task

import (
	"fmt"
	"time"
)

// Requirement declares the resources a task reserves while running.
type Requirement struct {
	// CPUPercent is the share of total CPU capacity the task reserves.
	CPUPercent int
	// MemoryMB is the reserved memory in megabytes.
	MemoryMB int
	// Exclusive tasks require the allocator to be otherwise fully idle.
	Exclusive bool
}

// Task is a single unit of work with declared dependencies. The engine never
// performs the work itself; it dispatches the task to the injected executor.
//
// Task values are treated as immutable once submitted. All mutable runtime
// state (status, attempts, last error) is owned by the engine.
type Task struct {
	// ID uniquely identifies the task within one submission.
	ID string
	// Name is a human readable title. Empty is allowed.
	Name string
	// Kind selects the executor handler for this task.
	Kind string
	// DependsOn lists the IDs of tasks that must succeed first.
	DependsOn []string
	// Priority is an explicit scheduling hint. Higher runs earlier.
	Priority int
	// EstDuration is the estimated execution time, used for critical path
	// computation and the shorter-first scheduling preference.
	EstDuration time.Duration
	// Resources is the capacity envelope reserved while the task runs.
	Resources Requirement
	// MaxRetries bounds automatic retries after retryable failures.
	MaxRetries int
	// Idempotent marks the task as safe to re-run after a partial attempt.
	Idempotent bool
	// Timeout, when non-zero, is a per-task deadline. Expiry surfaces as a
	// TimeoutExceeded failure through the normal failure path.
	Timeout time.Duration
	// Args are opaque key/value arguments passed through to the executor.
	Args map[string]string
}

// Validate checks the fields a submission must get right before the graph
// will accept the task.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task has empty id")
	}
	if t.Kind == "" {
		return fmt.Errorf("task %q has empty kind", t.ID)
	}
	if t.Resources.CPUPercent < 0 || t.Resources.MemoryMB < 0 {
		return fmt.Errorf("task %q declares negative resources", t.ID)
	}
	if t.MaxRetries < 0 {
		return fmt.Errorf("task %q declares negative max retries", t.ID)
	}
	return nil
}

// Status is a task's lifecycle state.
type Status int

const (
	// StatusPending means at least one dependency has not succeeded yet.
	StatusPending Status = iota
	// StatusReady means all dependencies succeeded; the task is eligible
	// for admission.
	StatusReady
	// StatusRunning means the executor callback is in flight.
	StatusRunning
	// StatusSucceeded is terminal success.
	StatusSucceeded
	// StatusFailed is terminal failure (the recovery controller decided to
	// abort, or the retry budget ran out).
	StatusFailed
	// StatusSkipped means a transitive upstream dependency failed; the task
	// never ran.
	StatusSkipped
	// StatusCancelled means the run was cancelled before the task finished.
	StatusCancelled
)

// String returns the lowercase status name used in logs and reports.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether the status is final. A terminal task never
// transitions again and is safe to report.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}
