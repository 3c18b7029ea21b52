// Package recovery decides what the engine does after a task failure:
// retry as-is, retry with backoff, replan with a reduced-scope variant, or
// abort. The controller never mutates the graph or task state itself; it
// only returns a decision for the engine to apply, and appends every
// decision to the task's audit record.
package recovery

import (
	"time"

	"github.com/vk/taskgridgo/internal/task"
)

// Action is the controller's verdict on a failure.
type Action int

const (
	// ActionRetryAsIs re-runs the task immediately.
	ActionRetryAsIs Action = iota
	// ActionRetryWithBackoff re-runs the task after the decision's delay.
	ActionRetryWithBackoff
	// ActionReplan swaps in the collaborator-supplied reduced-scope
	// variant and re-runs. Granted at most once per task.
	ActionReplan
	// ActionAbort finalizes the task as failed; dependents cascade-skip.
	ActionAbort
)

// String returns the action name used in records and logs.
func (a Action) String() string {
	switch a {
	case ActionRetryAsIs:
		return "retry"
	case ActionRetryWithBackoff:
		return "retry_with_backoff"
	case ActionReplan:
		return "replan"
	case ActionAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Policy holds the configured retry knobs.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy returns the retry policy used when the settings block
// leaves it unset.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Backoff returns the delay before retry attempt n (counted from zero):
// min(BaseDelay * 2^n, MaxDelay).
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Entry is one audited failure and the decision applied to it.
type Entry struct {
	Time      time.Time
	Attempt   int
	ErrorKind task.ErrorKind
	Error     string
	Action    Action
	Delay     time.Duration
}

// Record is the per-task history of failures and applied recovery
// actions, retained until the final report.
type Record struct {
	Entries []Entry
}

// Replans counts how many replan decisions the task has already received.
func (r *Record) Replans() int {
	n := 0
	for _, e := range r.Entries {
		if e.Action == ActionReplan {
			n++
		}
	}
	return n
}

// Decision is the controller's output: the action, the delay to apply
// when the action is a backoff retry, and the replacement task when the
// action is a replan.
type Decision struct {
	Action  Action
	Delay   time.Duration
	Variant *task.Task
}

// ReplanFunc supplies a reduced-scope variant of a task after a logic
// error. Returning nil declines the replan.
type ReplanFunc func(t *task.Task) *task.Task

// Controller classifies failures against the retry policy.
type Controller struct {
	policy Policy
	replan ReplanFunc
}

// NewController creates a controller. replan may be nil when the
// collaborator supplies no reduced-scope variants.
func NewController(policy Policy, replan ReplanFunc) *Controller {
	return &Controller{policy: policy, replan: replan}
}

// Policy returns the configured retry policy.
func (c *Controller) Policy() Policy {
	return c.policy
}

// OnFailure decides the recovery action for one failed attempt and
// appends it to the record. attempt counts the failures so far, starting
// at 1 for the first.
//
// Classification: transient and timeout failures retry with capped
// exponential backoff while the budget lasts, except that an idempotent
// task earns one immediate retry on its first failure before the backoff
// schedule starts; a logic error is granted a single replan if a variant
// is available; fatal failures and exhausted budgets abort. A replanned
// task that fails again escalates straight to abort, bounding the
// adaptation loop.
func (c *Controller) OnFailure(t *task.Task, attempt int, err error, rec *Record) Decision {
	kind := task.KindOf(err)
	d := c.decide(t, attempt, kind, rec)

	rec.Entries = append(rec.Entries, Entry{
		Time:      time.Now(),
		Attempt:   attempt,
		ErrorKind: kind,
		Error:     err.Error(),
		Action:    d.Action,
		Delay:     d.Delay,
	})
	return d
}

func (c *Controller) decide(t *task.Task, attempt int, kind task.ErrorKind, rec *Record) Decision {
	switch kind {
	case task.KindFatal:
		return Decision{Action: ActionAbort}

	case task.KindLogicError:
		if rec.Replans() > 0 {
			// The one replan is spent; a second logic failure aborts.
			return Decision{Action: ActionAbort}
		}
		if c.replan == nil {
			return Decision{Action: ActionAbort}
		}
		if variant := c.replan(t); variant != nil {
			return Decision{Action: ActionReplan, Variant: variant}
		}
		return Decision{Action: ActionAbort}

	default: // transient, timeout
		maxRetries := t.MaxRetries
		if maxRetries == 0 {
			maxRetries = c.policy.MaxRetries
		}
		if attempt >= maxRetries {
			return Decision{Action: ActionAbort}
		}
		if t.Idempotent && attempt == 1 {
			return Decision{Action: ActionRetryAsIs}
		}
		return Decision{Action: ActionRetryWithBackoff, Delay: c.policy.Backoff(attempt - 1)}
	}
}
