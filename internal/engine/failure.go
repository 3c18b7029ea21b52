package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/recovery"
	"github.com/vk/taskgridgo/internal/task"
)

// handleFailed routes a failed attempt through the recovery controller.
// Caller holds mu.
func (e *Engine) handleFailed(ctx context.Context, id string, err error) {
	st := e.states[id]
	logger := ctxlog.FromContext(ctx)
	e.finishRunning(st)
	st.lastErr = err

	// A hard cancel interrupts the attempt; that is not a task failure.
	if e.hardCancelled || (e.cancelled && ctxErr(err)) {
		st.status = task.StatusCancelled
		logger.Info("Task cancelled mid-flight.", "id", id)
		return
	}

	decision := e.ctrl.OnFailure(st.task, st.attempts, err, st.record)

	// A soft-cancelled run admits nothing, so any action that would put
	// the task back into the ready-set finalizes it as cancelled instead.
	// The decision stays in the audit record.
	if e.cancelled && decision.Action != recovery.ActionAbort {
		st.status = task.StatusCancelled
		e.alloc.Forget(id)
		logger.Info("Task cancelled instead of retried.", "id", id, "action", decision.Action.String())
		return
	}

	switch decision.Action {
	case recovery.ActionRetryAsIs:
		st.status = task.StatusReady
		logger.Warn("Task failed, retrying immediately.",
			"id", id, "attempt", st.attempts, "error", err)
		e.admit(ctx)

	case recovery.ActionRetryWithBackoff:
		st.status = task.StatusReady
		st.awaitingTimer = true
		e.pendingTimers++
		logger.Warn("Task failed, retrying with backoff.",
			"id", id, "attempt", st.attempts, "delay", decision.Delay, "error", err)
		time.AfterFunc(decision.Delay, func() {
			e.events <- event{kind: evRetryDue, id: id}
		})

	case recovery.ActionReplan:
		variant := decision.Variant
		variant.ID = st.task.ID
		if !e.alloc.Limits().Satisfies(variant.Resources) {
			// An oversized variant would never be admitted again; it keeps
			// the original, already-validated requirement.
			variant.Resources = st.task.Resources
		}
		st.task = variant
		st.status = task.StatusReady
		logger.Warn("Task failed with a logic error, replanning with reduced-scope variant.",
			"id", id, "attempt", st.attempts, "error", err)
		e.admit(ctx)

	case recovery.ActionAbort:
		st.status = task.StatusFailed
		logger.Error("Task failed permanently.",
			"id", id, "attempts", st.attempts, "error_kind", task.KindOf(err).String(), "error", err)
		e.cascadeSkip(ctx, id)
		e.admit(ctx)
	}
}

// handleRetryDue fires when a backoff delay elapses. If the run was
// cancelled in the meantime the task goes straight to cancelled. Caller
// holds mu.
func (e *Engine) handleRetryDue(ctx context.Context, id string) {
	st := e.states[id]
	e.pendingTimers--
	if !st.awaitingTimer {
		return
	}
	st.awaitingTimer = false

	if e.cancelled {
		if !st.status.Terminal() {
			st.status = task.StatusCancelled
		}
		return
	}
	e.admit(ctx)
}

// cascadeSkip marks every transitive dependent of a failed task as
// skipped. Dependents cannot be running since they require the failed
// task's success. Caller holds mu.
func (e *Engine) cascadeSkip(ctx context.Context, id string) {
	logger := ctxlog.FromContext(ctx)
	stack := append([]string(nil), e.graph.Dependents(id)...)
	for len(stack) > 0 {
		depID := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		st := e.states[depID]
		if st.status.Terminal() {
			continue
		}
		st.status = task.StatusSkipped
		st.lastErr = fmt.Errorf("skipped due to upstream failure of %q", id)
		e.alloc.Forget(depID)
		logger.Warn("⏭️ Task skipped.", "id", depID, "upstream", id)

		stack = append(stack, e.graph.Dependents(depID)...)
	}
}

// cancelLocked applies a cancellation request: admissions stop, every
// task that has not started is cancelled, and on hard cancel the run
// contexts of in-flight tasks are cancelled as well. Caller holds mu.
func (e *Engine) cancelLocked(hard bool) {
	e.cancelled = true
	if hard {
		e.hardCancelled = true
	}
	for id, st := range e.states {
		switch {
		case st.status == task.StatusRunning:
			if hard && st.cancelRun != nil {
				st.cancelRun()
			}
		case st.status.Terminal():
		case st.awaitingTimer:
			// The pending timer resolves the final status.
		default:
			st.status = task.StatusCancelled
			e.alloc.Forget(id)
		}
	}
}

// ctxErr reports whether an error chain bottoms out in a context
// cancellation.
func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled)
}
