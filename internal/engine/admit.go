package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/task"
)

// admit runs one admission round over the live ready-set. Candidates are
// ordered by planned priority (descending, task ID ascending on ties) and
// admitted first-fit against resource capacity. A task passed over while
// capacity would have sufficed accrues starvation credit; once any task is
// promoted, ordinary admissions are held back until the promoted task gets
// in. Caller holds mu.
func (e *Engine) admit(ctx context.Context) {
	if e.cancelled {
		return
	}
	logger := ctxlog.FromContext(ctx)

	ready := e.readyCandidates()
	promotedOnly := e.alloc.HasPromoted()

	for _, id := range ready {
		st := e.states[id]
		if promotedOnly && !e.alloc.Promoted(id) {
			continue
		}
		if e.alloc.TryAdmit(st.task) {
			promotedOnly = e.alloc.HasPromoted()
			e.start(ctx, st)
			continue
		}
		e.alloc.MarkPassed(st.task)
		if e.alloc.Promoted(id) {
			logger.Debug("Task promoted after repeated pass-overs.", "id", id)
			promotedOnly = true
		}
	}
}

// readyCandidates returns admissible ready tasks in priority order.
// Caller holds mu.
func (e *Engine) readyCandidates() []string {
	var ids []string
	for id, st := range e.states {
		if st.status == task.StatusReady && !st.awaitingTimer {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := e.priority(ids[i]), e.priority(ids[j])
		if pi != pj {
			return pi > pj
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (e *Engine) priority(id string) float64 {
	st := e.states[id]
	if e.plan != nil {
		return e.plan.Priority(st.task)
	}
	return float64(st.task.Priority)
}

// start transitions a task to running and launches its goroutine. Caller
// holds mu; the allocator admission already happened.
func (e *Engine) start(ctx context.Context, st *taskState) {
	st.status = task.StatusRunning
	st.attempts++
	if st.startedAt.IsZero() {
		st.startedAt = time.Now()
	}
	e.running++

	// Task contexts survive a soft cancel of the run context; hard cancel
	// reaches them through cancelRun.
	base := context.WithoutCancel(ctx)
	var runCtx context.Context
	var cancel context.CancelFunc
	if st.task.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(base, st.task.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(base)
	}
	st.cancelRun = cancel
	if e.hardCancelled {
		cancel()
	}

	ctxlog.FromContext(ctx).Debug("▶️ Task started.",
		"id", st.task.ID, "kind", st.task.Kind, "attempt", st.attempts)

	go e.invoke(runCtx, st.task, st.attempts)
}

// invoke runs the executor for one attempt and reports the outcome as an
// event. Runs outside the lock; never touches engine state directly.
func (e *Engine) invoke(ctx context.Context, t *task.Task, attempt int) {
	defer func() {
		if r := recover(); r != nil {
			e.events <- event{kind: evFailed, id: t.ID, err: task.Fatalf("task %q panicked: %v", t.ID, r)}
		}
	}()

	output, err := e.exec(ctx, t)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = task.Timeoutf("task %q exceeded its %v deadline: %v", t.ID, t.Timeout, err)
		}
		e.events <- event{kind: evFailed, id: t.ID, err: fmt.Errorf("attempt %d: %w", attempt, err)}
		return
	}
	e.events <- event{kind: evDone, id: t.ID, output: output}
}

// handleDone marks a task succeeded, unlocks its dependents, and runs a
// fresh admission round. Caller holds mu.
func (e *Engine) handleDone(ctx context.Context, id string, output any) {
	st := e.states[id]
	e.finishRunning(st)

	st.status = task.StatusSucceeded
	st.output = output
	ctxlog.FromContext(ctx).Debug("✅ Task succeeded.", "id", id, "attempts", st.attempts)

	for _, depID := range e.graph.Dependents(id) {
		e.refreshReadiness(depID)
	}
	e.admit(ctx)
}

// finishRunning releases the task's resources and clears its run context.
// Caller holds mu.
func (e *Engine) finishRunning(st *taskState) {
	e.running--
	st.finishedAt = time.Now()
	if st.cancelRun != nil {
		st.cancelRun()
		st.cancelRun = nil
	}
	e.alloc.Release(st.task)
}
