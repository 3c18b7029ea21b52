// Package engine drives task execution over a validated graph: event-driven
// admission against resource capacity, per-task deadlines, retry with
// capped exponential backoff, cascading skip of dependents, and
// cooperative or hard cancellation.
//
// Work is parallel, bookkeeping is serial: task executions run in their
// own goroutines, but every status transition and ready-set recomputation
// happens in the dispatch loop under one mutex. The engine performs no
// domain work itself; all of it happens inside the injected Executor.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/graph"
	"github.com/vk/taskgridgo/internal/recovery"
	"github.com/vk/taskgridgo/internal/report"
	"github.com/vk/taskgridgo/internal/resource"
	"github.com/vk/taskgridgo/internal/scheduler"
	"github.com/vk/taskgridgo/internal/task"
)

// Executor is the single injected callback that performs a task's actual
// work. It must be safe to invoke concurrently for independent tasks.
// Returned errors are classified through the task error taxonomy; plain
// errors count as transient.
type Executor func(ctx context.Context, t *task.Task) (any, error)

// ErrRunFinished is returned by Submit after the run reached its end.
var ErrRunFinished = errors.New("run already finished")

type eventKind int

const (
	evDone eventKind = iota
	evFailed
	evRetryDue
	evPoke
)

type event struct {
	kind   eventKind
	id     string
	output any
	err    error
}

// taskState is the engine-owned mutable state of one task. Guarded by
// Engine.mu.
type taskState struct {
	task          *task.Task
	status        task.Status
	attempts      int
	output        any
	lastErr       error
	startedAt     time.Time
	finishedAt    time.Time
	record        *recovery.Record
	awaitingTimer bool
	cancelRun     context.CancelFunc
}

// Engine executes one run of a task graph.
type Engine struct {
	graph *graph.Graph
	plan  *scheduler.Plan
	alloc *resource.Allocator
	ctrl  *recovery.Controller
	exec  Executor

	// mu is the single bookkeeping lock of the run. Everything mutable
	// below is guarded by it.
	mu            sync.Mutex
	states        map[string]*taskState
	runID         string
	startedAt     time.Time
	running       int
	pendingTimers int
	cancelled     bool
	hardCancelled bool
	finished      bool
	events        chan event
}

// New creates an engine for one run. Tasks unknown to the plan fall back
// to their explicit priority hint during admission ordering.
func New(g *graph.Graph, plan *scheduler.Plan, alloc *resource.Allocator, ctrl *recovery.Controller, exec Executor) *Engine {
	e := &Engine{
		graph:  g,
		plan:   plan,
		alloc:  alloc,
		ctrl:   ctrl,
		exec:   exec,
		states: make(map[string]*taskState, g.Len()),
		runID:  uuid.NewString()[:8],
		events: make(chan event, 2*g.Len()+32),
	}
	for _, t := range g.Tasks() {
		e.states[t.ID] = &taskState{task: t, status: task.StatusPending, record: &recovery.Record{}}
	}
	return e
}

// RunID returns the identifier of this run, used in logs and reports.
func (e *Engine) RunID() string {
	return e.runID
}

// Submit inserts a task into the running graph. The graph re-validates
// incrementally and the requirement is checked against total capacity,
// so an accepted task is always eventually admissible; on success it
// joins the live ready-set and competes for admission immediately. A
// task submitted under a failed or skipped dependency, or after the run
// was cancelled, is finalized on the spot.
func (e *Engine) Submit(ctx context.Context, t *task.Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finished {
		return ErrRunFinished
	}
	if !e.alloc.Limits().Satisfies(t.Resources) {
		return &scheduler.CapacityError{TaskID: t.ID, Req: t.Resources, Limits: e.alloc.Limits()}
	}
	if err := e.graph.AddTask(ctx, t); err != nil {
		return err
	}

	st := &taskState{task: t, status: task.StatusPending, record: &recovery.Record{}}
	e.states[t.ID] = st

	if e.cancelled {
		st.status = task.StatusCancelled
	} else if up := e.failedDependency(t); up != "" {
		st.status = task.StatusSkipped
		st.lastErr = fmt.Errorf("skipped due to upstream failure of %q", up)
		ctxlog.FromContext(ctx).Warn("⏭️ Task skipped.", "id", t.ID, "upstream", up)
	} else {
		e.refreshReadiness(t.ID)
		e.admit(ctx)
	}
	e.wake()
	return nil
}

// failedDependency returns a direct dependency that already failed or was
// skipped, or "" when none has. Direct dependencies suffice: cascadeSkip
// marks every transitive dependent of a failure terminally. Caller holds
// mu.
func (e *Engine) failedDependency(t *task.Task) string {
	for _, depID := range e.graph.Dependencies(t.ID) {
		dep, ok := e.states[depID]
		if !ok {
			continue
		}
		if dep.status == task.StatusFailed || dep.status == task.StatusSkipped {
			return depID
		}
	}
	return ""
}

// Cancel requests cancellation of the run. Soft cancel blocks all new
// admissions and lets in-flight executor calls finish cooperatively; hard
// cancel additionally cancels their contexts.
func (e *Engine) Cancel(hard bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked(hard)
	e.wake()
}

// Report compiles the current execution report. It is pollable at any
// time: mid-run it reflects the live snapshot, after Run returns it is
// final.
func (e *Engine) Report() *report.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collectLocked()
}

// Run executes the graph until every task reaches a terminal status.
// Cancelling ctx acts as a cooperative (soft) cancel: no new task starts,
// in-flight executor calls finish on their own. Use Cancel(true) to force
// termination.
//
// The returned report enumerates every task. The error summarizes failed
// tasks with their root cause, or reports cancellation; it is nil when
// every task succeeded.
func (e *Engine) Run(ctx context.Context) (*report.Report, error) {
	logger := ctxlog.FromContext(ctx)

	e.mu.Lock()
	e.startedAt = time.Now()
	for _, id := range e.sortedIDs() {
		e.refreshReadiness(id)
	}
	logger.Info("🚀 Run started.", "run_id", e.runID, "tasks", len(e.states))
	e.admit(ctx)
	done := e.doneLocked()
	e.mu.Unlock()

	ctxDone := ctx.Done()
	for !done {
		select {
		case <-ctxDone:
			e.mu.Lock()
			e.cancelLocked(false)
			done = e.doneLocked()
			e.mu.Unlock()
			// Only task completions and timers can arrive from here on.
			ctxDone = nil
		case ev := <-e.events:
			e.mu.Lock()
			e.handle(ctx, ev)
			done = e.doneLocked()
			e.mu.Unlock()
		}
	}

	e.mu.Lock()
	e.finished = true
	rep := e.collectLocked()
	err := e.outcomeLocked()
	e.mu.Unlock()

	if err != nil {
		logger.Error("Run finished with failures.", "run_id", e.runID, "error", err)
	} else {
		logger.Info("🏁 Run finished.", "run_id", e.runID, "elapsed", rep.Elapsed.Round(time.Millisecond))
	}
	return rep, err
}

// handle applies one event. Caller holds mu.
func (e *Engine) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evDone:
		e.handleDone(ctx, ev.id, ev.output)
	case evFailed:
		e.handleFailed(ctx, ev.id, ev.err)
	case evRetryDue:
		e.handleRetryDue(ctx, ev.id)
	case evPoke:
		// Wake-up only; Cancel or Submit already updated state.
	}
}

// doneLocked reports whether the run reached its end: every task terminal,
// nothing running, no retry timer outstanding.
func (e *Engine) doneLocked() bool {
	if e.running > 0 || e.pendingTimers > 0 {
		return false
	}
	for _, st := range e.states {
		if !st.status.Terminal() {
			return false
		}
	}
	return true
}

// wake nudges the dispatch loop without carrying a payload. Non-blocking:
// a full event channel already guarantees a wake-up.
func (e *Engine) wake() {
	select {
	case e.events <- event{kind: evPoke}:
	default:
	}
}

// refreshReadiness moves a pending task to ready once all its
// dependencies succeeded. Caller holds mu.
func (e *Engine) refreshReadiness(id string) {
	st := e.states[id]
	if st.status != task.StatusPending {
		return
	}
	for _, depID := range e.graph.Dependencies(id) {
		dep, ok := e.states[depID]
		if !ok || dep.status != task.StatusSucceeded {
			return
		}
	}
	st.status = task.StatusReady
}

// collectLocked snapshots state into a report. Caller holds mu.
func (e *Engine) collectLocked() *report.Report {
	snap := make(map[string]*report.TaskState, len(e.states))
	for id, st := range e.states {
		snap[id] = &report.TaskState{
			Task:       st.task,
			Status:     st.status,
			Attempts:   st.attempts,
			Output:     st.output,
			Err:        st.lastErr,
			StartedAt:  st.startedAt,
			FinishedAt: st.finishedAt,
			Record:     st.record,
		}
	}
	started := e.startedAt
	if started.IsZero() {
		started = time.Now()
	}
	return report.Collect(e.runID, started, e.finished, e.graph, e.plan, snap)
}

// outcomeLocked builds the run error from terminal states: failed tasks
// with the first root cause, or cancellation. Caller holds mu.
func (e *Engine) outcomeLocked() error {
	var failed []string
	var rootCause error
	for _, id := range e.sortedIDs() {
		st := e.states[id]
		if st.status == task.StatusFailed {
			failed = append(failed, id)
			if rootCause == nil {
				rootCause = st.lastErr
			}
		}
	}
	if rootCause != nil {
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failed, ", "), rootCause)
	}
	if e.cancelled {
		for _, st := range e.states {
			if st.status == task.StatusCancelled {
				return fmt.Errorf("run cancelled: %w", context.Canceled)
			}
		}
	}
	return nil
}

func (e *Engine) sortedIDs() []string {
	ids := make([]string, 0, len(e.states))
	for id := range e.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
