// Package report compiles pollable execution reports: per-status task
// lists, elapsed time, planned versus actual critical path, and the full
// per-task history. Collect is side-effect free and works on a snapshot,
// so a report can be taken at any point mid-run as well as at completion.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vk/taskgridgo/internal/graph"
	"github.com/vk/taskgridgo/internal/recovery"
	"github.com/vk/taskgridgo/internal/scheduler"
	"github.com/vk/taskgridgo/internal/task"
)

// TaskState is the engine's snapshot of one task, the input to Collect.
type TaskState struct {
	Task       *task.Task
	Status     task.Status
	Attempts   int
	Output     any
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	Record     *recovery.Record
}

// TaskResult is one task's entry in the report.
type TaskResult struct {
	ID         string           `json:"id"`
	Name       string           `json:"name,omitempty"`
	Kind       string           `json:"kind"`
	Status     string           `json:"status"`
	Attempts   int              `json:"attempts"`
	Output     any              `json:"output,omitempty"`
	Error      string           `json:"error,omitempty"`
	ErrorKind  string           `json:"error_kind,omitempty"`
	StartedAt  time.Time        `json:"started_at,omitzero"`
	FinishedAt time.Time        `json:"finished_at,omitzero"`
	Duration   time.Duration    `json:"duration,omitempty"`
	History    []recovery.Entry `json:"history,omitempty"`
}

// Report enumerates every submitted task with an explicit status; nothing
// is ever silently omitted.
type Report struct {
	RunID     string        `json:"run_id"`
	Final     bool          `json:"final"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`

	Counts map[string]int `json:"counts"`
	Tasks  []TaskResult   `json:"tasks"`

	PlannedCriticalPath       []string      `json:"planned_critical_path,omitempty"`
	PlannedCriticalPathLength time.Duration `json:"planned_critical_path_length,omitempty"`
	ActualCriticalPath        []string      `json:"actual_critical_path,omitempty"`
	ActualCriticalPathLength  time.Duration `json:"actual_critical_path_length,omitempty"`
}

// IDsWithStatus returns the ids of all tasks with the given status, sorted.
func (r *Report) IDsWithStatus(s task.Status) []string {
	var ids []string
	want := s.String()
	for _, tr := range r.Tasks {
		if tr.Status == want {
			ids = append(ids, tr.ID)
		}
	}
	return ids
}

// AllSucceeded reports whether every task reached terminal success.
func (r *Report) AllSucceeded() bool {
	return r.Counts[task.StatusSucceeded.String()] == len(r.Tasks)
}

// Summary renders a short human-readable outcome line per status.
func (r *Report) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s: %d tasks in %s\n", r.RunID, len(r.Tasks), r.Elapsed.Round(time.Millisecond))
	for _, s := range []task.Status{task.StatusSucceeded, task.StatusFailed, task.StatusSkipped, task.StatusCancelled, task.StatusRunning, task.StatusReady, task.StatusPending} {
		if n := r.Counts[s.String()]; n > 0 {
			fmt.Fprintf(&sb, "  %-10s %d\n", s.String(), n)
		}
	}
	return sb.String()
}

// Collect compiles a report from the engine's state snapshot. plan may be
// nil when planning failed before execution started.
func Collect(runID string, startedAt time.Time, final bool, g *graph.Graph, plan *scheduler.Plan, states map[string]*TaskState) *Report {
	r := &Report{
		RunID:     runID,
		Final:     final,
		StartedAt: startedAt,
		Elapsed:   time.Since(startedAt),
		Counts:    make(map[string]int),
	}
	if plan != nil {
		r.PlannedCriticalPath = plan.CriticalPath
		r.PlannedCriticalPathLength = plan.CriticalPathLength
	}

	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		st := states[id]
		tr := TaskResult{
			ID:         id,
			Name:       st.Task.Name,
			Kind:       st.Task.Kind,
			Status:     st.Status.String(),
			Attempts:   st.Attempts,
			Output:     st.Output,
			StartedAt:  st.StartedAt,
			FinishedAt: st.FinishedAt,
		}
		if !st.StartedAt.IsZero() && !st.FinishedAt.IsZero() {
			tr.Duration = st.FinishedAt.Sub(st.StartedAt)
		}
		if st.Err != nil {
			tr.Error = st.Err.Error()
			tr.ErrorKind = task.KindOf(st.Err).String()
		}
		if st.Record != nil {
			tr.History = st.Record.Entries
		}
		r.Counts[tr.Status]++
		r.Tasks = append(r.Tasks, tr)
	}

	r.ActualCriticalPath, r.ActualCriticalPathLength = actualCriticalPath(g, states)
	return r
}

// actualCriticalPath recomputes the critical path over measured durations
// instead of estimates. Tasks that never ran contribute zero.
func actualCriticalPath(g *graph.Graph, states map[string]*TaskState) ([]string, time.Duration) {
	order, err := g.TopologicalOrder()
	if err != nil || len(order) == 0 {
		return nil, 0
	}

	measured := func(id string) time.Duration {
		st, ok := states[id]
		if !ok || st.StartedAt.IsZero() || st.FinishedAt.IsZero() {
			return 0
		}
		return st.FinishedAt.Sub(st.StartedAt)
	}

	finish := make(map[string]time.Duration, len(order))
	prev := make(map[string]string, len(order))
	for _, id := range order {
		var longest time.Duration
		var via string
		for _, depID := range g.Dependencies(id) {
			if f := finish[depID]; f > longest || (f == longest && via == "") {
				longest = f
				via = depID
			}
		}
		finish[id] = longest + measured(id)
		if via != "" {
			prev[id] = via
		}
	}

	var end string
	var total time.Duration
	for _, id := range order {
		if end == "" || finish[id] > total {
			end = id
			total = finish[id]
		}
	}
	if total == 0 {
		return nil, 0
	}

	var path []string
	for id := end; ; {
		path = append(path, id)
		p, ok := prev[id]
		if !ok {
			break
		}
		id = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, total
}
