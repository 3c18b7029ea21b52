package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/graph"
	"github.com/vk/taskgridgo/internal/resource"
	"github.com/vk/taskgridgo/internal/task"
)

// Weights are the configuration constants of the priority function. The
// score of a task is
//
//	Dependents*len(dependents) + InverseDuration/durationSeconds
//	+ CriticalPathBoost (if on the critical path) + priority hint
//
// More dependents rank higher because finishing the task unblocks more
// work; shorter tasks rank higher because they free concurrency sooner.
type Weights struct {
	Dependents        float64
	InverseDuration   float64
	CriticalPathBoost float64
}

// DefaultWeights returns the weights used when the settings block leaves
// them unset.
func DefaultWeights() Weights {
	return Weights{Dependents: 10, InverseDuration: 1, CriticalPathBoost: 25}
}

// CapacityError reports a task whose resource requirement exceeds the
// total configured capacity. Raised at plan time so the submission fails
// fast instead of deadlocking silently at run time.
type CapacityError struct {
	TaskID string
	Req    task.Requirement
	Limits resource.Limits
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("task %q requires cpu=%d%% memory=%dMB exclusive=%v, exceeding total capacity (%s)",
		e.TaskID, e.Req.CPUPercent, e.Req.MemoryMB, e.Req.Exclusive, e.Limits)
}

// Batch is a planning-time grouping of tasks intended for concurrent
// admission, together with the resource envelope it was planned against.
type Batch struct {
	TaskIDs    []string
	CPUPercent int
	MemoryMB   int
	Exclusive  bool
}

// Plan is the scheduler's output: ordered batches plus the per-task
// indexes the engine uses to recompute readiness after any completion.
type Plan struct {
	Batches []Batch
	// Priorities holds the computed score per task id.
	Priorities map[string]float64
	// CriticalPath is the longest estimated dependency chain, in
	// execution order.
	CriticalPath []string
	// CriticalPathLength is the cumulative estimated duration of that chain.
	CriticalPathLength time.Duration

	batchOf map[string]int
}

// BatchOf returns the index of the batch a task was planned into, or -1
// if the task is unknown to the plan.
func (p *Plan) BatchOf(id string) int {
	if i, ok := p.batchOf[id]; ok {
		return i
	}
	return -1
}

// Priority returns the planned priority score for a task. Tasks added to
// the graph after planning score zero plus their explicit hint.
func (p *Plan) Priority(t *task.Task) float64 {
	if s, ok := p.Priorities[t.ID]; ok {
		return s
	}
	return float64(t.Priority)
}

// ComputePlan builds the execution plan for a graph against the given
// capacity. The same graph, limits, and weights always yield the same
// plan; all tie-breaks are by (priority desc, id asc).
func ComputePlan(ctx context.Context, g *graph.Graph, limits resource.Limits, w Weights) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	for _, id := range order {
		n, _ := g.Node(id)
		if !limits.Satisfies(n.Task.Resources) {
			return nil, &CapacityError{TaskID: id, Req: n.Task.Resources, Limits: limits}
		}
	}

	criticalPath, cpLength, err := g.CriticalPath()
	if err != nil {
		return nil, err
	}
	onPath := make(map[string]bool, len(criticalPath))
	for _, id := range criticalPath {
		onPath[id] = true
	}

	priorities := make(map[string]float64, len(order))
	for _, id := range order {
		n, _ := g.Node(id)
		priorities[id] = score(n, onPath[id], w)
	}

	plan := &Plan{
		Priorities:         priorities,
		CriticalPath:       criticalPath,
		CriticalPathLength: cpLength,
		batchOf:            make(map[string]int, len(order)),
	}
	plan.Batches = buildBatches(g, order, priorities, limits, plan.batchOf)

	logger.Debug("Execution plan computed.",
		"tasks", len(order),
		"batches", len(plan.Batches),
		"critical_path_length", cpLength,
	)
	return plan, nil
}

// score computes the weighted priority of a single task.
func score(n *graph.Node, onCriticalPath bool, w Weights) float64 {
	s := w.Dependents * float64(len(n.Dependents))

	// Sub-second estimates all get the full inverse-duration contribution;
	// the preference only needs to distinguish short from long.
	secs := n.Task.EstDuration.Seconds()
	if secs < 1 {
		secs = 1
	}
	s += w.InverseDuration / secs

	if onCriticalPath {
		s += w.CriticalPathBoost
	}
	return s + float64(n.Task.Priority)
}

// buildBatches greedily packs tasks into batches over a live ready-set.
// Each round, tasks whose dependencies were placed in earlier batches are
// sorted by priority and admitted while cumulative usage fits capacity
// (first-fit bin packing); the admitted set becomes one batch and counts
// as virtually completed for the next round. An exclusive task is only
// ever placed alone in its batch.
func buildBatches(g *graph.Graph, order []string, priorities map[string]float64, limits resource.Limits, batchOf map[string]int) []Batch {
	placed := make(map[string]bool, len(order))
	remaining := make(map[string]bool, len(order))
	for _, id := range order {
		remaining[id] = true
	}

	var batches []Batch
	for len(remaining) > 0 {
		ready := readyIDs(g, remaining, placed)
		sortByPriority(ready, priorities)

		var b Batch
		for _, id := range ready {
			n, _ := g.Node(id)
			req := n.Task.Resources

			if req.Exclusive {
				if len(b.TaskIDs) == 0 {
					b = Batch{TaskIDs: []string{id}, CPUPercent: req.CPUPercent, MemoryMB: req.MemoryMB, Exclusive: true}
				}
				// An exclusive task never shares a batch; when the batch
				// already has members, it waits for a later round.
				break
			}
			if b.CPUPercent+req.CPUPercent > limits.CPUPercent || b.MemoryMB+req.MemoryMB > limits.MemoryMB {
				continue
			}
			b.TaskIDs = append(b.TaskIDs, id)
			b.CPUPercent += req.CPUPercent
			b.MemoryMB += req.MemoryMB
		}

		for _, id := range b.TaskIDs {
			batchOf[id] = len(batches)
			placed[id] = true
			delete(remaining, id)
		}
		batches = append(batches, b)
	}
	return batches
}

// readyIDs returns the remaining tasks whose dependencies were all placed
// in earlier batches.
func readyIDs(g *graph.Graph, remaining, placed map[string]bool) []string {
	var ready []string
	for id := range remaining {
		ok := true
		for _, depID := range g.Dependencies(id) {
			if !placed[depID] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}

// sortByPriority orders ids by score descending, id ascending on ties.
func sortByPriority(ids []string, priorities map[string]float64) {
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := priorities[ids[i]], priorities[ids[j]]
		if pi != pj {
			return pi > pj
		}
		return ids[i] < ids[j]
	})
}
