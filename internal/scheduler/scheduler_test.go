package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgridgo/internal/graph"
	"github.com/vk/taskgridgo/internal/resource"
	"github.com/vk/taskgridgo/internal/task"
)

func newTask(id string, cpu int, deps ...string) *task.Task {
	return &task.Task{
		ID:          id,
		Kind:        "test",
		DependsOn:   deps,
		EstDuration: time.Second,
		Resources:   task.Requirement{CPUPercent: cpu, MemoryMB: 64},
	}
}

func mustGraph(t *testing.T, tasks ...*task.Task) *graph.Graph {
	t.Helper()
	g, err := graph.Build(context.Background(), tasks)
	require.NoError(t, err)
	return g
}

func limits() resource.Limits {
	return resource.Limits{CPUPercent: 100, MemoryMB: 4096, ExclusiveSlots: 1}
}

func TestComputePlan_Deterministic(t *testing.T) {
	t.Parallel()

	g := mustGraph(t,
		newTask("a", 30),
		newTask("b", 30, "a"),
		newTask("c", 30, "a"),
		newTask("d", 30, "b", "c"),
		newTask("e", 30),
	)

	first, err := ComputePlan(context.Background(), g, limits(), DefaultWeights())
	require.NoError(t, err)

	// Same graph, same limits, same weights: byte-for-byte identical plan.
	opts := cmpopts.IgnoreUnexported(Plan{})
	for range 10 {
		again, err := ComputePlan(context.Background(), g, limits(), DefaultWeights())
		require.NoError(t, err)
		if diff := cmp.Diff(first, again, opts); diff != "" {
			t.Fatalf("plan is not deterministic (-first +again):\n%s", diff)
		}
	}
}

func TestComputePlan_BatchesRespectDependencies(t *testing.T) {
	t.Parallel()

	g := mustGraph(t,
		newTask("a", 10),
		newTask("b", 10, "a"),
		newTask("c", 10, "b"),
	)

	plan, err := ComputePlan(context.Background(), g, limits(), DefaultWeights())
	require.NoError(t, err)

	// A chain cannot share a batch.
	assert.Less(t, plan.BatchOf("a"), plan.BatchOf("b"))
	assert.Less(t, plan.BatchOf("b"), plan.BatchOf("c"))
}

func TestComputePlan_BatchesRespectCapacity(t *testing.T) {
	t.Parallel()

	// Three independent 40% tasks against a 100% budget: at most two per
	// batch.
	g := mustGraph(t, newTask("a", 40), newTask("b", 40), newTask("c", 40))

	plan, err := ComputePlan(context.Background(), g, limits(), DefaultWeights())
	require.NoError(t, err)

	require.Len(t, plan.Batches, 2)
	assert.Len(t, plan.Batches[0].TaskIDs, 2)
	assert.Len(t, plan.Batches[1].TaskIDs, 1)
	for _, b := range plan.Batches {
		assert.LessOrEqual(t, b.CPUPercent, 100)
	}
}

func TestComputePlan_ExclusiveRunsAlone(t *testing.T) {
	t.Parallel()

	excl := newTask("excl", 10)
	excl.Resources.Exclusive = true
	g := mustGraph(t, newTask("a", 10), newTask("b", 10), excl)

	plan, err := ComputePlan(context.Background(), g, limits(), DefaultWeights())
	require.NoError(t, err)

	for _, b := range plan.Batches {
		if b.Exclusive {
			assert.Equal(t, []string{"excl"}, b.TaskIDs)
		} else {
			assert.NotContains(t, b.TaskIDs, "excl")
		}
	}
}

func TestComputePlan_CapacityError(t *testing.T) {
	t.Parallel()

	// A task that can never fit must fail planning up front.
	g := mustGraph(t, newTask("whale", 150))

	_, err := ComputePlan(context.Background(), g, limits(), DefaultWeights())

	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "whale", capErr.TaskID)
}

func TestComputePlan_PriorityOrdersReadySet(t *testing.T) {
	t.Parallel()

	// "root" unlocks two dependents, "leaf" none; with default weights the
	// fan-out task scores higher.
	g := mustGraph(t,
		newTask("root", 60),
		newTask("x", 10, "root"),
		newTask("y", 10, "root"),
		newTask("leaf", 60),
	)

	plan, err := ComputePlan(context.Background(), g, limits(), DefaultWeights())
	require.NoError(t, err)

	require.NotEmpty(t, plan.Batches)
	assert.Greater(t, plan.Priorities["root"], plan.Priorities["leaf"])
	assert.Equal(t, "root", plan.Batches[0].TaskIDs[0])
}

func TestComputePlan_TiesBreakByID(t *testing.T) {
	t.Parallel()

	// Identical tasks: order falls back to task ID.
	g := mustGraph(t, newTask("b", 20), newTask("a", 20), newTask("c", 20))
	plan, err := ComputePlan(context.Background(), g, limits(), DefaultWeights())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, plan.Batches[0].TaskIDs)
}

func TestPlan_CriticalPathFeedsPriorities(t *testing.T) {
	t.Parallel()

	long := newTask("long", 10)
	long.EstDuration = 10 * time.Second
	short := newTask("short", 10)
	short.EstDuration = time.Second

	g := mustGraph(t, long, short)
	plan, err := ComputePlan(context.Background(), g, limits(), DefaultWeights())
	require.NoError(t, err)

	assert.Equal(t, []string{"long"}, plan.CriticalPath)
	assert.Greater(t, plan.Priorities["long"], plan.Priorities["short"])
}
