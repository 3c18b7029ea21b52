package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgridgo/internal/task"
)

func newTask(id string, deps ...string) *task.Task {
	return &task.Task{
		ID:          id,
		Kind:        "test",
		DependsOn:   deps,
		EstDuration: time.Second,
	}
}

func TestBuild_WiresDependencies(t *testing.T) {
	t.Parallel()

	// Arrange: a diamond a -> (b, c) -> d.
	tasks := []*task.Task{
		newTask("a"),
		newTask("b", "a"),
		newTask("c", "a"),
		newTask("d", "b", "c"),
	}

	// Act
	g, err := Build(context.Background(), tasks)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())
	assert.Equal(t, []string{"b", "c"}, g.Dependents("a"))
	assert.Equal(t, []string{"b", "c"}, g.Dependencies("d"))
	assert.Empty(t, g.Dependencies("a"))
	assert.Empty(t, g.Dependents("d"))
}

func TestBuild_CycleDetection(t *testing.T) {
	t.Parallel()

	// Arrange: a circular dependency a -> b -> c -> a.
	tasks := []*task.Task{
		newTask("a", "c"),
		newTask("b", "a"),
		newTask("c", "b"),
	}

	// Act
	_, err := Build(context.Background(), tasks)

	// Assert: the error names the cycle members.
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Len(t, cycleErr.Path, 3)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuild_SelfDependency(t *testing.T) {
	t.Parallel()

	_, err := Build(context.Background(), []*task.Task{newTask("a", "a")})

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"a"}, cycleErr.Path)
}

func TestBuild_UnknownDependency(t *testing.T) {
	t.Parallel()

	_, err := Build(context.Background(), []*task.Task{newTask("a", "ghost")})

	var depErr *UnknownDependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "a", depErr.TaskID)
	assert.Equal(t, "ghost", depErr.DepID)
}

func TestBuild_DuplicateTask(t *testing.T) {
	t.Parallel()

	_, err := Build(context.Background(), []*task.Task{newTask("a"), newTask("a")})

	var dupErr *DuplicateTaskError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "a", dupErr.TaskID)
}

func TestAddTask_Incremental(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	g, err := Build(ctx, []*task.Task{newTask("a"), newTask("b", "a")})
	require.NoError(t, err)

	t.Run("valid insertion", func(t *testing.T) {
		err := g.AddTask(ctx, newTask("c", "b"))
		require.NoError(t, err)
		assert.Equal(t, 3, g.Len())
		assert.Equal(t, []string{"c"}, g.Dependents("b"))
	})

	t.Run("unknown dependency is rejected and rolled back", func(t *testing.T) {
		bad := newTask("z", "c", "missing")

		err := g.AddTask(ctx, bad)
		var depErr *UnknownDependencyError
		require.ErrorAs(t, err, &depErr)

		// The graph is unchanged: the failed task left no trace.
		_, ok := g.Node("z")
		assert.False(t, ok)
		assert.Equal(t, 3, g.Len())
		assert.Equal(t, []string{"c"}, g.Dependents("b"))
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		err := g.AddTask(ctx, newTask("a"))
		var dupErr *DuplicateTaskError
		require.ErrorAs(t, err, &dupErr)
	})
}

func TestTopologicalOrder(t *testing.T) {
	t.Parallel()

	tasks := []*task.Task{
		newTask("d", "b", "c"),
		newTask("b", "a"),
		newTask("c", "a"),
		newTask("a"),
	}
	g, err := Build(context.Background(), tasks)
	require.NoError(t, err)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)

	// Every edge points forward in the order, and ties break lexically.
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestTopologicalOrder_Deterministic(t *testing.T) {
	t.Parallel()

	tasks := []*task.Task{newTask("x"), newTask("m"), newTask("b"), newTask("q")}
	g, err := Build(context.Background(), tasks)
	require.NoError(t, err)

	first, err := g.TopologicalOrder()
	require.NoError(t, err)
	for range 10 {
		again, err := g.TopologicalOrder()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCriticalPath_Diamond(t *testing.T) {
	t.Parallel()

	// Arrange: the b branch is the long one.
	a := newTask("a")
	a.EstDuration = 1 * time.Second
	b := newTask("b", "a")
	b.EstDuration = 5 * time.Second
	c := newTask("c", "a")
	c.EstDuration = 2 * time.Second
	d := newTask("d", "b", "c")
	d.EstDuration = 1 * time.Second

	g, err := Build(context.Background(), []*task.Task{a, b, c, d})
	require.NoError(t, err)

	// Act
	path, length, err := g.CriticalPath()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d"}, path)
	assert.Equal(t, 7*time.Second, length)
}
