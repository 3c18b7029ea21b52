package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgridgo/internal/task"
)

func TestRegisterHandler(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterHandler("alpha", func(ctx context.Context, t *task.Task) (any, error) { return "a", nil })
	r.RegisterHandler("beta", func(ctx context.Context, t *task.Task) (any, error) { return "b", nil })

	assert.Equal(t, []string{"alpha", "beta"}, r.Kinds())

	assert.Panics(t, func() {
		r.RegisterHandler("alpha", func(ctx context.Context, t *task.Task) (any, error) { return nil, nil })
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterHandler("known", func(ctx context.Context, t *task.Task) (any, error) { return nil, nil })

	require.NoError(t, r.Validate([]*task.Task{{ID: "a", Kind: "known"}}))

	err := r.Validate([]*task.Task{{ID: "a", Kind: "known"}, {ID: "b", Kind: "typo"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `task "b"`)
	assert.Contains(t, err.Error(), "typo")
}

func TestExecutor_DispatchesByKind(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterHandler("echo", func(ctx context.Context, tk *task.Task) (any, error) { return tk.ID, nil })
	exec := r.Executor()

	out, err := exec(context.Background(), &task.Task{ID: "a", Kind: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "a", out)

	// An unregistered kind surfaces as a fatal error instead of a panic.
	_, err = exec(context.Background(), &task.Task{ID: "b", Kind: "ghost"})
	require.Error(t, err)
	assert.Equal(t, task.KindFatal, task.KindOf(err))
}

func TestReplanFunc_DispatchesByKind(t *testing.T) {
	t.Parallel()

	r := New()
	variant := &task.Task{ID: "a", Kind: "shrinkable"}
	r.RegisterHandler("shrinkable", func(ctx context.Context, t *task.Task) (any, error) { return nil, nil })
	r.RegisterReplan("shrinkable", func(t *task.Task) *task.Task { return variant })

	replan := r.ReplanFunc()

	assert.Same(t, variant, replan(&task.Task{ID: "a", Kind: "shrinkable"}))
	assert.Nil(t, replan(&task.Task{ID: "b", Kind: "rigid"}))
}
