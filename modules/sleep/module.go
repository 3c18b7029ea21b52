// Package sleep provides the 'sleep' task kind: it idles for a given
// duration, honoring context cancellation. The canonical workload for
// exercising scheduling and resource limits without doing real work.
package sleep

import (
	"context"
	"time"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnRun is the handler for the 'sleep' kind. The duration comes from the
// 'duration' argument, falling back to the task's estimate.
func OnRun(ctx context.Context, t *task.Task) (any, error) {
	d := t.EstDuration
	if raw, ok := t.Args["duration"]; ok {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, task.LogicErrorf("invalid duration argument %q: %v", raw, err)
		}
		d = parsed
	}

	ctxlog.FromContext(ctx).Debug("Sleeping.", "id", t.ID, "duration", d)
	select {
	case <-time.After(d):
		return d.String(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Register registers the handler with the engine. Sleeps halve on replan,
// standing in for a real workload's reduced-scope variant.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("sleep", OnRun)
	r.RegisterReplan("sleep", func(t *task.Task) *task.Task {
		variant := *t
		variant.EstDuration = t.EstDuration / 2
		if variant.Args != nil {
			args := make(map[string]string, len(t.Args))
			for k, v := range t.Args {
				args[k] = v
			}
			args["duration"] = variant.EstDuration.String()
			variant.Args = args
		}
		return &variant
	})
}
