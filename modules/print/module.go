// Package print provides the 'print' task kind: it writes the task's
// arguments to stdout. Useful for smoke-testing a grid's wiring.
package print

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnRun is the handler for the 'print' kind.
func OnRun(ctx context.Context, t *task.Task) (any, error) {
	ctxlog.FromContext(ctx).Info("Printing arguments.", "id", t.ID)

	if len(t.Args) == 0 {
		fmt.Println("      (no arguments)")
		return nil, nil
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(t.Args))
	for k := range t.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Printf("      %s = %q\n", k, t.Args[k])
	}
	return len(t.Args), nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("print", OnRun)
}
