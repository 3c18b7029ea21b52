// Package shell provides the 'shell' task kind: it runs a command via
// /bin/sh -c and captures its combined output.
package shell

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnRun is the handler for the 'shell' kind. The command line comes from
// the 'command' argument. A missing command is a grid authoring mistake;
// a non-zero exit is a transient failure eligible for retry.
func OnRun(ctx context.Context, t *task.Task) (any, error) {
	command, ok := t.Args["command"]
	if !ok || strings.TrimSpace(command) == "" {
		return nil, task.LogicErrorf("task %q has no command argument", t.ID)
	}

	ctxlog.FromContext(ctx).Debug("Running command.", "id", t.ID, "command", command)

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	out, err := cmd.CombinedOutput()
	output := strings.TrimRight(string(out), "\n")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, task.Transient(fmt.Errorf("command failed: %w", err))
		}
		return output, task.Fatalf("command could not start: %v", err)
	}
	return output, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("shell", OnRun)
}
