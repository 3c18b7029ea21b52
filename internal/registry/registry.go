// Package registry maps task kinds to their handlers. Modules register
// themselves at startup; the registry then composes the single executor
// callback the engine is given, plus the replan dispatch used when a
// logic error asks for a reduced-scope variant.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/taskgridgo/internal/engine"
	"github.com/vk/taskgridgo/internal/recovery"
	"github.com/vk/taskgridgo/internal/task"
)

// Handler executes every task of one kind.
type Handler func(ctx context.Context, t *task.Task) (any, error)

// Module is anything that contributes handlers for one or more kinds.
type Module interface {
	Register(r *Registry)
}

// Registry holds the kind to handler mapping. Registration happens during
// startup, lookups during the run; both are safe concurrently.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	replans  map[string]recovery.ReplanFunc
}

func New() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		replans:  make(map[string]recovery.ReplanFunc),
	}
}

// RegisterHandler binds a kind to its handler. Registering the same kind
// twice is a programmer error and panics.
func (r *Registry) RegisterHandler(kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[kind]; exists {
		panic(fmt.Sprintf("handler for kind %q registered twice", kind))
	}
	r.handlers[kind] = h
}

// RegisterReplan binds a kind to the function producing its reduced-scope
// variant after a logic error. Optional; kinds without one abort on logic
// errors.
func (r *Registry) RegisterReplan(kind string, f recovery.ReplanFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.replans[kind]; exists {
		panic(fmt.Sprintf("replan func for kind %q registered twice", kind))
	}
	r.replans[kind] = f
}

// Kinds returns all registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Validate checks that every task's kind has a registered handler. Run it
// before execution so a typo fails the whole grid up front instead of
// mid-run.
func (r *Registry) Validate(tasks []*task.Task) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range tasks {
		if _, ok := r.handlers[t.Kind]; !ok {
			return fmt.Errorf("task %q uses unknown kind %q (registered: %v)", t.ID, t.Kind, r.kindsLocked())
		}
	}
	return nil
}

func (r *Registry) kindsLocked() []string {
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Executor composes the callback the engine dispatches every task
// through.
func (r *Registry) Executor() engine.Executor {
	return func(ctx context.Context, t *task.Task) (any, error) {
		r.mu.RLock()
		h, ok := r.handlers[t.Kind]
		r.mu.RUnlock()
		if !ok {
			return nil, task.Fatalf("no handler registered for kind %q", t.Kind)
		}
		return h(ctx, t)
	}
}

// ReplanFunc composes the per-kind replan dispatch for the recovery
// controller. Kinds without a registered replan yield nil, which the
// controller treats as "no variant available".
func (r *Registry) ReplanFunc() recovery.ReplanFunc {
	return func(t *task.Task) *task.Task {
		r.mu.RLock()
		f, ok := r.replans[t.Kind]
		r.mu.RUnlock()
		if !ok {
			return nil
		}
		return f(t)
	}
}
