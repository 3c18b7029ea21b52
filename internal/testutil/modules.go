package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/task"
)

// ExecutionRecord captures when one task's handler ran.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two executions ran concurrently.
func (r *ExecutionRecord) Overlaps(other *ExecutionRecord) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// SleeperModule registers the "sleeper" kind. It records the execution
// window of each task that uses it, which lets tests assert ordering and
// concurrency.
type SleeperModule struct {
	mu            sync.Mutex
	records       map[string]*ExecutionRecord
	sleepDuration time.Duration
}

// NewSleeperModule creates a sleeper whose handler idles for the given
// duration.
func NewSleeperModule(sleep time.Duration) *SleeperModule {
	return &SleeperModule{
		records:       make(map[string]*ExecutionRecord),
		sleepDuration: sleep,
	}
}

// Record returns the execution window of one task, or nil if it never ran.
func (m *SleeperModule) Record(id string) *ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

// Ran returns the ids of every task that executed.
func (m *SleeperModule) Ran() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids
}

// Register registers the "sleeper" kind's handler.
func (m *SleeperModule) Register(r *registry.Registry) {
	r.RegisterHandler("sleeper", func(ctx context.Context, t *task.Task) (any, error) {
		rec := &ExecutionRecord{Start: time.Now()}
		select {
		case <-time.After(m.sleepDuration):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		rec.End = time.Now()

		m.mu.Lock()
		m.records[t.ID] = rec
		m.mu.Unlock()
		return t.ID, nil
	})
}

// FlakyModule registers the "flaky" kind: its handler fails a fixed
// number of times per task before succeeding. Failures are transient.
type FlakyModule struct {
	mu       sync.Mutex
	attempts map[string]int
	failures int
}

// NewFlakyModule creates a module whose tasks fail the first n attempts.
func NewFlakyModule(failures int) *FlakyModule {
	return &FlakyModule{attempts: make(map[string]int), failures: failures}
}

// Attempts returns how many times one task's handler was invoked.
func (m *FlakyModule) Attempts(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[id]
}

// Register registers the "flaky" kind's handler.
func (m *FlakyModule) Register(r *registry.Registry) {
	r.RegisterHandler("flaky", func(ctx context.Context, t *task.Task) (any, error) {
		m.mu.Lock()
		m.attempts[t.ID]++
		n := m.attempts[t.ID]
		m.mu.Unlock()

		if n <= m.failures {
			return nil, task.Transient(errors.New("simulated transient failure"))
		}
		return n, nil
	})
}

// FailerModule registers the "failer" kind: its handler always fails
// with the configured error.
type FailerModule struct {
	Errs map[string]error
}

// Register registers the "failer" kind's handler. Tasks without a
// configured error fail with a fatal one.
func (m *FailerModule) Register(r *registry.Registry) {
	r.RegisterHandler("failer", func(ctx context.Context, t *task.Task) (any, error) {
		if err, ok := m.Errs[t.ID]; ok {
			return nil, err
		}
		return nil, task.Fatalf("task %q configured to fail", t.ID)
	})
}

// NoOpModule registers a single "noop" kind that does nothing. Useful for
// tests that should fail before execution begins but still need a grid
// that passes registry validation.
type NoOpModule struct{}

// Register registers the "noop" kind's handler.
func (m *NoOpModule) Register(r *registry.Registry) {
	r.RegisterHandler("noop", func(ctx context.Context, t *task.Task) (any, error) {
		// No operation
		return nil, nil
	})
}
