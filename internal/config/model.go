// Package config defines the format-agnostic model of a grid
// configuration: the task definitions plus the run settings. Loaders for
// concrete formats (HCL today) translate their syntax into this model;
// everything downstream of the loader depends only on this package.
package config

import (
	"time"

	"github.com/vk/taskgridgo/internal/recovery"
	"github.com/vk/taskgridgo/internal/resource"
	"github.com/vk/taskgridgo/internal/scheduler"
	"github.com/vk/taskgridgo/internal/task"
)

// Model is the unified representation of one grid: what to run and under
// which limits.
type Model struct {
	Tasks    []*task.Task
	Settings Settings
}

// Settings are the run-level knobs. Zero values mean "use the default".
type Settings struct {
	Limits  resource.Limits
	Retry   recovery.Policy
	Weights scheduler.Weights

	// StarvationRounds is the number of admission rounds a fitting task
	// may be passed over before it is promoted ahead of higher-priority
	// work. Zero applies the default; a negative value disables
	// promotion.
	StarvationRounds int
}

// DefaultStarvationRounds matches a few full passes of a busy allocator
// before fairness kicks in.
const DefaultStarvationRounds = 3

// Normalize fills unset settings with their defaults.
func (s *Settings) Normalize() {
	if s.Limits.CPUPercent == 0 && s.Limits.MemoryMB == 0 && s.Limits.ExclusiveSlots == 0 {
		s.Limits = resource.DefaultLimits()
	}
	if s.Retry.MaxRetries == 0 && s.Retry.BaseDelay == 0 && s.Retry.MaxDelay == 0 {
		s.Retry = recovery.DefaultPolicy()
	}
	if s.Retry.BaseDelay == 0 {
		s.Retry.BaseDelay = recovery.DefaultPolicy().BaseDelay
	}
	if s.Retry.MaxDelay == 0 {
		s.Retry.MaxDelay = recovery.DefaultPolicy().MaxDelay
	}
	if s.Weights == (scheduler.Weights{}) {
		s.Weights = scheduler.DefaultWeights()
	}
	if s.StarvationRounds == 0 {
		s.StarvationRounds = DefaultStarvationRounds
	}
}

// EstimateOrDefault returns a task's estimated duration, falling back to
// one second when the grid omits it.
func EstimateOrDefault(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return time.Second
}
