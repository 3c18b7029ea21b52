// Package resource gates concurrent task admission against configured
// capacity: a CPU percentage pool, a memory pool, and exclusive slots.
package resource

import (
	"fmt"

	"github.com/vk/taskgridgo/internal/task"
)

// Limits is the total capacity the allocator manages.
type Limits struct {
	CPUPercent     int
	MemoryMB       int
	ExclusiveSlots int
}

// DefaultLimits returns the capacity used when the settings block leaves
// limits unset.
func DefaultLimits() Limits {
	return Limits{CPUPercent: 100, MemoryMB: 4096, ExclusiveSlots: 1}
}

// Satisfies reports whether a requirement fits into the total configured
// capacity at all. A requirement that fails this check can never run and
// must be rejected at plan time rather than left to deadlock silently.
func (l Limits) Satisfies(req task.Requirement) bool {
	if req.Exclusive && l.ExclusiveSlots < 1 {
		return false
	}
	return req.CPUPercent <= l.CPUPercent && req.MemoryMB <= l.MemoryMB
}

// String renders the limits for logs.
func (l Limits) String() string {
	return fmt.Sprintf("cpu=%d%% memory=%dMB exclusive_slots=%d", l.CPUPercent, l.MemoryMB, l.ExclusiveSlots)
}

// Allocator tracks in-flight resource usage and decides admission. It also
// carries the starvation bookkeeping that force-promotes tasks passed over
// too many rounds in a row.
//
// The allocator is not internally synchronized. The engine's dispatch loop
// is its only caller and already serializes all bookkeeping.
type Allocator struct {
	limits    Limits
	threshold int

	cpuUsed         int
	memUsed         int
	running         int
	exclusiveActive bool

	passes   map[string]int
	promoted map[string]bool
}

// NewAllocator creates an allocator for the given capacity.
// starvationThreshold is the number of consecutive passed-over rounds
// after which a fitting task is promoted to guaranteed admission; zero or
// negative disables promotion.
func NewAllocator(limits Limits, starvationThreshold int) *Allocator {
	return &Allocator{
		limits:    limits,
		threshold: starvationThreshold,
		passes:    make(map[string]int),
		promoted:  make(map[string]bool),
	}
}

// Limits returns the configured capacity.
func (a *Allocator) Limits() Limits {
	return a.limits
}

// TryAdmit reserves the task's requirement if it fits the remaining
// capacity. An exclusive task is admitted only while the allocator is
// otherwise fully idle, and while an exclusive task runs nothing else is
// admitted (hard barrier). On success the task's starvation bookkeeping is
// cleared; the reservation must be returned via Release on any terminal
// outcome.
func (a *Allocator) TryAdmit(t *task.Task) bool {
	req := t.Resources

	if a.exclusiveActive {
		return false
	}
	if req.Exclusive {
		if a.running > 0 || a.limits.ExclusiveSlots < 1 {
			return false
		}
		a.exclusiveActive = true
	} else {
		if a.cpuUsed+req.CPUPercent > a.limits.CPUPercent {
			return false
		}
		if a.memUsed+req.MemoryMB > a.limits.MemoryMB {
			return false
		}
	}

	a.cpuUsed += req.CPUPercent
	a.memUsed += req.MemoryMB
	a.running++
	delete(a.passes, t.ID)
	delete(a.promoted, t.ID)
	return true
}

// Release returns a previous reservation. It is invoked via scoped
// acquire/release on every terminal outcome, success or not.
func (a *Allocator) Release(t *task.Task) {
	req := t.Resources
	a.cpuUsed -= req.CPUPercent
	a.memUsed -= req.MemoryMB
	a.running--
	if req.Exclusive {
		a.exclusiveActive = false
	}
	if a.cpuUsed < 0 || a.memUsed < 0 || a.running < 0 {
		// Release without a matching admit is an engine bug.
		panic(fmt.Sprintf("resource release underflow for task %q", t.ID))
	}
}

// Running returns the number of admitted tasks currently holding
// reservations.
func (a *Allocator) Running() int {
	return a.running
}

// InUse returns the currently reserved cpu and memory.
func (a *Allocator) InUse() (cpuPercent, memoryMB int) {
	return a.cpuUsed, a.memUsed
}

// MarkPassed records that a ready task whose requirement fits total
// capacity was passed over this admission round. Once a task accumulates
// the configured number of consecutive passes it is promoted: the next
// round must admit it before anything else.
func (a *Allocator) MarkPassed(t *task.Task) {
	if a.threshold <= 0 {
		return
	}
	if !a.limits.Satisfies(t.Resources) {
		return
	}
	a.passes[t.ID]++
	if a.passes[t.ID] >= a.threshold {
		a.promoted[t.ID] = true
	}
}

// Promoted reports whether the task has been force-promoted to guaranteed
// admission.
func (a *Allocator) Promoted(id string) bool {
	return a.promoted[id]
}

// Forget drops starvation bookkeeping for a task that reached a terminal
// state without running (skipped or cancelled), so a stale promotion can
// not hold back admission forever.
func (a *Allocator) Forget(id string) {
	delete(a.passes, id)
	delete(a.promoted, id)
}

// HasPromoted reports whether any task is awaiting guaranteed admission.
// While one is, the engine holds back ordinary admissions so freed
// capacity drains toward the starved task instead of being re-captured by
// higher-priority work.
func (a *Allocator) HasPromoted() bool {
	return len(a.promoted) > 0
}
