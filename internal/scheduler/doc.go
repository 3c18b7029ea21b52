// Package scheduler turns a validated task graph into an execution plan:
// a deterministic priority score per task and an ordered list of batches
// sized against the configured resource capacity.
//
// Planning is pure and synchronous. Batches describe planning intent, not
// runtime lockstep: the engine re-derives readiness event by event and
// only exclusive tasks impose a hard barrier.
package scheduler
