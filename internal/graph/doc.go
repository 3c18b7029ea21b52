// Package graph builds and validates the task dependency DAG. It owns
// structural concerns only: dependency resolution, cycle detection,
// topological ordering, and critical path computation. Execution state
// lives in the engine, not here.
package graph
