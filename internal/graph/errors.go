package graph

import (
	"fmt"
	"strings"
)

// UnknownDependencyError reports a dependency reference to a task id that
// was never submitted.
type UnknownDependencyError struct {
	TaskID string
	DepID  string
}

// Error implements the error interface.
func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.TaskID, e.DepID)
}

// CycleError reports a dependency cycle. Path holds the ids along the
// cycle, starting and ending at the same task.
type CycleError struct {
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// DuplicateTaskError reports two submissions sharing one id.
type DuplicateTaskError struct {
	TaskID string
}

// Error implements the error interface.
func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("duplicate task id %q", e.TaskID)
}
