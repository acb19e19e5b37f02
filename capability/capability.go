// Package capability implements the task-unit subsystem that lets routing
// roles invoke structured side effects (record lookups, mutations,
// cross-process calls) with schema-validated arguments and consistent error
// handling.
package capability

import (
	"context"
	"fmt"

	"github.com/wealthmesh/wealthmesh/core"
	"github.com/wealthmesh/wealthmesh/logging"
)

// TaskContext carries per-turn scope into a capability call: the session it
// runs for, the routing context shared by all roles, and a logger.
type TaskContext struct {
	Context   context.Context
	SessionID string
	Routing   core.RoutingContext
	Logger    logging.Logger
}

// Task defines a single invocable unit in a role's capability set.
//
// Implementations should:
//   - Provide clear, descriptive names (snake_case) and descriptions
//   - Define a JSON-schema subset for parameters
//   - Be idempotent: the invoker may execute a task more than once
//   - Be safe for concurrent use across sessions
type Task interface {
	// Name returns the unique identifier for this task.
	Name() string

	// Description returns a human-readable description used by the model
	// boundary to decide when to invoke the task.
	Description() string

	// Parameters returns a JSON-schema subset describing expected arguments.
	Parameters() map[string]any

	// Call executes the task with validated arguments.
	Call(tc *TaskContext, args map[string]any) (any, error)
}

// Task error codes.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeExecution    = "EXECUTION_ERROR"
	CodeNotRetryable = "NOT_RETRYABLE"
)

// TaskError represents errors that occur during task execution.
type TaskError struct {
	Task    string `json:"task"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *TaskError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("task error [%s] in %s: %s", e.Code, e.Task, e.Message)
	}
	return fmt.Sprintf("task error in %s: %s", e.Task, e.Message)
}

// NewTaskError creates a TaskError with the specified details.
func NewTaskError(task, message, code string) *TaskError {
	return &TaskError{Task: task, Message: message, Code: code}
}
