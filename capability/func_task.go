package capability

import (
	"fmt"
	"time"
)

// FuncTask is a generic adapter that exposes a plain Go function as a Task.
//
// It holds a lightweight JSON-schema-like parameter specification, validates
// supplied arguments against it before execution, and normalizes error
// handling so callers receive *TaskError with consistent codes:
//
//	VALIDATION_ERROR -> schema / argument mismatch
//	EXECUTION_ERROR  -> underlying function returned a non-TaskError error
//	(custom codes preserved if the function returns *TaskError directly)
//
// A FuncTask has no internal mutable state after construction and is safe
// for concurrent use.
type FuncTask struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(tc *TaskContext, args map[string]any) (any, error)
}

// NewFuncTask constructs a FuncTask from an explicit schema and function.
func NewFuncTask(
	name, description string,
	parameters map[string]any,
	fn func(tc *TaskContext, args map[string]any) (any, error),
) *FuncTask {
	return &FuncTask{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// Name returns the unique task name used in capability declarations and routing.
func (t *FuncTask) Name() string { return t.name }

// Description returns the short natural-language description exposed to the
// model boundary.
func (t *FuncTask) Description() string { return t.description }

// Parameters returns the schema describing expected arguments.
func (t *FuncTask) Parameters() map[string]any { return t.parameters }

// Call validates args against the declared schema then invokes the wrapped
// function, wrapping failures as *TaskError for uniform downstream handling.
func (t *FuncTask) Call(tc *TaskContext, args map[string]any) (any, error) {
	logger := tc.Logger
	start := time.Now()

	logger.Debug("task.call.start", "task", t.name, "session_id", tc.SessionID)

	if err := ValidateArgs(args, t.parameters); err != nil {
		logger.Warn("task.call.validation_failed", "task", t.name, "error", err.Error())
		return nil, &TaskError{
			Task:    t.name,
			Message: fmt.Sprintf("argument validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(tc, args)
	if err != nil {
		if taskErr, ok := err.(*TaskError); ok {
			logger.Error("task.call.error", "task", t.name, "error", taskErr.Message)
			return nil, taskErr
		}
		logger.Error("task.call.error", "task", t.name, "error", err.Error())
		return nil, &TaskError{
			Task:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	logger.Info("task.call.success", "task", t.name, "duration_ms", time.Since(start).Milliseconds())
	return result, nil
}
