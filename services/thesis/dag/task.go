// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dag

import (
	"context"
	"slices"
	"time"
)

// DefaultTaskTimeout is the timeout for tasks that don't specify one.
const DefaultTaskTimeout = 2 * time.Minute

// Task is a single unit of work in a thesis pipeline.
//
// Description:
//
//	Task is the fundamental unit of work. Each task has a unique name,
//	declares the tasks whose results it reads, and implements Execute to
//	produce its own Result. Tasks never write to the Store directly; the
//	Scheduler records whatever Execute returns.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use. Execute may run
//	concurrently with sibling tasks of the same layer and with other runs.
type Task interface {
	// Name returns the unique identifier for this task.
	Name() string

	// Dependencies returns the names of tasks whose results this task reads.
	//
	// Outputs:
	//   []string - Dependency names. Empty if the task only needs the identifier.
	Dependencies() []string

	// Timeout returns the maximum wall-clock time for one execution.
	//
	// Outputs:
	//   time.Duration - Budget for Execute. Zero means DefaultTaskTimeout.
	Timeout() time.Duration

	// Execute runs the task's logic.
	//
	// Inputs:
	//   ctx - Context carrying the task deadline.
	//   identifier - The security identifier the run is about.
	//   upstream - Read-only view of the dependencies' entries.
	//
	// Outputs:
	//   Result - Success with a payload, or a Failure.
	Execute(ctx context.Context, identifier string, upstream View) Result
}

// Requirer is implemented by tasks that cannot produce a meaningful result
// when some of their dependencies failed.
//
// The Scheduler does not invoke such a task when a required dependency holds
// a Failure; it records a Skipped failure instead. Dependencies not listed
// here are optional.
type Requirer interface {
	Required() []string
}

// BaseTask provides a partial implementation of the Task interface.
//
// Description:
//
//	BaseTask implements the common parts of Task (name, dependencies,
//	required dependencies, timeout). Embed it in concrete tasks and
//	override Execute.
//
// Example:
//
//	type NewsTask struct {
//	    dag.BaseTask
//	    client NewsClient
//	}
//
//	func NewNewsTask(c NewsClient) *NewsTask {
//	    return &NewsTask{
//	        BaseTask: dag.BaseTask{
//	            TaskName:    "news",
//	            TaskTimeout: 45 * time.Second,
//	        },
//	        client: c,
//	    }
//	}
type BaseTask struct {
	TaskName         string
	TaskDependencies []string
	TaskRequired     []string
	TaskTimeout      time.Duration
}

// Name returns the task's unique identifier.
func (t *BaseTask) Name() string {
	return t.TaskName
}

// Dependencies returns the names of tasks that must complete first.
func (t *BaseTask) Dependencies() []string {
	if t.TaskDependencies == nil {
		return []string{}
	}
	return t.TaskDependencies
}

// Required returns the dependencies whose failure skips this task.
func (t *BaseTask) Required() []string {
	return t.TaskRequired
}

// Timeout returns the maximum execution time for this task.
func (t *BaseTask) Timeout() time.Duration {
	if t.TaskTimeout == 0 {
		return DefaultTaskTimeout
	}
	return t.TaskTimeout
}

// Execute returns a failure if called directly.
// Concrete implementations must override this method.
func (t *BaseTask) Execute(_ context.Context, _ string, _ View) Result {
	return NewFailure(FailureUnknown, "BaseTask.Execute must be overridden by concrete implementation")
}

// TaskFunc is the signature of a task body.
type TaskFunc func(ctx context.Context, identifier string, upstream View) Result

// FuncTask wraps a function as a Task for simple cases.
//
// Example:
//
//	task := dag.NewFuncTask("A", nil, func(ctx context.Context, id string, _ dag.View) dag.Result {
//	    return dag.Success("report for " + id)
//	})
type FuncTask struct {
	BaseTask
	fn TaskFunc
}

// NewFuncTask creates a task from a function.
//
// Inputs:
//
//	name - The task name.
//	deps - Dependency task names. The slice is copied.
//	fn - The function to execute.
//
// Outputs:
//
//	*FuncTask - The function task.
func NewFuncTask(name string, deps []string, fn TaskFunc) *FuncTask {
	return &FuncTask{
		BaseTask: BaseTask{
			TaskName:         name,
			TaskDependencies: slices.Clone(deps),
		},
		fn: fn,
	}
}

// Execute runs the wrapped function.
func (t *FuncTask) Execute(ctx context.Context, identifier string, upstream View) Result {
	if t.fn == nil {
		return NewFailure(FailureUnknown, ErrInvalidInput.Error())
	}
	return t.fn(ctx, identifier, upstream)
}

// WithTimeout sets the timeout for a FuncTask.
func (t *FuncTask) WithTimeout(d time.Duration) *FuncTask {
	t.TaskTimeout = d
	return t
}

// WithRequired marks dependencies as required.
func (t *FuncTask) WithRequired(names ...string) *FuncTask {
	t.TaskRequired = slices.Concat(t.TaskRequired, names)
	return t
}

var (
	_ Task     = (*FuncTask)(nil)
	_ Requirer = (*BaseTask)(nil)
)
