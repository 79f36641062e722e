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
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the dag package.
var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilTask is returned when a nil task is registered.
	ErrNilTask = errors.New("task must not be nil")

	// ErrDuplicateTask is returned when two tasks share a name.
	ErrDuplicateTask = errors.New("task with this name already exists")

	// ErrEmptyGraph is returned when building a graph with no tasks.
	ErrEmptyGraph = errors.New("graph has no tasks")

	// ErrValidation is matched by every graph validation failure.
	ErrValidation = errors.New("graph validation failed")

	// ErrUnknownDependency is returned when a dependency is not registered.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrCycleDetected is returned when the graph contains a cycle.
	ErrCycleDetected = errors.New("cycle detected in graph")

	// ErrDuplicateWrite is returned when a store entry is written twice.
	ErrDuplicateWrite = errors.New("entry already written")

	// ErrNotFound is returned when a store entry does not exist or is not visible.
	ErrNotFound = errors.New("entry not found")

	// ErrPipelineCancelled is returned when cancellation interrupts a run.
	ErrPipelineCancelled = errors.New("pipeline cancelled")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError reports a graph that cannot be executed.
//
// It wraps the concrete cause (*CycleError, *UnknownDependencyError,
// *UndeclaredRequiredError or a sentinel) and always matches ErrValidation.
type ValidationError struct {
	Graph string
	Err   error
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("graph %q: %v", e.Graph, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// CycleError provides details about a detected cycle.
type CycleError struct {
	Path []string
}

// Error returns the cycle description.
func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

// Is reports whether target is ErrCycleDetected.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}

// NewCycleError creates a CycleError.
func NewCycleError(path []string) *CycleError {
	return &CycleError{Path: path}
}

// UnknownDependencyError names a task that depends on an unregistered name.
type UnknownDependencyError struct {
	Task       string
	Dependency string
}

// Error returns the error message.
func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.Task, e.Dependency)
}

// Is reports whether target is ErrUnknownDependency.
func (e *UnknownDependencyError) Is(target error) bool {
	return target == ErrUnknownDependency
}

// UndeclaredRequiredError names a task that marks as required a name it
// does not depend on. Such a requirement could never be checked.
type UndeclaredRequiredError struct {
	Task     string
	Required string
}

// Error returns the error message.
func (e *UndeclaredRequiredError) Error() string {
	return fmt.Sprintf("task %q requires %q, which is not one of its dependencies", e.Task, e.Required)
}

// Is reports whether target is ErrUnknownDependency.
func (e *UndeclaredRequiredError) Is(target error) bool {
	return target == ErrUnknownDependency
}

// TaskError wraps an error with the task that caused it.
type TaskError struct {
	TaskName string
	Err      error
}

// Error returns the error message.
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q: %v", e.TaskName, e.Err)
}

// Unwrap returns the underlying error.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// DuplicateWriteError is returned by Store.Write for a name already written.
type DuplicateWriteError struct {
	Name string
}

func (e *DuplicateWriteError) Error() string {
	return fmt.Sprintf("store: %q already written", e.Name)
}

func (e *DuplicateWriteError) Is(target error) bool {
	return target == ErrDuplicateWrite
}

// NotFoundError is returned by Store.Read and View lookups.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("store: %q not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CancelledError marks a run interrupted between layers.
type CancelledError struct {
	CompletedLayers int
	TotalLayers     int
	Cause           error
}

// Error returns the error message.
func (e *CancelledError) Error() string {
	return fmt.Sprintf("pipeline cancelled after %d/%d layers: %v", e.CompletedLayers, e.TotalLayers, e.Cause)
}

// Is reports whether target is ErrPipelineCancelled.
func (e *CancelledError) Is(target error) bool {
	return target == ErrPipelineCancelled
}

// Unwrap returns the cancellation cause.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}
