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
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	tracer = otel.Tracer("hedgemind.thesis.dag")
	meter  = otel.Meter("hedgemind.thesis.dag")
)

// Scheduler runs a Plan layer by layer.
//
// Description:
//
//	Every task of a layer starts concurrently (bounded by an optional
//	concurrency cap). The next layer starts only after every task of the
//	current layer has an entry in the Store. A failing, panicking or slow
//	task is recorded as a Failure and never stops its siblings.
//
// Thread Safety:
//
//	Scheduler is safe for concurrent use. Multiple runs can share one
//	Scheduler; each run gets its own Store.
type Scheduler struct {
	graph       *Graph
	logger      *slog.Logger
	concurrency int
	taskTimeout time.Duration
	observer    Observer

	// Metrics (initialized lazily)
	metricsOnce     sync.Once
	taskLatency     metric.Float64Histogram
	taskSuccesses   metric.Int64Counter
	taskFailures    metric.Int64Counter
	activeTasks     metric.Int64UpDownCounter
	pipelineLatency metric.Float64Histogram
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConcurrency caps the number of tasks running at once. Zero means no cap.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithTaskTimeout caps every task's budget. A task's own shorter Timeout still applies.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.taskTimeout = d
		}
	}
}

// WithObserver registers progress hooks.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewScheduler creates a scheduler for graph.
//
// Inputs:
//
//	graph - The validated graph. Must not be nil.
//	opts - Optional configuration.
//
// Outputs:
//
//	*Scheduler - The configured scheduler.
//	error - Non-nil if graph is nil.
func NewScheduler(graph *Graph, opts ...Option) (*Scheduler, error) {
	if graph == nil {
		return nil, ErrInvalidInput
	}
	s := &Scheduler{
		graph:    graph,
		logger:   slog.Default(),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues execution.
func (s *Scheduler) initMetrics() {
	s.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		s.taskLatency, err = meter.Float64Histogram("thesis_task_duration_seconds",
			metric.WithDescription("Time spent executing each thesis task"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "task_latency: "+err.Error())
		}

		s.taskSuccesses, err = meter.Int64Counter("thesis_task_success_total",
			metric.WithDescription("Number of tasks that produced a payload"),
		)
		if err != nil {
			initErrors = append(initErrors, "task_successes: "+err.Error())
		}

		s.taskFailures, err = meter.Int64Counter("thesis_task_failure_total",
			metric.WithDescription("Number of tasks recorded as failures, by kind"),
		)
		if err != nil {
			initErrors = append(initErrors, "task_failures: "+err.Error())
		}

		s.activeTasks, err = meter.Int64UpDownCounter("thesis_active_tasks",
			metric.WithDescription("Number of currently executing tasks"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_tasks: "+err.Error())
		}

		s.pipelineLatency, err = meter.Float64Histogram("thesis_pipeline_duration_seconds",
			metric.WithDescription("Total pipeline execution time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "pipeline_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			s.logger.Error("failed to initialize some scheduler metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Run executes plan for identifier with a generated run ID.
//
// See RunWithID.
func (s *Scheduler) Run(ctx context.Context, plan *Plan, identifier string) (*Store, error) {
	return s.RunWithID(ctx, uuid.NewString()[:12], plan, identifier)
}

// RunWithID executes plan for identifier.
//
// Description:
//
//	Walks the plan in order. Before each layer the run context is checked;
//	once it is done no further layer starts and the partial Store is
//	returned with a *CancelledError. Tasks already running are not
//	interrupted by cancellation, only by their own timeout.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	runID - Identifier for logs, spans and the Store.
//	plan - Plan computed from this scheduler's graph.
//	identifier - The security identifier passed to every task.
//
// Outputs:
//
//	*Store - Entries for every task that ran. Never nil when plan is valid.
//	error - *CancelledError on cancellation, ErrInvalidInput on bad arguments.
func (s *Scheduler) RunWithID(ctx context.Context, runID string, plan *Plan, identifier string) (*Store, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if plan == nil {
		return nil, ErrInvalidInput
	}

	s.initMetrics()

	ctx, span := tracer.Start(ctx, "thesis.Pipeline",
		trace.WithAttributes(
			attribute.String("thesis.graph", s.graph.Name()),
			attribute.String("thesis.run_id", runID),
			attribute.String("thesis.identifier", identifier),
			attribute.Int("thesis.task_count", s.graph.TaskCount()),
			attribute.Int("thesis.layer_count", plan.Len()),
		),
	)
	defer span.End()

	start := time.Now()
	store := NewStore(runID, s.graph.TaskNames()...)
	store.identifier = identifier

	s.logger.Info("pipeline started",
		slog.String("graph", s.graph.Name()),
		slog.String("run_id", runID),
		slog.String("identifier", identifier),
		slog.Int("tasks", s.graph.TaskCount()),
		slog.Int("layers", plan.Len()),
	)

	// In-flight tasks outlive run cancellation but keep the span.
	taskCtx := context.WithoutCancel(ctx)

	for i, layer := range plan.Layers {
		if err := ctx.Err(); err != nil {
			cause := context.Cause(ctx)
			cerr := &CancelledError{CompletedLayers: i, TotalLayers: plan.Len(), Cause: cause}
			store.cancelled.Store(true)
			span.RecordError(cerr)
			span.SetStatus(codes.Error, "cancelled")
			s.logger.Warn("pipeline cancelled",
				slog.String("run_id", runID),
				slog.Int("completed_layers", i),
				slog.Int("entries", store.Len()),
			)
			return store, cerr
		}

		s.runLayer(ctx, taskCtx, store, i, layer, identifier)
	}

	duration := time.Since(start)
	if s.pipelineLatency != nil {
		s.pipelineLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("graph", s.graph.Name())),
		)
	}

	failed := 0
	for _, e := range store.Snapshot() {
		if !e.Result.IsSuccess() {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("thesis.failed_tasks", failed))
	span.SetStatus(codes.Ok, "")

	s.logger.Info("pipeline completed",
		slog.String("run_id", runID),
		slog.Duration("duration", duration),
		slog.Int("tasks", store.Len()),
		slog.Int("failed", failed),
	)

	return store, nil
}

// runLayer starts every task of a layer and waits for all of them.
func (s *Scheduler) runLayer(ctx, taskCtx context.Context, store *Store, index int, layer []string, identifier string) {
	s.logger.Debug("layer started",
		slog.String("run_id", store.RunID()),
		slog.Int("layer", index),
		slog.Any("tasks", layer),
	)
	s.observer.OnLayerStart(ctx, store.RunID(), index, layer)

	// No errgroup.WithContext: a failure must not cancel siblings.
	var g errgroup.Group
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}

	for _, name := range layer {
		task, ok := s.graph.Task(name)
		if !ok {
			_ = store.Write(name, NewFailure(FailureUnknown, ErrInvalidInput.Error()))
			continue
		}
		g.Go(func() error {
			s.runTask(ctx, taskCtx, store, task, identifier)
			return nil
		})
	}

	_ = g.Wait()
}

// runTask executes a single task with observability and records its entry.
func (s *Scheduler) runTask(ctx, taskCtx context.Context, store *Store, task Task, identifier string) {
	name := task.Name()
	runID := store.RunID()

	taskCtx, span := tracer.Start(taskCtx, name,
		trace.WithAttributes(
			attribute.String("thesis.task", name),
			attribute.StringSlice("thesis.dependencies", task.Dependencies()),
			attribute.String("thesis.run_id", runID),
		),
	)
	defer span.End()

	if s.activeTasks != nil {
		s.activeTasks.Add(taskCtx, 1)
		defer s.activeTasks.Add(taskCtx, -1)
	}

	s.observer.OnTaskStart(ctx, runID, name)

	start := time.Now()
	var result Result
	if skipped, ok := s.checkRequired(store, task); ok {
		result = skipped
	} else {
		result = s.execute(taskCtx, task, store.View(task.Dependencies()), identifier)
	}
	duration := time.Since(start)

	if err := store.Write(name, result); err != nil {
		// Only possible if two plan entries share a name.
		s.logger.Error("task result dropped",
			slog.String("task", name),
			slog.String("error", err.Error()),
		)
	}

	if s.taskLatency != nil {
		s.taskLatency.Record(taskCtx, duration.Seconds(),
			metric.WithAttributes(attribute.String("task", name)),
		)
	}

	if f, failed := result.Failure(); failed {
		if s.taskFailures != nil {
			s.taskFailures.Add(taskCtx, 1,
				metric.WithAttributes(
					attribute.String("task", name),
					attribute.String("kind", string(f.Kind)),
				),
			)
		}
		span.SetAttributes(attribute.String("thesis.failure_kind", string(f.Kind)))
		span.SetStatus(codes.Error, f.Message)

		s.logger.Warn("task failed",
			slog.String("task", name),
			slog.String("run_id", runID),
			slog.String("kind", string(f.Kind)),
			slog.String("error", f.Message),
			slog.Duration("duration", duration),
		)
	} else {
		if s.taskSuccesses != nil {
			s.taskSuccesses.Add(taskCtx, 1,
				metric.WithAttributes(attribute.String("task", name)),
			)
		}
		span.SetStatus(codes.Ok, "")

		s.logger.Info("task completed",
			slog.String("task", name),
			slog.String("run_id", runID),
			slog.Duration("duration", duration),
		)
	}

	entry, err := store.Read(name)
	if err != nil {
		entry = Entry{Name: name, Result: result, CompletedAt: time.Now()}
	}
	s.observer.OnTaskDone(ctx, runID, entry, duration)
}

// checkRequired returns a Skipped failure when a required dependency failed.
func (s *Scheduler) checkRequired(store *Store, task Task) (Result, bool) {
	req, ok := task.(Requirer)
	if !ok {
		return Result{}, false
	}
	for _, dep := range req.Required() {
		e, err := store.Read(dep)
		if err != nil {
			return NewFailure(FailureSkipped, fmt.Sprintf("required dependency %q has no result", dep)), true
		}
		if f, failed := e.Result.Failure(); failed {
			return NewFailure(FailureSkipped, fmt.Sprintf("required dependency %q unavailable (%s)", dep, f.Kind)), true
		}
	}
	return Result{}, false
}

// budget returns the effective timeout for task.
func (s *Scheduler) budget(task Task) time.Duration {
	timeout := task.Timeout()
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	if s.taskTimeout > 0 && s.taskTimeout < timeout {
		timeout = s.taskTimeout
	}
	return timeout
}

// execute runs task.Execute under its budget and converts panics and
// deadline expiry into Failures. A task still running at the deadline is
// abandoned; its late result is discarded.
func (s *Scheduler) execute(ctx context.Context, task Task, view View, identifier string) Result {
	timeout := s.budget(task)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("task panicked",
					slog.String("task", task.Name()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				done <- NewFailure(FailureUnknown, fmt.Sprintf("panic: %v", r))
			}
		}()
		done <- task.Execute(execCtx, identifier, view)
	}()

	select {
	case res := <-done:
		if !res.IsSuccess() && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			f, _ := res.Failure()
			return NewFailure(FailureTimeout, f.Message)
		}
		return res
	case <-execCtx.Done():
		return NewFailure(FailureTimeout, fmt.Sprintf("task %q exceeded %s", task.Name(), timeout))
	}
}
