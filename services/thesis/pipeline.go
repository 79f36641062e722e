// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package thesis runs a research pipeline for one security identifier and
// returns the assembled report.
package thesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/hedgemind/pkg/validation"
	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

// GraphName names the graph in logs, spans and DOT output.
const GraphName = "thesis"

// Pipeline stages reported by PipelineError.
const (
	StageValidate = "validate"
	StageBuild    = "build"
	StagePlan     = "plan"
	StageRun      = "run"
)

// ErrPipelineCancelled is matched by the error returned from a cancelled run.
var ErrPipelineCancelled = dag.ErrPipelineCancelled

// PipelineError wraps a fatal RunPipeline error with the stage it came from.
type PipelineError struct {
	Stage      string
	Identifier string
	Err        error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("thesis %s for %q: %v", e.Stage, e.Identifier, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Config describes one run.
type Config struct {
	// Registry holds every task of the run, aggregators included.
	Registry []dag.Task

	// SectionOrder is the report layout. Sections absent from Registry
	// render as unavailable.
	SectionOrder []dag.SectionSpec

	// PerTaskTimeout caps every task's own budget when positive.
	PerTaskTimeout time.Duration

	// ConcurrencyCap bounds tasks running at once inside a layer. Zero
	// means no bound.
	ConcurrencyCap int

	// Cancel stops the run between layers when closed.
	Cancel <-chan struct{}

	// Observer receives progress notifications.
	Observer dag.Observer

	Logger *slog.Logger

	// RunID overrides the generated run identifier.
	RunID string
}

// Build validates tasks and computes their execution plan.
func Build(tasks []dag.Task) (*dag.Graph, *dag.Plan, error) {
	graph, err := dag.NewBuilder(GraphName).AddTasks(tasks...).Build()
	if err != nil {
		return nil, nil, &PipelineError{Stage: StageBuild, Err: err}
	}
	plan, err := graph.Layer()
	if err != nil {
		return nil, nil, &PipelineError{Stage: StagePlan, Err: err}
	}
	return graph, plan, nil
}

// RunPipeline runs cfg.Registry for identifier and assembles the report.
//
// Description:
//
//	Validates the identifier, builds and layers the graph, runs every
//	layer and assembles the sections in cfg.SectionOrder. Task failures
//	never fail the run; they appear as unavailable sections.
//
//	Cancellation through ctx or cfg.Cancel stops the run before the next
//	layer. The partial report is still returned, with Cancelled set, along
//	with a *PipelineError matching ErrPipelineCancelled.
//
// Outputs:
//
//	*dag.Report - The report. Nil only when nothing ran.
//	error - *PipelineError for invalid input, an invalid graph or cancellation.
func RunPipeline(ctx context.Context, identifier string, cfg Config) (*dag.Report, error) {
	if ctx == nil {
		return nil, &PipelineError{Stage: StageValidate, Identifier: identifier, Err: dag.ErrNilContext}
	}
	if err := validation.ValidateTicker(identifier); err != nil {
		return nil, &PipelineError{Stage: StageValidate, Identifier: identifier, Err: err}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	graph, plan, err := Build(cfg.Registry)
	if err != nil {
		var pe *PipelineError
		if errors.As(err, &pe) {
			pe.Identifier = identifier
		}
		return nil, err
	}

	opts := []dag.Option{dag.WithLogger(logger)}
	if cfg.ConcurrencyCap > 0 {
		opts = append(opts, dag.WithConcurrency(cfg.ConcurrencyCap))
	}
	if cfg.PerTaskTimeout > 0 {
		opts = append(opts, dag.WithTaskTimeout(cfg.PerTaskTimeout))
	}
	if cfg.Observer != nil {
		opts = append(opts, dag.WithObserver(cfg.Observer))
	}
	sched, err := dag.NewScheduler(graph, opts...)
	if err != nil {
		return nil, &PipelineError{Stage: StageRun, Identifier: identifier, Err: err}
	}

	ctx, stop := withCancelChannel(ctx, cfg.Cancel)
	defer stop()

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	store, runErr := sched.RunWithID(ctx, runID, plan, identifier)
	if store == nil {
		return nil, &PipelineError{Stage: StageRun, Identifier: identifier, Err: runErr}
	}

	report := dag.Assemble(store, cfg.SectionOrder)
	if runErr != nil {
		logger.Warn("partial report",
			slog.String("run_id", runID),
			slog.String("identifier", identifier),
			slog.Any("unavailable", report.Unavailable()),
		)
		return report, &PipelineError{Stage: StageRun, Identifier: identifier, Err: runErr}
	}
	return report, nil
}

// errCancelRequested is the cause recorded when cfg.Cancel closes.
var errCancelRequested = errors.New("cancel requested")

// withCancelChannel returns a context that is also cancelled when cancel
// closes. A nil channel leaves ctx unchanged apart from the stop func.
func withCancelChannel(ctx context.Context, cancel <-chan struct{}) (context.Context, func()) {
	ctx, cancelCause := context.WithCancelCause(ctx)
	if cancel == nil {
		return ctx, func() { cancelCause(nil) }
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-cancel:
			cancelCause(errCancelRequested)
		case <-ctx.Done():
		case <-done:
		}
	}()
	return ctx, func() {
		close(done)
		cancelCause(nil)
	}
}
