// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dag provides the layered execution engine behind thesis reports.
//
// The engine enables:
//   - Validated task graphs (unknown dependencies and cycles fail at build time)
//   - Topological layering into an explicit execution Plan
//   - Concurrent execution inside a layer with a barrier between layers
//   - A write-once Store shared by all tasks of a run
//   - Per-task failure isolation (errors, panics and timeouts become Failures)
//   - Aggregation of parallel results into one Composite
//   - Deterministic report assembly in a fixed section order
//
// # Thread Safety
//
// Graph and Plan are immutable after construction. Store is safe for
// concurrent use. Scheduler may run several plans concurrently.
//
// # Example
//
//	fundamental := dag.NewFuncTask("fundamental", nil, fundamentalFn)
//	news := dag.NewFuncTask("news", nil, newsFn)
//	research := dag.NewAggregator("research", []string{"fundamental", "news"}, nil)
//	strategist := dag.NewFuncTask("strategist", []string{"research"}, strategistFn)
//
//	graph, err := dag.NewBuilder("thesis").
//	    AddTask(fundamental).
//	    AddTask(news).
//	    AddTask(research).
//	    AddTask(strategist).
//	    Build()
//
//	plan, err := graph.Layer()
//	store, err := dag.NewScheduler(graph, dag.WithConcurrency(4)).Run(ctx, plan, "AAPL")
//	report := dag.Assemble(store, order)
package dag
