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
	"fmt"
	"strings"
	"time"
)

// Composite is the merged payload produced by an Aggregator.
type Composite struct {
	// Inputs lists the contributor names in declaration order.
	Inputs []string `json:"inputs"`

	// Parts holds each successful contributor's payload keyed by task name.
	Parts map[string]any `json:"parts"`

	// Omitted records contributors that failed or never ran.
	Omitted map[string]FailureKind `json:"omitted,omitempty"`

	// Degraded is true when every contributor was omitted.
	Degraded bool `json:"degraded"`

	// Text is an optional merged rendering set by a MergeFunc.
	Text string `json:"text,omitempty"`
}

// Part returns the payload of one contributor.
func (c Composite) Part(name string) (any, bool) {
	p, ok := c.Parts[name]
	return p, ok
}

// Present returns the names of successful contributors in declaration order.
func (c Composite) Present() []string {
	out := make([]string, 0, len(c.Parts))
	for _, n := range c.Inputs {
		if _, ok := c.Parts[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// MergeFunc post-processes a Composite before it is stored.
type MergeFunc func(c Composite) Composite

// ConcatMerge sets Composite.Text to the string form of every part,
// in declaration order, joined by sep.
func ConcatMerge(sep string) MergeFunc {
	return func(c Composite) Composite {
		var parts []string
		for _, n := range c.Present() {
			parts = append(parts, RenderPayload(c.Parts[n]))
		}
		c.Text = strings.Join(parts, sep)
		return c
	}
}

// Aggregator is a synthetic task that merges the results of other tasks.
//
// Description:
//
//	Downstream tasks depend on the aggregator's name instead of on every
//	contributor. Contributors are optional: a failed or missing input is
//	recorded in Composite.Omitted, and if all inputs are omitted the
//	aggregator still succeeds with an empty, degraded Composite.
type Aggregator struct {
	BaseTask
	merge MergeFunc
}

// NewAggregator creates an aggregator over inputs.
//
// Inputs:
//
//	name - The aggregator's task name.
//	inputs - Names of the contributing tasks.
//	merge - Optional post-processing. Nil keeps parts keyed by name only.
//
// Outputs:
//
//	*Aggregator - The aggregator task.
func NewAggregator(name string, inputs []string, merge MergeFunc) *Aggregator {
	deps := make([]string, len(inputs))
	copy(deps, inputs)
	return &Aggregator{
		BaseTask: BaseTask{
			TaskName:         name,
			TaskDependencies: deps,
			TaskTimeout:      10 * time.Second,
		},
		merge: merge,
	}
}

// Execute merges the visible inputs.
func (a *Aggregator) Execute(_ context.Context, _ string, upstream View) Result {
	return Success(Aggregate(upstream, a.Dependencies(), a.merge))
}

// Aggregate builds a Composite from the named entries of a view.
func Aggregate(upstream View, names []string, merge MergeFunc) Composite {
	c := Composite{
		Inputs:  append([]string(nil), names...),
		Parts:   make(map[string]any, len(names)),
		Omitted: make(map[string]FailureKind),
	}

	for _, n := range names {
		e, err := upstream.Entry(n)
		if err != nil {
			c.Omitted[n] = FailureUnknown
			continue
		}
		if f, failed := e.Result.Failure(); failed {
			c.Omitted[n] = f.Kind
			continue
		}
		c.Parts[n] = e.Result.Payload()
	}

	c.Degraded = len(c.Parts) == 0
	if merge != nil {
		c = merge(c)
	}
	return c
}

// String renders the composite's contributors, noting omissions.
func (c Composite) String() string {
	if c.Text != "" {
		return c.Text
	}
	var b strings.Builder
	for _, n := range c.Inputs {
		if p, ok := c.Parts[n]; ok {
			fmt.Fprintf(&b, "%s:\n%s\n\n", n, RenderPayload(p))
			continue
		}
		fmt.Fprintf(&b, "%s: omitted (%s)\n\n", n, c.Omitted[n])
	}
	return strings.TrimRight(b.String(), "\n")
}
