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
	"strings"
	"testing"
)

func TestAggregate_RecordsOmissions(t *testing.T) {
	s := NewStore("run")
	_ = s.Write("A", Success("alpha"))
	_ = s.Write("B", NewFailure(FailureTimeout, "slow"))
	_ = s.Write("C", Success("gamma"))

	c := Aggregate(s.View([]string{"A", "B", "C"}), []string{"A", "B", "C"}, nil)

	if c.Degraded {
		t.Error("Degraded = true with two successful inputs")
	}
	if got := strings.Join(c.Present(), ","); got != "A,C" {
		t.Errorf("Present() = %s, want A,C", got)
	}
	if c.Omitted["B"] != FailureTimeout {
		t.Errorf("Omitted[B] = %q, want %q", c.Omitted["B"], FailureTimeout)
	}
	if p, ok := c.Part("C"); !ok || p != "gamma" {
		t.Errorf("Part(C) = %v, %v", p, ok)
	}
	if !strings.Contains(c.String(), "B: omitted (Timeout)") {
		t.Errorf("String() = %q, want omission note for B", c.String())
	}
}

func TestAggregate_AllFailedIsDegraded(t *testing.T) {
	s := NewStore("run")
	_ = s.Write("A", NewFailure(FailureExternalCall, "down"))
	_ = s.Write("B", NewFailure(FailureParse, "bad"))

	c := Aggregate(s.View([]string{"A", "B"}), []string{"A", "B"}, ConcatMerge("\n"))

	if !c.Degraded {
		t.Error("Degraded = false with every input failed")
	}
	if len(c.Parts) != 0 {
		t.Errorf("Parts = %v, want empty", c.Parts)
	}
	if len(c.Omitted) != 2 {
		t.Errorf("Omitted = %v, want both inputs", c.Omitted)
	}
}

func TestConcatMerge(t *testing.T) {
	s := NewStore("run")
	_ = s.Write("A", Success("one"))
	_ = s.Write("B", NewFailure(FailureUnknown, "x"))
	_ = s.Write("C", Success("three"))

	c := Aggregate(s.View([]string{"A", "B", "C"}), []string{"A", "B", "C"}, ConcatMerge(" | "))
	if c.Text != "one | three" {
		t.Errorf("Text = %q, want %q", c.Text, "one | three")
	}
	if c.String() != c.Text {
		t.Error("String() does not prefer Text")
	}
}

// TestAggregator_DownstreamRunsWhenOneInputFails wires A, B, C into X and X
// into D, fails B, and checks that D still runs and sees the degraded composite.
func TestAggregator_DownstreamRunsWhenOneInputFails(t *testing.T) {
	for _, failing := range []string{"A", "B", "C"} {
		t.Run(failing, func(t *testing.T) {
			inputs := map[string]*TestTask{
				"A": NewTestTask("A", nil),
				"B": NewTestTask("B", nil),
				"C": NewTestTask("C", nil),
			}
			inputs[failing].WithFailure(FailureExternalCall, "boom")

			var seen Composite
			d := NewFuncTask("D", []string{"X"}, func(_ context.Context, _ string, up View) Result {
				c, ok := PayloadAs[Composite](up, "X")
				if !ok {
					return NewFailure(FailureUnknown, "no composite")
				}
				seen = c
				return Success("thesis")
			})

			store, err := buildAndRun(t, context.Background(), nil,
				inputs["A"], inputs["B"], inputs["C"],
				NewAggregator("X", []string{"A", "B", "C"}, nil),
				d,
			)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			e, err := store.Read("D")
			if err != nil || !e.Result.IsSuccess() {
				t.Fatalf("D = %+v, %v; want success", e, err)
			}
			if seen.Degraded {
				t.Error("composite marked degraded with two inputs present")
			}
			if seen.Omitted[failing] != FailureExternalCall {
				t.Errorf("Omitted = %v, want %s as ExternalCallError", seen.Omitted, failing)
			}
			if len(seen.Parts) != 2 {
				t.Errorf("Parts = %v, want two entries", seen.Parts)
			}
		})
	}
}

func TestAggregator_AllInputsFailStillSucceeds(t *testing.T) {
	store, err := buildAndRun(t, context.Background(), nil,
		NewTestTask("A", nil).WithFailure(FailureTimeout, "t"),
		NewTestTask("B", nil).WithPanic("p"),
		NewAggregator("X", []string{"A", "B"}, nil),
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	e, _ := store.Read("X")
	c, ok := e.Result.Payload().(Composite)
	if !e.Result.IsSuccess() || !ok {
		t.Fatalf("X = %+v, want successful Composite", e.Result)
	}
	if !c.Degraded {
		t.Error("Degraded = false")
	}
	if c.Omitted["B"] != FailureUnknown {
		t.Errorf("Omitted[B] = %q, want Unknown for a panic", c.Omitted["B"])
	}
}
