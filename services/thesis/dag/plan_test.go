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
	"fmt"
	"math/rand"
	"reflect"
	"testing"
)

func TestGraph_Layer_Diamond(t *testing.T) {
	// A → {B, C} → D
	g, err := NewBuilder("diamond").AddTasks(
		NewTestTask("D", []string{"B", "C"}),
		NewTestTask("C", []string{"A"}),
		NewTestTask("B", []string{"A"}),
		NewTestTask("A", nil),
	).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	plan, err := g.Layer()
	if err != nil {
		t.Fatalf("Layer() error = %v", err)
	}

	want := [][]string{{"A"}, {"B", "C"}, {"D"}}
	if !reflect.DeepEqual(plan.Layers, want) {
		t.Errorf("Layers = %v, want %v", plan.Layers, want)
	}
	if idx, ok := plan.LayerOf("D"); !ok || idx != 2 {
		t.Errorf("LayerOf(D) = %d, %v; want 2, true", idx, ok)
	}
	if plan.TaskCount() != 4 {
		t.Errorf("TaskCount() = %d, want 4", plan.TaskCount())
	}
}

func TestGraph_Layer_IndependentTasksShareLayer(t *testing.T) {
	g, err := NewBuilder("flat").AddTasks(
		NewTestTask("C", nil),
		NewTestTask("A", nil),
		NewTestTask("B", nil),
	).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	plan, err := g.Layer()
	if err != nil {
		t.Fatalf("Layer() error = %v", err)
	}
	if !reflect.DeepEqual(plan.Layers, [][]string{{"A", "B", "C"}}) {
		t.Errorf("Layers = %v, want one sorted layer", plan.Layers)
	}
}

func TestGraph_Layer_LongestPathDecidesLayer(t *testing.T) {
	// D depends on A (layer 0) and C (layer 2), so D must be in layer 3.
	g, err := NewBuilder("chain").AddTasks(
		NewTestTask("A", nil),
		NewTestTask("B", []string{"A"}),
		NewTestTask("C", []string{"B"}),
		NewTestTask("D", []string{"A", "C"}),
	).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	plan, err := g.Layer()
	if err != nil {
		t.Fatalf("Layer() error = %v", err)
	}
	if idx, _ := plan.LayerOf("D"); idx != 3 {
		t.Errorf("LayerOf(D) = %d, want 3", idx)
	}
}

// randomDAG builds a random acyclic graph: task i may only depend on tasks < i.
func randomDAG(r *rand.Rand, n int) []Task {
	tasks := make([]Task, 0, n)
	for i := 0; i < n; i++ {
		var deps []string
		for j := 0; j < i; j++ {
			if r.Intn(4) == 0 {
				deps = append(deps, fmt.Sprintf("t%02d", j))
			}
		}
		tasks = append(tasks, NewTestTask(fmt.Sprintf("t%02d", i), deps))
	}
	r.Shuffle(len(tasks), func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })
	return tasks
}

func TestGraph_Layer_TopologicalProperty(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		tasks := randomDAG(r, 1+r.Intn(25))

		g, err := NewBuilder("random").AddTasks(tasks...).Build()
		if err != nil {
			t.Fatalf("trial %d: Build() error = %v", trial, err)
		}
		plan, err := g.Layer()
		if err != nil {
			t.Fatalf("trial %d: Layer() error = %v", trial, err)
		}

		seen := make(map[string]int)
		for _, layer := range plan.Layers {
			for _, name := range layer {
				seen[name]++
			}
		}
		for _, task := range tasks {
			if seen[task.Name()] != 1 {
				t.Fatalf("trial %d: task %s appears %d times, want 1", trial, task.Name(), seen[task.Name()])
			}
			idx, _ := plan.LayerOf(task.Name())
			for _, dep := range task.Dependencies() {
				depIdx, _ := plan.LayerOf(dep)
				if idx <= depIdx {
					t.Fatalf("trial %d: LayerOf(%s) = %d, not greater than LayerOf(%s) = %d",
						trial, task.Name(), idx, dep, depIdx)
				}
			}
		}
	}
}

func TestGraph_Layer_Deterministic(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	tasks := randomDAG(r, 20)

	g, err := NewBuilder("det").AddTasks(tasks...).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	first, _ := g.Layer()
	for i := 0; i < 20; i++ {
		again, _ := g.Layer()
		if !reflect.DeepEqual(first.Layers, again.Layers) {
			t.Fatalf("Layer() not deterministic: %v vs %v", first.Layers, again.Layers)
		}
	}
}
