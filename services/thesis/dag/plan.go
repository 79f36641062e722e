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
	"sort"
)

// Plan is the ordered list of layers computed from a Graph.
//
// Every task appears in exactly one layer, and a task's layer index is
// strictly greater than the layer index of each of its dependencies.
type Plan struct {
	Layers  [][]string     `json:"layers"`
	layerOf map[string]int // task → layer index
}

// LayerOf returns the layer index of a task and whether it is planned.
func (p *Plan) LayerOf(name string) (int, bool) {
	idx, ok := p.layerOf[name]
	return idx, ok
}

// Len returns the number of layers.
func (p *Plan) Len() int {
	return len(p.Layers)
}

// TaskCount returns the number of planned tasks.
func (p *Plan) TaskCount() int {
	return len(p.layerOf)
}

// Layer computes the execution plan by topological layering.
//
// Description:
//
//	Tasks with no unresolved dependencies form layer 0. Removing them and
//	repeating yields the following layers. Names inside a layer are sorted so
//	the plan is identical across runs.
//
// Outputs:
//
//	*Plan - The layered plan.
//	error - *CycleError if some tasks can never be placed.
func (g *Graph) Layer() (*Plan, error) {
	indegree := make(map[string]int, len(g.tasks))
	dependents := make(map[string][]string, len(g.tasks))
	for name := range g.tasks {
		indegree[name] = 0
	}
	for _, e := range g.edges {
		indegree[e.To]++
		dependents[e.From] = append(dependents[e.From], e.To)
	}

	var current []string
	for name, deg := range indegree {
		if deg == 0 {
			current = append(current, name)
		}
	}

	plan := &Plan{layerOf: make(map[string]int, len(g.tasks))}
	for len(current) > 0 {
		sort.Strings(current)
		idx := len(plan.Layers)
		plan.Layers = append(plan.Layers, current)

		var next []string
		for _, name := range current {
			plan.layerOf[name] = idx
			for _, d := range dependents[name] {
				indegree[d]--
				if indegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		current = next
	}

	if len(plan.layerOf) != len(g.tasks) {
		var stuck []string
		for name := range g.tasks {
			if _, ok := plan.layerOf[name]; !ok {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, NewCycleError(stuck)
	}

	return plan, nil
}
