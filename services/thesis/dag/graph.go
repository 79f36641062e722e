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
	"slices"
	"sort"
)

// Edge represents a dependency relationship between tasks.
type Edge struct {
	// From is the dependency task name (must complete first).
	From string `json:"from"`

	// To is the dependent task name (reads From's entry).
	To string `json:"to"`
}

// Graph is a validated, immutable set of tasks and their dependencies.
//
// Thread Safety:
//
//	Graph is safe for concurrent read access. It is never modified after Build.
type Graph struct {
	name    string
	tasks   map[string]Task
	order   []string            // registration order
	edges   []Edge
	adjList map[string][]string // task → dependencies
}

// Name returns the graph's name.
func (g *Graph) Name() string {
	return g.name
}

// Task returns a task by name.
func (g *Graph) Task(name string) (Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// TaskCount returns the number of tasks.
func (g *Graph) TaskCount() int {
	return len(g.tasks)
}

// TaskNames returns all task names in registration order.
func (g *Graph) TaskNames() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Dependencies returns the dependency names of a task.
func (g *Graph) Dependencies(name string) []string {
	return g.adjList[name]
}

// Edges returns a copy of all dependency edges.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Dependents returns the names of tasks that directly depend on name, sorted.
func (g *Graph) Dependents(name string) []string {
	var out []string
	for _, e := range g.edges {
		if e.From == name {
			out = append(out, e.To)
		}
	}
	sort.Strings(out)
	return out
}

// Builder constructs a Graph with validation.
//
// Description:
//
//	Builder provides a fluent API for registering tasks. Build validates that
//	every dependency exists and that no cycle is present.
//
// Thread Safety:
//
//	Builder is NOT safe for concurrent use. Build the graph in a single goroutine.
//
// Example:
//
//	graph, err := dag.NewBuilder("thesis").
//	    AddTask(news).
//	    AddTask(strategist).
//	    Build()
type Builder struct {
	name   string
	tasks  map[string]Task
	order  []string
	edges  []Edge
	errors []error
}

// NewBuilder creates a new graph builder.
//
// Inputs:
//
//	name - The name for the graph (used in logging/metrics).
//
// Outputs:
//
//	*Builder - The builder instance.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		tasks:  make(map[string]Task),
		edges:  make([]Edge, 0),
		errors: make([]error, 0),
	}
}

// AddTask registers a task.
//
// Description:
//
//	Adds a task and creates edges from its declared dependencies. A nil task
//	or a duplicate name is recorded and reported by Build.
//
// Inputs:
//
//	task - The task to add. Must not be nil.
//
// Outputs:
//
//	*Builder - The builder for chaining.
func (b *Builder) AddTask(task Task) *Builder {
	if task == nil {
		b.errors = append(b.errors, ErrNilTask)
		return b
	}

	name := task.Name()
	if name == "" {
		b.errors = append(b.errors, &TaskError{TaskName: name, Err: ErrInvalidInput})
		return b
	}
	if _, exists := b.tasks[name]; exists {
		b.errors = append(b.errors, &TaskError{TaskName: name, Err: ErrDuplicateTask})
		return b
	}

	b.tasks[name] = task
	b.order = append(b.order, name)

	for _, dep := range task.Dependencies() {
		b.edges = append(b.edges, Edge{From: dep, To: name})
	}

	return b
}

// AddTasks registers several tasks in order.
func (b *Builder) AddTasks(tasks ...Task) *Builder {
	for _, t := range tasks {
		b.AddTask(t)
	}
	return b
}

// Build validates and constructs the Graph.
//
// Description:
//
//	Validates that all dependencies exist and no cycles are present. No task
//	is executed. Every failure is returned as *ValidationError.
//
// Outputs:
//
//	*Graph - The constructed graph.
//	error - *ValidationError if validation fails.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errors) > 0 {
		return nil, &ValidationError{Graph: b.name, Err: b.errors[0]}
	}

	if len(b.tasks) == 0 {
		return nil, &ValidationError{Graph: b.name, Err: ErrEmptyGraph}
	}

	for _, edge := range b.edges {
		if _, exists := b.tasks[edge.From]; !exists {
			return nil, &ValidationError{
				Graph: b.name,
				Err:   &UnknownDependencyError{Task: edge.To, Dependency: edge.From},
			}
		}
	}

	for _, name := range b.order {
		if err := validateRequired(b.tasks[name]); err != nil {
			return nil, &ValidationError{Graph: b.name, Err: err}
		}
	}

	adjList := make(map[string][]string, len(b.tasks))
	for name, t := range b.tasks {
		adjList[name] = t.Dependencies()
	}

	if err := b.detectCycles(adjList); err != nil {
		return nil, &ValidationError{Graph: b.name, Err: err}
	}

	return &Graph{
		name:    b.name,
		tasks:   b.tasks,
		order:   b.order,
		edges:   b.edges,
		adjList: adjList,
	}, nil
}

// validateRequired verifies every required name of t is also a dependency.
func validateRequired(t Task) error {
	r, ok := t.(Requirer)
	if !ok {
		return nil
	}
	deps := t.Dependencies()
	for _, name := range r.Required() {
		if !slices.Contains(deps, name) {
			return &UndeclaredRequiredError{Task: t.Name(), Required: name}
		}
	}
	return nil
}

// detectCycles uses DFS over in-progress tasks to detect cycles.
// Tasks are visited in registration order so the reported path is stable.
func (b *Builder) detectCycles(adjList map[string][]string) error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make([]string, 0)

	var dfs func(name string) error
	dfs = func(name string) error {
		visited[name] = true
		recStack[name] = true
		path = append(path, name)

		for _, dep := range adjList[name] {
			if !visited[dep] {
				if err := dfs(dep); err != nil {
					return err
				}
			} else if recStack[dep] {
				cycleStart := 0
				for i, n := range path {
					if n == dep {
						cycleStart = i
						break
					}
				}
				cyclePath := make([]string, 0, len(path)-cycleStart+1)
				cyclePath = append(cyclePath, path[cycleStart:]...)
				cyclePath = append(cyclePath, dep)
				return NewCycleError(cyclePath)
			}
		}

		path = path[:len(path)-1]
		recStack[name] = false
		return nil
	}

	for _, name := range b.order {
		if !visited[name] {
			if err := dfs(name); err != nil {
				return err
			}
		}
	}

	return nil
}
