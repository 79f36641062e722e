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
	"io"
	"sort"
	"strconv"
)

// ErrNilWriter is returned when a nil writer is passed to WriteDOT.
var ErrNilWriter = errors.New("nil writer")

// WriteDOT renders the graph in Graphviz DOT format, one cluster per layer.
//
// Output is deterministic: clusters follow plan order, nodes inside a layer
// are sorted, edges are sorted by (from, to).
func (g *Graph) WriteDOT(w io.Writer, plan *Plan) error {
	if w == nil {
		return ErrNilWriter
	}
	if plan == nil {
		var err error
		if plan, err = g.Layer(); err != nil {
			return err
		}
	}

	p := &dotPrinter{w: w}
	p.printf("digraph %s {\n", strconv.Quote(g.name))
	p.printf("    rankdir=LR;\n")
	p.printf("    node [shape=box];\n")

	for i, layer := range plan.Layers {
		p.printf("    subgraph \"cluster_layer_%d\" {\n", i)
		p.printf("        label=%s;\n", strconv.Quote(fmt.Sprintf("layer %d", i)))
		for _, name := range layer {
			shape := ""
			if t, ok := g.tasks[name]; ok {
				if _, isAgg := t.(*Aggregator); isAgg {
					shape = " [shape=diamond]"
				}
			}
			p.printf("        %s%s;\n", strconv.Quote(name), shape)
		}
		p.printf("    }\n")
	}

	edges := g.Edges()
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	for _, e := range edges {
		p.printf("    %s -> %s;\n", strconv.Quote(e.From), strconv.Quote(e.To))
	}

	p.printf("}\n")
	return p.err
}

// dotPrinter keeps the first write error.
type dotPrinter struct {
	w   io.Writer
	err error
}

func (p *dotPrinter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
