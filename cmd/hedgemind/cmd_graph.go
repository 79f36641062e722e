// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/hedgemind/pkg/ux"
	"github.com/AleutianAI/hedgemind/services/thesis"
	"github.com/AleutianAI/hedgemind/services/thesis/agents"
)

func runGraph(cmd *cobra.Command, _ []string) error {
	p := cfg.Pipeline
	p.Disabled = append(p.Disabled, disabledFlags...)

	// Tasks are only inspected, so no clients are needed.
	pcfg := pipelineFor(agents.Deps{}, p)
	graph, plan, err := thesis.Build(pcfg.Registry)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if dotOutput {
		return graph.WriteDOT(w, plan)
	}

	ux.Title("Execution plan")
	for i, layer := range plan.Layers {
		fmt.Fprintf(w, "layer %d: %s\n", i, strings.Join(layer, ", "))
	}
	names := make([]string, len(pcfg.SectionOrder))
	for i, s := range pcfg.SectionOrder {
		names[i] = s.Name
	}
	fmt.Fprintf(w, "sections: %s\n", strings.Join(names, ", "))
	return nil
}
