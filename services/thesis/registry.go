// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package thesis

import (
	"github.com/AleutianAI/hedgemind/services/thesis/agents"
	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

// DefaultSectionOrder is the report layout with every agent enabled.
func DefaultSectionOrder() []dag.SectionSpec {
	return agents.Sections()
}

// DefaultRegistry returns the research agents, the research aggregator and
// the strategist, leaving out the disabled agent names.
func DefaultRegistry(deps agents.Deps, opts agents.Options, disabled ...string) []dag.Task {
	return agents.All(deps, opts, disabled...)
}

// DefaultConfig is a Config running the default registry with the
// matching section order.
func DefaultConfig(deps agents.Deps, opts agents.Options, disabled ...string) Config {
	return Config{
		Registry:     DefaultRegistry(deps, opts, disabled...),
		SectionOrder: agents.Sections(disabled...),
		Logger:       deps.Logger,
	}
}

// OrderSections resolves configured section names against titles. Unknown
// names keep the name as their title.
func OrderSections(names []string) []dag.SectionSpec {
	out := make([]dag.SectionSpec, 0, len(names))
	for _, n := range names {
		title := agents.Titles[n]
		if title == "" {
			title = n
		}
		out = append(out, dag.SectionSpec{Name: n, Title: title})
	}
	return out
}
