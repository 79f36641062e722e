// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

// contextLabels name each research part in the strategist prompt.
var contextLabels = map[string]string{
	Fundamental: "Fundamental Report",
	Earnings:    "Earnings",
	Insider:     "Insider Transactions Report",
	News:        "News Report",
	Sentiment:   "Reddit Sentiment Report",
	Chart:       "Chart Report",
	Satellite:   "Satellite Report",
}

// StrategistAgent synthesizes the research composite into an investment view.
//
// Research inputs are advisory: omitted contributors are listed in the
// prompt and the strategist still runs when every one of them failed.
type StrategistAgent struct {
	dag.BaseTask
	deps Deps
}

// NewStrategist creates the strategist. It depends only on the research
// aggregator.
func NewStrategist(deps Deps) *StrategistAgent {
	return &StrategistAgent{
		BaseTask: dag.BaseTask{
			TaskName:         Strategist,
			TaskDependencies: []string{Research},
			TaskTimeout:      deps.timeout(90 * time.Second),
		},
		deps: deps,
	}
}

// Execute implements dag.Task.
func (a *StrategistAgent) Execute(ctx context.Context, symbol string, upstream dag.View) dag.Result {
	log := a.deps.logger()
	research, ok := dag.PayloadAs[dag.Composite](upstream, Research)
	if !ok {
		return dag.NewFailure(dag.FailureSkipped, "research composite unavailable")
	}

	analysis, err := a.deps.analyze(ctx, strategistPrompt(symbol, research))
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}
	return dag.Success(report(a.Name(), symbol, a.deps.today(), analysis))
}

func strategistPrompt(symbol string, research dag.Composite) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an investment strategist. Combine the research below on %s into one view.\n\n", symbol)

	for _, name := range research.Present() {
		label := contextLabels[name]
		if label == "" {
			label = name
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", label, dag.RenderPayload(research.Parts[name]))
	}

	if len(research.Omitted) > 0 {
		omitted := make([]string, 0, len(research.Omitted))
		for name, kind := range research.Omitted {
			omitted = append(omitted, fmt.Sprintf("%s (%s)", name, kind))
		}
		sort.Strings(omitted)
		fmt.Fprintf(&b, "Unavailable research: %s. Do not speculate about the missing areas.\n\n", strings.Join(omitted, ", "))
	}
	if research.Degraded {
		b.WriteString("No research was available. Say so and keep the answer general.\n\n")
	}

	b.WriteString("Provide:\n" +
		"1. A synthesis of the key findings.\n" +
		"2. A short-term view (1 month).\n" +
		"3. A medium-term view (1-12 months).\n" +
		"4. A long-term view (12+ months).\n" +
		"5. An overall directional bias (bullish, bearish or neutral) with the main risk to it.")
	return b.String()
}
