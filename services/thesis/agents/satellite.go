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
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/hedgemind/services/thesis/dag"
	"github.com/AleutianAI/hedgemind/services/thesis/satellite"
)

// SatelliteAgent runs the satellite plan, observe and summarize flow.
type SatelliteAgent struct {
	dag.BaseTask
	deps Deps
}

// NewSatellite creates the satellite agent.
func NewSatellite(deps Deps) *SatelliteAgent {
	return &SatelliteAgent{
		BaseTask: dag.BaseTask{TaskName: Satellite, TaskTimeout: deps.timeout(90 * time.Second)},
		deps:     deps,
	}
}

// Execute implements dag.Task. The industry comes from fundamentals and is
// left empty when they cannot be fetched.
func (a *SatelliteAgent) Execute(ctx context.Context, symbol string, _ dag.View) dag.Result {
	log := a.deps.logger()

	industry := ""
	if fund, err := a.deps.Market.Fundamentals(ctx, symbol); err == nil {
		industry = fund.Industry
	} else {
		log.Info("satellite without industry", slog.String("symbol", symbol), slog.String("error", err.Error()))
	}

	summary, plan, err := satellite.Run(ctx, satellite.Deps{
		Planner:  a.deps.LLM,
		Observer: a.deps.Observer,
	}, symbol, industry, a.deps.Hints)
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}
	log.Debug("satellite plan",
		slog.String("symbol", symbol),
		slog.Bool("use_satellite", plan.UseSatellite),
		slog.Int("targets", len(plan.Targets)),
	)
	return dag.Success(report(a.Name(), symbol, a.deps.today(), summaryText(summary)))
}

func summaryText(s satellite.Summary) string {
	var b strings.Builder
	b.WriteString(s.Headline)
	b.WriteString("\n\n")
	if len(s.Bullets) == 0 {
		b.WriteString("No key points.\n")
	}
	for i, bullet := range s.Bullets {
		fmt.Fprintf(&b, "%d. %s\n", i+1, bullet)
	}
	fmt.Fprintf(&b, "\nConfidence: %.2f", s.Confidence)
	if len(s.Attribution) > 0 {
		fmt.Fprintf(&b, "\nSources: %s", strings.Join(s.Attribution, "; "))
	}
	return b.String()
}
