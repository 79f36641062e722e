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
	"strings"
	"time"

	"github.com/AleutianAI/hedgemind/services/market"
	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

// EarningsAgent reviews recent quarterly results.
type EarningsAgent struct {
	dag.BaseTask
	deps     Deps
	quarters int
}

// NewEarnings creates the earnings agent.
func NewEarnings(deps Deps, opts Options) *EarningsAgent {
	return &EarningsAgent{
		BaseTask: dag.BaseTask{TaskName: Earnings, TaskTimeout: deps.timeout(60 * time.Second)},
		deps:     deps,
		quarters: opts.withDefaults().EarningsQuarters,
	}
}

// Execute implements dag.Task.
func (a *EarningsAgent) Execute(ctx context.Context, symbol string, _ dag.View) dag.Result {
	log := a.deps.logger()
	hist, err := a.deps.Market.QuarterlyEarnings(ctx, symbol, a.quarters)
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}
	if len(hist.Quarters) == 0 {
		return dag.Success(fmt.Sprintf("No quarterly earnings data found for %s.", symbol))
	}

	lines := make([]string, len(hist.Quarters))
	for i, q := range hist.Quarters {
		lines[i] = quarterLine(q)
	}
	prompt := fmt.Sprintf("You are a financial analyst. Here are the last %d quarters of results for %s:\n\n%s\n\n"+
		"Analyze the trend in revenue, net income and EPS. Call out acceleration or deceleration, "+
		"margin direction and any quarter that breaks the pattern. Give 3-5 numbered insights.",
		len(lines), symbol, strings.Join(lines, "\n"))

	analysis, err := a.deps.analyze(ctx, prompt)
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}
	return dag.Success(report(a.Name(), symbol, a.deps.today(), analysis))
}

func quarterLine(q market.Quarter) string {
	return fmt.Sprintf("%s: Rev=%s Net=%s EPS=%s (Rev QoQ=%s, YoY=%s)",
		q.Period, num(q.Revenue), num(q.NetIncome), num(q.EPSDiluted),
		pct(q.RevenueGrowth.QoQ), pct(q.RevenueGrowth.YoY))
}

func pct(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", *v)
}
