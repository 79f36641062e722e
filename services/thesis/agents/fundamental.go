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

// FundamentalAgent analyzes valuation and quality metrics against the
// one-year price trend.
type FundamentalAgent struct {
	dag.BaseTask
	deps Deps
}

// NewFundamental creates the fundamental agent.
func NewFundamental(deps Deps) *FundamentalAgent {
	return &FundamentalAgent{
		BaseTask: dag.BaseTask{TaskName: Fundamental, TaskTimeout: deps.timeout(60 * time.Second)},
		deps:     deps,
	}
}

// Execute implements dag.Task.
func (a *FundamentalAgent) Execute(ctx context.Context, symbol string, _ dag.View) dag.Result {
	log := a.deps.logger()
	fund, err := a.deps.Market.Fundamentals(ctx, symbol)
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}
	trend, err := a.deps.Market.PriceTrend(ctx, symbol)
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}

	analysis, err := a.deps.analyze(ctx, fundamentalPrompt(symbol, fund, trend))
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}
	return dag.Success(report(a.Name(), symbol, a.deps.today(), analysis))
}

func fundamentalPrompt(symbol string, f *market.Fundamentals, t market.PriceTrend) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a financial analyst. Analyze the fundamentals of %s", symbol)
	if f.Name != "" {
		fmt.Fprintf(&b, " (%s)", f.Name)
	}
	b.WriteString(" in the context of its recent stock price performance.\n\n")
	b.WriteString("Fundamentals:\n")
	fmt.Fprintf(&b, "- Market Cap: %s\n", num(f.MarketCap))
	fmt.Fprintf(&b, "- Forward P/E: %s\n", num(f.ForwardPE))
	fmt.Fprintf(&b, "- Revenue Growth: %s\n", num(f.RevenueGrowth))
	fmt.Fprintf(&b, "- Profit Margins: %s\n", num(f.ProfitMargins))
	fmt.Fprintf(&b, "- Operating Cash Flow: %s\n", num(f.OperatingCashflow))
	fmt.Fprintf(&b, "- Free Cash Flow: %s\n", num(f.FreeCashflow))
	fmt.Fprintf(&b, "- Debt to Equity: %s\n", num(f.DebtToEquity))
	if f.Sector != "" || f.Industry != "" {
		fmt.Fprintf(&b, "- Sector / Industry: %s / %s\n", f.Sector, f.Industry)
	}
	b.WriteString("\n1-Year Price Trend:\n")
	fmt.Fprintf(&b, "- Start (%s): $%.2f\n", t.StartDate, t.StartPrice)
	fmt.Fprintf(&b, "- End (%s): $%.2f\n", t.EndDate, t.EndPrice)
	fmt.Fprintf(&b, "- Change: %.2f%%\n\n", t.PercentChange)
	b.WriteString("Provide 3-5 numbered insights on whether the price movement is supported by the fundamentals, " +
		"noting valuation, growth quality, profitability, cash generation and balance sheet risk. Be concise.")
	return b.String()
}
