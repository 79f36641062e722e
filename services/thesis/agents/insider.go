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

// recentInsiderLines is how many filings are echoed under the analysis.
const recentInsiderLines = 5

// InsiderAgent interprets recent insider filings.
type InsiderAgent struct {
	dag.BaseTask
	deps  Deps
	lastN int
}

// NewInsider creates the insider agent.
func NewInsider(deps Deps, opts Options) *InsiderAgent {
	return &InsiderAgent{
		BaseTask: dag.BaseTask{TaskName: Insider, TaskTimeout: deps.timeout(60 * time.Second)},
		deps:     deps,
		lastN:    opts.withDefaults().InsiderLastN,
	}
}

// Execute implements dag.Task.
func (a *InsiderAgent) Execute(ctx context.Context, symbol string, _ dag.View) dag.Result {
	log := a.deps.logger()
	act, err := a.deps.Market.InsiderTransactions(ctx, symbol, a.lastN)
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}
	if len(act.Transactions) == 0 {
		return dag.Success(fmt.Sprintf("No insider transactions found for %s.", symbol))
	}

	lines := make([]string, len(act.Transactions))
	for i, tx := range act.Transactions {
		lines[i] = insiderLine(tx)
	}
	s := act.Summary
	prompt := fmt.Sprintf("You are a financial analyst. Review the last %d insider transactions for %s.\n\n"+
		"Summary: %d transactions, net shares %.0f, total value $%.0f, by type %v.\n\n%s\n\n"+
		"Explain what this activity signals about insider confidence. Separate routine grants and "+
		"exercises from discretionary buying and selling. Give 3-5 numbered points.",
		len(lines), symbol, s.TotalTransactions, s.NetShares, s.TotalValueUSD, s.ByType, strings.Join(lines, "\n"))

	analysis, err := a.deps.analyze(ctx, prompt)
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}

	recent := lines
	if len(recent) > recentInsiderLines {
		recent = recent[len(recent)-recentInsiderLines:]
	}
	body := analysis + "\n\nRecent transactions:\n" + strings.Join(recent, "\n")
	return dag.Success(report(a.Name(), symbol, a.deps.today(), body))
}

func insiderLine(tx market.InsiderTransaction) string {
	price := "N/A"
	if tx.Price != nil {
		price = fmt.Sprintf("$%.2f", *tx.Price)
	}
	return fmt.Sprintf("%s: %s %s (%.0f shares @ %s)",
		tx.Date.Format(time.DateOnly), tx.Filer, tx.Type, tx.Shares, price)
}
