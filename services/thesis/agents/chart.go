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

	"github.com/AleutianAI/hedgemind/services/market"
	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

// ChartAgent describes price action as text tables: monthly closes with
// insider activity, quarterly revenue against net income, and performance
// rebased against a benchmark.
//
// Only the price history is required. Missing earnings, insider or
// benchmark data drops that table.
type ChartAgent struct {
	dag.BaseTask
	deps      Deps
	opts      Options
	benchmark string
}

// NewChart creates the chart agent.
func NewChart(deps Deps, opts Options) *ChartAgent {
	opts = opts.withDefaults()
	return &ChartAgent{
		BaseTask:  dag.BaseTask{TaskName: Chart, TaskTimeout: deps.timeout(60 * time.Second)},
		deps:      deps,
		opts:      opts,
		benchmark: opts.Benchmark,
	}
}

// Execute implements dag.Task.
func (a *ChartAgent) Execute(ctx context.Context, symbol string, _ dag.View) dag.Result {
	log := a.deps.logger()
	prices := a.deps.Market.Prices()

	series, err := prices.History(ctx, symbol, 365)
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}

	var insiders []market.InsiderTransaction
	if act, err := a.deps.Market.InsiderTransactions(ctx, symbol, a.opts.InsiderLastN); err == nil {
		insiders = act.Transactions
	} else {
		log.Info("chart without insider markers", slog.String("symbol", symbol), slog.String("error", err.Error()))
	}

	var tables []string
	tables = append(tables, priceTable(series, insiders))

	if hist, err := a.deps.Market.QuarterlyEarnings(ctx, symbol, a.opts.EarningsQuarters); err == nil && len(hist.Quarters) > 0 {
		tables = append(tables, earningsTable(hist.Quarters))
	} else if err != nil {
		log.Info("chart without earnings", slog.String("symbol", symbol), slog.String("error", err.Error()))
	}

	if symbol != a.benchmark {
		if bench, err := prices.History(ctx, a.benchmark, 365); err == nil {
			tables = append(tables, relativeTable(series, bench))
		} else {
			log.Info("chart without benchmark", slog.String("benchmark", a.benchmark), slog.String("error", err.Error()))
		}
	}

	prompt := fmt.Sprintf("You are a technical analyst. The tables below describe %s over the last year.\n\n%s\n\n"+
		"Summarize what the charts show in 3-5 numbered points: trend, notable moves around insider "+
		"activity, whether revenue and income support the price, and performance against %s.",
		symbol, strings.Join(tables, "\n\n"), a.benchmark)

	analysis, err := a.deps.analyze(ctx, prompt)
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}
	return dag.Success(report(a.Name(), symbol, a.deps.today(), analysis))
}

// monthEnds returns the last point of every calendar month.
func monthEnds(points []market.PricePoint) []market.PricePoint {
	var out []market.PricePoint
	for i, p := range points {
		if i == len(points)-1 || !sameMonth(p.Time, points[i+1].Time) {
			out = append(out, p)
		}
	}
	return out
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func priceTable(series *market.PriceSeries, insiders []market.InsiderTransaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Monthly closes for %s:\n", series.Symbol)
	b.WriteString("Month    | Close     | Insider activity\n")
	for _, p := range monthEnds(series.Points) {
		fmt.Fprintf(&b, "%-8s | %9.2f | %s\n", p.Time.Format("2006-01"), p.Close, insiderMarks(insiders, p.Time))
	}
	return strings.TrimRight(b.String(), "\n")
}

// insiderMarks counts purchases and sales filed in month's calendar month.
func insiderMarks(txs []market.InsiderTransaction, month time.Time) string {
	var buys, sells int
	for _, tx := range txs {
		if !sameMonth(tx.Date, month) {
			continue
		}
		switch tx.Type {
		case market.InsiderPurchase:
			buys++
		case market.InsiderSale:
			sells++
		}
	}
	var marks []string
	if buys > 0 {
		marks = append(marks, fmt.Sprintf("%d buy", buys))
	}
	if sells > 0 {
		marks = append(marks, fmt.Sprintf("%d sell", sells))
	}
	if len(marks) == 0 {
		return "-"
	}
	return strings.Join(marks, ", ")
}

func earningsTable(quarters []market.Quarter) string {
	var b strings.Builder
	b.WriteString("Quarterly revenue vs net income:\n")
	b.WriteString("Quarter    | Revenue         | Net income\n")
	for _, q := range quarters {
		fmt.Fprintf(&b, "%-10s | %15s | %s\n", q.Period, num(q.Revenue), num(q.NetIncome))
	}
	return strings.TrimRight(b.String(), "\n")
}

// relativeTable rebases both series to 100 at the first common month.
func relativeTable(series, bench *market.PriceSeries) string {
	ours := monthEnds(series.Points)
	theirs := make(map[string]float64)
	for _, p := range monthEnds(bench.Points) {
		theirs[p.Time.Format("2006-01")] = p.Close
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Relative performance (rebased to 100) vs %s:\n", bench.Symbol)
	fmt.Fprintf(&b, "Month    | %-8s | %s\n", series.Symbol, bench.Symbol)
	var base, benchBase float64
	for _, p := range ours {
		key := p.Time.Format("2006-01")
		bc, ok := theirs[key]
		if !ok || bc == 0 || p.Close == 0 {
			continue
		}
		if base == 0 {
			base, benchBase = p.Close, bc
		}
		fmt.Fprintf(&b, "%-8s | %8.2f | %.2f\n", key, p.Close/base*100, bc/benchBase*100)
	}
	return strings.TrimRight(b.String(), "\n")
}
