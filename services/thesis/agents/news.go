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

	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

// NewsAgent summarizes recent company news.
type NewsAgent struct {
	dag.BaseTask
	deps  Deps
	days  int
	limit int
}

// NewNews creates the news agent.
func NewNews(deps Deps, opts Options) *NewsAgent {
	opts = opts.withDefaults()
	return &NewsAgent{
		BaseTask: dag.BaseTask{TaskName: News, TaskTimeout: deps.timeout(45 * time.Second)},
		deps:     deps,
		days:     opts.NewsDays,
		limit:    opts.NewsLimit,
	}
}

// Execute implements dag.Task. An empty news window is a success.
func (a *NewsAgent) Execute(ctx context.Context, symbol string, _ dag.View) dag.Result {
	log := a.deps.logger()
	to := a.deps.now()
	from := to.AddDate(0, 0, -a.days)

	articles, err := a.deps.Market.CompanyNews(ctx, symbol, from, to, a.limit)
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}
	if len(articles) == 0 {
		return dag.Success(fmt.Sprintf("No recent news articles found for %s.", symbol))
	}

	blocks := make([]string, len(articles))
	for i, art := range articles {
		blocks[i] = fmt.Sprintf("Title: %s\nDate: %s\n%s", art.Title, art.Published.Format(time.DateOnly), art.Summary)
	}
	prompt := fmt.Sprintf("You are a financial news analyst. Here are the latest articles about %s:\n\n%s\n\n"+
		"State the overall sentiment (bullish, bearish or neutral) and give 3-5 numbered insights "+
		"an investor should take from this coverage.", symbol, strings.Join(blocks, "\n\n"))

	analysis, err := a.deps.analyze(ctx, prompt)
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}
	return dag.Success(report(a.Name(), symbol, a.deps.today(), analysis))
}
