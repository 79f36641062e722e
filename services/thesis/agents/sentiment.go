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

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/hedgemind/services/market"
	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

const sentimentQuestions = `Answer the following:
1. What is the overall sentiment (bullish, bearish or mixed)?
2. What are the main reasons people give for their view?
3. Are there notable catalysts, rumors or events being discussed?
4. How does retail enthusiasm compare to the fundamentals being cited?`

// SentimentAgent gauges retail sentiment on Reddit.
//
// Post text larger than one chunk is split with a recursive character
// splitter, each chunk is condensed to notes, and the notes are analyzed
// together.
type SentimentAgent struct {
	dag.BaseTask
	deps     Deps
	opts     Options
	splitter textsplitter.TextSplitter
}

// NewSentiment creates the sentiment agent.
func NewSentiment(deps Deps, opts Options) *SentimentAgent {
	opts = opts.withDefaults()
	return &SentimentAgent{
		BaseTask: dag.BaseTask{TaskName: Sentiment, TaskTimeout: deps.timeout(90 * time.Second)},
		deps:     deps,
		opts:     opts,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(opts.ChunkSize),
			textsplitter.WithChunkOverlap(opts.ChunkSize/20),
		),
	}
}

// Execute implements dag.Task. No posts is a success.
func (a *SentimentAgent) Execute(ctx context.Context, symbol string, _ dag.View) dag.Result {
	log := a.deps.logger()
	posts, err := a.deps.Market.SearchPosts(ctx, a.opts.Subreddits, symbol, a.opts.SentimentDays, a.opts.SentimentLimit)
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}
	if len(posts) == 0 {
		return dag.Success(fmt.Sprintf("No recent Reddit sentiment found for %s.", symbol))
	}
	if len(posts) > a.opts.SentimentPosts {
		posts = posts[:a.opts.SentimentPosts]
	}

	chunks, err := a.splitter.SplitText(postText(posts))
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}

	material := strings.Join(chunks, "\n\n")
	if len(chunks) > 1 {
		log.Debug("sentiment chunked", slog.String("symbol", symbol), slog.Int("chunks", len(chunks)))
		notes := make([]string, 0, len(chunks))
		for i, chunk := range chunks {
			prompt := fmt.Sprintf("Condense these Reddit posts about %s (part %d of %d) into short notes on "+
				"sentiment, arguments and catalysts mentioned:\n\n%s", symbol, i+1, len(chunks), chunk)
			note, err := a.deps.analyze(ctx, prompt)
			if err != nil {
				return fail(log, a.Name(), symbol, err)
			}
			notes = append(notes, note)
		}
		material = strings.Join(notes, "\n\n")
	}

	prompt := fmt.Sprintf("You are a market sentiment analyst. Below is Reddit discussion about %s from %s "+
		"over the last %d days (%d posts).\n\n%s\n\n%s",
		symbol, subredditList(a.opts.Subreddits), a.opts.SentimentDays, len(posts), material, sentimentQuestions)

	analysis, err := a.deps.analyze(ctx, prompt)
	if err != nil {
		return fail(log, a.Name(), symbol, err)
	}
	return dag.Success(report(a.Name(), symbol, a.deps.today(), analysis))
}

func postText(posts []market.Post) string {
	var b strings.Builder
	for _, p := range posts {
		fmt.Fprintf(&b, "Title: %s\nBody: %s\n\n", p.Title, strings.TrimSpace(p.Body))
	}
	return b.String()
}

func subredditList(subs []string) string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = "r/" + s
	}
	return strings.Join(out, " and ")
}
