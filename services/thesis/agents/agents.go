// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agents implements the analysis tasks of a thesis run.
//
// Each agent is a dag.Task that fetches data through Market, asks an LLM
// for an analysis and returns the boxed report text as its payload.
// Failures are classified with dag.FailureFrom so the report shows why a
// section is missing.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/hedgemind/pkg/ux"
	"github.com/AleutianAI/hedgemind/services/llm"
	"github.com/AleutianAI/hedgemind/services/market"
	"github.com/AleutianAI/hedgemind/services/thesis/dag"
	"github.com/AleutianAI/hedgemind/services/thesis/satellite"
)

// Task names.
const (
	Fundamental = "fundamental"
	Earnings    = "earnings"
	Insider     = "insider"
	News        = "news"
	Sentiment   = "sentiment"
	Chart       = "chart"
	Satellite   = "satellite"
	Research    = "research"
	Strategist  = "strategist"
)

// Analysts are the independent first-layer agents in report order.
var Analysts = []string{Fundamental, Earnings, Insider, News, Sentiment, Chart, Satellite}

// Titles are the report titles per task.
var Titles = map[string]string{
	Fundamental: "Fundamental Analysis",
	Earnings:    "Quarterly Earnings",
	Insider:     "Insider Transaction",
	News:        "News Summary",
	Sentiment:   "Reddit Sentiment",
	Chart:       "Chart Analysis",
	Satellite:   "Satellite Summary",
	Strategist:  "Investment Strategy",
}

// Market is the data surface the agents read. *market.Client implements it.
type Market interface {
	Fundamentals(ctx context.Context, symbol string) (*market.Fundamentals, error)
	PriceTrend(ctx context.Context, symbol string) (market.PriceTrend, error)
	QuarterlyEarnings(ctx context.Context, symbol string, maxQuarters int) (*market.EarningsHistory, error)
	InsiderTransactions(ctx context.Context, symbol string, lastN int) (*market.InsiderActivity, error)
	CompanyNews(ctx context.Context, symbol string, from, to time.Time, limit int) ([]market.Article, error)
	SearchPosts(ctx context.Context, subreddits []string, ticker string, daysBack, limit int) ([]market.Post, error)
	Prices() market.PriceSource
}

var _ Market = (*market.Client)(nil)

// Deps are shared by every agent.
type Deps struct {
	Market Market
	LLM    llm.LLMClient
	Logger *slog.Logger

	// Observer executes satellite plans. Nil uses satellite.NoopObserver.
	Observer satellite.Observer
	// Hints are satellite target candidates.
	Hints satellite.Hints

	// Timeout overrides every agent's budget when positive.
	Timeout time.Duration
	// Now is the clock used for report dates. Nil means time.Now.
	Now func() time.Time
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d Deps) today() string {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	return now().Format(time.DateOnly)
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) timeout(def time.Duration) time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return def
}

// analyze sends prompt to the model at temperature zero.
func (d Deps) analyze(ctx context.Context, prompt string) (string, error) {
	temp := float32(0)
	out, err := d.LLM.Generate(ctx, prompt, llm.GenerationParams{Temperature: &temp})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// report joins the boxed header and the body.
func report(name, symbol, date, body string) string {
	return fmt.Sprintf("%s\n%s\n", ux.ReportHeader(Titles[name], symbol, date), body)
}

// fail logs and classifies err.
func fail(logger *slog.Logger, task, symbol string, err error) dag.Result {
	res := dag.FailureFrom(err)
	logger.Warn("agent failed",
		slog.String("task", task),
		slog.String("symbol", symbol),
		slog.String("kind", string(res.Kind())),
		slog.String("error", err.Error()),
	)
	return res
}

// num renders an optional metric.
func num(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%g", *v)
}

// Options tune individual agents.
type Options struct {
	EarningsQuarters int      `yaml:"earnings_quarters" validate:"gte=0"`
	InsiderLastN     int      `yaml:"insider_last_n" validate:"gte=0"`
	NewsDays         int      `yaml:"news_days" validate:"gte=0"`
	NewsLimit        int      `yaml:"news_limit" validate:"gte=0"`
	Subreddits       []string `yaml:"subreddits"`
	SentimentDays    int      `yaml:"sentiment_days" validate:"gte=0"`
	SentimentLimit   int      `yaml:"sentiment_limit" validate:"gte=0"`
	SentimentPosts   int      `yaml:"sentiment_posts" validate:"gte=0"`
	ChunkSize        int      `yaml:"chunk_size" validate:"gte=0"`
	Benchmark        string   `yaml:"benchmark"`
}

// DefaultOptions returns the stock agent settings.
func DefaultOptions() Options {
	return Options{
		EarningsQuarters: 8,
		InsiderLastN:     15,
		NewsDays:         7,
		NewsLimit:        5,
		Subreddits:       []string{"wallstreetbets", "stocks"},
		SentimentDays:    90,
		SentimentLimit:   300,
		SentimentPosts:   100,
		ChunkSize:        12000,
		Benchmark:        "SPY",
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.EarningsQuarters <= 0 {
		o.EarningsQuarters = def.EarningsQuarters
	}
	if o.InsiderLastN <= 0 {
		o.InsiderLastN = def.InsiderLastN
	}
	if o.NewsDays <= 0 {
		o.NewsDays = def.NewsDays
	}
	if o.NewsLimit <= 0 {
		o.NewsLimit = def.NewsLimit
	}
	if len(o.Subreddits) == 0 {
		o.Subreddits = def.Subreddits
	}
	if o.SentimentDays <= 0 {
		o.SentimentDays = def.SentimentDays
	}
	if o.SentimentLimit <= 0 {
		o.SentimentLimit = def.SentimentLimit
	}
	if o.SentimentPosts <= 0 {
		o.SentimentPosts = def.SentimentPosts
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = def.ChunkSize
	}
	if o.Benchmark == "" {
		o.Benchmark = def.Benchmark
	}
	return o
}

// All returns every analyst, the research aggregator and the strategist.
// Names in disabled are left out, including from the aggregator inputs.
func All(deps Deps, opts Options, disabled ...string) []dag.Task {
	opts = opts.withDefaults()
	off := make(map[string]bool, len(disabled))
	for _, n := range disabled {
		off[n] = true
	}

	ctors := map[string]func() dag.Task{
		Fundamental: func() dag.Task { return NewFundamental(deps) },
		Earnings:    func() dag.Task { return NewEarnings(deps, opts) },
		Insider:     func() dag.Task { return NewInsider(deps, opts) },
		News:        func() dag.Task { return NewNews(deps, opts) },
		Sentiment:   func() dag.Task { return NewSentiment(deps, opts) },
		Chart:       func() dag.Task { return NewChart(deps, opts) },
		Satellite:   func() dag.Task { return NewSatellite(deps) },
	}

	var tasks []dag.Task
	var inputs []string
	for _, name := range Analysts {
		if off[name] {
			continue
		}
		tasks = append(tasks, ctors[name]())
		inputs = append(inputs, name)
	}
	tasks = append(tasks, dag.NewAggregator(Research, inputs, nil))
	if !off[Strategist] {
		tasks = append(tasks, NewStrategist(deps))
	}
	return tasks
}

// Sections returns the report order for the enabled agents.
func Sections(disabled ...string) []dag.SectionSpec {
	off := make(map[string]bool, len(disabled))
	for _, n := range disabled {
		off[n] = true
	}
	var out []dag.SectionSpec
	for _, name := range append(append([]string{}, Analysts...), Strategist) {
		if off[name] {
			continue
		}
		out = append(out, dag.SectionSpec{Name: name, Title: Titles[name]})
	}
	return out
}
