// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package satellite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/hedgemind/services/llm"
)

const summarizerSystem = `You verify and summarize satellite observations for a finance report.
Observations are derived from public missions (S2/S1/VIIRS/MODIS) at >=10m resolution.
Drop low-quality observations (quality < 0.6) or clearly implausible values.
Produce: a one-line HEADLINE, 2-4 concise bullets, an overall confidence (0..1),
and an attribution list like ["S2","VIIRS"]. Prefer cautious, evidence-weighted language.`

const summarizerUser = `Ticker: %s
Industry: %s
Observations JSON:
%s

Return STRICT JSON:
{
  "headline": "...",
  "bullets": ["...", "..."],
  "confidence": 0.0,
  "attribution": ["S2"]
}`

type summaryAnswer struct {
	Headline    string   `json:"headline"`
	Bullets     []string `json:"bullets"`
	Confidence  float64  `json:"confidence"`
	Attribution []string `json:"attribution"`
}

// Summarize asks the model to explain result. Unlike Plan it returns
// transport and decode errors to the caller.
func Summarize(ctx context.Context, client llm.LLMClient, ticker, industry string, result ObservationResult) (Summary, error) {
	obs, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return Summary{}, fmt.Errorf("encode observations: %w", err)
	}

	temp := float32(0)
	raw, err := client.Generate(ctx, fmt.Sprintf(summarizerUser, ticker, industry, obs),
		llm.GenerationParams{System: summarizerSystem, Temperature: &temp})
	if err != nil {
		return Summary{}, err
	}

	ans, err := llm.DecodeJSON[summaryAnswer](raw)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		Ticker:      ticker,
		Headline:    ans.Headline,
		Bullets:     ans.Bullets,
		Confidence:  ans.Confidence,
		Attribution: ans.Attribution,
		RawCounts: map[string]int{
			"observations": len(result.Observations),
			"gaps":         len(result.Gaps),
		},
	}
	if err := validate.Struct(s); err != nil {
		return Summary{}, &llm.DecodeError{Err: err}
	}
	return s, nil
}

// Deps are the collaborators of Run.
type Deps struct {
	Planner    llm.LLMClient
	Summarizer llm.LLMClient
	Observer   Observer
}

// Run plans, observes and summarizes satellite evidence for ticker.
//
// When the plan skips satellite no observer or summarizer is called and
// the returned Summary carries the plan notes as its only bullet.
func Run(ctx context.Context, deps Deps, ticker, industry string, hints Hints) (Summary, ObservationPlan, error) {
	plan := Plan(ctx, deps.Planner, ticker, industry, hints.Sites[ticker], hints.Proxies[industry])
	if !plan.UseSatellite {
		note := plan.Notes
		if note == "" {
			note = "Pure software/internet industry; skipping satellite."
		}
		return Summary{
			Ticker:     ticker,
			Headline:   "Satellite not applicable",
			Bullets:    []string{note},
			Confidence: 0.99,
		}, plan, nil
	}

	observer := deps.Observer
	if observer == nil {
		observer = NoopObserver{}
	}
	result, err := observer.Observe(ctx, plan)
	if err != nil {
		return Summary{}, plan, fmt.Errorf("observe: %w", err)
	}

	summarizer := deps.Summarizer
	if summarizer == nil {
		summarizer = deps.Planner
	}
	s, err := Summarize(ctx, summarizer, ticker, industry, result)
	return s, plan, err
}
