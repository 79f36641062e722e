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
	"slices"
	"sort"
	"strings"

	"github.com/AleutianAI/hedgemind/services/llm"
)

// MaxTargets is the most targets a plan may carry.
const MaxTargets = 2

// skipIndustries never benefit from satellite observation.
var skipIndustries = map[string]struct{}{
	"internet":                 {},
	"software":                 {},
	"saas":                     {},
	"fintech":                  {},
	"media":                    {},
	"advertising":              {},
	"social media":             {},
	"gaming (pure software)":   {},
	"payments (pure software)": {},
}

// SkipsSatellite reports whether industry is on the software skip list.
func SkipsSatellite(industry string) bool {
	_, ok := skipIndustries[strings.ToLower(strings.TrimSpace(industry))]
	return ok
}

func skipList() string {
	names := make([]string, 0, len(skipIndustries))
	for n := range skipIndustries {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Hints are caller-supplied candidate targets. They are passed to the
// model for one call and not kept.
type Hints struct {
	// Sites are company sites keyed by ticker.
	Sites map[string][]Target `yaml:"sites" json:"sites,omitempty"`
	// Proxies are industry proxies (ports, belts, clusters) keyed by industry.
	Proxies map[string][]Target `yaml:"proxies" json:"proxies,omitempty"`
}

const plannerSystem = `You are an Observation Planner for a finance research agent.

You must decide IF satellite observation is useful for a given ticker and industry,
and if yes, propose up to TWO high-value observation targets with feasible FREE signals.

Rules:
- If the industry is clearly software/internet/SaaS/fintech/media (pure software), set "use_satellite": false.
- Otherwise, prefer targets that can be observed with FREE public missions at >=10 m resolution:
  S2 (Sentinel-2 optical, 10 m): features allowed => %s
  S1 (Sentinel-1 SAR, 10 m): features allowed => %s
  VIIRS (night lights): features allowed => %s
  MODIS (fire/smoke): features allowed => %s

Hard constraints:
- DO NOT request sub-10m details (e.g., cars, containers, small vehicles).
- DO NOT invent proprietary/commercial datasets.
- Use at most TWO targets; choose the most informative ones.
- If runtime hints are provided (site_hints or proxy_hints), prefer them; otherwise, you may return use_satellite=false.

Output STRICT JSON matching this schema:
{
  "ticker": str,
  "industry": str | null,
  "use_satellite": bool,
  "targets": [
    {
      "name": str,
      "lat": float | null,
      "lon": float | null,
      "radius_km": float | null,
      "polygon_geojson": object | null,
      "sensors": [{"type": "S2" | "S1" | "VIIRS" | "MODIS", "features": [str, ...]}],
      "reason": str
    }
  ],
  "fallbacks": [Target, ...],
  "notes": str
}
Return JSON only, no commentary.`

const plannerUser = `Ticker: %s
Industry: %s

Runtime site_hints (user-provided, optional; do NOT persist; may be empty):
%s

Runtime proxy_hints (user-provided, optional; do NOT persist; may be empty):
%s

Reminder:
- If industry is in {%s}, set use_satellite=false and explain why in 'notes'.
- Else, propose up to TWO targets from the hints above (or set use_satellite=false if nothing feasible/safe).
- Use the allowed features only (see system message).
- Output STRICT JSON ONLY (no markdown, no extra text).`

func plannerSystemPrompt() string {
	quote := func(s SensorType) string {
		fs := make([]string, len(allowedFeatures[s]))
		for i, f := range allowedFeatures[s] {
			fs[i] = fmt.Sprintf("%q", f)
		}
		return strings.Join(fs, ", ")
	}
	return fmt.Sprintf(plannerSystem, quote(SensorS2), quote(SensorS1), quote(SensorVIIRS), quote(SensorMODIS))
}

func hintsJSON(targets []Target) string {
	if targets == nil {
		targets = []Target{}
	}
	b, err := json.MarshalIndent(targets, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Plan asks the model for an ObservationPlan.
//
// Description:
//
//	Transport, decode and validation failures never escape: they yield a
//	safe plan with UseSatellite=false and a note naming the cause. The skip
//	list is enforced after the model answers, and plans with more than
//	MaxTargets targets are trimmed.
//
// Inputs:
//
//	client - The model backend.
//	ticker - Instrument identifier, e.g. "TSLA" or "CC=F".
//	industry - Industry label. Empty when unknown.
//	sites - Company site hints for ticker.
//	proxies - Industry proxy hints for industry.
func Plan(ctx context.Context, client llm.LLMClient, ticker, industry string, sites, proxies []Target) ObservationPlan {
	safe := func(note string) ObservationPlan {
		return ObservationPlan{Ticker: ticker, Industry: industry, Notes: note}
	}

	industryLabel := industry
	if industryLabel == "" {
		industryLabel = "unknown"
	}
	user := fmt.Sprintf(plannerUser, ticker, industryLabel, hintsJSON(sites), hintsJSON(proxies), skipList())

	temp := float32(0)
	raw, err := client.Generate(ctx, user, llm.GenerationParams{System: plannerSystemPrompt(), Temperature: &temp})
	if err != nil {
		return safe(fmt.Sprintf("Planner call failed: %v", err))
	}

	plan, err := llm.DecodeJSON[ObservationPlan](raw)
	if err != nil {
		return safe(fmt.Sprintf("Planner JSON parse error: %v", err))
	}
	if err := validate.Struct(plan); err != nil {
		return safe(fmt.Sprintf("Planner JSON parse error: %v", err))
	}
	if plan.Ticker == "" {
		plan.Ticker = ticker
	}
	if plan.Industry == "" {
		plan.Industry = industry
	}

	if industry != "" && SkipsSatellite(industry) {
		plan.UseSatellite = false
		plan.Targets = nil
		plan.Fallbacks = nil
		plan.Notes = strings.TrimSpace(plan.Notes + " Skipped due to industry.")
	}

	if len(plan.Targets) > MaxTargets {
		plan.Targets = plan.Targets[:MaxTargets]
		plan.Notes = strings.TrimSpace(plan.Notes + " Trimmed targets to 2.")
	}

	return plan
}

// FeatureAllowed reports whether feature may be requested from sensor.
func FeatureAllowed(sensor SensorType, feature string) bool {
	return slices.Contains(allowedFeatures[sensor], feature)
}
