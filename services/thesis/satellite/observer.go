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
	"fmt"
	"math"
)

// NoUsableScenes is the gap recorded when nothing could be measured.
const NoUsableScenes = "No usable scenes or features computed"

// Observer executes a plan into measurements.
type Observer interface {
	Observe(ctx context.Context, plan ObservationPlan) (ObservationResult, error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, plan ObservationPlan) (ObservationResult, error)

func (f ObserverFunc) Observe(ctx context.Context, plan ObservationPlan) (ObservationResult, error) {
	return f(ctx, plan)
}

// NoopObserver fetches no imagery. It walks the plan, records why each
// target produced nothing, and ends with the NoUsableScenes gap.
type NoopObserver struct{}

func (NoopObserver) Observe(ctx context.Context, plan ObservationPlan) (ObservationResult, error) {
	result := ObservationResult{Ticker: plan.Ticker}
	if !plan.UseSatellite || len(plan.Targets) == 0 {
		result.SummaryNotes = plan.Notes
		if result.SummaryNotes == "" {
			result.SummaryNotes = "Satellite not applicable"
		}
		return result, nil
	}

	for _, t := range plan.Targets {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !t.HasGeometry() {
			result.Gaps = append(result.Gaps, fmt.Sprintf("%s: no geometry supplied", t.Name))
			continue
		}
		for _, s := range t.Sensors {
			for _, f := range s.Features {
				if !FeatureAllowed(s.Type, f) {
					result.Gaps = append(result.Gaps, fmt.Sprintf("%s: %s is not a %s feature", t.Name, f, s.Type))
				}
			}
		}
	}

	if len(result.Observations) == 0 {
		result.Gaps = append(result.Gaps, NoUsableScenes)
	}
	return result, nil
}

// PctChange returns 100*(curr-prev)/|prev|, or 0 when prev is 0.
func PctChange(curr, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return 100 * (curr - prev) / math.Abs(prev)
}
