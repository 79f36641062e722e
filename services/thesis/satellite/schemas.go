// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package satellite decides whether Earth observation helps a thesis and
// turns observations into a short report block.
//
// The flow is Plan (model proposes targets), Observe (an Observer computes
// features) and Summarize (model explains the features). Coordinates in
// hints and plans are ephemeral and never persisted.
package satellite

import (
	"github.com/go-playground/validator/v10"
)

// SensorType names a free public Earth observation source.
type SensorType string

const (
	// SensorS2 is Sentinel-2 optical imagery at 10 m.
	SensorS2 SensorType = "S2"
	// SensorS1 is Sentinel-1 SAR at 10 m, cloud independent.
	SensorS1 SensorType = "S1"
	// SensorVIIRS is night lights and active fire.
	SensorVIIRS SensorType = "VIIRS"
	// SensorMODIS is coarse multispectral, fire and smoke.
	SensorMODIS SensorType = "MODIS"
)

// Feature names the planner may request, per sensor.
var allowedFeatures = map[SensorType][]string{
	SensorS2:    {"NDVI_mean_30d_vs_prev30d", "NDWI_ship_count_wow", "built_area_edge_delta_6m"},
	SensorS1:    {"SAR_VV_delta_30d"},
	SensorVIIRS: {"night_lights_pct_delta_30d"},
	SensorMODIS: {"smoke_days_14d"},
}

// SensorSpec is one sensor and the derived features to compute from it.
type SensorSpec struct {
	Type     SensorType `json:"type" validate:"required,oneof=S2 S1 VIIRS MODIS"`
	Features []string   `json:"features" validate:"required,min=1"`
}

// Target is one site, port or region to observe.
//
// Provide either Lat/Lon (with RadiusKM) or PolygonGeoJSON. A target with
// neither is a naming hint only and observers skip it with a gap.
type Target struct {
	Name           string         `json:"name" validate:"required"`
	Lat            *float64       `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lon            *float64       `json:"lon,omitempty" validate:"omitempty,longitude"`
	RadiusKM       *float64       `json:"radius_km,omitempty" validate:"omitempty,gt=0"`
	PolygonGeoJSON map[string]any `json:"polygon_geojson,omitempty"`
	Sensors        []SensorSpec   `json:"sensors" validate:"dive"`
	Reason         string         `json:"reason"`
}

// HasGeometry reports whether the target can be located.
func (t Target) HasGeometry() bool {
	return len(t.PolygonGeoJSON) > 0 || (t.Lat != nil && t.Lon != nil)
}

// Radius returns RadiusKM or the 5 km default.
func (t Target) Radius() float64 {
	if t.RadiusKM == nil || *t.RadiusKM <= 0 {
		return 5
	}
	return *t.RadiusKM
}

// ObservationPlan is the planner's decision for one ticker.
type ObservationPlan struct {
	Ticker       string   `json:"ticker"`
	Industry     string   `json:"industry,omitempty"`
	UseSatellite bool     `json:"use_satellite"`
	Targets      []Target `json:"targets" validate:"dive"`
	Fallbacks    []Target `json:"fallbacks" validate:"dive"`
	Notes        string   `json:"notes"`
}

// Observation is one computed metric for a target and sensor.
type Observation struct {
	Target string     `json:"target"`
	Sensor SensorType `json:"sensor"`
	Metric string     `json:"metric"`
	// Value is nil when the metric could not be computed.
	Value      *float64       `json:"value"`
	Quality    float64        `json:"quality" validate:"gte=0,lte=1"`
	AsOf       string         `json:"as_of"`
	Provenance map[string]any `json:"provenance,omitempty"`
	Note       string         `json:"note,omitempty"`
}

// ObservationResult is everything an Observer measured for a plan.
type ObservationResult struct {
	Ticker       string        `json:"ticker"`
	Observations []Observation `json:"observations" validate:"dive"`
	Gaps         []string      `json:"gaps"`
	SummaryNotes string        `json:"summary_notes,omitempty"`
}

// Summary is the report-ready satellite take-away.
type Summary struct {
	Ticker      string         `json:"ticker"`
	Headline    string         `json:"headline" validate:"required"`
	Bullets     []string       `json:"bullets"`
	Confidence  float64        `json:"confidence" validate:"gte=0,lte=1"`
	Attribution []string       `json:"attribution"`
	RawCounts   map[string]int `json:"raw_counts,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())
