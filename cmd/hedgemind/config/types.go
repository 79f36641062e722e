// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"time"

	"github.com/AleutianAI/hedgemind/services/llm"
	"github.com/AleutianAI/hedgemind/services/market"
	"github.com/AleutianAI/hedgemind/services/server"
	"github.com/AleutianAI/hedgemind/services/telemetry"
	"github.com/AleutianAI/hedgemind/services/thesis/agents"
	"github.com/AleutianAI/hedgemind/services/thesis/satellite"
)

// HedgemindConfig is the content of hedgemind.yaml.
type HedgemindConfig struct {
	LLM LLMConfig `yaml:"llm"`

	Market MarketConfig `yaml:"market"`

	// Pipeline settings are reloaded by serve when the file changes.
	Pipeline PipelineConfig `yaml:"pipeline"`

	Satellite SatelliteConfig `yaml:"satellite"`

	Telemetry telemetry.Config `yaml:"telemetry"`

	Server server.Config `yaml:"server"`

	Export ExportConfig `yaml:"export"`

	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig wraps llm.Config. Keys only come from the environment.
type LLMConfig struct {
	llm.Config `yaml:",inline"`
}

// MarketConfig holds provider endpoints and the optional InfluxDB source.
type MarketConfig struct {
	market.Config `yaml:",inline"`

	// Cache enables the in-memory response cache.
	Cache bool `yaml:"cache"`

	Influx market.InfluxConfig `yaml:"influx"`
}

// PipelineConfig shapes the research run.
type PipelineConfig struct {
	// SectionOrder lists report sections by task name. Empty means the
	// default order.
	SectionOrder []string `yaml:"section_order"`

	// Disabled agents are left out of the registry and the report.
	Disabled []string `yaml:"disabled"`

	// TaskTimeout caps every agent's budget when positive.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// Concurrency bounds agents running at once. Zero means no bound.
	Concurrency int `yaml:"concurrency" validate:"gte=0"`

	Agents agents.Options `yaml:"agents"`
}

// SatelliteConfig holds planner hints and the imagery source.
type SatelliteConfig struct {
	// Site and proxy hints for the satellite planner.
	satellite.Hints `yaml:",inline"`

	// SentinelHub measures NDVI when both client credentials are set.
	SentinelHub satellite.SentinelHubConfig `yaml:"sentinelhub"`
}

// ExportConfig controls where finished reports go.
type ExportConfig struct {
	GCS GCSConfig `yaml:"gcs"`
}

// GCSConfig locates the upload bucket.
type GCSConfig struct {
	ProjectID string `yaml:"project_id"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string `yaml:"credentials_file"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() HedgemindConfig {
	tel := telemetry.DefaultConfig()
	tel.ServiceName = "hedgemind"
	return HedgemindConfig{
		LLM:    LLMConfig{Config: llm.DefaultConfig()},
		Market: MarketConfig{Config: market.DefaultConfig(), Cache: true, Influx: market.InfluxConfig{Measurement: "stock_prices"}},
		Pipeline: PipelineConfig{
			TaskTimeout: 0,
			Concurrency: 0,
			Agents:      agents.DefaultOptions(),
		},
		Satellite: SatelliteConfig{SentinelHub: satellite.DefaultSentinelHubConfig()},
		Telemetry: tel,
		Server:    server.DefaultConfig(),
		Export:    ExportConfig{GCS: GCSConfig{Prefix: "reports"}},
		Logging:   LoggingConfig{Level: "info", Dir: "~/.hedgemind/logs"},
	}
}
