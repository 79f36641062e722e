// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/AleutianAI/hedgemind/cmd/hedgemind/config"
	"github.com/AleutianAI/hedgemind/services/llm"
	"github.com/AleutianAI/hedgemind/services/market"
	"github.com/AleutianAI/hedgemind/services/thesis"
	"github.com/AleutianAI/hedgemind/services/thesis/agents"
	"github.com/AleutianAI/hedgemind/services/thesis/dag"
	"github.com/AleutianAI/hedgemind/services/thesis/satellite"
)

// settings are the parts of the configuration a reload may change.
type settings struct {
	pipeline config.PipelineConfig
	hints    satellite.Hints
}

// app holds the clients shared by every run.
type app struct {
	logger   *slog.Logger
	llm      llm.LLMClient
	market   *market.Client
	cache    *market.Cache
	influx   *market.InfluxPrices
	// observer is nil without Sentinel Hub credentials; agents then use
	// satellite.NoopObserver.
	observer satellite.Observer
	current  atomic.Pointer[settings]
}

func newApp(ctx context.Context, cfg *config.HedgemindConfig, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}
	a.apply(cfg)

	client, err := llm.NewFromConfig(ctx, cfg.LLM.Config, logger)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	a.llm = client

	opts := []market.Option{market.WithLogger(logger)}
	if cfg.Market.Cache {
		cache, err := market.OpenCache(logger)
		if err != nil {
			return nil, fmt.Errorf("market cache: %w", err)
		}
		a.cache = cache
		opts = append(opts, market.WithCache(cache))
	}
	if cfg.Market.Influx.Enabled() {
		influx, err := market.NewInfluxPrices(ctx, cfg.Market.Influx, logger)
		if err != nil {
			// Yahoo still serves prices.
			logger.Warn("influxdb unavailable", slog.String("error", err.Error()))
		} else {
			a.influx = influx
			opts = append(opts, market.WithInflux(influx))
		}
	}
	a.market = market.New(cfg.Market.Config, opts...)

	if sh := cfg.Satellite.SentinelHub; sh.Enabled() {
		observer, err := satellite.NewSentinelHubObserver(sh, satellite.WithSentinelHubLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("sentinel hub: %w", err)
		}
		a.observer = observer
	} else {
		logger.Debug("sentinel hub credentials not set, satellite observations disabled")
	}
	return a, nil
}

// apply swaps in the reloadable settings of cfg.
func (a *app) apply(cfg *config.HedgemindConfig) {
	a.current.Store(&settings{pipeline: cfg.Pipeline, hints: cfg.Satellite.Hints})
}

// pipelineConfig builds a fresh thesis.Config from the current settings.
func (a *app) pipelineConfig() thesis.Config {
	s := a.current.Load()
	deps := agents.Deps{
		Market:   a.market,
		LLM:      a.llm,
		Logger:   a.logger,
		Observer: a.observer,
		Hints:    s.hints,
	}
	return pipelineFor(deps, s.pipeline)
}

func (a *app) Close() {
	if a.influx != nil {
		a.influx.Close()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("closing market cache", slog.String("error", err.Error()))
		}
	}
}

// pipelineFor applies p to the default registry.
func pipelineFor(deps agents.Deps, p config.PipelineConfig) thesis.Config {
	cfg := thesis.DefaultConfig(deps, p.Agents, p.Disabled...)
	if len(p.SectionOrder) > 0 {
		cfg.SectionOrder = sectionsFor(p)
	}
	cfg.PerTaskTimeout = p.TaskTimeout
	cfg.ConcurrencyCap = p.Concurrency
	return cfg
}

func sectionsFor(p config.PipelineConfig) []dag.SectionSpec {
	names := make([]string, 0, len(p.SectionOrder))
	for _, n := range p.SectionOrder {
		if !slices.Contains(p.Disabled, n) {
			names = append(names, n)
		}
	}
	return thesis.OrderSections(names)
}
