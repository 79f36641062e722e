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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/hedgemind/cmd/hedgemind/config"
	"github.com/AleutianAI/hedgemind/services/server"
	"github.com/AleutianAI/hedgemind/services/telemetry"
)

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telCfg := cfg.Telemetry
	if telCfg.MetricExporter == "" || telCfg.MetricExporter == telemetry.ExporterNone {
		telCfg.MetricExporter = telemetry.ExporterPrometheus
	}
	tel, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer shutdownTelemetry(tel)

	log := logger.Slog()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	watcher, err := config.NewWatcher(configPath, a.apply, log)
	if err != nil {
		log.Warn("config reload disabled", slog.String("error", err.Error()))
	} else {
		go watcher.Run(ctx)
	}

	srvCfg := cfg.Server
	if serveAddr != "" {
		srvCfg.Addr = serveAddr
	}
	srv := server.New(srvCfg, server.PipelineSource(a.pipelineConfig),
		server.WithLogger(log),
		server.WithMetrics(tel.MetricsHandler()),
	)
	return srv.ListenAndServe(ctx)
}
