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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/hedgemind/cmd/hedgemind/gcs"
	"github.com/AleutianAI/hedgemind/pkg/ux"
	"github.com/AleutianAI/hedgemind/pkg/validation"
	"github.com/AleutianAI/hedgemind/services/telemetry"
	"github.com/AleutianAI/hedgemind/services/thesis"
	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

func runAnalyze(cmd *cobra.Command, args []string) error {
	raw := ""
	if len(args) == 1 {
		raw = args[0]
	}
	if raw == "" {
		if !ux.IsInteractive() {
			return errors.New("a ticker is required when stdin is not a terminal")
		}
		var err error
		if raw, err = promptTicker(); err != nil {
			return err
		}
	}
	ticker, err := validation.SanitizeTicker(raw)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	tel, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer shutdownTelemetry(tel)

	if len(disabledFlags) > 0 {
		cfg.Pipeline.Disabled = append(cfg.Pipeline.Disabled, disabledFlags...)
	}
	if taskTimeout > 0 {
		cfg.Pipeline.TaskTimeout = taskTimeout
	}
	if concurrency > 0 {
		cfg.Pipeline.Concurrency = concurrency
	}

	log := logger.Slog()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	pcfg := a.pipelineConfig()
	pcfg.Logger = log
	report, runErr := runWithProgress(ctx, stop, ticker, pcfg)
	if report == nil {
		return runErr
	}

	if err := printReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if outPath != "" {
		if err := writeReportFile(outPath, report); err != nil {
			return err
		}
		ux.Success("report written to " + outPath)
	}
	if upload {
		uri, err := uploadReport(ctx, report)
		if err != nil {
			return err
		}
		ux.Success("report uploaded to " + uri)
	}

	if errors.Is(runErr, thesis.ErrPipelineCancelled) {
		ux.Warning("run cancelled; the report is partial")
	}
	return runErr
}

func promptTicker() (string, error) {
	var ticker string
	input := huh.NewInput().
		Title("Ticker to research").
		Placeholder("AAPL").
		Validate(func(s string) error {
			_, err := validation.SanitizeTicker(s)
			return err
		}).
		Value(&ticker)
	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return ticker, nil
}

// runWithProgress runs the pipeline while a spinner view or plain lines
// follow its events. cancel is wired to ctrl+c inside the spinner view.
func runWithProgress(ctx context.Context, cancel func(), ticker string, pcfg thesis.Config) (*dag.Report, error) {
	if jsonOutput {
		return thesis.RunPipeline(ctx, ticker, pcfg)
	}

	_, plan, err := thesis.Build(pcfg.Registry)
	if err != nil {
		return nil, err
	}

	events := make(chan dag.Event, 16)
	pcfg.Observer = dag.ChannelObserver{Events: events}

	type outcome struct {
		report *dag.Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := thesis.RunPipeline(ctx, ticker, pcfg)
		close(events)
		done <- outcome{report, err}
	}()

	if ux.IsInteractive() {
		model := ux.NewProgressModel("Researching "+ticker, plan, events)
		model.OnInterrupt = cancel
		if _, err := tea.NewProgram(model, tea.WithOutput(os.Stderr)).Run(); err != nil {
			logger.Warn("progress view failed", slog.String("error", err.Error()))
			for range events {
			}
		}
	} else {
		ux.PlainProgress(os.Stderr, events)
	}

	res := <-done
	return res.report, res.err
}

func printReport(w io.Writer, report *dag.Report) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return ux.RenderReport(w, report, true)
}

func reportBytes(report *dag.Report) ([]byte, string, error) {
	if jsonOutput {
		b, err := json.MarshalIndent(report, "", "  ")
		return b, "json", err
	}
	return []byte(report.Text()), "txt", nil
}

func writeReportFile(path string, report *dag.Report) error {
	b, _, err := reportBytes(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func uploadReport(ctx context.Context, report *dag.Report) (string, error) {
	g := cfg.Export.GCS
	client, err := gcs.NewClient(ctx, g.ProjectID, g.Bucket, g.Prefix, g.CredentialsFile)
	if err != nil {
		return "", err
	}
	defer client.Close()

	b, ext, err := reportBytes(report)
	if err != nil {
		return "", err
	}
	contentType := "text/plain; charset=utf-8"
	if ext == "json" {
		contentType = "application/json"
	}
	// Upload even when the run was cancelled and ctx is done.
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	object := gcs.ObjectName(g.Prefix, report.Identifier, report.RunID, ext, time.Now())
	return client.Upload(uctx, object, contentType, bytes.NewReader(b))
}

func shutdownTelemetry(p *telemetry.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown", slog.String("error", strings.TrimSpace(err.Error())))
	}
}
