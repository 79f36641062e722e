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
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/AleutianAI/hedgemind/cmd/hedgemind/config"
	"github.com/AleutianAI/hedgemind/services/llm"
	"github.com/AleutianAI/hedgemind/services/thesis/agents"
	"github.com/AleutianAI/hedgemind/services/thesis/satellite"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hedgemind.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		disabledFlags = nil
		dotOutput = false
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute(%v) error = %v", args, err)
	}
	return out.String()
}

func TestPipelineFor_DefaultsAndOverrides(t *testing.T) {
	p := config.DefaultConfig().Pipeline
	p.TaskTimeout = 0
	p.Concurrency = 3
	p.Disabled = []string{agents.Satellite}

	cfg := pipelineFor(agents.Deps{}, p)
	if cfg.ConcurrencyCap != 3 {
		t.Errorf("ConcurrencyCap = %d, want 3", cfg.ConcurrencyCap)
	}
	for _, s := range cfg.SectionOrder {
		if s.Name == agents.Satellite {
			t.Error("disabled agent still has a section")
		}
	}
	for _, task := range cfg.Registry {
		if task.Name() == agents.Satellite {
			t.Error("disabled agent still in the registry")
		}
	}
}

func TestNewApp_SentinelHubObserver(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Backend = llm.BackendOllama
	cfg.LLM.BaseURL = "http://localhost:11434"
	cfg.Market.Cache = false
	logger := slog.New(slog.DiscardHandler)

	a, err := newApp(context.Background(), &cfg, logger)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	if a.observer != nil {
		t.Errorf("observer = %T without credentials, want nil", a.observer)
	}
	a.Close()

	config.ApplyEnv(&cfg, func(k string) (string, bool) {
		switch k {
		case "SENTINELHUB_CLIENT_ID":
			return "id", true
		case "SENTINELHUB_CLIENT_SECRET":
			return "secret", true
		}
		return "", false
	})
	a, err = newApp(context.Background(), &cfg, logger)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()
	if _, ok := a.observer.(*satellite.SentinelHubObserver); !ok {
		t.Fatalf("observer = %T, want *satellite.SentinelHubObserver", a.observer)
	}
	if got := len(a.pipelineConfig().Registry); got == 0 {
		t.Error("pipeline has no tasks")
	}
}

func TestSectionsFor_CustomOrderSkipsDisabled(t *testing.T) {
	p := config.PipelineConfig{
		SectionOrder: []string{agents.Strategist, agents.News, agents.Satellite},
		Disabled:     []string{agents.Satellite},
	}
	got := sectionsFor(p)
	if len(got) != 2 {
		t.Fatalf("sectionsFor() = %v, want 2 sections", got)
	}
	if got[0].Name != agents.Strategist || got[0].Title != "Investment Strategy" {
		t.Errorf("first section = %+v", got[0])
	}
	if got[1].Name != agents.News {
		t.Errorf("second section = %+v", got[1])
	}
}

func TestGraphCommand(t *testing.T) {
	path := writeConfig(t, "logging:\n  dir: \"\"\n")
	out := execute(t, "graph", "--config", path, "--personality", "machine", "--log-level", "error")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("graph output = %q, want three layers and a sections line", out)
	}
	if !strings.HasPrefix(lines[1], "layer 1: research") {
		t.Errorf("layer 1 = %q", lines[1])
	}
	if lines[2] != "layer 2: strategist" {
		t.Errorf("layer 2 = %q", lines[2])
	}
	for _, name := range agents.Analysts {
		if !strings.Contains(lines[0], name) {
			t.Errorf("layer 0 lacks %s: %q", name, lines[0])
		}
	}
}

func TestGraphCommand_DOT(t *testing.T) {
	path := writeConfig(t, "logging:\n  dir: \"\"\n")
	out := execute(t, "graph", "--dot", "--disable", "sentiment", "--config", path, "--personality", "machine")

	if !strings.HasPrefix(out, "digraph") {
		t.Fatalf("output is not DOT: %q", out)
	}
	if strings.Contains(out, `"sentiment"`) {
		t.Error("disabled agent rendered")
	}
	if !strings.Contains(out, `"research" -> "strategist"`) {
		t.Errorf("missing research edge in %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out := execute(t, "version")
	if out != "hedgemind dev\n" {
		t.Errorf("version output = %q", out)
	}
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"analyze", "graph", "serve", "version"} {
		if !slices.Contains(names, want) {
			t.Errorf("command %q not registered", want)
		}
	}
}
