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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/hedgemind/cmd/hedgemind/config"
	"github.com/AleutianAI/hedgemind/pkg/logging"
	"github.com/AleutianAI/hedgemind/pkg/ux"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath       string
	logLevel         string
	personalityLevel string

	// Populated by the root PersistentPreRunE.
	cfg    *config.HedgemindConfig
	logger *logging.Logger

	// analyze flags
	outPath       string
	upload        bool
	runTimeout    time.Duration
	taskTimeout   time.Duration
	concurrency   int
	jsonOutput    bool
	disabledFlags []string

	// graph flags
	dotOutput bool

	// serve flags
	serveAddr string
)

var (
	rootCmd = &cobra.Command{
		Use:   "hedgemind",
		Short: "Multi-agent equity research from the command line",
		Long: `hedgemind runs a set of research agents against one ticker and
assembles their findings, plus a strategist's synthesis, into a report.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	analyzeCmd = &cobra.Command{
		Use:     "analyze [TICKER]",
		Short:   "Run the research pipeline for a ticker",
		Aliases: []string{"a"},
		Args:    cobra.MaximumNArgs(1),
		RunE:    runAnalyze, // cmd_analyze.go
	}

	graphCmd = &cobra.Command{
		Use:   "graph",
		Short: "Print the execution plan",
		Args:  cobra.NoArgs,
		RunE:  runGraph, // cmd_graph.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE:  runServe, // cmd_serve.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hedgemind %s\n", version)
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ~/.hedgemind/hedgemind.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&personalityLevel, "personality", "", "output style: full, minimal, machine")

	af := analyzeCmd.Flags()
	af.StringVarP(&outPath, "out", "o", "", "write the plain text report to FILE")
	af.BoolVar(&upload, "upload", false, "upload the report to the configured GCS bucket")
	af.DurationVar(&runTimeout, "timeout", 0, "deadline for the whole run (0 for none)")
	af.DurationVar(&taskTimeout, "task-timeout", 0, "cap on every agent's budget")
	af.IntVar(&concurrency, "concurrency", 0, "agents running at once (0 for no bound)")
	af.BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	af.StringSliceVar(&disabledFlags, "disable", nil, "agents to leave out, e.g. --disable satellite,sentiment")

	graphCmd.Flags().BoolVar(&dotOutput, "dot", false, "print Graphviz DOT")
	graphCmd.Flags().StringSliceVar(&disabledFlags, "disable", nil, "agents to leave out")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")

	rootCmd.AddCommand(analyzeCmd, graphCmd, serveCmd, versionCmd)
}

// setup loads the configuration and the logger for every command.
func setup(cmd *cobra.Command, _ []string) error {
	if personalityLevel != "" {
		ux.SetLevel(ux.ParseLevel(personalityLevel))
	} else {
		ux.InitPersonality()
	}

	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = loaded
	configPath = path

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "hedgemind",
		JSON:    cfg.Logging.JSON,
		// The progress view owns the terminal during analyze.
		Quiet: cmd == analyzeCmd && ux.IsInteractive(),
	})
	return nil
}
