// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestLevel_SlogRoundTrip(t *testing.T) {
	for _, l := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		if got := fromSlogLevel(l.toSlogLevel()); got != l {
			t.Errorf("fromSlogLevel(%v.toSlogLevel()) = %v", l, got)
		}
	}
	if got := Level(99).toSlogLevel(); got != slog.LevelInfo {
		t.Errorf("unknown level maps to %v, want Info", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{" INFO ", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_ConsoleText(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Service: "cli", Output: &buf})
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("pipeline started", "identifier", "AAPL")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at Info level: %q", out)
	}
	for _, want := range []string{"pipeline started", "identifier=AAPL", "service=cli"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestNew_ConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{JSON: true, Output: &buf, Level: LevelDebug})
	logger.Slog().Debug("task completed", slog.String("task", "news"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "task completed" || rec["task"] != "news" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNew_QuietWritesNothingToConsole(t *testing.T) {
	var buf bytes.Buffer
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Output: &buf, Exporter: exp})
	logger.Info("only exported")

	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote %q", buf.String())
	}
	if got := exp.Messages(); len(got) != 1 || got[0] != "only exported" {
		t.Errorf("exported messages = %v", got)
	}
}

func TestNew_LogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	logger := New(Config{LogDir: dir, Service: "serve", Quiet: true})
	logger.Warn("rate limited", "provider", "reddit")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	path := filepath.Join(dir, LogFileName("serve", time.Now()))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("file record is not JSON: %v", err)
	}
	if rec["level"] != "WARN" || rec["provider"] != "reddit" || rec["service"] != "serve" {
		t.Errorf("unexpected file record %v", rec)
	}
}

func TestNew_LogDirUnusable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	logger := New(Config{LogDir: filepath.Join(blocker, "logs"), Output: &buf})
	logger.Info("still logging")

	if logger.file != nil {
		t.Error("file should be nil when the directory cannot be created")
	}
	if !strings.Contains(buf.String(), "still logging") {
		t.Error("console output lost")
	}
}

func TestLogFileName(t *testing.T) {
	day := time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC)
	if got := LogFileName("", day); got != "hedgemind_2025-03-14.log" {
		t.Errorf("LogFileName = %q", got)
	}
}

func TestExporter_ReceivesSlogRecords(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Service: "cli", Exporter: exp, Level: LevelInfo})

	run := logger.ForRun("run-1", "AAPL")
	run.Slog().Debug("filtered")
	run.Slog().WithGroup("task").Info("done", slog.String("name", "news"), slog.Int("ms", 12))
	logger.Error("boom")

	entries := exp.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %v", len(entries), exp.Messages())
	}
	e := entries[0]
	if e.Service != "cli" || e.Level != LevelInfo {
		t.Errorf("entry = %+v", e)
	}
	want := map[string]any{"run_id": "run-1", "identifier": "AAPL", "task.name": "news", "task.ms": int64(12)}
	for k, v := range want {
		if e.Attrs[k] != v {
			t.Errorf("Attrs[%q] = %v, want %v", k, e.Attrs[k], v)
		}
	}
	if _, ok := e.Attrs["service"]; ok {
		t.Error("service belongs in LogEntry.Service, not Attrs")
	}
	if entries[1].Level != LevelError {
		t.Errorf("second entry level = %v", entries[1].Level)
	}
}

func TestAddAttr_NestedGroups(t *testing.T) {
	m := map[string]any{}
	addAttr(m, "", slog.Group("http", slog.Int("status", 429), slog.Group("req", slog.String("path", "/v1"))))
	addAttr(m, "", slog.Attr{})
	if m["http.status"] != int64(429) || m["http.req.path"] != "/v1" || len(m) != 2 {
		t.Errorf("flattened = %v", m)
	}
}

type failingExporter struct {
	NopExporter
	flushErr, closeErr error
}

func (f failingExporter) Flush(context.Context) error { return f.flushErr }
func (f failingExporter) Close() error                { return f.closeErr }

func TestClose(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exp})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if exp.Flushes() != 1 {
		t.Errorf("Flush called %d times, want 1", exp.Flushes())
	}

	flushErr := errors.New("flush failed")
	logger = New(Config{Quiet: true, Exporter: failingExporter{flushErr: flushErr, closeErr: errors.New("close")}})
	if err := logger.Close(); !errors.Is(err, flushErr) {
		t.Errorf("Close() error = %v, want the flush error first", err)
	}
}

func TestMultiHandler(t *testing.T) {
	var info, warn bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(Debug) should be false")
	}

	l := slog.New(h).With("k", "v").WithGroup("g")
	l.Info("one", "a", 1)
	l.Warn("two")

	if !strings.Contains(info.String(), "one") || !strings.Contains(info.String(), "g.a=1") {
		t.Errorf("info handler got %q", info.String())
	}
	if strings.Contains(warn.String(), "one") || !strings.Contains(warn.String(), "two") {
		t.Errorf("warn handler got %q", warn.String())
	}
	if !strings.Contains(warn.String(), "k=v") {
		t.Errorf("WithAttrs not propagated: %q", warn.String())
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/.hedgemind/logs"); got != filepath.Join(home, ".hedgemind/logs") {
		t.Errorf("expandPath = %q", got)
	}
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("absolute path changed to %q", got)
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exp})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			child := logger.With("worker", n)
			for j := 0; j < 10; j++ {
				child.Info("tick")
			}
		}(i)
	}
	wg.Wait()

	if got := len(exp.Entries()); got != 200 {
		t.Errorf("got %d entries, want 200", got)
	}
}

func TestWriterExporter(t *testing.T) {
	var buf bytes.Buffer
	exp := NewWriterExporter(&buf)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := exp.Export(context.Background(), LogEntry{Timestamp: ts, Level: LevelWarn, Message: "slow", Attrs: map[string]any{"ms": 900}}); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "[2025-01-02T03:04:05Z] WARN: slow map[ms:900]\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
