// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	t.Setenv("HEDGEMIND_ENV", "staging")

	cfg := DefaultConfig()
	if cfg.ServiceName != "hedgemind" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.TraceExporter != ExporterNone || cfg.MetricExporter != ExporterNone {
		t.Errorf("exporters = %q/%q, want none/none", cfg.TraceExporter, cfg.MetricExporter)
	}
	if cfg.Environment != "staging" {
		t.Errorf("Environment = %q", cfg.Environment)
	}
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	if _, err := Init(nil, DefaultConfig()); !errors.Is(err, ErrNilContext) {
		t.Errorf("Init(nil) error = %v", err)
	}
}

func TestInit_None(t *testing.T) {
	p, err := Init(context.Background(), Config{TraceExporter: ExporterNone, MetricExporter: ExporterNone})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if p.MetricsHandler() != nil {
		t.Error("MetricsHandler should be nil without prometheus")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "zipkin"})
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("trace error = %v", err)
	}
	_, err = Init(context.Background(), Config{MetricExporter: "statsd"})
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("metric error = %v", err)
	}
}

func TestInit_StdoutTrace(t *testing.T) {
	var buf bytes.Buffer
	p, err := Init(context.Background(), Config{TraceExporter: ExporterStdout, Writer: &buf})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx, span := otel.Tracer("test").Start(context.Background(), "thesis.Pipeline")
	if TraceID(ctx) == "" {
		t.Error("TraceID empty inside a recording span")
	}
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !strings.Contains(buf.String(), "thesis.Pipeline") {
		t.Errorf("span not exported: %q", buf.String())
	}
}

func TestInit_PrometheusTwice(t *testing.T) {
	for i := 0; i < 2; i++ {
		p, err := Init(context.Background(), Config{MetricExporter: ExporterPrometheus})
		if err != nil {
			t.Fatalf("Init() #%d error = %v", i, err)
		}

		counter, err := otel.Meter("test").Int64Counter("hedgemind_test_runs_total")
		if err != nil {
			t.Fatal(err)
		}
		counter.Add(context.Background(), 3)

		rec := httptest.NewRecorder()
		p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), "hedgemind_test_runs_total") {
			t.Errorf("metric missing from /metrics output")
		}
		_ = p.Shutdown(context.Background())
	}
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	if got := LoggerWithTrace(context.Background(), base); got != base {
		t.Error("logger without span should be returned unchanged")
	}

	p, err := Init(context.Background(), Config{TraceExporter: ExporterStdout, Writer: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Shutdown(context.Background())

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	LoggerWithTrace(ctx, base).Info("hello")
	if !strings.Contains(buf.String(), "trace_id="+TraceID(ctx)) {
		t.Errorf("trace_id missing: %q", buf.String())
	}
}
