// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/hedgemind/services/thesis"
	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func pipelineSource(block <-chan struct{}) PipelineSource {
	return func() thesis.Config {
		a := dag.NewFuncTask("a", nil, func(ctx context.Context, id string, _ dag.View) dag.Result {
			if block != nil {
				select {
				case <-block:
				case <-ctx.Done():
					return dag.FailureFrom(ctx.Err())
				}
			}
			return dag.Success("alpha for " + id)
		})
		b := dag.NewFuncTask("b", []string{"a"}, func(context.Context, string, dag.View) dag.Result {
			return dag.NewFailure(dag.FailureExternalCall, "down")
		})
		return thesis.Config{
			Registry:     []dag.Task{a, b},
			SectionOrder: []dag.SectionSpec{{Name: "a", Title: "A"}, {Name: "b", Title: "B"}},
		}
	}
}

func newTestServer(cfg Config, source PipelineSource, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":0"
	}
	return New(cfg, source, opts...)
}

func TestHealth(t *testing.T) {
	s := newTestServer(Config{}, pipelineSource(nil))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestPlan(t *testing.T) {
	s := newTestServer(Config{}, pipelineSource(nil))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/plan", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp PlanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, [][]string{{"a"}, {"b"}}, resp.Layers)
	assert.Len(t, resp.Sections, 2)
}

func TestPlan_DOT(t *testing.T) {
	s := newTestServer(Config{}, pipelineSource(nil))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/plan?format=dot", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "digraph"))
	assert.Contains(t, w.Body.String(), `"a" -> "b"`)
}

func TestAnalyze(t *testing.T) {
	s := newTestServer(Config{}, pipelineSource(nil))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"ticker":"AAPL"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Report)
	assert.Equal(t, "AAPL", resp.Report.Identifier)
	assert.NotEmpty(t, resp.Report.RunID)
	require.Len(t, resp.Report.Sections, 2)
	assert.Equal(t, "alpha for AAPL", resp.Report.Sections[0].Body)
	assert.Equal(t, "b: unavailable (ExternalCallError)", resp.Report.Sections[1].Body)
}

func TestAnalyze_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing ticker", `{}`},
		{"malformed", `{"ticker":`},
		{"invalid ticker", `{"ticker":"AAPL; rm -rf"}`},
	}
	s := newTestServer(Config{}, pipelineSource(nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			s.Handler().ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAnalyze_RunTimeoutReturnsPartialReport(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	s := newTestServer(Config{RunTimeout: 50 * time.Millisecond}, pipelineSource(block))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"ticker":"AAPL"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusGatewayTimeout, w.Code, w.Body.String())

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
	require.NotNil(t, resp.Report)
	assert.True(t, resp.Report.Cancelled)
}

func TestAnalyze_TooManyRuns(t *testing.T) {
	block := make(chan struct{})
	s := newTestServer(Config{MaxConcurrentRuns: 1}, pipelineSource(block))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"ticker":"AAPL"}`))
		req.Header.Set("Content-Type", "application/json")
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}()

	require.Eventually(t, func() bool { return len(s.slots) == 1 }, time.Second, 5*time.Millisecond)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"ticker":"MSFT"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	close(block)
	wg.Wait()
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hedgemind_up 1\n"))
	})
	s := newTestServer(Config{}, pipelineSource(nil), WithMetrics(metrics))

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hedgemind_up 1")
}

func TestStream(t *testing.T) {
	s := newTestServer(Config{}, pipelineSource(nil))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/analyze/AAPL/stream"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	var types []string
	var final StreamMessage
	for {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)

		var probe struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &probe))
		types = append(types, probe.Type)
		if probe.Type == MessageReport || probe.Type == MessageError {
			require.NoError(t, json.Unmarshal(data, &final))
			break
		}
	}

	assert.Equal(t, string(dag.EventLayerStarted), types[0])
	assert.Contains(t, types, string(dag.EventTaskDone))
	assert.Equal(t, MessageReport, final.Type)
	require.NotNil(t, final.Report)
	assert.Empty(t, final.Error)
	assert.Equal(t, "alpha for AAPL", final.Report.Sections[0].Body)
}

func TestStream_InvalidTicker(t *testing.T) {
	s := newTestServer(Config{}, pipelineSource(nil))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/analyze/bad$ticker/stream", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	s := newTestServer(Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, pipelineSource(nil))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

type recordingAudit struct {
	mu     sync.Mutex
	events []RunAudit
}

func (r *recordingAudit) Log(_ context.Context, ev RunAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingAudit) all() []RunAudit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunAudit(nil), r.events...)
}

func TestAuth_TokensRequired(t *testing.T) {
	audits := &recordingAudit{}
	s := newTestServer(Config{Tokens: map[string]string{"alice": "s3cret"}}, pipelineSource(nil), WithAudit(audits))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", "", http.StatusUnauthorized},
		{"header token", "Bearer s3cret", "", http.StatusOK},
		{"query token", "", "?token=s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/v1/plan"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			s.Handler().ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code, "health stays open")
}

func TestAnalyze_Audited(t *testing.T) {
	audits := &recordingAudit{}
	s := newTestServer(Config{Tokens: map[string]string{"alice": "s3cret"}}, pipelineSource(nil), WithAudit(audits))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"ticker":"msft"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer s3cret")
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	events := audits.all()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "alice", ev.UserID)
	assert.Equal(t, "MSFT", ev.Identifier, "identifier is normalized")
	assert.Equal(t, "http", ev.Transport)
	assert.Equal(t, "partial", ev.Outcome)
	assert.Equal(t, []string{"b"}, ev.Unavailable)
	assert.NotEmpty(t, ev.RunID)
}

func TestOutcomeOf(t *testing.T) {
	full := &dag.Report{Sections: []dag.Section{{Name: "a", Available: true}}}
	assert.Equal(t, "success", outcomeOf(full, nil))
	assert.Equal(t, "cancelled", outcomeOf(full, &dag.CancelledError{Cause: context.Canceled}))
	assert.Equal(t, "error", outcomeOf(nil, assert.AnError))
}
