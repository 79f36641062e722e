// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes thesis runs over HTTP and WebSocket.
package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/hedgemind/pkg/validation"
	"github.com/AleutianAI/hedgemind/services/telemetry"
	"github.com/AleutianAI/hedgemind/services/thesis"
	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

// Config configures the HTTP surface.
type Config struct {
	Addr string `yaml:"addr" validate:"required"`

	// MaxConcurrentRuns bounds pipeline runs in flight. Extra requests get 429.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs" validate:"gte=0"`

	// RunTimeout bounds one run. Zero means no bound beyond the request.
	RunTimeout time.Duration `yaml:"run_timeout"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Tokens maps user names to bearer tokens. Empty leaves /v1 open.
	Tokens map[string]string `yaml:"tokens,omitempty"`
}

// DefaultConfig listens on :8090 with four concurrent runs.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8090",
		MaxConcurrentRuns: 4,
		RunTimeout:        5 * time.Minute,
		ShutdownTimeout:   10 * time.Second,
	}
}

// PipelineSource returns the pipeline configuration for the next run. It is
// called once per request so configuration reloads apply to later runs.
type PipelineSource func() thesis.Config

// Server serves the analysis endpoints.
type Server struct {
	cfg     Config
	source  PipelineSource
	logger  *slog.Logger
	metrics http.Handler
	auth    AuthProvider
	audits  AuditLogger
	slots   chan struct{}
	router  *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithAuth replaces the provider derived from Config.Tokens.
func WithAuth(p AuthProvider) Option {
	return func(s *Server) { s.auth = p }
}

// WithAudit sets the run audit sink. The default logs through the server logger.
func WithAudit(a AuditLogger) Option {
	return func(s *Server) { s.audits = a }
}

// New builds the router.
func New(cfg Config, source PipelineSource, opts ...Option) *Server {
	s := &Server{cfg: cfg, source: source, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.auth == nil {
		if len(cfg.Tokens) > 0 {
			s.auth = NewTokenAuth(cfg.Tokens)
		} else {
			s.auth = OpenAuth{}
		}
	}
	if s.audits == nil {
		s.audits = SlogAuditLogger{Logger: s.logger}
	}
	if cfg.MaxConcurrentRuns > 0 {
		s.slots = make(chan struct{}, cfg.MaxConcurrentRuns)
	}

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware("hedgemind"), s.requestLog())

	router.GET("/health", s.health)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}
	v1 := router.Group("/v1", s.authenticate())
	{
		v1.GET("/plan", s.plan)
		v1.POST("/analyze", s.analyze)
		v1.GET("/analyze/:ticker/stream", s.stream)
	}
	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	s.logger.Info("server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		telemetry.LoggerWithTrace(c.Request.Context(), s.logger).Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// acquire takes a run slot. It returns false when all slots are busy.
func (s *Server) acquire() (release func(), ok bool) {
	if s.slots == nil {
		return func() {}, true
	}
	select {
	case s.slots <- struct{}{}:
		return func() { <-s.slots }, true
	default:
		return nil, false
	}
}

func (s *Server) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RunTimeout > 0 {
		return context.WithTimeout(parent, s.cfg.RunTimeout)
	}
	return context.WithCancel(parent)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PlanResponse describes the execution plan.
type PlanResponse struct {
	Layers   [][]string        `json:"layers"`
	Sections []dag.SectionSpec `json:"sections"`
}

func (s *Server) plan(c *gin.Context) {
	cfg := s.source()
	graph, plan, err := thesis.Build(cfg.Registry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if c.Query("format") == "dot" {
		var buf bytes.Buffer
		if err := graph.WriteDOT(&buf, plan); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/vnd.graphviz; charset=utf-8", buf.Bytes())
		return
	}
	c.JSON(http.StatusOK, PlanResponse{Layers: plan.Layers, Sections: cfg.SectionOrder})
}

// AnalyzeRequest is the POST /v1/analyze body.
type AnalyzeRequest struct {
	Ticker string `json:"ticker" binding:"required"`
}

// AnalyzeResponse carries a report, partial when Error is set.
type AnalyzeResponse struct {
	Report *dag.Report `json:"report,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func (s *Server) analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AnalyzeResponse{Error: err.Error()})
		return
	}
	ticker, err := validation.SanitizeTicker(req.Ticker)
	if err != nil {
		c.JSON(http.StatusBadRequest, AnalyzeResponse{Error: err.Error()})
		return
	}

	release, ok := s.acquire()
	if !ok {
		c.JSON(http.StatusTooManyRequests, AnalyzeResponse{Error: "too many concurrent runs"})
		return
	}
	defer release()

	ctx, cancel := s.runContext(c.Request.Context())
	defer cancel()

	cfg := s.source()
	cfg.RunID = uuid.NewString()
	cfg.Logger = telemetry.LoggerWithTrace(ctx, s.logger)

	start := time.Now()
	report, err := thesis.RunPipeline(ctx, ticker, cfg)
	s.audit(ctx, RunAudit{UserID: principalOf(c), Identifier: ticker, RunID: cfg.RunID, Transport: "http", Duration: time.Since(start)}, report, err)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, AnalyzeResponse{Report: report})
	case errors.Is(err, thesis.ErrPipelineCancelled):
		c.JSON(http.StatusGatewayTimeout, AnalyzeResponse{Report: report, Error: err.Error()})
	case errors.Is(err, validation.ErrInvalidTicker):
		c.JSON(http.StatusBadRequest, AnalyzeResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, AnalyzeResponse{Report: report, Error: err.Error()})
	}
}
