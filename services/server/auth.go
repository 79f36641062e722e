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
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

// ErrUnauthorized is returned by AuthProvider implementations for a
// missing or unknown token.
var ErrUnauthorized = errors.New("unauthorized")

// LocalUser is the principal of an unauthenticated server.
const LocalUser = "local-user"

const principalKey = "principal"

// Principal identifies the caller of a run.
type Principal struct {
	UserID string
}

// AuthProvider validates bearer tokens.
//
// Implementations must be safe for concurrent use.
type AuthProvider interface {
	Validate(ctx context.Context, token string) (*Principal, error)
}

// OpenAuth accepts every request as LocalUser.
type OpenAuth struct{}

func (OpenAuth) Validate(context.Context, string) (*Principal, error) {
	return &Principal{UserID: LocalUser}, nil
}

// TokenAuth accepts a fixed set of tokens.
type TokenAuth struct {
	users map[string]string // token → user
}

// NewTokenAuth builds a TokenAuth from user → token pairs.
func NewTokenAuth(tokens map[string]string) *TokenAuth {
	t := &TokenAuth{users: make(map[string]string, len(tokens))}
	for user, token := range tokens {
		if token != "" {
			t.users[token] = user
		}
	}
	return t
}

func (t *TokenAuth) Validate(_ context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	for known, user := range t.users {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return &Principal{UserID: user}, nil
		}
	}
	return nil, ErrUnauthorized
}

// bearerToken reads "Authorization: Bearer <token>", falling back to the
// token query parameter that browser WebSocket clients must use.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.auth.Validate(c.Request.Context(), bearerToken(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func principalOf(c *gin.Context) string {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(*Principal); ok {
			return p.UserID
		}
	}
	return LocalUser
}

// RunAudit records one pipeline run.
type RunAudit struct {
	Timestamp   time.Time
	UserID      string
	Identifier  string
	RunID       string
	Transport   string // "http" or "websocket"
	Outcome     string // "success", "partial", "cancelled" or "error"
	Unavailable []string
	Duration    time.Duration
}

// AuditLogger receives a RunAudit after every run.
type AuditLogger interface {
	Log(ctx context.Context, event RunAudit) error
}

// SlogAuditLogger writes audits as Info records.
type SlogAuditLogger struct {
	Logger *slog.Logger
}

func (l SlogAuditLogger) Log(_ context.Context, ev RunAudit) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("run audit",
		slog.String("user", ev.UserID),
		slog.String("identifier", ev.Identifier),
		slog.String("run_id", ev.RunID),
		slog.String("transport", ev.Transport),
		slog.String("outcome", ev.Outcome),
		slog.Any("unavailable", ev.Unavailable),
		slog.Duration("duration", ev.Duration),
	)
	return nil
}

func outcomeOf(report *dag.Report, err error) string {
	switch {
	case errors.Is(err, dag.ErrPipelineCancelled):
		return "cancelled"
	case err != nil:
		return "error"
	case report != nil && len(report.Unavailable()) > 0:
		return "partial"
	}
	return "success"
}

func (s *Server) audit(ctx context.Context, ev RunAudit, report *dag.Report, err error) {
	ev.Timestamp = time.Now().UTC()
	ev.Outcome = outcomeOf(report, err)
	if report != nil {
		ev.RunID = report.RunID
		ev.Unavailable = report.Unavailable()
	}
	if aerr := s.audits.Log(context.WithoutCancel(ctx), ev); aerr != nil {
		s.logger.Warn("audit log failed", slog.String("error", aerr.Error()))
	}
}
