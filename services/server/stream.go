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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/hedgemind/pkg/validation"
	"github.com/AleutianAI/hedgemind/services/thesis"
	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

// Stream message types beyond the dag.Event types.
const (
	MessageReport = "report"
	MessageError  = "error"
)

// StreamMessage is the final message of a stream.
type StreamMessage struct {
	Type   string      `json:"type"`
	Report *dag.Report `json:"report,omitempty"`
	Error  string      `json:"error,omitempty"`
}

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// stream runs the pipeline for :ticker and pushes every dag.Event, then a
// StreamMessage with the report. Closing the socket cancels the run.
func (s *Server) stream(c *gin.Context) {
	ticker, err := validation.SanitizeTicker(c.Param("ticker"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	release, ok := s.acquire()
	if !ok {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many concurrent runs"})
		return
	}
	defer release()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	ctx, cancel := s.runContext(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	// The client never sends; a read error means it went away.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	events := make(chan dag.Event, 16)
	type outcome struct {
		report *dag.Report
		err    error
	}
	done := make(chan outcome, 1)

	cfg := s.source()
	cfg.RunID = uuid.NewString()
	cfg.Logger = s.logger
	cfg.Observer = dag.ChannelObserver{Events: events}

	user := principalOf(c)
	go func() {
		start := time.Now()
		report, err := thesis.RunPipeline(ctx, ticker, cfg)
		close(events)
		s.audit(ctx, RunAudit{UserID: user, Identifier: ticker, RunID: cfg.RunID, Transport: "websocket", Duration: time.Since(start)}, report, err)
		done <- outcome{report, err}
	}()

	for ev := range events {
		if err := writeJSON(ws, ev); err != nil {
			cancel()
			// Keep draining so the scheduler never blocks on a send.
			for range events {
			}
			break
		}
	}

	res := <-done
	msg := StreamMessage{Type: MessageReport, Report: res.report}
	if res.err != nil {
		msg.Error = res.err.Error()
		if res.report == nil {
			msg.Type = MessageError
		}
	}
	if err := writeJSON(ws, msg); err != nil {
		return
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(writeWait))
}

func writeJSON(ws *websocket.Conn, v any) error {
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.WriteJSON(v)
}
