// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dag

import (
	"context"
	"time"
)

// Observer receives progress notifications from the Scheduler.
//
// Calls for tasks of the same layer arrive concurrently, so implementations
// must be safe for concurrent use and should return quickly.
type Observer interface {
	OnLayerStart(ctx context.Context, runID string, index int, tasks []string)
	OnTaskStart(ctx context.Context, runID string, task string)
	OnTaskDone(ctx context.Context, runID string, entry Entry, duration time.Duration)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnLayerStart(context.Context, string, int, []string)      {}
func (NopObserver) OnTaskStart(context.Context, string, string)              {}
func (NopObserver) OnTaskDone(context.Context, string, Entry, time.Duration) {}

// EventType names a progress event.
type EventType string

const (
	EventLayerStarted EventType = "layer_started"
	EventTaskStarted  EventType = "task_started"
	EventTaskDone     EventType = "task_done"
)

// Event is the serializable form of an Observer notification.
type Event struct {
	Type       EventType   `json:"type"`
	RunID      string      `json:"run_id"`
	Layer      int         `json:"layer,omitempty"`
	Tasks      []string    `json:"tasks,omitempty"`
	Task       string      `json:"task,omitempty"`
	OK         bool        `json:"ok,omitempty"`
	Kind       FailureKind `json:"kind,omitempty"`
	Message    string      `json:"message,omitempty"`
	DurationMS int64       `json:"duration_ms,omitempty"`
}

// ChannelObserver forwards notifications as Events on a channel.
//
// Start events are dropped once ctx is done. task_done events are always
// delivered, so the consumer must keep draining the channel until the run
// returns.
type ChannelObserver struct {
	Events chan<- Event
}

func (o ChannelObserver) send(ctx context.Context, ev Event) {
	select {
	case o.Events <- ev:
	case <-ctx.Done():
	}
}

func (o ChannelObserver) OnLayerStart(ctx context.Context, runID string, index int, tasks []string) {
	o.send(ctx, Event{Type: EventLayerStarted, RunID: runID, Layer: index, Tasks: tasks})
}

func (o ChannelObserver) OnTaskStart(ctx context.Context, runID string, task string) {
	o.send(ctx, Event{Type: EventTaskStarted, RunID: runID, Task: task})
}

func (o ChannelObserver) OnTaskDone(ctx context.Context, runID string, entry Entry, d time.Duration) {
	ev := Event{
		Type:       EventTaskDone,
		RunID:      runID,
		Task:       entry.Name,
		OK:         entry.Result.IsSuccess(),
		DurationMS: d.Milliseconds(),
	}
	if f, failed := entry.Result.Failure(); failed {
		ev.Kind = f.Kind
		ev.Message = f.Message
	}
	// Tasks finishing after a cancel still report their outcome.
	o.send(context.WithoutCancel(ctx), ev)
}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (obs Observers) OnLayerStart(ctx context.Context, runID string, index int, tasks []string) {
	for _, o := range obs {
		o.OnLayerStart(ctx, runID, index, tasks)
	}
}

func (obs Observers) OnTaskStart(ctx context.Context, runID string, task string) {
	for _, o := range obs {
		o.OnTaskStart(ctx, runID, task)
	}
}

func (obs Observers) OnTaskDone(ctx context.Context, runID string, entry Entry, d time.Duration) {
	for _, o := range obs {
		o.OnTaskDone(ctx, runID, entry, d)
	}
}
