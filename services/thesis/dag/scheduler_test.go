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
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func buildAndRun(t *testing.T, ctx context.Context, opts []Option, tasks ...Task) (*Store, error) {
	t.Helper()
	g, err := NewBuilder("test").AddTasks(tasks...).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	plan, err := g.Layer()
	if err != nil {
		t.Fatalf("Layer() error = %v", err)
	}
	s, err := NewScheduler(g, opts...)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	return s.Run(ctx, plan, "TEST")
}

func TestNewScheduler_NilGraph(t *testing.T) {
	if _, err := NewScheduler(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("NewScheduler(nil) error = %v, want %v", err, ErrInvalidInput)
	}
}

func TestScheduler_Run_NilArguments(t *testing.T) {
	g, _ := NewBuilder("test").AddTask(NewTestTask("A", nil)).Build()
	s, _ := NewScheduler(g)

	//nolint:staticcheck // nil context is the case under test
	if _, err := s.Run(nil, &Plan{}, "X"); !errors.Is(err, ErrNilContext) {
		t.Errorf("Run(nil ctx) error = %v, want %v", err, ErrNilContext)
	}
	if _, err := s.Run(context.Background(), nil, "X"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Run(nil plan) error = %v, want %v", err, ErrInvalidInput)
	}
}

func TestScheduler_Run_AllSucceed(t *testing.T) {
	a := NewTestTask("A", nil)
	b := NewTestTask("B", []string{"A"})

	store, err := buildAndRun(t, context.Background(), nil, a, b)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}
	if store.Identifier() != "TEST" {
		t.Errorf("Identifier() = %q, want TEST", store.Identifier())
	}
	if b.seenPayload["A"] != "A_output" {
		t.Errorf("B saw A payload %v, want A_output", b.seenPayload["A"])
	}
}

func TestScheduler_Run_LayerBarrier(t *testing.T) {
	a := NewTestTask("A", nil).WithDelay(30 * time.Millisecond)
	b := NewTestTask("B", nil).WithDelay(60 * time.Millisecond)
	c := NewTestTask("C", nil).WithDelay(10 * time.Millisecond)
	d := NewTestTask("D", []string{"C"})

	if _, err := buildAndRun(t, context.Background(), nil, a, b, c, d); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// D only depends on C, but it lives in the next layer and must wait for B too.
	dStart, _ := d.Times()
	for _, sib := range []*TestTask{a, b, c} {
		_, finished := sib.Times()
		if dStart.Before(finished) {
			t.Errorf("D started at %v before %s finished at %v", dStart, sib.Name(), finished)
		}
	}
}

func TestScheduler_Run_FailureDoesNotShortCircuit(t *testing.T) {
	a := NewTestTask("A", nil).WithFailure(FailureExternalCall, "api down")
	b := NewTestTask("B", nil).WithDelay(20 * time.Millisecond)
	c := NewTestTask("C", []string{"A", "B"})

	store, err := buildAndRun(t, context.Background(), nil, a, b, c)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !b.WasExecuted() {
		t.Error("sibling B did not run after A failed")
	}
	if !c.WasExecuted() {
		t.Error("C with optional failed dependency did not run")
	}

	e, _ := store.Read("A")
	if e.Result.Kind() != FailureExternalCall {
		t.Errorf("A kind = %q, want %q", e.Result.Kind(), FailureExternalCall)
	}
}

func TestScheduler_Run_TimeoutRecorded(t *testing.T) {
	slow := NewTestTask("slow", nil).WithDelay(2 * time.Second).WithTimeout(50 * time.Millisecond)
	slow.ignoreCtx = true
	fast := NewTestTask("fast", nil)

	start := time.Now()
	store, err := buildAndRun(t, context.Background(), nil, slow, fast)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Run() took %v, scheduler waited for an abandoned task", elapsed)
	}

	e, err := store.Read("slow")
	if err != nil {
		t.Fatalf("Read(slow) error = %v", err)
	}
	if e.Result.Kind() != FailureTimeout {
		t.Errorf("slow kind = %q, want %q", e.Result.Kind(), FailureTimeout)
	}
	if fe, _ := store.Read("fast"); !fe.Result.IsSuccess() {
		t.Error("fast task did not succeed")
	}
}

func TestScheduler_Run_GlobalTimeoutCapsTaskTimeout(t *testing.T) {
	slow := NewTestTask("slow", nil).WithDelay(time.Second).WithTimeout(time.Minute)

	store, err := buildAndRun(t, context.Background(), []Option{WithTaskTimeout(40 * time.Millisecond)}, slow)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	e, _ := store.Read("slow")
	if e.Result.Kind() != FailureTimeout {
		t.Errorf("kind = %q, want %q", e.Result.Kind(), FailureTimeout)
	}
}

func TestScheduler_Run_PanicBecomesFailure(t *testing.T) {
	boom := NewTestTask("boom", nil).WithPanic("kaboom")
	ok := NewTestTask("ok", nil)

	store, err := buildAndRun(t, context.Background(), nil, boom, ok)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	e, _ := store.Read("boom")
	f, failed := e.Result.Failure()
	if !failed || f.Kind != FailureUnknown {
		t.Fatalf("boom result = %+v, want Unknown failure", e.Result)
	}
	if !strings.Contains(f.Message, "kaboom") {
		t.Errorf("message = %q, want panic value", f.Message)
	}
	if oe, _ := store.Read("ok"); !oe.Result.IsSuccess() {
		t.Error("sibling of panicking task did not succeed")
	}
}

func TestScheduler_Run_RequiredDependencySkips(t *testing.T) {
	a := NewTestTask("A", nil).WithFailure(FailureRateLimited, "429")
	b := NewTestTask("B", []string{"A"})
	b.TaskRequired = []string{"A"}
	c := NewTestTask("C", []string{"B"})
	c.TaskRequired = []string{"B"}

	store, err := buildAndRun(t, context.Background(), nil, a, b, c)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if b.WasExecuted() || c.WasExecuted() {
		t.Error("tasks with a failed required dependency were executed")
	}
	for _, name := range []string{"B", "C"} {
		e, _ := store.Read(name)
		if e.Result.Kind() != FailureSkipped {
			t.Errorf("%s kind = %q, want %q", name, e.Result.Kind(), FailureSkipped)
		}
	}
	eb, _ := store.Read("B")
	if f, _ := eb.Result.Failure(); !strings.Contains(f.Message, "RateLimited") {
		t.Errorf("B message = %q, want upstream kind", f.Message)
	}
}

func TestScheduler_Run_ConcurrencyCap(t *testing.T) {
	var running, peak atomic.Int32
	tasks := make([]Task, 0, 8)
	for _, name := range []string{"A", "B", "C", "D", "E", "F", "G", "H"} {
		tasks = append(tasks, NewFuncTask(name, nil, func(ctx context.Context, _ string, _ View) Result {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return Success(nil)
		}))
	}

	store, err := buildAndRun(t, context.Background(), []Option{WithConcurrency(2)}, tasks...)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.Len() != 8 {
		t.Errorf("Len() = %d, want 8", store.Len())
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestScheduler_Run_CancelBetweenLayers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A cancels the run while it is in flight; it must still finish.
	a := NewFuncTask("A", nil, func(_ context.Context, _ string, _ View) Result {
		cancel()
		time.Sleep(20 * time.Millisecond)
		return Success("a")
	})
	b := NewTestTask("B", []string{"A"})

	store, err := buildAndRun(t, ctx, nil, a, b)

	if !errors.Is(err, ErrPipelineCancelled) {
		t.Fatalf("Run() error = %v, want %v", err, ErrPipelineCancelled)
	}
	var cerr *CancelledError
	if !errors.As(err, &cerr) || cerr.CompletedLayers != 1 {
		t.Errorf("CancelledError = %+v, want CompletedLayers=1", cerr)
	}
	if store == nil {
		t.Fatal("Run() returned nil store on cancellation")
	}
	if !store.Cancelled() {
		t.Error("Cancelled() = false")
	}
	if e, err := store.Read("A"); err != nil || !e.Result.IsSuccess() {
		t.Errorf("in-flight task A = %+v, %v; want success", e, err)
	}
	if b.WasExecuted() || store.Has("B") {
		t.Error("B ran after cancellation")
	}
}

func TestScheduler_Run_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewTestTask("A", nil)
	store, err := buildAndRun(t, ctx, nil, a)
	if !errors.Is(err, ErrPipelineCancelled) {
		t.Fatalf("Run() error = %v, want %v", err, ErrPipelineCancelled)
	}
	if a.WasExecuted() || store.Len() != 0 {
		t.Error("task ran on a cancelled context")
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(s string) {
	o.mu.Lock()
	o.events = append(o.events, s)
	o.mu.Unlock()
}

func (o *recordingObserver) OnLayerStart(_ context.Context, _ string, i int, tasks []string) {
	o.add("layer:" + strings.Join(tasks, ","))
}

func (o *recordingObserver) OnTaskStart(_ context.Context, _ string, task string) {
	o.add("start:" + task)
}

func (o *recordingObserver) OnTaskDone(_ context.Context, _ string, e Entry, _ time.Duration) {
	o.add("done:" + e.Name)
}

func TestScheduler_Run_Observer(t *testing.T) {
	obs := &recordingObserver{}
	events := make(chan Event, 16)

	_, err := buildAndRun(t, context.Background(),
		[]Option{WithObserver(Observers{obs, ChannelObserver{Events: events}})},
		NewTestTask("A", nil),
		NewTestTask("B", []string{"A"}).WithFailure(FailureParse, "bad"),
	)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	close(events)

	want := []string{"layer:A", "start:A", "done:A", "layer:B", "start:B", "done:B"}
	if strings.Join(obs.events, " ") != strings.Join(want, " ") {
		t.Errorf("events = %v, want %v", obs.events, want)
	}

	var last Event
	count := 0
	for ev := range events {
		last = ev
		count++
	}
	if count != 6 {
		t.Errorf("channel events = %d, want 6", count)
	}
	if last.Type != EventTaskDone || last.OK || last.Kind != FailureParse {
		t.Errorf("last event = %+v, want failed task_done with ParseError", last)
	}
}

func TestScheduler_Run_TaskDoneReportedAfterCancel(t *testing.T) {
	events := make(chan Event, 16)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := buildAndRun(t, ctx,
		[]Option{WithObserver(ChannelObserver{Events: events})},
		NewTestTask("A", nil).WithDelay(150*time.Millisecond),
		NewTestTask("B", []string{"A"}),
	)
	if !errors.Is(err, ErrPipelineCancelled) {
		t.Fatalf("Run() error = %v, want ErrPipelineCancelled", err)
	}
	close(events)

	var doneA *Event
	for ev := range events {
		if ev.Type == EventTaskDone && ev.Task == "A" {
			ev := ev
			doneA = &ev
		}
		if ev.Task == "B" {
			t.Errorf("event for B after cancel: %+v", ev)
		}
	}
	if doneA == nil {
		t.Fatal("no task_done for A after cancel")
	}
	if !doneA.OK {
		t.Errorf("task_done for A = %+v, want the in-flight task to finish", *doneA)
	}
}
