// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

type taskState int

const (
	taskPending taskState = iota
	taskRunning
	taskOK
	taskFailed
)

type taskRow struct {
	name     string
	layer    int
	state    taskState
	kind     dag.FailureKind
	duration time.Duration
}

type eventMsg dag.Event

type eventsClosedMsg struct{}

// ProgressModel is a bubbletea model that follows a pipeline run through
// its scheduler events.
type ProgressModel struct {
	title    string
	events   <-chan dag.Event
	spinner  spinner.Model
	rows     []*taskRow
	byName   map[string]*taskRow
	layer    int
	layers   int
	done     int
	finished bool

	// OnInterrupt is called once when the user presses ctrl+c.
	OnInterrupt func()
	interrupted bool
}

// NewProgressModel lists every task of plan as pending.
func NewProgressModel(title string, plan *dag.Plan, events <-chan dag.Event) *ProgressModel {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(Styles.Highlight))
	m := &ProgressModel{
		title:   title,
		events:  events,
		spinner: sp,
		byName:  make(map[string]*taskRow),
		layer:   -1,
		layers:  plan.Len(),
	}
	for i, layer := range plan.Layers {
		for _, name := range layer {
			r := &taskRow{name: name, layer: i}
			m.rows = append(m.rows, r)
			m.byName[name] = r
		}
	}
	return m
}

func waitForEvent(events <-chan dag.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.interrupted {
			m.interrupted = true
			if m.OnInterrupt != nil {
				m.OnInterrupt()
			}
		}
		return m, nil
	case eventMsg:
		m.apply(dag.Event(msg))
		return m, waitForEvent(m.events)
	case eventsClosedMsg:
		m.finished = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *ProgressModel) apply(ev dag.Event) {
	switch ev.Type {
	case dag.EventLayerStarted:
		m.layer = ev.Layer
	case dag.EventTaskStarted:
		if r := m.byName[ev.Task]; r != nil {
			r.state = taskRunning
		}
	case dag.EventTaskDone:
		r := m.byName[ev.Task]
		if r == nil {
			return
		}
		r.state = taskOK
		if !ev.OK {
			r.state = taskFailed
			r.kind = ev.Kind
		}
		r.duration = time.Duration(ev.DurationMS) * time.Millisecond
		m.done++
	}
}

func (m *ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(Styles.Title.Render(m.title))
	b.WriteString("  ")
	b.WriteString(ProgressBar(m.done, len(m.rows), 24))
	if m.layer >= 0 {
		b.WriteString(Styles.Muted.Render(fmt.Sprintf("  layer %d/%d", m.layer+1, m.layers)))
	}
	b.WriteString("\n")

	for _, r := range m.rows {
		var icon string
		switch r.state {
		case taskPending:
			icon = IconPending.Render()
		case taskRunning:
			icon = m.spinner.View()
		case taskOK:
			icon = IconSuccess.Render()
		case taskFailed:
			icon = IconError.Render()
		}
		line := fmt.Sprintf("%s %-12s", icon, r.name)
		switch r.state {
		case taskOK:
			line += Styles.Muted.Render(r.duration.Round(time.Millisecond).String())
		case taskFailed:
			line += Styles.Error.Render(string(r.kind))
		}
		b.WriteString("  " + line + "\n")
	}
	if m.interrupted && !m.finished {
		b.WriteString(Styles.Warning.Render("cancelling after the current layer...") + "\n")
	}
	return b.String()
}

// Done reports how many tasks have finished.
func (m *ProgressModel) Done() int { return m.done }

// PlainProgress writes one line per event until events is closed.
func PlainProgress(w io.Writer, events <-chan dag.Event) {
	for ev := range events {
		switch ev.Type {
		case dag.EventLayerStarted:
			fmt.Fprintf(w, "layer %d: %s\n", ev.Layer, strings.Join(ev.Tasks, ", "))
		case dag.EventTaskStarted:
			fmt.Fprintf(w, "  start %s\n", ev.Task)
		case dag.EventTaskDone:
			if ev.OK {
				fmt.Fprintf(w, "  done  %s (%dms)\n", ev.Task, ev.DurationMS)
			} else {
				fmt.Fprintf(w, "  fail  %s: %s %s\n", ev.Task, ev.Kind, ev.Message)
			}
		}
	}
}
