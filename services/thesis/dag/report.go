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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// SectionSpec declares one report section.
type SectionSpec struct {
	// Name is the task or aggregator whose entry fills the section.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Title is a human-readable heading. Defaults to Name.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
}

// Section is one rendered block of a Report.
type Section struct {
	Name      string      `json:"name"`
	Title     string      `json:"title"`
	Body      string      `json:"body"`
	Available bool        `json:"available"`
	Kind      FailureKind `json:"kind,omitempty"`
}

// Report is the ordered document produced from a Store.
type Report struct {
	Identifier string    `json:"identifier"`
	RunID      string    `json:"run_id"`
	Sections   []Section `json:"sections"`
	Cancelled  bool      `json:"cancelled"`
	Digest     string    `json:"digest"`
}

// Unavailable returns the placeholder text for a missing or failed section.
func Unavailable(name string, kind FailureKind) string {
	return fmt.Sprintf("%s: unavailable (%s)", name, kind)
}

// Assemble builds the Report for store in the given section order.
//
// Description:
//
//	Iterates order and emits one Section per spec. A Success entry renders
//	its payload; a Failure or absent entry renders the unavailable
//	placeholder naming the failure kind. Absent entries are Cancelled when
//	the run was cancelled and Unknown otherwise. The output depends only on
//	the store contents and order, never on completion order.
//
// Inputs:
//
//	store - The run's store. Must not be nil.
//	order - Declared section order.
//
// Outputs:
//
//	*Report - The assembled report with its digest set.
func Assemble(store *Store, order []SectionSpec) *Report {
	r := &Report{
		Identifier: store.Identifier(),
		RunID:      store.RunID(),
		Sections:   make([]Section, 0, len(order)),
		Cancelled:  store.Cancelled(),
	}

	for _, spec := range order {
		sec := Section{Name: spec.Name, Title: spec.Title}
		if sec.Title == "" {
			sec.Title = spec.Name
		}

		e, err := store.Read(spec.Name)
		switch {
		case err != nil:
			sec.Kind = FailureUnknown
			if r.Cancelled {
				sec.Kind = FailureCancelled
			}
			sec.Body = Unavailable(spec.Name, sec.Kind)
		case !e.Result.IsSuccess():
			sec.Kind = e.Result.Kind()
			sec.Body = Unavailable(spec.Name, sec.Kind)
		default:
			sec.Available = true
			sec.Body = RenderPayload(e.Result.Payload())
		}

		r.Sections = append(r.Sections, sec)
	}

	r.Digest = r.computeDigest()
	return r
}

// Text renders the report bodies in order, separated by blank lines.
func (r *Report) Text() string {
	bodies := make([]string, len(r.Sections))
	for i, s := range r.Sections {
		bodies[i] = s.Body
	}
	return strings.Join(bodies, "\n\n") + "\n"
}

// Section returns the section for name.
func (r *Report) Section(name string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// Unavailable returns the names of sections rendered as placeholders.
func (r *Report) Unavailable() []string {
	var out []string
	for _, s := range r.Sections {
		if !s.Available {
			out = append(out, s.Name)
		}
	}
	return out
}

// computeDigest hashes the rendered text with BLAKE3.
func (r *Report) computeDigest() string {
	sum := blake3.Sum256([]byte(r.Text()))
	return hex.EncodeToString(sum[:])
}

// RenderPayload converts a success payload to section text.
//
// Strings and fmt.Stringers render as-is, byte slices as text, nil as an
// empty string. Anything else is encoded as indented JSON.
func RenderPayload(p any) string {
	switch v := p.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Sprint(p)
	}
	return string(b)
}
