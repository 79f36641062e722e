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
	"encoding/json"
	"errors"
	"net"
	"net/url"
)

// FailureKind categorizes why a task did not produce a payload.
type FailureKind string

const (
	// FailureExternalCall indicates a data source or model call failed.
	FailureExternalCall FailureKind = "ExternalCallError"

	// FailureRateLimited indicates a data source rejected the call for rate reasons.
	FailureRateLimited FailureKind = "RateLimited"

	// FailureParse indicates a response could not be decoded.
	FailureParse FailureKind = "ParseError"

	// FailureTimeout indicates the task exceeded its time budget.
	FailureTimeout FailureKind = "Timeout"

	// FailureUnknown covers panics and unclassified errors.
	FailureUnknown FailureKind = "Unknown"

	// FailureSkipped indicates a required dependency failed, so the task never ran.
	FailureSkipped FailureKind = "Skipped"

	// FailureCancelled indicates the run was cancelled before the task started.
	FailureCancelled FailureKind = "Cancelled"
)

// KindError is implemented by errors that know their FailureKind.
// Data source clients return such errors so Classify needs no knowledge of them.
type KindError interface {
	error
	FailureKind() FailureKind
}

// Failure describes a task that produced no payload.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Result is the outcome of one task execution: a payload or a Failure, never both.
//
// The zero Result is a Success with a nil payload.
type Result struct {
	payload any
	failure *Failure
}

// Success creates a successful Result carrying payload.
func Success(payload any) Result {
	return Result{payload: payload}
}

// NewFailure creates a failed Result.
func NewFailure(kind FailureKind, message string) Result {
	if kind == "" {
		kind = FailureUnknown
	}
	return Result{failure: &Failure{Kind: kind, Message: message}}
}

// FailureFrom classifies err and creates a failed Result.
func FailureFrom(err error) Result {
	if err == nil {
		return NewFailure(FailureUnknown, "nil error")
	}
	return NewFailure(Classify(err), err.Error())
}

// IsSuccess reports whether the task produced a payload.
func (r Result) IsSuccess() bool {
	return r.failure == nil
}

// Payload returns the success payload, or nil for failures.
func (r Result) Payload() any {
	return r.payload
}

// Failure returns the failure details and true for failed results.
func (r Result) Failure() (Failure, bool) {
	if r.failure == nil {
		return Failure{}, false
	}
	return *r.failure, true
}

// Kind returns the failure kind, or "" on success.
func (r Result) Kind() FailureKind {
	if r.failure == nil {
		return ""
	}
	return r.failure.Kind
}

type resultJSON struct {
	OK      bool     `json:"ok"`
	Payload any      `json:"payload,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// MarshalJSON encodes the result as {"ok":..., "payload"|"failure":...}.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{OK: r.IsSuccess(), Payload: r.payload, Failure: r.failure})
}

// Classify maps an error to a FailureKind.
//
// Description:
//
//	Errors implementing KindError report their own kind. Deadline errors are
//	Timeouts, JSON decoding errors are ParseErrors and network errors are
//	ExternalCallErrors. Everything else is Unknown.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}

	var kindErr KindError
	if errors.As(err, &kindErr) {
		return kindErr.FailureKind()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	if errors.Is(err, context.Canceled) {
		return FailureCancelled
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return FailureParse
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return FailureExternalCall
	}

	return FailureUnknown
}
