// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package market

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

var (
	// ErrRateLimited indicates a provider answered 429 or the local limiter gave up.
	ErrRateLimited = errors.New("rate limited")

	// ErrParse indicates a provider response could not be decoded.
	ErrParse = errors.New("parse error")

	// ErrNoData indicates a provider returned a well-formed but empty answer.
	ErrNoData = errors.New("no data")

	// ErrMissingCredentials indicates a provider needs a key that is not configured.
	ErrMissingCredentials = errors.New("missing credentials")
)

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	Provider string
	Code     int
	Status   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %s", e.Provider, e.Status)
}

// Is matches ErrRateLimited for 429 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.Code == http.StatusTooManyRequests
}

// FailureKind implements dag.KindError.
func (e *StatusError) FailureKind() dag.FailureKind {
	if e.Code == http.StatusTooManyRequests {
		return dag.FailureRateLimited
	}
	return dag.FailureExternalCall
}

// ParseError wraps a decoding failure.
type ParseError struct {
	Provider string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is matches ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// FailureKind implements dag.KindError.
func (e *ParseError) FailureKind() dag.FailureKind {
	return dag.FailureParse
}

// ProviderError wraps transport and credential failures.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// FailureKind implements dag.KindError. Deadline and rate errors keep their own kind.
func (e *ProviderError) FailureKind() dag.FailureKind {
	if errors.Is(e.Err, ErrRateLimited) {
		return dag.FailureRateLimited
	}
	switch k := dag.Classify(e.Err); k {
	case dag.FailureTimeout, dag.FailureCancelled, dag.FailureParse:
		return k
	}
	return dag.FailureExternalCall
}
