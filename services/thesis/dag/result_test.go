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
	"fmt"
	"net/url"
	"testing"
)

type kindErr struct{ kind FailureKind }

func (e kindErr) Error() string            { return string(e.kind) }
func (e kindErr) FailureKind() FailureKind { return e.kind }

func TestClassify(t *testing.T) {
	var syntaxErr error
	{
		var v any
		syntaxErr = json.Unmarshal([]byte("{not json"), &v)
	}

	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"nil", nil, ""},
		{"kind error", fmt.Errorf("wrapped: %w", kindErr{FailureRateLimited}), FailureRateLimited},
		{"deadline", context.DeadlineExceeded, FailureTimeout},
		{"url wrapping deadline", &url.Error{Op: "Get", URL: "x", Err: context.DeadlineExceeded}, FailureTimeout},
		{"canceled", context.Canceled, FailureCancelled},
		{"json syntax", syntaxErr, FailureParse},
		{"url error", &url.Error{Op: "Get", URL: "x", Err: errors.New("refused")}, FailureExternalCall},
		{"plain", errors.New("odd"), FailureUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResult_FailureFromAndJSON(t *testing.T) {
	r := FailureFrom(context.DeadlineExceeded)
	if r.IsSuccess() || r.Kind() != FailureTimeout {
		t.Fatalf("FailureFrom() = %+v", r)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var out struct {
		OK      bool     `json:"ok"`
		Failure *Failure `json:"failure"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.OK || out.Failure == nil || out.Failure.Kind != FailureTimeout {
		t.Errorf("json = %s", b)
	}

	if s := Success(3); !s.IsSuccess() || s.Kind() != "" {
		t.Errorf("Success(3) = %+v", s)
	}
}
