// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

// ExtractJSON returns the outermost {...} span of text.
//
// Models often wrap strict JSON answers in markdown fences or add a sentence
// before them. When no object is found the trimmed text is returned and the
// caller's decoder reports the error.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.Trim(s, "`")
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

// DecodeJSON extracts and decodes a JSON object from a model answer.
// Fields the model adds beyond T are ignored.
func DecodeJSON[T any](text string) (T, error) {
	var out T
	dec := json.NewDecoder(strings.NewReader(ExtractJSON(text)))
	if err := dec.Decode(&out); err != nil {
		return out, &DecodeError{Err: err}
	}
	return out, nil
}

// DecodeError reports a model answer that is not the requested JSON shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode model json: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// FailureKind implements dag.KindError.
func (e *DecodeError) FailureKind() dag.FailureKind { return dag.FailureParse }
