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
	"slices"
	"testing"
	"time"
)

func TestNewFuncTask_CopiesDependencies(t *testing.T) {
	deps := []string{"A", "B"}
	task := NewFuncTask("C", deps, func(context.Context, string, View) Result { return Success("C") })

	deps[0] = "Z"
	if got := task.Dependencies(); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("Dependencies() = %v after caller mutation, want [A B]", got)
	}
}

func TestWithRequired_CopiesNames(t *testing.T) {
	required := []string{"A"}
	task := NewFuncTask("C", []string{"A", "B"}, nil).WithRequired(required...)

	required[0] = "Z"
	if got := task.Required(); !slices.Equal(got, []string{"A"}) {
		t.Errorf("Required() = %v after caller mutation, want [A]", got)
	}

	task.WithRequired("B")
	if got := task.Required(); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("Required() = %v, want [A B]", got)
	}
	if required[0] != "Z" {
		t.Errorf("caller slice changed to %v", required)
	}
}

func TestFuncTask_Defaults(t *testing.T) {
	task := NewFuncTask("A", nil, nil)
	if deps := task.Dependencies(); deps == nil || len(deps) != 0 {
		t.Errorf("Dependencies() = %#v, want empty non-nil", deps)
	}
	if task.Timeout() != DefaultTaskTimeout {
		t.Errorf("Timeout() = %v, want %v", task.Timeout(), DefaultTaskTimeout)
	}
	if task.WithTimeout(time.Second).Timeout() != time.Second {
		t.Error("WithTimeout was not applied")
	}
	if r := task.Execute(context.Background(), "X", View{}); r.IsSuccess() {
		t.Error("task without a function succeeded")
	}
}
