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

	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

// RenderReport writes report to w.
//
// In machine mode, or when styled is false, the output is exactly
// report.Text(). Otherwise each section gets a title, available bodies a
// left rule, and placeholders a warning box.
func RenderReport(w io.Writer, report *dag.Report, styled bool) error {
	if !styled || Level() == PersonalityMachine {
		_, err := io.WriteString(w, report.Text())
		return err
	}

	var b strings.Builder
	b.WriteString(Styles.Title.Render(fmt.Sprintf("Research report: %s", report.Identifier)))
	b.WriteString("\n")
	b.WriteString(Styles.Muted.Render("run " + report.RunID))
	b.WriteString("\n\n")

	for _, s := range report.Sections {
		icon := IconSuccess
		if !s.Available {
			icon = IconWarning
		}
		b.WriteString(icon.Render() + " " + Styles.Subtitle.Render(s.Title))
		b.WriteString("\n")
		if s.Available {
			b.WriteString(Styles.Section.Render(s.Body))
		} else {
			b.WriteString(Styles.Unavailable.Render(s.Body))
		}
		b.WriteString("\n\n")
	}

	missing := report.Unavailable()
	switch {
	case report.Cancelled:
		b.WriteString(Styles.Error.Render(fmt.Sprintf("Run cancelled; %d of %d sections unavailable", len(missing), len(report.Sections))))
	case len(missing) > 0:
		b.WriteString(Styles.Warning.Render(fmt.Sprintf("%d of %d sections unavailable: %s", len(missing), len(report.Sections), strings.Join(missing, ", "))))
	default:
		b.WriteString(Styles.Success.Render(fmt.Sprintf("All %d sections available", len(report.Sections))))
	}
	b.WriteString("\n")
	b.WriteString(Styles.Muted.Render("digest " + report.Digest))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}
