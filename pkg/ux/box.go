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
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Box geometry used for report section headers.
const (
	BoxWidth   = 90
	BoxPadding = 2
)

// FormatBox centers lines inside a fixed-width plain-text box.
//
// The box is framed by rows of '=' of the full width. Each line is indented
// by padding spaces, framed by '|' and centered in the remaining
// width-2*padding-2 cells. Lines wider than that are left as-is.
func FormatBox(lines []string, width, padding int) string {
	content := width - 2*padding - 2
	horizontal := strings.Repeat("=", width)
	indent := strings.Repeat(" ", padding)

	var b strings.Builder
	b.WriteString(horizontal)
	for _, line := range lines {
		b.WriteByte('\n')
		b.WriteString(indent)
		b.WriteByte('|')
		b.WriteString(center(line, content))
		b.WriteByte('|')
	}
	b.WriteByte('\n')
	b.WriteString(horizontal)
	return b.String()
}

// center pads s to width display cells. An odd margin puts the extra
// space on the left when width is odd, on the right otherwise.
func center(s string, width int) string {
	w := lipgloss.Width(s)
	margin := width - w
	if margin <= 0 {
		return s
	}
	left := margin/2 + (margin & width & 1)
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", margin-left)
}

// ReportHeader is the boxed "<title> Report for SYMBOL / Date" header.
func ReportHeader(title, symbol, date string) string {
	return FormatBox([]string{title + " Report for " + symbol, "Date: " + date}, BoxWidth, BoxPadding)
}
