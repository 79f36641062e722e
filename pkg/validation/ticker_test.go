// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"errors"
	"testing"
)

func TestValidateTicker(t *testing.T) {
	tests := []struct {
		name    string
		ticker  string
		wantErr bool
	}{
		// Valid tickers
		{"simple", "SPY", false},
		{"single char", "A", false},
		{"with digit", "SPY500", false},
		{"class share dot", "BRK.A", false},
		{"class share hyphen", "BF-B", false},
		{"crypto pair", "BTC-USD", false},
		{"index", "^GSPC", false},
		{"future", "ES=F", false},
		{"currency", "EURUSD=X", false},
		{"max length", "ABCDEFGHIJK", false},
		{"all digits", "1234567890", false},

		// Invalid tickers - injection attempts
		{"empty", "", true},
		{"injection attempt", `SPY") |> drop()`, true},
		{"sql injection", "SPY'; DROP TABLE--", true},
		{"newline injection", "SPY\n|> drop()", true},
		{"lowercase", "spy", true},
		{"too long", "ABCDEFGHIJKL", true},
		{"special chars", "SPY@#$", true},
		{"spaces", "SP Y", true},
		{"unicode", "SPY™", true},
		{"starts with dot", ".SPY", true},
		{"starts with hyphen", "-SPY", true},
		{"double caret", "^^GSPC", true},
		{"caret only", "^", true},
		{"caret inside", "GS^PC", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTicker(tt.ticker)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTicker(%q) error = %v, wantErr %v", tt.ticker, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTicker) {
				t.Errorf("ValidateTicker(%q) error = %v, want it to wrap ErrInvalidTicker", tt.ticker, err)
			}
		})
	}
}

func TestValidateTickers(t *testing.T) {
	tests := []struct {
		name    string
		tickers []string
		wantErr bool
	}{
		{"all valid", []string{"SPY", "QQQ", "AAPL"}, false},
		{"one invalid", []string{"SPY", "bad!", "AAPL"}, true},
		{"all invalid", []string{"spy", "qqq"}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTickers(tt.tickers)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTickers(%v) error = %v, wantErr %v", tt.tickers, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeTicker(t *testing.T) {
	tests := []struct {
		name    string
		ticker  string
		want    string
		wantErr bool
	}{
		{"uppercase passthrough", "SPY", "SPY", false},
		{"lowercase normalized", "spy", "SPY", false},
		{"mixed case", "SpY", "SPY", false},
		{"with spaces trimmed", "  SPY  ", "SPY", false},
		{"index lowercased", "^gspc", "^GSPC", false},
		{"invalid rejected", "bad!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeTicker(tt.ticker)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeTicker(%q) error = %v, wantErr %v", tt.ticker, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeTicker(%q) = %q, want %q", tt.ticker, got, tt.want)
			}
		})
	}
}
