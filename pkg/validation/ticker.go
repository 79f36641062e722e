// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for security identifiers.
//
// Identifiers end up in provider URLs, Flux queries and LLM prompts, so every
// entry point (CLI, HTTP, pipeline) normalizes and checks them here first.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidTicker is wrapped by every validation failure.
var ErrInvalidTicker = errors.New("invalid ticker")

// tickerPattern matches valid security identifiers.
// Allows: an optional leading caret for indices (^GSPC), uppercase letters,
// digits, dots (BRK.A), hyphens (BF-B, BTC-USD) and equals signs for
// futures and currencies (ES=F, EURUSD=X).
// Max length: 12 characters including the caret.
var tickerPattern = regexp.MustCompile(`^\^?[A-Z0-9][A-Z0-9.\-=]{0,10}$`)

// ValidateTicker validates a security identifier.
//
// Valid tickers:
//   - 1-12 characters
//   - Optional leading ^ for indices
//   - Uppercase letters A-Z and digits 0-9
//   - Dots, hyphens and equals signs after the first character
//
// Example:
//
//	if err := validation.ValidateTicker(ticker); err != nil {
//	    return nil, fmt.Errorf("invalid ticker: %w", err)
//	}
func ValidateTicker(ticker string) error {
	if ticker == "" {
		return fmt.Errorf("%w: ticker cannot be empty", ErrInvalidTicker)
	}

	if !tickerPattern.MatchString(ticker) {
		return fmt.Errorf("%w: %q (must be 1-12 uppercase alphanumeric chars, dots, hyphens or '=', optionally prefixed by '^')",
			ErrInvalidTicker, ticker)
	}

	return nil
}

// ValidateTickers validates multiple identifiers.
// Returns an error listing all invalid tickers if any fail validation.
func ValidateTickers(tickers []string) error {
	var invalid []string
	for _, t := range tickers {
		if err := ValidateTicker(t); err != nil {
			invalid = append(invalid, t)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTicker, invalid)
	}
	return nil
}

// SanitizeTicker normalizes and validates an identifier.
// Returns the uppercase ticker if valid, or an error if invalid.
//
//	safeTicker, err := validation.SanitizeTicker(userInput)
//	if err != nil {
//	    return err
//	}
func SanitizeTicker(ticker string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(ticker))
	if err := ValidateTicker(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
