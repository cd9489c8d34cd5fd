// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"strconv"
	"strings"
)

// wordNumbers maps spelled-out counts to values. Covers the counts people
// actually say in "top five tracts" style questions.
var wordNumbers = map[string]float64{
	"one":     1,
	"two":     2,
	"three":   3,
	"four":    4,
	"five":    5,
	"six":     6,
	"seven":   7,
	"eight":   8,
	"nine":    9,
	"ten":     10,
	"fifteen": 15,
	"twenty":  20,
	"thirty":  30,
	"fifty":   50,
	"hundred": 100,
}

// NormalizeValue parses human value strings into numbers.
//
// # Description
//
// Handles the forms an LLM echoes back from questions: spelled-out words
// ("ten"), comma grouping ("1,500"), percentages ("20%" → 0.2), and k/m
// magnitude suffixes ("35k" → 35000, "1.5m" → 1500000).
//
// # Outputs
//
//   - float64: The parsed value.
//   - bool: False when the string is not a recognized numeric form.
func NormalizeValue(text string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0, false
	}

	if v, ok := wordNumbers[s]; ok {
		return v, true
	}

	s = strings.ReplaceAll(s, ",", "")

	if strings.Contains(s, "%") {
		num := strings.TrimSpace(strings.ReplaceAll(s, "%", ""))
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, false
		}
		return v / 100.0, true
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1_000
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		multiplier = 1_000_000
		s = strings.TrimSuffix(s, "m")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v * multiplier, true
}

// coerceNumber normalizes a JSON value that may arrive as a number or a
// human-form string. Returns nil when unparseable.
func coerceNumber(raw any) *float64 {
	switch v := raw.(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case string:
		if f, ok := NormalizeValue(v); ok {
			return &f
		}
	}
	return nil
}
