// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import "strings"

// =============================================================================
// Label Cleaning
// =============================================================================

// topicCategories maps table-prefix families to coarse topic names used when
// synthesizing variable descriptions. Keyed by prefix; first match wins.
var topicCategories = []struct {
	prefix string
	topic  string
}{
	{"B01", "Population and Age"},
	{"B02", "Race"},
	{"B03", "Hispanic/Latino Origin"},
	{"B17", "Poverty Status"},
	{"B19", "Income"},
	{"B23", "Employment Status"},
	{"B25", "Housing Characteristics"},
}

// CleanLabel strips ACS structural markers from a variable label for display.
//
// Description:
//
//	Removes "Estimate!!" and "Annotation!!" prefixes, replaces remaining
//	"!!" separators with single spaces, collapses whitespace runs, and
//	trims. Safe on empty input.
//
// Example:
//
//	CleanLabel("Estimate!!Total!!Population") == "Total Population"
func CleanLabel(label string) string {
	if label == "" {
		return label
	}

	label = strings.ReplaceAll(label, "Estimate!!", "")
	label = strings.ReplaceAll(label, "Annotation!!", "")
	label = strings.ReplaceAll(label, "!!", " ")

	return strings.Join(strings.Fields(label), " ")
}

// describeVariable synthesizes a human-readable summary for a catalog record.
//
// Description:
//
//	Combines the cleaned label, the concept when it adds information beyond
//	the label, a coarse topic category inferred from the table prefix, and
//	a main-estimate note for _001E variables. The output exists to help
//	agent layers understand what a variable measures; it is never parsed.
func describeVariable(varID, label, concept string) string {
	cleanLabel := CleanLabel(label)

	var parts []string
	if cleanLabel != "" {
		parts = append(parts, "Measures: "+cleanLabel)
	}

	if concept != "" && !strings.EqualFold(concept, cleanLabel) {
		cleanConcept := CleanLabel(concept)
		if !strings.Contains(strings.ToLower(cleanLabel), strings.ToLower(cleanConcept)) {
			parts = append(parts, "Context: "+cleanConcept)
		}
	}

	tablePrefix, _, _ := strings.Cut(varID, "_")
	for _, tc := range topicCategories {
		if strings.HasPrefix(tablePrefix, tc.prefix) {
			parts = append(parts, "Category: "+tc.topic)
			break
		}
	}

	if strings.HasSuffix(varID, mainEstimateSuffix) {
		parts = append(parts, "Type: Main estimate or total")
	}

	if len(parts) == 0 {
		return cleanLabel
	}
	return strings.Join(parts, " | ")
}
