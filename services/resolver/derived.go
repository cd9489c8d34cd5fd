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

import "math"

// =============================================================================
// Derived Metric Registry
// =============================================================================
//
// Derived metrics are curated ratios computed from multiple published
// variables (plus tract land area for density). A derived entry always wins
// over a fuzzy catalog match for the same phrase: the registry encodes
// verified analytical intent — "poverty rate" is the ratio, never whichever
// raw variable happens to have a similar label.
//
// The registry is static, built once at package init, and never mutated at
// runtime. Every variable a Formula reads must be listed in VariableIDs so
// callers know what to fetch before evaluating.

// AreaKey is the ValueRow key carrying tract land area in km² for metrics
// with NeedsArea set. The value is supplied by the caller from an area
// provider; it is not an ACS variable.
const AreaKey = "area_km2"

// ValueRow is one geographic unit's fetched values, keyed by variable ID
// (plus AreaKey when area was joined). Missing keys read as NaN.
type ValueRow map[string]float64

// Get returns the value for key, or NaN when the key is absent.
func (r ValueRow) Get(key string) float64 {
	if v, ok := r[key]; ok {
		return v
	}
	return math.NaN()
}

// Formula computes a derived metric value from one row of fetched values.
//
// Formulas are pure and total: missing or NaN inputs propagate NaN rather
// than panicking, so downstream shaping can drop incomplete rows.
type Formula func(row ValueRow) float64

// DerivedMetric is a named ratio in the fixed registry.
type DerivedMetric struct {
	// Name is the canonical measure phrase (post-normalization) that
	// triggers this entry.
	Name string

	// Label is the display label. The "%" marker is load-bearing: callers
	// use it for unit-scaling heuristics on filter thresholds.
	Label string

	// VariableIDs lists every ACS variable the Formula consumes, in the
	// order they should be requested.
	VariableIDs []string

	// NeedsArea reports whether the Formula additionally reads AreaKey.
	NeedsArea bool

	// Formula combines the fetched values into a single numeric column.
	Formula Formula
}

// derivedMetrics is the fixed registry, keyed by canonical name.
var derivedMetrics = map[string]DerivedMetric{
	"population density": {
		Name:        "population density",
		Label:       "Population Density (per km²)",
		VariableIDs: []string{"B01003_001E"},
		NeedsArea:   true,
		Formula: func(row ValueRow) float64 {
			return row.Get("B01003_001E") / row.Get(AreaKey)
		},
	},
	"poverty rate": {
		Name:        "poverty rate",
		Label:       "Poverty Rate (%)",
		VariableIDs: []string{"B17001_002E", "B01001_001E"},
		Formula: func(row ValueRow) float64 {
			return row.Get("B17001_002E") / row.Get("B01001_001E") * 100
		},
	},
	"african american share": {
		Name:        "african american share",
		Label:       "African American Population Share (%)",
		VariableIDs: []string{"B02001_003E", "B02001_001E"},
		Formula: func(row ValueRow) float64 {
			return row.Get("B02001_003E") / row.Get("B02001_001E") * 100
		},
	},
}

// LookupDerived returns the derived metric registered under the given
// canonical phrase.
//
// # Description
//
// Pure O(1) map lookup. The phrase must already be normalized — callers go
// through Normalize first. When found, resolution short-circuits and the
// scoring engine is never consulted.
//
// # Thread Safety
//
// Safe for concurrent use (registry is immutable).
func LookupDerived(canonical string) (DerivedMetric, bool) {
	m, ok := derivedMetrics[canonical]
	return m, ok
}
