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

// =============================================================================
// Catalog and Resolution Types
// =============================================================================

// DerivedVariableID is the sentinel variable ID carried by candidates that
// resolve to a derived metric rather than a single published variable.
const DerivedVariableID = "DERIVED"

// VariableRecord is one entry in the ACS variable catalog.
//
// Description:
//
//	Records are built once per catalog snapshot from the Census variables
//	listing and are immutable afterwards. VariableID uniquely determines
//	Label and Concept within a snapshot.
type VariableRecord struct {
	// VariableID is the stable ACS identifier (e.g., "B19013_001E").
	VariableID string `json:"variable_id"`

	// Label is the raw human-readable description from the listing. It may
	// contain "!!" separator tokens; use CleanLabel before display.
	Label string `json:"label"`

	// Concept is the broader table title the variable belongs to.
	Concept string `json:"concept"`

	// SourceTable is the table family extracted from the identifier prefix
	// (e.g., "B19013"). Used only for ranking preference penalties.
	SourceTable string `json:"source_table"`

	// Description is a synthesized human-readable summary combining the
	// cleaned label, concept delta, and a coarse topic category.
	Description string `json:"description,omitempty"`
}

// ResolutionCandidate is one ranked answer from Resolve.
//
// Description:
//
//	Constructed fresh per call and immutable once returned. Score is a pure
//	ranking signal on a roughly 0–100 scale; additive adjustments can push
//	it outside that range, so it must not be read as a probability. Use
//	Confidence for the documented lossy [0,1] conversion.
type ResolutionCandidate struct {
	// VariableID is the resolved ACS variable, or DerivedVariableID.
	VariableID string `json:"variable_id"`

	// Label is the display label (cleaned for direct variables; the curated
	// label for derived metrics).
	Label string `json:"label"`

	// Concept is the catalog concept, or the canonical phrase for derived hits.
	Concept string `json:"concept"`

	// Description is the synthesized summary for direct variables.
	Description string `json:"description,omitempty"`

	// Score is the final ranking score. Unclamped.
	Score float64 `json:"score"`

	// IsDerived reports whether this candidate is a derived metric.
	IsDerived bool `json:"is_derived"`

	// Derived carries the metric definition when IsDerived is true.
	Derived *DerivedMetric `json:"-"`
}

// Confidence converts the ranking score to a [0,1] display value.
//
// Description:
//
//	Divides Score by 100 and clamps. This is a documented lossy conversion:
//	scores are not calibrated probabilities, and callers applying a
//	confidence threshold (the repository convention is 0.6) should treat
//	the result as a heuristic only.
func (c ResolutionCandidate) Confidence() float64 {
	conf := c.Score / 100.0
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}
