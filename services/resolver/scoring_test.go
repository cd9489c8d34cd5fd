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

import (
	"math"
	"reflect"
	"testing"
)

func newTestEngine(t *testing.T) *ScoringEngine {
	t.Helper()
	engine, err := NewScoringEngine(nil, nil)
	if err != nil {
		t.Fatalf("NewScoringEngine: %v", err)
	}
	return engine
}

// rec builds a minimal catalog record for scoring tests.
func rec(id, label, concept string) VariableRecord {
	return VariableRecord{
		VariableID:  id,
		Label:       label,
		Concept:     concept,
		SourceTable: extractSourceTable(id),
	}
}

// =============================================================================
// Ordering Property Tests
// =============================================================================
//
// The token-set similarity of a phrase against any superset of its tokens is
// 100, so pairs of records whose labels differ only by an appended token have
// identical base similarity. That isolates each penalty or boost as the sole
// ordering signal between the pair.

func TestScoreAndRank_DemographicPenaltyOrdersPair(t *testing.T) {
	engine := newTestEngine(t)
	catalog := []VariableRecord{
		rec("B98001_002E", "Estimate!!Total population veteran", "Total Population"),
		rec("B99001_002E", "Estimate!!Total population", "Total Population"),
	}

	got := engine.ScoreAndRank("total population", catalog, 2)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].VariableID != "B99001_002E" {
		t.Errorf("general-population record must outrank demographic one, got %q first", got[0].VariableID)
	}

	rules, _ := LoadScoringRules()
	delta := got[0].Score - got[1].Score
	if math.Abs(delta-rules.DemographicPenalty) > 1e-9 {
		t.Errorf("score delta = %v, want demographic penalty %v", delta, rules.DemographicPenalty)
	}
}

func TestScoreAndRank_MainEstimateBoostOrdersPair(t *testing.T) {
	engine := newTestEngine(t)
	catalog := []VariableRecord{
		rec("B99001_002E", "Estimate!!Total population", "Total Population"),
		rec("B99001_001E", "Estimate!!Total population", "Total Population"),
	}

	got := engine.ScoreAndRank("total population", catalog, 2)
	if got[0].VariableID != "B99001_001E" {
		t.Errorf("main estimate must outrank sub-estimate, got %q first", got[0].VariableID)
	}

	rules, _ := LoadScoringRules()
	delta := got[0].Score - got[1].Score
	if math.Abs(delta-rules.MainEstimateBoost) > 1e-9 {
		t.Errorf("score delta = %v, want main-estimate boost %v", delta, rules.MainEstimateBoost)
	}
}

func TestScoreAndRank_TablePreferenceOrdersPair(t *testing.T) {
	engine := newTestEngine(t)
	// Same text, same sub-estimate suffix; only the table family differs.
	catalog := []VariableRecord{
		rec("B99001_002E", "Estimate!!Total population", "Total Population"),
		rec("DP05_0002E", "Estimate!!Total population", "Total Population"),
		rec("S0101_C01_002E", "Estimate!!Total population", "Total Population"),
		rec("C15002_002E", "Estimate!!Total population", "Total Population"),
	}

	got := engine.ScoreAndRank("total population", catalog, 4)
	wantOrder := []string{"DP05_0002E", "S0101_C01_002E", "B99001_002E", "C15002_002E"}
	for i, id := range wantOrder {
		if got[i].VariableID != id {
			t.Errorf("rank %d = %q, want %q (table preference DP < S < B < other)", i, got[i].VariableID, id)
		}
	}
}

func TestScoreAndRank_TieBreaksByVariableID(t *testing.T) {
	engine := newTestEngine(t)
	catalog := []VariableRecord{
		rec("B99001_004E", "Estimate!!Total population", "Total Population"),
		rec("B99001_002E", "Estimate!!Total population", "Total Population"),
		rec("B99001_003E", "Estimate!!Total population", "Total Population"),
	}

	got := engine.ScoreAndRank("total population", catalog, 3)
	wantOrder := []string{"B99001_002E", "B99001_003E", "B99001_004E"}
	for i, id := range wantOrder {
		if got[i].VariableID != id {
			t.Errorf("rank %d = %q, want %q", i, got[i].VariableID, id)
		}
	}
}

func TestScoreAndRank_Deterministic(t *testing.T) {
	engine := newTestEngine(t)
	catalog := []VariableRecord{
		rec("B19013_001E", "Estimate!!Median household income in the past 12 months", "Median Household Income"),
		rec("B01003_001E", "Estimate!!Total", "Total Population"),
		rec("DP05_0001E", "Estimate!!SEX AND AGE!!Total population", "ACS Demographic Estimates"),
		rec("B17001_002E", "Estimate!!Income in the past 12 months below poverty level", "Poverty Status"),
	}

	first := engine.ScoreAndRank("median household income", catalog, 4)
	for i := 0; i < 5; i++ {
		again := engine.ScoreAndRank("median household income", catalog, 4)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs from first:\nfirst: %+v\nagain: %+v", i, first, again)
		}
	}
}

// =============================================================================
// Boundary Tests
// =============================================================================

func TestScoreAndRank_TopNRespected(t *testing.T) {
	engine := newTestEngine(t)
	catalog := []VariableRecord{
		rec("B99001_001E", "Estimate!!Total population", "Total Population"),
		rec("B99001_002E", "Estimate!!Total population male", "Total Population"),
		rec("B99001_003E", "Estimate!!Total population female", "Total Population"),
	}

	if got := engine.ScoreAndRank("total population", catalog, 2); len(got) != 2 {
		t.Errorf("topN=2 returned %d candidates", len(got))
	}
	if got := engine.ScoreAndRank("total population", catalog, 10); len(got) != 3 {
		t.Errorf("topN beyond catalog size returned %d candidates, want 3", len(got))
	}
	if got := engine.ScoreAndRank("total population", catalog, 0); got != nil {
		t.Errorf("topN=0 returned %v, want nil", got)
	}
}

func TestScoreAndRank_EmptyCatalog(t *testing.T) {
	engine := newTestEngine(t)
	if got := engine.ScoreAndRank("total population", nil, 5); got != nil {
		t.Errorf("empty catalog returned %v, want nil", got)
	}
}

func TestScoreAndRank_NegativeScoresNotClamped(t *testing.T) {
	engine := newTestEngine(t)
	// Zero token overlap with a demographic-qualified sub-estimate in an
	// unlisted table family: every adjustment is a penalty.
	catalog := []VariableRecord{
		rec("C15002_002E", "Estimate!!Veteran!!Bachelor's degree", "Veteran Status by Educational Attainment"),
	}

	got := engine.ScoreAndRank("zzz qqq xxx", catalog, 1)
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].Score >= 0 {
		t.Errorf("expected negative score for penalized zero-overlap record, got %v", got[0].Score)
	}
}

func TestScoreAndRank_CandidateLabelCleaned(t *testing.T) {
	engine := newTestEngine(t)
	catalog := []VariableRecord{
		rec("B19013_001E", "Estimate!!Median household income", "Median Household Income"),
	}

	got := engine.ScoreAndRank("median household income", catalog, 1)
	if got[0].Label != "Median household income" {
		t.Errorf("candidate label = %q, want cleaned form", got[0].Label)
	}
}

// =============================================================================
// Rules Tests
// =============================================================================

func TestLoadScoringRules(t *testing.T) {
	rules, err := LoadScoringRules()
	if err != nil {
		t.Fatalf("LoadScoringRules: %v", err)
	}
	if math.Abs(rules.LabelWeight+rules.ConceptWeight-1.0) > 1e-9 {
		t.Errorf("label+concept weights = %v, want 1.0", rules.LabelWeight+rules.ConceptWeight)
	}
	if rules.LabelWeight <= rules.ConceptWeight {
		t.Error("label weight must dominate concept weight")
	}
	if len(rules.DemographicKeywords) == 0 {
		t.Error("expected non-empty demographic keyword list")
	}
}

func TestTablePenalty(t *testing.T) {
	rules, _ := LoadScoringRules()
	tests := []struct {
		table string
		want  float64
	}{
		{"DP05", 0.0},
		{"S1701", 0.5},
		{"B01003", 1.0},
		{"C15002", rules.UnlistedTablePenalty},
		{"", rules.UnlistedTablePenalty},
	}

	for _, tt := range tests {
		if got := rules.tablePenalty(tt.table); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("tablePenalty(%q) = %v, want %v", tt.table, got, tt.want)
		}
	}
}

func TestHasDemographicQualifier(t *testing.T) {
	rules, _ := LoadScoringRules()
	tests := []struct {
		text string
		want bool
	}{
		{"Estimate!!Male householder!!No spouse present", true},
		{"Veteran status", true},
		{"HISPANIC OR LATINO ORIGIN", true},
		{"Estimate!!Total!!Male", false},
		{"Estimate!!Total", false},
		{"Median Household Income", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := rules.hasDemographicQualifier(tt.text); got != tt.want {
			t.Errorf("hasDemographicQualifier(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
