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
	_ "embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	scoringLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bayou",
		Subsystem: "scoring",
		Name:      "latency_seconds",
		Help:      "Full-catalog scoring pass latency",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	scoringCatalogSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bayou",
		Subsystem: "scoring",
		Name:      "catalog_size",
		Help:      "Number of catalog records scored per pass",
		Buckets:   []float64{0, 100, 1_000, 10_000, 30_000, 60_000},
	})
)

// =============================================================================
// Scoring Rules Configuration
// =============================================================================

//go:embed scoring_rules.yaml
var defaultScoringRulesYAML []byte

// TablePreference assigns a ranking penalty to a table-family prefix.
type TablePreference struct {
	// Prefix is matched against the start of the record's SourceTable.
	Prefix string `yaml:"prefix"`

	// Penalty is subtracted from the record's score when the prefix matches.
	Penalty float64 `yaml:"penalty"`
}

// ScoringRules holds the weights, penalties, and keyword lists the scoring
// engine applies on top of raw text similarity.
//
// # Description
//
// The defaults are hand-tuned magic constants. They are deliberately
// configuration, not code: the load-bearing contract is the relative
// ordering they induce, and deployments may retune the numbers without a
// rebuild of ranking logic.
//
// # Thread Safety
//
// Immutable after loading; safe for concurrent use.
type ScoringRules struct {
	// LabelWeight and ConceptWeight form the composite base score:
	// base = LabelWeight*labelSimilarity + ConceptWeight*conceptSimilarity.
	LabelWeight   float64 `yaml:"label_weight"`
	ConceptWeight float64 `yaml:"concept_weight"`

	// DemographicPenalty is subtracted when label or concept carries a
	// demographic/eligibility qualifier keyword.
	DemographicPenalty float64 `yaml:"demographic_penalty"`

	// MainEstimateBoost is added for _001E main/total estimate variables.
	MainEstimateBoost float64 `yaml:"main_estimate_boost"`

	// TablePreferences is the ordered prefix→penalty table; first match wins.
	TablePreferences []TablePreference `yaml:"table_preferences"`

	// UnlistedTablePenalty applies when no preference prefix matches
	// (including records with no recognizable table prefix at all).
	UnlistedTablePenalty float64 `yaml:"unlisted_table_penalty"`

	// DemographicKeywords are lowercased substrings that mark a variable as
	// scoped to a sub-population rather than the general population.
	DemographicKeywords []string `yaml:"demographic_keywords"`
}

var (
	cachedScoringRules *ScoringRules
	scoringRulesOnce   sync.Once
	scoringRulesErr    error
)

// LoadScoringRules loads and caches the embedded scoring rules.
//
// # Thread Safety
//
// Safe for concurrent use (uses sync.Once internally).
func LoadScoringRules() (*ScoringRules, error) {
	scoringRulesOnce.Do(func() {
		var rules ScoringRules
		if err := yaml.Unmarshal(defaultScoringRulesYAML, &rules); err != nil {
			scoringRulesErr = fmt.Errorf("parsing scoring_rules.yaml: %w", err)
			return
		}
		cachedScoringRules = &rules
		slog.Debug("scoring rules loaded",
			slog.Int("table_preference_count", len(rules.TablePreferences)),
			slog.Int("demographic_keyword_count", len(rules.DemographicKeywords)),
		)
	})
	return cachedScoringRules, scoringRulesErr
}

// tablePenalty returns the preference penalty for a source table family.
func (r *ScoringRules) tablePenalty(sourceTable string) float64 {
	if sourceTable == "" {
		return r.UnlistedTablePenalty
	}
	for _, tp := range r.TablePreferences {
		if strings.HasPrefix(sourceTable, tp.Prefix) {
			return tp.Penalty
		}
	}
	return r.UnlistedTablePenalty
}

// hasDemographicQualifier reports whether the text names a sub-population or
// tenure qualifier. Text is lowercased before matching.
func (r *ScoringRules) hasDemographicQualifier(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range r.DemographicKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// =============================================================================
// Scoring Engine
// =============================================================================

// ScoringEngine ranks catalog records against a canonical measure phrase.
//
// # Description
//
// Every record is scored independently — there is no early pruning except
// the final top-N cut, so penalty and boost policies always see the full
// field. Text similarity is an order-insensitive token-set ratio (0–100)
// computed separately against the label and the concept.
//
// # Thread Safety
//
// Safe for concurrent use (all state is read-only after construction).
type ScoringEngine struct {
	rules  *ScoringRules
	logger *slog.Logger
}

// NewScoringEngine creates a ScoringEngine.
//
// # Inputs
//
//   - rules: Scoring rules. Pass nil to use the embedded defaults.
//   - logger: Logger. May be nil.
func NewScoringEngine(rules *ScoringRules, logger *slog.Logger) (*ScoringEngine, error) {
	if rules == nil {
		loaded, err := LoadScoringRules()
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScoringEngine{rules: rules, logger: logger}, nil
}

// ScoreAndRank scores every catalog record against the canonical phrase and
// returns the top N candidates in descending score order.
//
// # Description
//
// Per-record pipeline:
//
//	base    = labelWeight*tokenSet(phrase, label) + conceptWeight*tokenSet(phrase, concept)
//	final   = base − demographicPenalty? + mainEstimateBoost? − tablePenalty
//
// Scores are not clamped: additive adjustments can push them above 100 or
// below 0. They are a ranking signal only. Ties break by ascending
// VariableID, so identical inputs always produce identical output order.
//
// A phrase with no token overlap still ranks (scores driven purely by
// penalties and boosts, possibly negative); "no good match" is the caller's
// judgment via a confidence threshold, never an error here.
//
// # Inputs
//
//   - canonical: The normalized measure phrase.
//   - catalog: Catalog records. Empty yields an empty result, not an error.
//   - topN: Maximum candidates to return. Non-positive yields nil.
//
// # Thread Safety
//
// Safe for concurrent use.
func (e *ScoringEngine) ScoreAndRank(canonical string, catalog []VariableRecord, topN int) []ResolutionCandidate {
	if len(catalog) == 0 || topN <= 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		scoringLatency.Observe(time.Since(start).Seconds())
		scoringCatalogSize.Observe(float64(len(catalog)))
	}()

	type scoredRecord struct {
		record *VariableRecord
		score  float64
	}

	scored := make([]scoredRecord, len(catalog))
	for i := range catalog {
		rec := &catalog[i]

		labelSim := float64(fuzzy.TokenSetRatio(canonical, strings.ToLower(rec.Label)))
		conceptSim := float64(fuzzy.TokenSetRatio(canonical, strings.ToLower(rec.Concept)))

		score := e.rules.LabelWeight*labelSim + e.rules.ConceptWeight*conceptSim

		if e.rules.hasDemographicQualifier(rec.Label) || e.rules.hasDemographicQualifier(rec.Concept) {
			score -= e.rules.DemographicPenalty
		}
		if strings.HasSuffix(rec.VariableID, mainEstimateSuffix) {
			score += e.rules.MainEstimateBoost
		}
		score -= e.rules.tablePenalty(rec.SourceTable)

		scored[i] = scoredRecord{record: rec, score: score}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].record.VariableID < scored[j].record.VariableID
	})

	if topN > len(scored) {
		topN = len(scored)
	}

	candidates := make([]ResolutionCandidate, topN)
	for i := 0; i < topN; i++ {
		rec := scored[i].record
		candidates[i] = ResolutionCandidate{
			VariableID:  rec.VariableID,
			Label:       CleanLabel(rec.Label),
			Concept:     rec.Concept,
			Description: rec.Description,
			Score:       scored[i].score,
		}
	}
	return candidates
}
