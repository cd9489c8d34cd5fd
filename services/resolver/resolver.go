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
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bayou",
	Subsystem: "resolver",
	Name:      "resolve_total",
	Help:      "Measure resolutions by kind (derived, direct, empty)",
}, []string{"kind"})

// =============================================================================
// OTel Tracer
// =============================================================================

var resolverTracer = otel.Tracer("bayou.resolver")

// =============================================================================
// Resolver Facade
// =============================================================================

// Resolver maps measure phrases to ranked resolution candidates.
//
// # Description
//
// Orchestrates the pipeline: normalize → derived registry → catalog cache →
// scoring engine. The precedence is deliberate: a curated derived-metric
// match always wins over fuzzy catalog matches, even when a catalog entry
// would score higher superficially, because the registry encodes verified
// analytical intent.
//
// # Thread Safety
//
// Safe for concurrent use.
type Resolver struct {
	cache   *CatalogCache
	scoring *ScoringEngine
	logger  *slog.Logger
}

// NewResolver creates a Resolver.
//
// # Inputs
//
//   - cache: Catalog source. Must not be nil.
//   - scoring: Scoring engine. Must not be nil.
//   - logger: Logger. May be nil.
func NewResolver(cache *CatalogCache, scoring *ScoringEngine, logger *slog.Logger) *Resolver {
	if cache == nil {
		panic("NewResolver: cache must not be nil")
	}
	if scoring == nil {
		panic("NewResolver: scoring must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cache: cache, scoring: scoring, logger: logger}
}

// Resolve maps a free-text measure phrase to ranked candidates.
//
// # Description
//
// A phrase normalizing to a registered derived metric returns exactly one
// candidate with score 100 and IsDerived set, regardless of catalog
// contents — derived metrics are singular identifications, so topN is moot
// on that path. Otherwise the full catalog for the vintage is scored and
// the top N candidates are returned in descending score order.
//
// May block on network I/O when the catalog cache is cold; wrap the context
// with a deadline if an upper bound is needed. The resolver itself applies
// no timeout or retry beyond the cache's stale-fallback behavior.
//
// Low or even negative scores are returned rather than suppressed: the
// resolver never invents a match and never raises on "no good match".
// Callers apply their own confidence threshold (convention: 0.6 on the
// Confidence scale) before trusting a candidate.
//
// # Outputs
//
//   - []ResolutionCandidate: At most topN candidates; empty when the
//     catalog is empty. min(topN, candidateCount) entries otherwise.
//   - error: ErrSourceUnavailable (wrapped) on a cold catalog fetch failure.
//
// # Thread Safety
//
// Safe for concurrent use.
func (r *Resolver) Resolve(ctx context.Context, phrase string, vintage int, topN int) ([]ResolutionCandidate, error) {
	ctx, span := resolverTracer.Start(ctx, "resolver.Resolve")
	defer span.End()

	canonical := Normalize(phrase)
	span.SetAttributes(
		attribute.String("measure.phrase", phrase),
		attribute.String("measure.canonical", canonical),
		attribute.Int("vintage", vintage),
	)

	if metric, ok := LookupDerived(canonical); ok {
		resolveTotal.WithLabelValues("derived").Inc()
		span.SetAttributes(attribute.Bool("derived", true))
		r.logger.Debug("measure resolved to derived metric",
			slog.String("canonical", canonical),
			slog.String("label", metric.Label),
		)
		return []ResolutionCandidate{derivedCandidate(metric)}, nil
	}

	catalog, err := r.cache.Catalog(ctx, vintage)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", canonical, err)
	}

	candidates := r.scoring.ScoreAndRank(canonical, catalog, topN)
	if len(candidates) == 0 {
		resolveTotal.WithLabelValues("empty").Inc()
		return []ResolutionCandidate{}, nil
	}

	resolveTotal.WithLabelValues("direct").Inc()
	span.SetAttributes(
		attribute.Int("candidate_count", len(candidates)),
		attribute.Float64("top_score", candidates[0].Score),
	)
	r.logger.Debug("measure resolved against catalog",
		slog.String("canonical", canonical),
		slog.String("top_variable", candidates[0].VariableID),
		slog.Float64("top_score", candidates[0].Score),
	)
	return candidates, nil
}

// DerivedMetricInfo returns the derived metric for a measure phrase, when
// one is registered, without consulting the catalog or scoring.
//
// # Description
//
// Secondary accessor for callers that already know they want a derived
// metric (e.g., the query engine re-reading formula metadata after a
// resolve). Applies the same normalization as Resolve.
func (r *Resolver) DerivedMetricInfo(measure string) (DerivedMetric, bool) {
	return LookupDerived(Normalize(measure))
}

// derivedCandidate builds the fixed-certainty candidate for a derived hit.
func derivedCandidate(metric DerivedMetric) ResolutionCandidate {
	m := metric
	return ResolutionCandidate{
		VariableID: DerivedVariableID,
		Label:      metric.Label,
		Concept:    metric.Name,
		Score:      100.0,
		IsDerived:  true,
		Derived:    &m,
	}
}
