// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query executes structured census intents: resolve the measure,
// fetch tract data, compute derived values, and shape the result per task.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/BayouCensus/services/census"
	"github.com/AleutianAI/BayouCensus/services/intent"
	"github.com/AleutianAI/BayouCensus/services/resolver"
)

// =============================================================================
// Query Engine
// =============================================================================

const (
	// DefaultVintage is the ACS 5-year dataset year queried when none is
	// configured.
	DefaultVintage = 2023

	// confidenceThreshold is the minimum resolution confidence to execute a
	// query without asking the user to clarify the measure.
	confidenceThreshold = 0.6

	// resolveTopN candidates are considered; the first executes, the rest
	// feed clarification suggestions.
	resolveTopN = 5
)

var (
	queryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bayou",
		Subsystem: "query",
		Name:      "total",
		Help:      "Query executions by outcome (ok, clarify, error) and task",
	}, []string{"outcome", "task"})

	queryResultRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bayou",
		Subsystem: "query",
		Name:      "result_rows",
		Help:      "Result rows per executed query",
		Buckets:   []float64{0, 1, 10, 50, 200, 1_000},
	})
)

var queryTracer = otel.Tracer("bayou.query")

// tractNamePrefix strips the "Census Tract N" lead-in from Census display
// names, leaving the parish portion. Both comma and semicolon separators
// appear across API vintages.
var tractNamePrefix = regexp.MustCompile(`^Census Tract \d+(\.\d+)?[,;]\s*`)

// stateSuffix strips the trailing state name from Census display names.
var stateSuffix = regexp.MustCompile(`[,;]\s*Louisiana$`)

// measureResolver is the slice of resolver.Resolver the engine depends on.
type measureResolver interface {
	Resolve(ctx context.Context, phrase string, vintage int, topN int) ([]resolver.ResolutionCandidate, error)
}

// tractFetcher is the slice of census.Client the engine depends on.
type tractFetcher interface {
	FetchTracts(ctx context.Context, vintage int, varIDs []string, countyFIPS string) ([]census.Tract, error)
}

// TractRow is one tract in a query result.
type TractRow struct {
	// GEOID is the 11-digit tract identifier.
	GEOID string `json:"geoid"`

	// TractName is the cleaned display name (parish portion).
	TractName string `json:"tract_name"`

	// Value is the measure value for this tract.
	Value float64 `json:"value"`
}

// Result is the outcome of executing one intent.
type Result struct {
	// MeasureLabel is the display label of the resolved measure.
	MeasureLabel string `json:"measure_label"`

	// Candidate is the resolution that was executed.
	Candidate resolver.ResolutionCandidate `json:"candidate"`

	// Rows are the shaped result rows. Empty when nothing matched or when
	// clarification is needed.
	Rows []TractRow `json:"rows"`

	// Clarification is non-empty when the measure resolved too weakly to
	// execute; it lists the candidate interpretations for the user.
	Clarification string `json:"clarification,omitempty"`
}

// Engine executes intents end to end.
//
// # Thread Safety
//
// Safe for concurrent use.
type Engine struct {
	resolver measureResolver
	fetcher  tractFetcher
	areas    census.AreaProvider
	vintage  int
	logger   *slog.Logger
}

// NewEngine creates an Engine.
//
// # Inputs
//
//   - res: Measure resolver. Must not be nil.
//   - fetcher: Tract data source. Must not be nil.
//   - areas: Land areas for density metrics. May be nil; density queries
//     then fail with a descriptive error.
//   - vintage: ACS dataset year. Non-positive uses DefaultVintage.
//   - logger: Logger. May be nil.
func NewEngine(res measureResolver, fetcher tractFetcher, areas census.AreaProvider, vintage int, logger *slog.Logger) *Engine {
	if res == nil {
		panic("NewEngine: resolver must not be nil")
	}
	if fetcher == nil {
		panic("NewEngine: fetcher must not be nil")
	}
	if vintage <= 0 {
		vintage = DefaultVintage
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{resolver: res, fetcher: fetcher, areas: areas, vintage: vintage, logger: logger}
}

// Run executes one intent.
//
// # Description
//
// Pipeline: resolve the measure, short-circuit to a clarification result on
// weak confidence, fetch the component variables (joining land area for
// density metrics), compute per-tract values, drop tracts with missing
// values, rescale percentage thresholds given as fractions, then apply the
// task's filter/range/ranking shape.
//
// # Outputs
//
//   - Result: Rows plus resolution metadata, or a clarification.
//   - error: Resolution or fetch failure (resolver.ErrSourceUnavailable
//     passes through wrapped).
func (e *Engine) Run(ctx context.Context, it intent.Intent) (Result, error) {
	ctx, span := queryTracer.Start(ctx, "query.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("task", it.Task),
		attribute.String("measure", it.Measure),
		attribute.String("county", it.Geography.CountyFIPS),
	)

	candidates, err := e.resolver.Resolve(ctx, it.Measure, e.vintage, resolveTopN)
	if err != nil {
		queryTotal.WithLabelValues("error", it.Task).Inc()
		return Result{}, err
	}
	if len(candidates) == 0 {
		queryTotal.WithLabelValues("clarify", it.Task).Inc()
		return Result{
			Clarification: fmt.Sprintf("no census measure matches %q; try a different phrasing", it.Measure),
		}, nil
	}

	top := candidates[0]
	if top.Confidence() < confidenceThreshold {
		queryTotal.WithLabelValues("clarify", it.Task).Inc()
		return Result{
			Candidate:     top,
			Clarification: clarificationMessage(it.Measure, candidates),
		}, nil
	}

	rows, label, err := e.fetchValues(ctx, top, it.Geography.CountyFIPS)
	if err != nil {
		queryTotal.WithLabelValues("error", it.Task).Inc()
		return Result{}, err
	}

	shaped := shapeResult(rows, it, strings.Contains(label, "%"))

	queryTotal.WithLabelValues("ok", it.Task).Inc()
	queryResultRows.Observe(float64(len(shaped)))
	span.SetAttributes(attribute.Int("result_rows", len(shaped)))
	e.logger.Info("query executed",
		slog.String("task", it.Task),
		slog.String("measure_label", label),
		slog.Int("result_rows", len(shaped)),
	)

	return Result{MeasureLabel: label, Candidate: top, Rows: shaped}, nil
}

// fetchValues fetches the candidate's component variables and computes one
// value per tract, dropping tracts with missing values.
func (e *Engine) fetchValues(ctx context.Context, cand resolver.ResolutionCandidate, countyFIPS string) ([]TractRow, string, error) {
	var (
		varIDs []string
		label  string
	)
	if cand.IsDerived {
		varIDs = cand.Derived.VariableIDs
		label = cand.Derived.Label
	} else {
		varIDs = []string{cand.VariableID}
		label = cand.Label
	}

	tracts, err := e.fetcher.FetchTracts(ctx, e.vintage, varIDs, countyFIPS)
	if err != nil {
		return nil, "", fmt.Errorf("fetching %s: %w", label, err)
	}

	var areas map[string]float64
	if cand.IsDerived && cand.Derived.NeedsArea {
		if e.areas == nil {
			return nil, "", fmt.Errorf("%s requires tract areas but no area provider is configured", label)
		}
		areas, err = e.areas.TractAreas(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("loading tract areas: %w", err)
		}
	}

	rows := make([]TractRow, 0, len(tracts))
	for _, tract := range tracts {
		value := tractValue(tract, cand, areas)
		if math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		rows = append(rows, TractRow{
			GEOID:     tract.GEOID,
			TractName: cleanTractName(tract.Name),
			Value:     value,
		})
	}
	return rows, label, nil
}

// tractValue computes one tract's measure value.
func tractValue(tract census.Tract, cand resolver.ResolutionCandidate, areas map[string]float64) float64 {
	if !cand.IsDerived {
		v, ok := tract.Values[cand.VariableID]
		if !ok {
			return math.NaN()
		}
		return v
	}

	row := make(resolver.ValueRow, len(tract.Values)+1)
	for id, v := range tract.Values {
		row[id] = v
	}
	if cand.Derived.NeedsArea {
		if area, ok := areas[tract.GEOID]; ok {
			row[resolver.AreaKey] = area
		}
	}
	return cand.Derived.Formula(row)
}

// shapeResult applies the task semantics: threshold filters, range bounds,
// or ranking with a limit. Percentage-labeled measures given fractional
// thresholds (0.2 for 20%) are rescaled to the measure's 0-100 domain.
func shapeResult(rows []TractRow, it intent.Intent, isPercent bool) []TractRow {
	value := it.Value
	rangeMin := it.RangeMin
	rangeMax := it.RangeMax
	if isPercent && (it.Task == intent.TaskFilter || it.Task == intent.TaskRange) {
		value = rescaleFraction(value)
		rangeMin = rescaleFraction(rangeMin)
		rangeMax = rescaleFraction(rangeMax)
	}

	out := rows
	switch it.Task {
	case intent.TaskFilter:
		if it.Op != "" && value != nil {
			out = filterRows(out, it.Op, *value)
		}
		sortRows(out, false)

	case intent.TaskRange:
		if rangeMin != nil {
			out = filterRows(out, ">=", *rangeMin)
		}
		if rangeMax != nil {
			out = filterRows(out, "<=", *rangeMax)
		}
		sortRows(out, true)

	case intent.TaskTop, intent.TaskBottom:
		sortRows(out, it.Sort == intent.SortAsc)
		limit := it.Limit
		if limit <= 0 {
			limit = 10
		}
		if limit < len(out) {
			out = out[:limit]
		}
	}
	return out
}

// rescaleFraction converts a fractional percentage threshold to the 0-100
// scale. Values of 1 or more are already on the percent scale.
func rescaleFraction(v *float64) *float64 {
	if v == nil || *v >= 1 {
		return v
	}
	scaled := *v * 100
	return &scaled
}

// filterRows keeps rows whose value satisfies op against threshold.
func filterRows(rows []TractRow, op string, threshold float64) []TractRow {
	out := rows[:0]
	for _, row := range rows {
		keep := false
		switch op {
		case ">=":
			keep = row.Value >= threshold
		case "<=":
			keep = row.Value <= threshold
		case ">":
			keep = row.Value > threshold
		case "<":
			keep = row.Value < threshold
		case "=":
			keep = row.Value == threshold
		}
		if keep {
			out = append(out, row)
		}
	}
	return out
}

// sortRows orders rows by value, breaking ties by GEOID so identical inputs
// always produce identical output order.
func sortRows(rows []TractRow, ascending bool) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Value != rows[j].Value {
			if ascending {
				return rows[i].Value < rows[j].Value
			}
			return rows[i].Value > rows[j].Value
		}
		return rows[i].GEOID < rows[j].GEOID
	})
}

// cleanTractName reduces a Census display name to its parish portion.
func cleanTractName(name string) string {
	s := tractNamePrefix.ReplaceAllString(name, "")
	s = stateSuffix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// clarificationMessage lists candidate interpretations for a weak resolution.
func clarificationMessage(measure string, candidates []resolver.ResolutionCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q did not match a census measure confidently. Did you mean one of:", measure)
	n := len(candidates)
	if n > 3 {
		n = 3
	}
	for _, cand := range candidates[:n] {
		fmt.Fprintf(&b, "\n  - %s (%s)", cand.Label, cand.VariableID)
	}
	return b.String()
}
