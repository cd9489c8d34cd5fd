// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package census

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
)

// =============================================================================
// Tract Land Areas
// =============================================================================
//
// Density metrics divide by tract land area in km². Areas come from
// TIGER/Line tract geometry, which is computed offline (the service performs
// no geometry work) and distributed as a CSV of GEOID,area_km2 pairs.

// AreaProvider supplies tract land areas keyed by GEOID.
type AreaProvider interface {
	// TractAreas returns land area in km² for every known tract.
	TractAreas(ctx context.Context) (map[string]float64, error)
}

// FileAreaProvider implements AreaProvider from a CSV file with a
// GEOID,area_km2 header row.
//
// # Thread Safety
//
// Safe for concurrent use; the file is read once and cached.
type FileAreaProvider struct {
	path   string
	logger *slog.Logger

	once  sync.Once
	areas map[string]float64
	err   error
}

// NewFileAreaProvider creates a FileAreaProvider for the given CSV path. The
// file is not opened until the first TractAreas call.
func NewFileAreaProvider(path string, logger *slog.Logger) *FileAreaProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileAreaProvider{path: path, logger: logger}
}

// TractAreas loads and returns the area table. The returned map is shared
// and must be treated as read-only.
func (p *FileAreaProvider) TractAreas(ctx context.Context) (map[string]float64, error) {
	p.once.Do(func() {
		p.areas, p.err = p.load()
	})
	if p.err != nil {
		return nil, p.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.areas, nil
}

func (p *FileAreaProvider) load() (map[string]float64, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("census: opening area file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("census: reading area file header: %w", err)
	}

	geoidIdx, areaIdx := -1, -1
	for i, col := range header {
		switch col {
		case "GEOID":
			geoidIdx = i
		case "area_km2":
			areaIdx = i
		}
	}
	if geoidIdx < 0 || areaIdx < 0 {
		return nil, fmt.Errorf("census: area file %s missing GEOID or area_km2 column", p.path)
	}

	areas := make(map[string]float64)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("census: reading area file: %w", err)
		}

		area, err := strconv.ParseFloat(row[areaIdx], 64)
		if err != nil {
			// A malformed row is skipped, not fatal: tracts without an area
			// simply produce NaN density downstream.
			p.logger.Warn("skipping malformed area row",
				slog.String("geoid", row[geoidIdx]),
				slog.String("value", row[areaIdx]),
			)
			continue
		}
		areas[row[geoidIdx]] = area
	}

	p.logger.Info("tract areas loaded",
		slog.String("path", p.path),
		slog.Int("tract_count", len(areas)),
	)
	return areas, nil
}

// StaticAreaProvider implements AreaProvider from a fixed map. Used in tests
// and single-county tooling.
type StaticAreaProvider map[string]float64

// TractAreas returns the underlying map.
func (p StaticAreaProvider) TractAreas(ctx context.Context) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p, nil
}
