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
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Measure Synonyms
// =============================================================================

//go:embed synonyms.yaml
var defaultSynonymsYAML []byte

// MeasureSynonyms maps alternate user phrasings to canonical measure names.
//
// # Thread Safety
//
// Safe for concurrent use after initialization (immutable after load).
type MeasureSynonyms map[string]string

var (
	cachedSynonyms MeasureSynonyms
	synonymsOnce   sync.Once
	synonymsErr    error
)

// LoadMeasureSynonyms loads and caches the synonym table from the embedded
// YAML configuration. Returns the cached result on subsequent calls.
//
// # Outputs
//
//   - MeasureSynonyms: The loaded mapping. Never nil on success.
//   - error: Non-nil if YAML parsing fails.
//
// # Thread Safety
//
// Safe for concurrent use (uses sync.Once internally).
func LoadMeasureSynonyms() (MeasureSynonyms, error) {
	synonymsOnce.Do(func() {
		var raw map[string]string
		if err := yaml.Unmarshal(defaultSynonymsYAML, &raw); err != nil {
			synonymsErr = fmt.Errorf("parsing synonyms.yaml: %w", err)
			return
		}
		cachedSynonyms = raw
		slog.Debug("measure synonyms loaded", slog.Int("synonym_count", len(raw)))
	})
	return cachedSynonyms, synonymsErr
}

// Normalize canonicalizes a measure phrase.
//
// # Description
//
// Lowercases and trims the input, then performs an exact lookup in the
// synonym table. No fuzzy matching happens here — only exact equality after
// trimming and case folding. Unknown phrases come back lowered and trimmed
// but otherwise unchanged, which makes the function idempotent.
//
// This must run before both derived-registry lookup and catalog scoring,
// since both key off the canonical form.
//
// # Thread Safety
//
// Safe for concurrent use.
func Normalize(phrase string) string {
	canonical := strings.ToLower(strings.TrimSpace(phrase))

	synonyms, err := LoadMeasureSynonyms()
	if err != nil {
		// A broken embedded table is a build defect; degrade to pass-through.
		slog.Warn("synonym table unavailable, skipping normalization",
			slog.String("error", err.Error()),
		)
		return canonical
	}

	if mapped, ok := synonyms[canonical]; ok {
		return mapped
	}
	return canonical
}
