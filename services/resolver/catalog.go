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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
)

// =============================================================================
// Variable Catalog Client
// =============================================================================

const (
	// defaultCensusBaseURL is the Census API host. The variables listing
	// endpoint requires no authentication.
	defaultCensusBaseURL = "https://api.census.gov"

	// catalogFetchTimeout bounds a single listing download. The full ACS
	// 5-year listing is ~30MB of JSON.
	catalogFetchTimeout = 60 * time.Second

	// mainEstimateSuffix marks a table's primary/total estimate variable.
	mainEstimateSuffix = "_001E"

	// estimateSuffix marks an estimate (as opposed to annotation or margin)
	// variable in the ACS naming convention.
	estimateSuffix = "E"
)

// tablePrefixPattern extracts the table family from a variable ID
// (e.g., "B19013" from "B19013_001E").
var tablePrefixPattern = regexp.MustCompile(`^([A-Z]+\d+)`)

// estimatePredicateTypes are the declared value types that qualify a listing
// entry as an actual estimate variable. Geography and metadata fields carry
// other types (or none) and are excluded from the catalog.
var estimatePredicateTypes = map[string]bool{
	"int":    true,
	"float":  true,
	"string": true,
}

// variableMeta is one entry in the raw variables listing.
type variableMeta struct {
	Label         string `json:"label"`
	Concept       string `json:"concept"`
	PredicateType string `json:"predicateType"`
}

// variablesListing is the top-level shape of variables.json.
type variablesListing struct {
	Variables map[string]json.RawMessage `json:"variables"`
}

// CatalogClient downloads and filters the ACS variable listing for a vintage.
//
// # Thread Safety
//
// Safe for concurrent use; the client holds no mutable state.
type CatalogClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewCatalogClientWithConfig creates a CatalogClient with explicit
// configuration. Useful for tests with mock servers.
//
// # Inputs
//
//   - baseURL: Census API base URL (e.g., "https://api.census.gov").
//   - logger: Logger for fetch diagnostics. May be nil.
func NewCatalogClientWithConfig(baseURL string, logger *slog.Logger) *CatalogClient {
	if baseURL == "" {
		baseURL = defaultCensusBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogClient{
		httpClient: &http.Client{Timeout: catalogFetchTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// NewCatalogClient creates a CatalogClient against the public Census API.
func NewCatalogClient() *CatalogClient {
	return NewCatalogClientWithConfig(defaultCensusBaseURL, nil)
}

// FetchCatalog downloads the variable listing for a vintage and materializes
// the filtered catalog.
//
// # Description
//
// Fetches GET {base}/data/{vintage}/acs/acs5/variables.json, then keeps only
// records that represent actual estimate variables: the identifier contains
// an underscore, begins with a letter, and ends in the estimate marker, and
// the declared predicate type is one of the numeric/string kinds. The
// source table is extracted from the identifier prefix and a synthesized
// description is attached to each record.
//
// Records are sorted by VariableID ascending so every snapshot has one
// canonical order regardless of listing map ordering.
//
// # Outputs
//
//   - []VariableRecord: The filtered catalog. An empty slice is a valid but
//     degenerate outcome (the caller logs a warning and resolution returns
//     no candidates); it is not an error.
//   - error: Non-nil on network, HTTP status, or decode failure.
//
// # Thread Safety
//
// Safe for concurrent use.
func (c *CatalogClient) FetchCatalog(ctx context.Context, vintage int) ([]VariableRecord, error) {
	url := fmt.Sprintf("%s/data/%d/acs/acs5/variables.json", c.baseURL, vintage)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building listing request: %w", err)
	}

	c.logger.Info("downloading census variable listing",
		slog.Int("vintage", vintage),
		slog.String("url", url),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching variable listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("variable listing returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var listing variablesListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decoding variable listing: %w", err)
	}

	catalog := buildCatalog(listing)
	c.logger.Info("census variable catalog built",
		slog.Int("vintage", vintage),
		slog.Int("listing_count", len(listing.Variables)),
		slog.Int("catalog_count", len(catalog)),
	)

	return catalog, nil
}

// buildCatalog filters the raw listing down to estimate variables and
// materializes VariableRecords in canonical (VariableID ascending) order.
func buildCatalog(listing variablesListing) []VariableRecord {
	records := make([]VariableRecord, 0, len(listing.Variables))

	for varID, raw := range listing.Variables {
		var meta variableMeta
		// Non-object entries (the "for"/"in" geography pseudo-variables)
		// fail to decode and are skipped along with everything else that is
		// not an estimate variable.
		if err := json.Unmarshal(raw, &meta); err != nil {
			continue
		}
		if !isEstimateVariable(varID, meta) {
			continue
		}

		records = append(records, VariableRecord{
			VariableID:  varID,
			Label:       meta.Label,
			Concept:     meta.Concept,
			SourceTable: extractSourceTable(varID),
			Description: describeVariable(varID, meta.Label, meta.Concept),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].VariableID < records[j].VariableID
	})

	return records
}

// isEstimateVariable reports whether a listing entry is an actual estimate
// variable rather than a geography or metadata field.
func isEstimateVariable(varID string, meta variableMeta) bool {
	if !estimatePredicateTypes[meta.PredicateType] {
		return false
	}
	if !strings.Contains(varID, "_") {
		return false
	}
	runes := []rune(varID)
	if len(runes) == 0 || !unicode.IsLetter(runes[0]) {
		return false
	}
	return strings.HasSuffix(varID, estimateSuffix)
}

// extractSourceTable returns the table family prefix of a variable ID, or ""
// when the ID does not follow the letter+digits convention.
func extractSourceTable(varID string) string {
	m := tablePrefixPattern.FindStringSubmatch(varID)
	if m == nil {
		return ""
	}
	return m[1]
}
