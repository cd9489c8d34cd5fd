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
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
)

// testListingJSON mimics the Census variables.json shape, including the
// geography pseudo-variables and annotation fields that must be filtered out.
const testListingJSON = `{
  "variables": {
    "for": {"label": "Census API FIPS 'for' clause", "predicateType": "fips-for"},
    "in": {"label": "Census API FIPS 'in' clause", "predicateType": "fips-in"},
    "NAME": {"label": "Geographic Area Name", "predicateType": "string"},
    "B01003_001E": {"label": "Estimate!!Total", "concept": "Total Population", "predicateType": "int"},
    "B01003_001M": {"label": "Margin of Error!!Total", "concept": "Total Population", "predicateType": "int"},
    "B19013_001E": {"label": "Estimate!!Median household income in the past 12 months", "concept": "Median Household Income", "predicateType": "int"},
    "B19013_001EA": {"label": "Annotation of Estimate!!Median household income", "concept": "Median Household Income", "predicateType": "string"},
    "DP05_0001E": {"label": "Estimate!!SEX AND AGE!!Total population", "concept": "ACS Demographic Estimates", "predicateType": "int"}
  }
}`

// =============================================================================
// FetchCatalog Tests
// =============================================================================

func TestFetchCatalog_FiltersAndSorts(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(testListingJSON))
	}))
	defer srv.Close()

	client := NewCatalogClientWithConfig(srv.URL, nil)
	catalog, err := client.FetchCatalog(context.Background(), 2023)
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}

	if gotPath != "/data/2023/acs/acs5/variables.json" {
		t.Errorf("unexpected request path %q", gotPath)
	}

	// NAME has no underscore; margins (_001M) and geography clauses are out.
	// "B19013_001EA" ends in A, not the estimate marker.
	wantIDs := []string{"B01003_001E", "B19013_001E", "DP05_0001E"}
	if len(catalog) != len(wantIDs) {
		t.Fatalf("catalog has %d records, want %d: %+v", len(catalog), len(wantIDs), catalog)
	}
	for i, id := range wantIDs {
		if catalog[i].VariableID != id {
			t.Errorf("catalog[%d] = %q, want %q (canonical order)", i, catalog[i].VariableID, id)
		}
	}

	if !sort.SliceIsSorted(catalog, func(i, j int) bool {
		return catalog[i].VariableID < catalog[j].VariableID
	}) {
		t.Error("catalog not in canonical VariableID order")
	}
}

func TestFetchCatalog_RecordFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testListingJSON))
	}))
	defer srv.Close()

	client := NewCatalogClientWithConfig(srv.URL, nil)
	catalog, err := client.FetchCatalog(context.Background(), 2023)
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}

	byID := make(map[string]VariableRecord, len(catalog))
	for _, rec := range catalog {
		byID[rec.VariableID] = rec
	}

	income := byID["B19013_001E"]
	if income.SourceTable != "B19013" {
		t.Errorf("SourceTable = %q, want B19013", income.SourceTable)
	}
	if income.Concept != "Median Household Income" {
		t.Errorf("Concept = %q", income.Concept)
	}
	if income.Description == "" {
		t.Error("expected synthesized description")
	}

	profile := byID["DP05_0001E"]
	if profile.SourceTable != "DP05" {
		t.Errorf("SourceTable = %q, want DP05", profile.SourceTable)
	}
}

func TestFetchCatalog_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream sad", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewCatalogClientWithConfig(srv.URL, nil)
	if _, err := client.FetchCatalog(context.Background(), 2023); err == nil {
		t.Fatal("expected error on HTTP 502")
	}
}

func TestFetchCatalog_EmptyListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"variables": {}}`))
	}))
	defer srv.Close()

	client := NewCatalogClientWithConfig(srv.URL, nil)
	catalog, err := client.FetchCatalog(context.Background(), 2023)
	if err != nil {
		t.Fatalf("empty listing must not error: %v", err)
	}
	if len(catalog) != 0 {
		t.Errorf("expected empty catalog, got %d records", len(catalog))
	}
}

// =============================================================================
// Filtering Predicate Tests
// =============================================================================

func TestIsEstimateVariable(t *testing.T) {
	tests := []struct {
		id   string
		meta variableMeta
		want bool
	}{
		{"B01003_001E", variableMeta{PredicateType: "int"}, true},
		{"S1701_C01_001E", variableMeta{PredicateType: "float"}, true},
		{"B01003_001M", variableMeta{PredicateType: "int"}, false},   // margin
		{"B19013_001EA", variableMeta{PredicateType: "string"}, false}, // annotation
		{"NAME", variableMeta{PredicateType: "string"}, false},         // no underscore
		{"for", variableMeta{PredicateType: "fips-for"}, false},        // geography clause
		{"B01003_001E", variableMeta{PredicateType: ""}, false},        // no predicate
		{"1B_001E", variableMeta{PredicateType: "int"}, false},         // leading digit
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := isEstimateVariable(tt.id, tt.meta); got != tt.want {
				t.Errorf("isEstimateVariable(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestExtractSourceTable(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"B19013_001E", "B19013"},
		{"DP05_0001E", "DP05"},
		{"S1701_C01_001E", "S1701"},
		{"lowercase_001E", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := extractSourceTable(tt.id); got != tt.want {
			t.Errorf("extractSourceTable(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
