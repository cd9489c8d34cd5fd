// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package geo

import "testing"

func TestResolveGeography(t *testing.T) {
	tests := []struct {
		name       string
		phrase     string
		wantParish string
		wantFIPS   string
		wantOK     bool
	}{
		{"bare parish name", "Orleans", "Orleans Parish", "071", true},
		{"parish suffix stripped", "Caddo Parish", "Caddo Parish", "017", true},
		{"city maps to parish", "New Orleans", "Orleans Parish", "071", true},
		{"city in different parish", "Shreveport", "Caddo Parish", "017", true},
		{"baton rouge city", "Baton Rouge", "East Baton Rouge Parish", "033", true},
		{"multi word parish", "East Baton Rouge", "East Baton Rouge Parish", "033", true},
		{"st dot form", "St. Tammany", "St. Tammany Parish", "103", true},
		{"st bare form", "St Tammany", "St. Tammany Parish", "103", true},
		{"saint spelled out", "Saint Tammany Parish", "St. Tammany Parish", "103", true},
		{"longest parish name", "St. John the Baptist", "St. John the Baptist Parish", "095", true},
		{"case insensitive", "lAfAyEtTe", "Lafayette Parish", "055", true},
		{"unknown place", "Houston", "", "", false},
		{"empty", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parish, fips, ok := ResolveGeography(tt.phrase)
			if ok != tt.wantOK {
				t.Fatalf("ResolveGeography(%q) ok = %v, want %v", tt.phrase, ok, tt.wantOK)
			}
			if parish != tt.wantParish || fips != tt.wantFIPS {
				t.Errorf("ResolveGeography(%q) = (%q, %q), want (%q, %q)",
					tt.phrase, parish, fips, tt.wantParish, tt.wantFIPS)
			}
		})
	}
}

func TestExtractCountyFIPS(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     string
	}{
		{"city at end with punctuation", "What tract has the highest median income in New Orleans?", "071"},
		{"parish with suffix", "top 5 tracts by poverty rate in Caddo Parish", "017"},
		{"multi word beats substring", "income under 35k in East Baton Rouge Parish", "033"},
		{"city mid sentence", "compare poverty in Baton Rouge against the state", "033"},
		{"saint variant", "density in Saint Tammany", "103"},
		{"no geography", "top 10 population density tracts", ""},
		{"statewide phrasing", "highest income in Louisiana", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractCountyFIPS(tt.question); got != tt.want {
				t.Errorf("ExtractCountyFIPS(%q) = %q, want %q", tt.question, got, tt.want)
			}
		})
	}
}

func TestAllParishesRegistered(t *testing.T) {
	// Louisiana has exactly 64 parishes, FIPS 001 through 127, odd codes only.
	if len(parishFIPS) != 64 {
		t.Errorf("parish table has %d entries, want 64", len(parishFIPS))
	}
	for name, fips := range parishFIPS {
		if len(fips) != 3 {
			t.Errorf("parish %q has malformed FIPS %q", name, fips)
		}
		if !ValidFIPS(fips) {
			t.Errorf("parish %q FIPS %q fails validation", name, fips)
		}
	}
}

func TestCityFIPSTargetsValidParishes(t *testing.T) {
	for city, fips := range cityFIPS {
		if !ValidFIPS(fips) {
			t.Errorf("city %q maps to unknown parish FIPS %q", city, fips)
		}
	}
}

func TestParishName(t *testing.T) {
	if got := ParishName("071"); got != "Orleans Parish" {
		t.Errorf("ParishName(071) = %q", got)
	}
	if got := ParishName("999"); got != "" {
		t.Errorf("ParishName(999) = %q, want empty", got)
	}
}

func TestValidFIPS(t *testing.T) {
	if !ValidFIPS("055") {
		t.Error("055 (Lafayette) must validate")
	}
	if ValidFIPS("002") {
		t.Error("even FIPS codes are not Louisiana parishes")
	}
	if ValidFIPS("") {
		t.Error("empty FIPS must not validate")
	}
}
