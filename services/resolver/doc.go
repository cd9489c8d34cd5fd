// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver maps natural-language measure phrases to ACS variables.
//
// Resolution runs in three stages:
//
//  1. Synonym normalization ("median income" → "median household income")
//  2. Derived metric lookup — curated ratios like poverty rate that are
//     computed from multiple published variables and always win over fuzzy
//     catalog matches
//  3. Fuzzy scoring over the full variable catalog for the vintage, with
//     deterministic penalties and boosts (demographic qualifiers, main
//     estimates, table family preference)
//
// The variable catalog is fetched from the Census API and persisted in
// BadgerDB with a freshness window; a stale snapshot is served when a
// refresh fails so resolution degrades instead of breaking.
package resolver
