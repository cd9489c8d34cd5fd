// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package census fetches ACS 5-year estimate values for Louisiana census
// tracts from the Census Bureau data API, with persistent response caching
// and client-side rate limiting. It also provides tract land areas via the
// AreaProvider interface for density-style metrics.
package census
