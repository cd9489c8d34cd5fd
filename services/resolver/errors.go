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

import "errors"

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrSourceUnavailable indicates a cold-cache fetch of the variable
	// listing failed and no stale snapshot exists to fall back on. Fatal to
	// the resolve call.
	ErrSourceUnavailable = errors.New("resolver: variable listing source unavailable")

	// ErrSnapshotCorrupt indicates a persisted catalog snapshot could not be
	// decoded. The cache treats it as a miss and refetches.
	ErrSnapshotCorrupt = errors.New("resolver: catalog snapshot corrupt")
)
