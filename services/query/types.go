// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"github.com/AleutianAI/BayouCensus/services/intent"
	"github.com/AleutianAI/BayouCensus/services/resolver"
)

// =============================================================================
// HTTP Request/Response Types
// =============================================================================

// AskRequest is a natural-language census question.
type AskRequest struct {
	// Question is the free-text question.
	Question string `json:"question" binding:"required,min=3"`
}

// AskResponse is the answer to a natural-language question.
type AskResponse struct {
	// RequestID correlates logs and traces for this request.
	RequestID string `json:"request_id"`

	// Intent is the structured interpretation of the question.
	Intent intent.Intent `json:"intent"`

	// MeasureLabel is the display label of the resolved measure.
	MeasureLabel string `json:"measure_label,omitempty"`

	// Rows are the shaped result rows.
	Rows []TractRow `json:"rows"`

	// Clarification is set instead of rows when the measure resolved too
	// weakly to execute.
	Clarification string `json:"clarification,omitempty"`
}

// ResolveRequest asks for measure resolution without executing a query.
type ResolveRequest struct {
	// Measure is the free-text measure phrase.
	Measure string `json:"measure" binding:"required,min=2"`

	// TopN caps the returned candidates. Defaults to 5.
	TopN int `json:"top_n" binding:"omitempty,min=1,max=50"`
}

// ResolveResponse lists ranked resolution candidates.
type ResolveResponse struct {
	RequestID  string                         `json:"request_id"`
	Measure    string                         `json:"measure"`
	Candidates []resolver.ResolutionCandidate `json:"candidates"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Vintage int    `json:"vintage"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
