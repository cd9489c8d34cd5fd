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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/BayouCensus/services/intent"
	"github.com/AleutianAI/BayouCensus/services/resolver"
)

// Handlers carries the HTTP handlers for the census query API.
type Handlers struct {
	engine    *Engine
	extractor intent.Extractor
	resolver  measureResolver
	vintage   int
	logger    *slog.Logger
}

// NewHandlers creates the Handlers.
//
// # Inputs
//
//   - engine: Query engine. Must not be nil.
//   - extractor: Intent extractor. Must not be nil.
//   - res: Measure resolver for the standalone resolve endpoint. Must not
//     be nil.
//   - vintage: ACS dataset year reported by health and used by resolve.
//   - logger: Logger. May be nil.
func NewHandlers(engine *Engine, extractor intent.Extractor, res measureResolver, vintage int, logger *slog.Logger) *Handlers {
	if engine == nil {
		panic("NewHandlers: engine must not be nil")
	}
	if extractor == nil {
		panic("NewHandlers: extractor must not be nil")
	}
	if res == nil {
		panic("NewHandlers: resolver must not be nil")
	}
	if vintage <= 0 {
		vintage = DefaultVintage
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{engine: engine, extractor: extractor, resolver: res, vintage: vintage, logger: logger}
}

// HandleAsk answers a natural-language census question.
//
// POST /v1/census/ask
func (h *Handlers) HandleAsk(c *gin.Context) {
	requestID := uuid.NewString()

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid request: " + err.Error(),
			RequestID: requestID,
		})
		return
	}

	parsed, err := h.extractor.Extract(c.Request.Context(), req.Question)
	if err != nil {
		h.logger.Error("intent extraction failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:     "could not interpret the question",
			RequestID: requestID,
		})
		return
	}

	result, err := h.engine.Run(c.Request.Context(), parsed)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, resolver.ErrSourceUnavailable) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Error("query execution failed",
			slog.String("request_id", requestID),
			slog.String("task", parsed.Task),
			slog.String("error", err.Error()),
		)
		c.JSON(status, ErrorResponse{
			Error:     err.Error(),
			RequestID: requestID,
		})
		return
	}

	rows := result.Rows
	if rows == nil {
		rows = []TractRow{}
	}
	c.JSON(http.StatusOK, AskResponse{
		RequestID:     requestID,
		Intent:        parsed,
		MeasureLabel:  result.MeasureLabel,
		Rows:          rows,
		Clarification: result.Clarification,
	})
}

// HandleResolve resolves a measure phrase without executing a query.
//
// POST /v1/census/resolve
func (h *Handlers) HandleResolve(c *gin.Context) {
	requestID := uuid.NewString()

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid request: " + err.Error(),
			RequestID: requestID,
		})
		return
	}
	if req.TopN <= 0 {
		req.TopN = resolveTopN
	}

	candidates, err := h.resolver.Resolve(c.Request.Context(), req.Measure, h.vintage, req.TopN)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, resolver.ErrSourceUnavailable) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, ErrorResponse{
			Error:     err.Error(),
			RequestID: requestID,
		})
		return
	}

	c.JSON(http.StatusOK, ResolveResponse{
		RequestID:  requestID,
		Measure:    req.Measure,
		Candidates: candidates,
	})
}

// HandleHealth reports liveness.
//
// GET /v1/census/health
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Vintage: h.vintage})
}
