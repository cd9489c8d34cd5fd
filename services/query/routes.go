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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the census query routes with the router.
//
// Description:
//
//	Registers all /v1/census/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/census/ask - Answer a natural-language census question
//	POST /v1/census/resolve - Resolve a measure phrase to candidates
//	GET  /v1/census/health - Health check
//
// Example:
//
//	handlers := query.NewHandlers(engine, extractor, res, vintage, logger)
//
//	v1 := router.Group("/v1")
//	query.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	censusGroup := rg.Group("/census")
	{
		censusGroup.POST("/ask", handlers.HandleAsk)
		censusGroup.POST("/resolve", handlers.HandleResolve)
		censusGroup.GET("/health", handlers.HandleHealth)
	}
}
