// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command censusd starts the BayouCensus API server.
//
// BayouCensus answers natural-language questions about Louisiana census
// tracts:
//   - Measure resolution (synonyms, derived metrics, fuzzy catalog ranking)
//   - ACS 5-year data fetching with persistent caching
//   - Intent extraction via a local Ollama model
//
// Usage:
//
//	go run ./cmd/censusd
//	go run ./cmd/censusd -port 9090 -vintage 2023
//
// With a Census API key (higher quota):
//
//	CENSUS_KEY=... go run ./cmd/censusd
//
// With Ollama (for /ask):
//
//	OLLAMA_ENDPOINT=http://localhost:11434 OLLAMA_MODEL=phi3:mini go run ./cmd/censusd
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/census/health
//
//	# Resolve a measure without running a query
//	curl -X POST http://localhost:8080/v1/census/resolve \
//	  -H "Content-Type: application/json" \
//	  -d '{"measure": "median income"}'
//
//	# Ask a question (requires Ollama)
//	curl -X POST http://localhost:8080/v1/census/ask \
//	  -H "Content-Type: application/json" \
//	  -d '{"question": "top 5 tracts by poverty rate in New Orleans"}'
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/BayouCensus/services/census"
	"github.com/AleutianAI/BayouCensus/services/intent"
	"github.com/AleutianAI/BayouCensus/services/query"
	"github.com/AleutianAI/BayouCensus/services/resolver"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	vintage := flag.Int("vintage", query.DefaultVintage, "ACS 5-year dataset year")
	dataDir := flag.String("data-dir", "", "BadgerDB cache directory (default ~/.bayou/cache)")
	areasFile := flag.String("areas", "", "CSV of tract land areas (GEOID,area_km2) for density queries")
	traceStdout := flag.Bool("trace-stdout", false, "Export OTel spans to stdout")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
		slog.SetLogLoggerLevel(slog.LevelDebug)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	var tp *sdktrace.TracerProvider
	if *traceStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			slog.Error("Failed to create stdout trace exporter", slog.String("error", err.Error()))
			os.Exit(1)
		}
		tp = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)
	}

	// Cache DB: graceful degradation. Without it every catalog and tract
	// fetch pays the network cost, but the service still works.
	var db *dgbadger.DB
	cacheDir := *dataDir
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cacheDir = filepath.Join(home, ".bayou", "cache")
		}
	}
	if cacheDir != "" {
		opened, err := dgbadger.Open(dgbadger.DefaultOptions(cacheDir).WithLogger(nil))
		if err != nil {
			slog.Warn("Cache BadgerDB unavailable, running without persistence",
				slog.String("path", cacheDir),
				slog.String("error", err.Error()),
			)
		} else {
			db = opened
			slog.Info("Cache BadgerDB opened", slog.String("path", cacheDir))
		}
	}

	logger := slog.Default()

	var store resolver.SnapshotStore
	if db != nil {
		store = resolver.NewBadgerSnapshotStore(db, logger)
	}
	catalogCache := resolver.NewCatalogCache(resolver.NewCatalogClient(), store, logger)

	scoring, err := resolver.NewScoringEngine(nil, logger)
	if err != nil {
		slog.Error("Failed to load scoring rules", slog.String("error", err.Error()))
		os.Exit(1)
	}
	res := resolver.NewResolver(catalogCache, scoring, logger)

	censusClient := census.NewClient(db, logger)

	var areas census.AreaProvider
	if *areasFile != "" {
		areas = census.NewFileAreaProvider(*areasFile, logger)
	} else {
		slog.Warn("No tract area file configured; density queries will fail")
	}

	extractor := intent.NewOllamaExtractor(logger)
	engine := query.NewEngine(res, censusClient, areas, *vintage, logger)
	handlers := query.NewHandlers(engine, extractor, res, *vintage, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("bayou-census"))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	query.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down BayouCensus server")
		if tp != nil {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Warn("Failed to flush trace exporter", slog.String("error", err.Error()))
			}
		}
		if db != nil {
			if err := db.Close(); err != nil {
				slog.Warn("Failed to close cache BadgerDB", slog.String("error", err.Error()))
			}
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting BayouCensus server",
		slog.String("address", addr),
		slog.Int("vintage", *vintage),
	)
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
