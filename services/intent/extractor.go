// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/BayouCensus/services/geo"
)

// =============================================================================
// Ollama Intent Extractor
// =============================================================================

const (
	defaultOllamaEndpoint = "http://localhost:11434"
	defaultOllamaModel    = "phi3:mini"

	ollamaEndpointEnv = "OLLAMA_ENDPOINT"
	ollamaModelEnv    = "OLLAMA_MODEL"

	extractTimeout = 60 * time.Second

	// Low temperature: extraction wants reproducible structure, not variety.
	extractTemperature = 0.1
)

var extractTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bayou",
	Subsystem: "intent",
	Name:      "extract_total",
	Help:      "Intent extractions by outcome (ok, llm_error, parse_error)",
}, []string{"outcome"})

// Extractor parses a natural-language question into a structured Intent.
type Extractor interface {
	Extract(ctx context.Context, question string) (Intent, error)
}

// rawIntent is the permissive shape accepted from the model. Numbers may
// arrive as JSON numbers or as human strings like "35k".
type rawIntent struct {
	Task     string `json:"task"`
	Measure  string `json:"measure"`
	Op       string `json:"op"`
	Value    any    `json:"value"`
	RangeMin any    `json:"range_min"`
	RangeMax any    `json:"range_max"`
	Limit    any    `json:"limit"`
	Sort     string `json:"sort"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error,omitempty"`
}

// OllamaExtractor implements Extractor against a local Ollama server.
//
// # Description
//
// The model does only the fuzzy part: classifying the task and naming the
// measure. Everything deterministic (sort defaults, limits, value-string
// normalization, geography extraction) happens in code after the call, so a
// weak local model still produces well-formed intents.
//
// # Thread Safety
//
// Safe for concurrent use.
type OllamaExtractor struct {
	httpClient *http.Client
	endpoint   string
	model      string
	logger     *slog.Logger
}

// NewOllamaExtractorWithConfig creates an OllamaExtractor with explicit
// configuration. Useful for tests with mock servers.
func NewOllamaExtractorWithConfig(endpoint, model string, logger *slog.Logger) *OllamaExtractor {
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	if model == "" {
		model = defaultOllamaModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaExtractor{
		httpClient: &http.Client{Timeout: extractTimeout},
		endpoint:   strings.TrimRight(endpoint, "/"),
		model:      model,
		logger:     logger,
	}
}

// NewOllamaExtractor creates an OllamaExtractor from OLLAMA_ENDPOINT and
// OLLAMA_MODEL environment variables, falling back to local defaults.
func NewOllamaExtractor(logger *slog.Logger) *OllamaExtractor {
	return NewOllamaExtractorWithConfig(
		os.Getenv(ollamaEndpointEnv),
		os.Getenv(ollamaModelEnv),
		logger,
	)
}

// Extract parses a question into a normalized Intent.
//
// # Outputs
//
//   - Intent: Fully normalized (defaults applied, values coerced, geography
//     resolved from the question text).
//   - error: Non-nil on LLM transport failure or unparseable model output.
func (e *OllamaExtractor) Extract(ctx context.Context, question string) (Intent, error) {
	raw, err := e.callModel(ctx, question)
	if err != nil {
		extractTotal.WithLabelValues("llm_error").Inc()
		return Intent{}, err
	}

	parsed, err := normalizeIntent(raw, question)
	if err != nil {
		extractTotal.WithLabelValues("parse_error").Inc()
		return Intent{}, err
	}

	extractTotal.WithLabelValues("ok").Inc()
	e.logger.Debug("intent extracted",
		slog.String("task", parsed.Task),
		slog.String("measure", parsed.Measure),
		slog.String("county", parsed.Geography.CountyFIPS),
	)
	return parsed, nil
}

// callModel posts the few-shot prompt and returns the model's raw intent.
func (e *OllamaExtractor) callModel(ctx context.Context, question string) (rawIntent, error) {
	payload := ollamaChatRequest{
		Model: e.model,
		Messages: []ollamaMessage{
			{Role: "user", Content: buildPrompt(question)},
		},
		Stream:  false,
		Format:  "json",
		Options: ollamaOptions{Temperature: extractTemperature},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return rawIntent{}, fmt.Errorf("intent: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return rawIntent{}, fmt.Errorf("intent: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return rawIntent{}, fmt.Errorf("intent: calling ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return rawIntent{}, fmt.Errorf("intent: ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var chat ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return rawIntent{}, fmt.Errorf("intent: decoding ollama response: %w", err)
	}
	if chat.Error != "" {
		return rawIntent{}, fmt.Errorf("intent: ollama error: %s", chat.Error)
	}

	var raw rawIntent
	if err := json.Unmarshal([]byte(chat.Message.Content), &raw); err != nil {
		return rawIntent{}, fmt.Errorf("intent: model output is not valid intent JSON: %w", err)
	}
	return raw, nil
}

// normalizeIntent converts the model's permissive output into a validated
// Intent with defaults applied and geography extracted from the question.
func normalizeIntent(raw rawIntent, question string) (Intent, error) {
	out := Intent{
		Task:     strings.ToLower(strings.TrimSpace(raw.Task)),
		Measure:  strings.TrimSpace(raw.Measure),
		Op:       strings.TrimSpace(raw.Op),
		Sort:     strings.ToLower(strings.TrimSpace(raw.Sort)),
		Value:    coerceNumber(raw.Value),
		RangeMin: coerceNumber(raw.RangeMin),
		RangeMax: coerceNumber(raw.RangeMax),
	}

	if limit := coerceNumber(raw.Limit); limit != nil {
		out.Limit = int(*limit)
	}

	switch out.Task {
	case "", TaskTop, TaskBottom, TaskFilter, TaskRange:
	default:
		return Intent{}, fmt.Errorf("intent: unknown task %q", out.Task)
	}
	if out.Sort != "" && out.Sort != SortAsc && out.Sort != SortDesc {
		return Intent{}, fmt.Errorf("intent: unknown sort order %q", out.Sort)
	}

	out.Geography = Geography{
		State:      geo.StateFIPS,
		CountyFIPS: geo.ExtractCountyFIPS(question),
	}
	out.applyDefaults()

	if out.Task == TaskFilter && out.Op != "" {
		switch out.Op {
		case ">=", "<=", ">", "<", "=":
		default:
			return Intent{}, fmt.Errorf("intent: unknown filter operator %q", out.Op)
		}
	}
	return out, nil
}

// buildPrompt renders the few-shot extraction prompt for a question.
func buildPrompt(question string) string {
	return `You are a query intent parser for Louisiana census tract data.
Extract structured intent from natural language questions about census data.

Return ONLY valid JSON matching this schema:
{
  "task": "top|bottom|filter|range",
  "measure": "the measure name",
  "op": ">=|<=|>|<|=" (for filter only),
  "value": numeric value (for filter),
  "range_min": number (for range),
  "range_max": number (for range),
  "limit": number (for top/bottom),
  "sort": "asc|desc" (OPTIONAL - omit to use default)
}

IMPORTANT RULES:
- "top" means HIGHEST values (sort: desc) - omit "sort" field to use default
- "bottom" means LOWEST values (sort: asc) - omit "sort" field to use default
- "top X by poverty rate" means X tracts with HIGHEST poverty (desc)
- "lowest X by poverty rate" means X tracts with LOWEST poverty (asc)

Examples:

Q: "What tract has the highest median income in New Orleans?"
A: {"task": "top", "measure": "median income", "limit": 1}

Q: "Give me all tracts with 20% or more African Americans"
A: {"task": "filter", "measure": "african american share", "op": ">=", "value": 0.2}

Q: "lowest 5 poverty rate tracts in Lafayette"
A: {"task": "bottom", "measure": "poverty rate", "limit": 5}

Q: "top 10 population density tracts"
A: {"task": "top", "measure": "population density", "limit": 10}

Q: "median income between 40k and 75k"
A: {"task": "range", "measure": "median income", "range_min": 40000, "range_max": 75000}

Q: "income under 35k in Baton Rouge"
A: {"task": "filter", "measure": "median income", "op": "<", "value": 35000}

Q: "tracts with poverty rate under 10%"
A: {"task": "filter", "measure": "poverty rate", "op": "<", "value": 10}

Now extract intent from this question:
Q: "` + question + `"
A: `
}
