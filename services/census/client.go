// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package census

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// =============================================================================
// ACS Tract Data Client
// =============================================================================

const (
	// defaultBaseURL is the Census Bureau data API host.
	defaultBaseURL = "https://api.census.gov"

	// StateLouisiana is the FIPS code for Louisiana, the only state this
	// deployment serves.
	StateLouisiana = "22"

	// fetchTimeout bounds a single tract-data request. A statewide pull for
	// several variables is a few MB at most.
	fetchTimeout = 60 * time.Second

	// tractKeyPrefix namespaces cached responses in BadgerDB. Versioned (v1)
	// to allow future format changes without collision.
	tractKeyPrefix = "census/tracts/v1/"

	// apiKeyEnv names the environment variable holding the Census API key.
	// Requests work unauthenticated at a reduced daily quota.
	apiKeyEnv = "CENSUS_KEY"
)

// defaultRateLimit allows bursty interactive use while staying well under the
// Census API's courtesy limits.
var defaultRateLimit = rate.NewLimiter(rate.Every(time.Second), 2)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	tractFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bayou",
		Subsystem: "census",
		Name:      "tract_fetch_total",
		Help:      "Tract data fetches by outcome (cached, ok, error)",
	}, []string{"outcome"})

	tractRowsFetched = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bayou",
		Subsystem: "census",
		Name:      "tract_rows",
		Help:      "Tract rows returned per fetch",
		Buckets:   []float64{10, 100, 500, 1_000, 2_000},
	})
)

// =============================================================================
// Types
// =============================================================================

// Tract is one census tract's fetched values.
type Tract struct {
	// GEOID is the 11-digit tract identifier (state + county + tract).
	GEOID string

	// Name is the full Census display name for the tract.
	Name string

	// Values holds the requested variables, keyed by variable ID. Suppressed
	// or non-numeric values are NaN.
	Values map[string]float64
}

// cachedResponse is the gob-persisted form of a fetch result.
type cachedResponse struct {
	FetchedAt time.Time
	Tracts    []Tract
}

// =============================================================================
// Client
// =============================================================================

// Client fetches ACS tract estimates.
//
// # Description
//
// Responses are cached in BadgerDB keyed by a digest of the request shape
// (vintage, county filter, variable set). ACS data for a published vintage
// is immutable, so cached responses never expire; a new vintage is a new key.
//
// # Thread Safety
//
// Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	db         *dgbadger.DB // may be nil: caching disabled
	logger     *slog.Logger
}

// ClientConfig carries explicit Client configuration.
type ClientConfig struct {
	// BaseURL overrides the Census API host. Empty uses the public API.
	BaseURL string

	// APIKey authenticates requests. Empty sends unauthenticated requests.
	APIKey string

	// DB enables persistent response caching. Nil disables caching.
	DB *dgbadger.DB

	// Limiter overrides the request rate limit. Nil uses the default.
	Limiter *rate.Limiter

	// Logger. Nil uses slog.Default.
	Logger *slog.Logger
}

// NewClientWithConfig creates a Client with explicit configuration. Useful
// for tests with mock servers.
func NewClientWithConfig(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Limiter == nil {
		cfg.Limiter = defaultRateLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: fetchTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    cfg.Limiter,
		db:         cfg.DB,
		logger:     cfg.Logger,
	}
}

// NewClient creates a Client against the public Census API, reading the API
// key from the CENSUS_KEY environment variable.
func NewClient(db *dgbadger.DB, logger *slog.Logger) *Client {
	return NewClientWithConfig(ClientConfig{
		APIKey: os.Getenv(apiKeyEnv),
		DB:     db,
		Logger: logger,
	})
}

// FetchTracts fetches the given variables for every Louisiana tract.
//
// # Description
//
// Issues GET {base}/data/{vintage}/acs/acs5 with for=tract:* scoped to
// Louisiana, optionally narrowed to one county. NAME is always requested
// alongside the caller's variables. Values that are missing, suppressed, or
// otherwise non-numeric come back as NaN rather than dropping the row;
// callers decide how to treat incomplete tracts.
//
// # Inputs
//
//   - vintage: ACS 5-year dataset year (e.g., 2023).
//   - varIDs: Variable IDs to fetch. Must be non-empty.
//   - countyFIPS: Optional 3-digit county filter (e.g., "071"). Empty fetches
//     the whole state.
//
// # Outputs
//
//   - []Tract: One entry per tract, in API response order.
//   - error: Non-nil on rate-limiter, network, HTTP status, or decode failure.
//
// # Thread Safety
//
// Safe for concurrent use.
func (c *Client) FetchTracts(ctx context.Context, vintage int, varIDs []string, countyFIPS string) ([]Tract, error) {
	if len(varIDs) == 0 {
		return nil, errors.New("census: no variables requested")
	}

	cacheKey := requestKey(vintage, countyFIPS, varIDs)
	if cached := c.loadCached(cacheKey); cached != nil {
		tractFetchTotal.WithLabelValues("cached").Inc()
		c.logger.Debug("tract data served from cache",
			slog.Int("vintage", vintage),
			slog.Int("tract_count", len(cached.Tracts)),
		)
		return cached.Tracts, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("census: rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("get", "NAME,"+strings.Join(varIDs, ","))
	q.Set("for", "tract:*")
	in := "state:" + StateLouisiana
	if countyFIPS != "" {
		in += " county:" + countyFIPS
	}
	q.Set("in", in)
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}

	reqURL := fmt.Sprintf("%s/data/%d/acs/acs5?%s", c.baseURL, vintage, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("census: building request: %w", err)
	}

	c.logger.Info("fetching tract data",
		slog.Int("vintage", vintage),
		slog.Int("variable_count", len(varIDs)),
		slog.String("county", countyFIPS),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tractFetchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("census: fetching tract data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		tractFetchTotal.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("census: tract data returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	tracts, err := parseTractResponse(resp.Body, varIDs)
	if err != nil {
		tractFetchTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	tractFetchTotal.WithLabelValues("ok").Inc()
	tractRowsFetched.Observe(float64(len(tracts)))
	c.saveCached(cacheKey, tracts)

	return tracts, nil
}

// requestKey digests the request shape into a stable cache key. Variable
// order must not matter, so IDs are sorted before hashing.
func requestKey(vintage int, countyFIPS string, varIDs []string) []byte {
	sorted := append([]string(nil), varIDs...)
	sort.Strings(sorted)

	h := sha256.New()
	io.WriteString(h, "acs|"+strconv.Itoa(vintage)+"|"+countyFIPS+"|"+strings.Join(sorted, ","))
	return []byte(tractKeyPrefix + hex.EncodeToString(h.Sum(nil)[:16]))
}

func (c *Client) loadCached(key []byte) *cachedResponse {
	if c.db == nil {
		return nil
	}

	var raw []byte
	err := c.db.View(func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, dgbadger.ErrKeyNotFound) {
			c.logger.Warn("tract cache read failed", slog.String("error", err.Error()))
		}
		return nil
	}

	var cached cachedResponse
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&cached); err != nil {
		c.logger.Warn("tract cache entry corrupt, refetching", slog.String("error", err.Error()))
		return nil
	}
	return &cached
}

func (c *Client) saveCached(key []byte, tracts []Tract) {
	if c.db == nil {
		return
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&cachedResponse{FetchedAt: time.Now(), Tracts: tracts}); err != nil {
		c.logger.Warn("tract cache encode failed", slog.String("error", err.Error()))
		return
	}
	err := c.db.Update(func(txn *dgbadger.Txn) error {
		return txn.Set(key, buf.Bytes())
	})
	if err != nil {
		// Non-fatal: the response was already delivered; the next identical
		// request pays another fetch.
		c.logger.Warn("tract cache write failed", slog.String("error", err.Error()))
	}
}

// =============================================================================
// Response Parsing
// =============================================================================

// parseTractResponse decodes the Census array-of-arrays JSON shape: the first
// row is column headers, each following row is one tract's string values.
func parseTractResponse(r io.Reader, varIDs []string) ([]Tract, error) {
	var rows [][]json.RawMessage
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("census: decoding tract response: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("census: tract response has no header row")
	}

	header := make(map[string]int, len(rows[0]))
	for i, raw := range rows[0] {
		var col string
		if err := json.Unmarshal(raw, &col); err != nil {
			return nil, fmt.Errorf("census: decoding header column %d: %w", i, err)
		}
		header[col] = i
	}

	for _, col := range []string{"NAME", "state", "county", "tract"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("census: response missing %q column", col)
		}
	}

	tracts := make([]Tract, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != len(rows[0]) {
			return nil, fmt.Errorf("census: ragged row: %d cells, header has %d", len(row), len(rows[0]))
		}

		geoid := cellString(row[header["state"]]) +
			cellString(row[header["county"]]) +
			cellString(row[header["tract"]])

		values := make(map[string]float64, len(varIDs))
		for _, id := range varIDs {
			idx, ok := header[id]
			if !ok {
				values[id] = math.NaN()
				continue
			}
			values[id] = cellFloat(row[idx])
		}

		tracts = append(tracts, Tract{
			GEOID:  geoid,
			Name:   cellString(row[header["NAME"]]),
			Values: values,
		})
	}

	return tracts, nil
}

// cellString decodes a response cell as a string; null or malformed cells
// yield "".
func cellString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// cellFloat coerces a response cell to a float. The API returns values as
// strings, nulls for suppressed cells, and occasionally bare numbers; all
// non-numeric outcomes map to NaN.
func cellFloat(raw json.RawMessage) float64 {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return v
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	return math.NaN()
}
