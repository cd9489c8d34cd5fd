// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/BayouCensus/services/query"
)

func runAskCommand(_ *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	fmt.Printf("Asking: %s\n", question)
	fmt.Println("---")

	var resp query.AskResponse
	err := postServerJSON("/v1/census/ask", query.AskRequest{Question: question}, &resp)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	if resp.Clarification != "" {
		fmt.Printf("\n%s\n", resp.Clarification)
		return
	}

	fmt.Printf("\nMeasure: %s\n", resp.MeasureLabel)
	if resp.Intent.Geography.CountyFIPS != "" {
		fmt.Printf("Parish FIPS: %s\n", resp.Intent.Geography.CountyFIPS)
	}
	if len(resp.Rows) == 0 {
		fmt.Println("\n(No tracts matched)")
		return
	}

	fmt.Println()
	for i, row := range resp.Rows {
		fmt.Printf("%3d. %-14s %-40s %s\n", i+1, row.GEOID, row.TractName, formatValue(row.Value))
	}
	fmt.Printf("\n[%d tracts, request: %s]\n", len(resp.Rows), resp.RequestID)
}

func runResolveCommand(_ *cobra.Command, args []string) {
	measure := strings.Join(args, " ")

	var resp query.ResolveResponse
	err := postServerJSON("/v1/census/resolve", query.ResolveRequest{Measure: measure, TopN: resolveTopN}, &resp)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	if len(resp.Candidates) == 0 {
		fmt.Printf("No candidates for %q\n", measure)
		return
	}

	fmt.Printf("Candidates for %q:\n\n", measure)
	for i, cand := range resp.Candidates {
		kind := ""
		if cand.IsDerived {
			kind = " (derived)"
		}
		fmt.Printf("%2d. %-14s score %6.1f  %s%s\n", i+1, cand.VariableID, cand.Score, cand.Label, kind)
		if cand.Concept != "" {
			fmt.Printf("    %s\n", cand.Concept)
		}
	}
}

func runHealthCommand(_ *cobra.Command, _ []string) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(getServerBaseURL() + "/v1/census/health")
	if err != nil {
		log.Fatalf("Error: server unavailable at %s: %v", getServerBaseURL(), err)
	}
	defer closeBody(resp)

	var health query.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		log.Fatalf("Error: failed to decode health response: %v", err)
	}
	fmt.Printf("Status: %s (vintage %d)\n", health.Status, health.Vintage)
}

// formatValue trims trailing zeros so counts print as integers and rates
// keep their decimals.
func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

func postServerJSON(path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to create request body: %w", err)
	}

	client := &http.Client{Timeout: 3 * time.Minute}
	resp, err := client.Post(getServerBaseURL()+path, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("server unavailable at %s: %w", getServerBaseURL(), err)
	}
	defer closeBody(resp)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read server response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp query.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("server error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse server response: %w", err)
	}
	return nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close response body: %v\n", err)
	}
}
