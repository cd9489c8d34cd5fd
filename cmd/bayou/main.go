// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command bayou is the CLI client for the BayouCensus server.
//
// Usage:
//
//	bayou ask "top 5 tracts by poverty rate in New Orleans"
//	bayou resolve "median income" --top 10
//	bayou health
//
// The server address defaults to http://localhost:8080 and can be
// overridden with --server or the BAYOU_SERVER_URL environment variable.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// serverFlag and resolveTopN hold flag values shared by the commands.
var (
	serverFlag  string
	resolveTopN int
)

func getServerBaseURL() string {
	if serverFlag != "" {
		return serverFlag
	}
	if url := os.Getenv("BAYOU_SERVER_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "bayou",
		Short: "Query Louisiana census tract data in plain English",
	}
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "BayouCensus server URL (default http://localhost:8080)")

	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a natural-language question about census tracts",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand,
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve [measure]",
		Short: "Resolve a measure phrase to census variable candidates",
		Args:  cobra.MinimumNArgs(1),
		Run:   runResolveCommand,
	}
	resolveCmd.Flags().IntVar(&resolveTopN, "top", 5, "Number of candidates to return")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check server liveness",
		Args:  cobra.NoArgs,
		Run:   runHealthCommand,
	}

	rootCmd.AddCommand(askCmd, resolveCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
