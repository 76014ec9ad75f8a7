// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// runHealthCommand hits GET /health and reports the result. Exits non-zero
// when the server is unreachable or answers anything but 200, so the command
// can gate scripts and readiness probes.
func runHealthCommand(cmd *cobra.Command, args []string) {
	logger := newCLILogger(true)
	defer logger.Close()

	base := serverBaseURL()
	client := &http.Client{Timeout: 10 * time.Second}

	logger.Debug("checking server health", "server", base)
	resp, err := client.Get(base + "/health")
	if err != nil {
		logger.Error("health check failed", "server", base, "error", err)
		fmt.Fprintf(os.Stderr, "Could not reach %s: %v\n", base, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read health response: %v\n", err)
		os.Exit(1)
	}

	if healthJSONFlag {
		fmt.Println(string(body))
		if resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		return
	}

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("%s %s answered %s\n", statusBadStyle.Render("✗"), base, resp.Status)
		os.Exit(1)
	}

	var health healthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse health response: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s %s at %s is %s\n",
		statusGoodStyle.Render("✓"), health.Service, base, health.Status)
}

var (
	statusGoodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusBadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)
