// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/themariolinml/Pixel-Groove/pkg/logging"
)

// cliVersion is stamped by the release build via
// -ldflags "-X main.cliVersion=v1.2.3".
var cliVersion = "dev"

// --- Global Command Variables ---
var (
	serverFlag     string
	logDirFlag     string
	logLevelFlag   string
	healthJSONFlag bool
	watchJSONFlag  bool

	rootCmd = &cobra.Command{
		Use:   "pixelgroove",
		Short: "A cli to inspect and monitor a Pixel-Groove media pipeline server",
		Long: `pixelgroove talks to a running Pixel-Groove orchestrator: check its
health, and follow graph executions or hook batches live as they run.`,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pixelgroove %s\n", cliVersion)
		},
	}

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check that the Pixel-Groove server is up",
		Run:   runHealthCommand, // Defined in cmd_health.go
	}

	watchCmd = &cobra.Command{
		Use:   "watch [run-id]",
		Short: "Follow a graph execution or batch live until it finishes",
		Long: `Connects to the server's event stream for the given run and renders a
live per-node view. The run ID may be either an execution ID returned by
POST /graphs/{id}/execute or a batch ID returned by
POST /experiments/{id}/execute; the command probes both.

Examples:
  pixelgroove watch 6f1f6c0e-...            # live terminal view
  pixelgroove watch 6f1f6c0e-... --json     # raw events, one JSON per line`,
		Args: cobra.ExactArgs(1),
		Run:  runWatchCommand, // Defined in cmd_watch.go
	}
)

func init() {
	rootCmd.Version = cliVersion
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "",
		"Server base URL (default http://localhost:12600, or $PIXELGROOVE_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&logDirFlag, "log-dir", "",
		"Write a JSON log file to this directory (e.g. ~/.pixelgroove/logs)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info",
		"Log level: debug, info, warn, or error")

	rootCmd.AddCommand(versionCmd)

	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().BoolVar(&healthJSONFlag, "json", false,
		"Print the raw health response for scripting")

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchJSONFlag, "json", false,
		"Print raw events one JSON object per line instead of the live view")
}

// serverBaseURL returns the orchestrator address: flag, then environment,
// then the default port the server binds when unconfigured.
func serverBaseURL() string {
	if serverFlag != "" {
		return serverFlag
	}
	if url := os.Getenv("PIXELGROOVE_SERVER_URL"); url != "" {
		return url
	}
	return "http://localhost:12600"
}

// newCLILogger builds the command's logger from the persistent flags.
// Commands that own the terminal pass quiet=true so records go to the
// --log-dir file only (or nowhere when the flag is unset).
func newCLILogger(quiet bool) *logging.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevelFlag),
		LogDir:  logDirFlag,
		Service: "cli",
		Quiet:   quiet,
	})
}
