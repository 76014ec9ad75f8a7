// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command pixelgroove is the operator CLI for a running Pixel-Groove server.
//
// It talks to the orchestrator over plain HTTP:
//
//	pixelgroove health                   # check the server
//	pixelgroove watch <run-id>           # live view of an execution or batch
//	pixelgroove watch <run-id> --json    # raw event stream for scripting
//
// The server address comes from --server, the PIXELGROOVE_SERVER_URL
// environment variable, or the default http://localhost:12600.
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
