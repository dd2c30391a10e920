// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command coreinstance runs one kittwire instance: the HTTP query
// surface, the inbound session listener, and the invitation/topic
// management subcommands an operator drives it with directly.
//
// Usage:
//
//	coreinstance run --data-dir ~/.kittwire --addr :7420 --rpc-addr :7421
//	coreinstance invite create --target-key <hex> --endpoint wss://host:7420/session
//	coreinstance invite consume --text <invitation-text>
//	coreinstance topic create --name "Design Review" --participant <hex> --participant <hex>
//	coreinstance doctor
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kittwire/core/pkg/logging"
)

// coreVersion is surfaced in telemetry resource attributes and the
// doctor command's output.
const coreVersion = "0.1.0"

var dataDir string

var rootCmd = &cobra.Command{
	Use:   "coreinstance",
	Short: "Runs and manages one kittwire synchronization instance",
	Long: `coreinstance is the daemon and operator CLI for a single kittwire
instance: it serves the query surface over HTTP, accepts inbound
pairing and sync sessions, and exposes the invitation and topic
lifecycle an operator drives directly rather than through a peer.`,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "instance data directory")
	rootCmd.AddCommand(runCmd, inviteCmd, topicCmd, doctorCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kittwire"
	}
	return home + "/.kittwire"
}

func newLogger(service string, debug bool) *logging.Logger {
	level := logging.LevelInfo
	if debug {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{Level: level, Service: service})
}
