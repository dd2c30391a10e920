// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command corecli is the interactive query client for a coreinstance:
// a two-pane terminal UI for browsing topics and messages, or a plain
// line-oriented dump when stdout isn't a terminal.
//
// Usage:
//
//	corecli --server http://localhost:7420
//	corecli topics --server http://localhost:7420 | less
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	tea "github.com/charmbracelet/bubbletea"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "corecli",
	Short: "Interactive and scriptable query client for a kittwire instance",
	RunE:  runInteractive,
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Lists topics, one per line, for piping into other tools",
	RunE:  runTopics,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:7420", "coreinstance HTTP query surface base URL")
	rootCmd.AddCommand(topicsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runInteractive launches the bubbletea UI when stdout is a real
// terminal, and falls back to topicsCmd's plain output otherwise —
// piping `corecli` into another program should never hang waiting for
// a keypress.
func runInteractive(cmd *cobra.Command, args []string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return runTopics(cmd, args)
	}

	c := newClient(serverAddr)
	p := tea.NewProgram(newModel(c), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func runTopics(cmd *cobra.Command, args []string) error {
	c := newClient(serverAddr)
	topics, err := c.listTopics(context.Background())
	if err != nil {
		return err
	}
	for _, t := range topics {
		last := ""
		if t.LastMessage != nil {
			last = t.LastMessage.Text
		}
		fmt.Printf("%s\t%d participants\t%s\n", t.TopicID, len(t.Participants), last)
	}
	return nil
}
