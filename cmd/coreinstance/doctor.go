// Copyright (C) 2026 Kittwire Authors
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
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Checks that this instance's config, keychain, and object store are usable",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := newLogger("coreinstance-doctor", false)
	defer log.Close()

	fmt.Printf("data dir:    %s\n", dataDir)
	if _, err := os.Stat(dataDir); err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return err
	}
	fmt.Println("  OK: exists")

	in, err := bootstrap(ctx, dataDir, nil, log)
	if err != nil {
		fmt.Printf("bootstrap:   FAIL: %v\n", err)
		return err
	}
	defer in.Close()
	fmt.Println("config:      OK")
	fmt.Println("keychain:    OK")
	fmt.Println("object store: OK")
	fmt.Printf("self person: %s\n", in.self.String())
	fmt.Printf("self instance: %s\n", in.selfInst.String())

	apiKey := os.Getenv(in.cfg.LLMProvider.APIKeyEnv)
	if apiKey == "" {
		fmt.Printf("extraction:  disabled (env %s unset)\n", in.cfg.LLMProvider.APIKeyEnv)
	} else {
		fmt.Println("extraction:  enabled")
	}

	accessible, err := in.resolver.AccessibleHashes(ctx, in.self)
	if err != nil {
		fmt.Printf("access resolver: FAIL: %v\n", err)
		return err
	}
	fmt.Printf("access resolver: OK (%d accessible hashes)\n", len(accessible))

	fmt.Printf("sealed segment id: %d\n", in.store.SealedSegmentID())
	return nil
}
