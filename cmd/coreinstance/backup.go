// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"time"

	"github.com/kittwire/core/internal/backup"
	"github.com/kittwire/core/pkg/logging"
)

const backupPollInterval = 5 * time.Minute

// startBackupExporter polls in.store for newly sealed segments and
// uploads them to GCS when in.cfg.Backup.BucketName is configured. It
// returns a stop function that callers should defer; stop is a no-op
// when backup is disabled.
func startBackupExporter(ctx context.Context, in *instance, log *logging.Logger) (stop func(), err error) {
	if in.cfg.Backup.BucketName == "" {
		log.Info("coreinstance: backup export disabled, no bucket configured")
		return func() {}, nil
	}

	client, err := backup.NewClient(ctx, in.cfg.Backup.BucketName, in.cfg.Backup.ServiceAccountKey, log)
	if err != nil {
		return nil, err
	}

	exporter := backup.NewExporter(client, in.store, in.selfInst.String(), log)

	done := make(chan struct{})
	ticker := time.NewTicker(backupPollInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if _, exportErr := exporter.ExportPending(ctx); exportErr != nil {
					log.Warn("coreinstance: backup export failed", "err", exportErr)
				}
			}
		}
	}()

	stop = func() {
		close(done)
		client.Close()
	}
	return stop, nil
}
