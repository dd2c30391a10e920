// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package backup ships sealed object-log segments (spec.md §6) to
// Google Cloud Storage so an instance's history survives a lost or
// corrupted local disk. It is an optional, best-effort side channel:
// a failed upload never blocks the read loop or a write, it only
// delays when that segment's bytes are durable off-instance.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/kittwire/core/internal/objectstore"
	"github.com/kittwire/core/pkg/logging"
)

// Client uploads segment exports to a single GCS bucket.
type Client struct {
	storageClient *storage.Client
	bucketName    string
	log           *logging.Logger
}

// NewClient opens a GCS client authenticated with the service account
// key at saKeyPath.
func NewClient(ctx context.Context, bucketName, saKeyPath string, log *logging.Logger) (*Client, error) {
	if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("backup: service account key not found at %s", saKeyPath)
	}

	storageClient, err := storage.NewClient(ctx, option.WithCredentialsFile(saKeyPath))
	if err != nil {
		return nil, fmt.Errorf("backup: create GCS client: %w", err)
	}

	return &Client{
		storageClient: storageClient,
		bucketName:    bucketName,
		log:           log,
	}, nil
}

// Close releases the underlying GCS client.
func (c *Client) Close() error {
	return c.storageClient.Close()
}

// objectName is where segment segmentID for instanceID lives in the
// bucket. Zero-padding keeps a `gsutil ls` of the prefix in segment
// order.
func objectName(instanceID string, segmentID uint64) string {
	return path.Join("segments", instanceID, fmt.Sprintf("%020d.badgerbak", segmentID))
}

// uploadReader streams r to the named GCS object, mirroring the
// teacher's UploadFile writer-setup.
func (c *Client) uploadReader(ctx context.Context, r io.Reader, gcsPath string) error {
	obj := c.storageClient.Bucket(c.bucketName).Object(gcsPath)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, r); err != nil {
		writer.Close()
		return fmt.Errorf("backup: copy to %s: %w", gcsPath, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("backup: close writer for %s: %w", gcsPath, err)
	}
	return nil
}

// segmentUploader is the narrow capability Exporter needs from Client,
// pulled out so tests can exercise the watermark bookkeeping below
// without a live GCS bucket.
type segmentUploader interface {
	uploadReader(ctx context.Context, r io.Reader, gcsPath string) error
}

// Exporter drains newly sealed segments from a Store and ships each
// one to GCS exactly once, tracked by the Badger version watermark
// the store's Backup method returns.
type Exporter struct {
	client     segmentUploader
	store      *objectstore.Store
	instanceID string
	log        *logging.Logger

	lastSegmentID uint64
	watermark     uint64
}

// NewExporter builds an Exporter starting from watermark 0 (a full
// export on the first run).
func NewExporter(client *Client, store *objectstore.Store, instanceID string, log *logging.Logger) *Exporter {
	return &Exporter{
		client:     client,
		store:      store,
		instanceID: instanceID,
		log:        log,
	}
}

// ExportPending uploads one segment if the store has sealed a new one
// since the last call, and reports whether an upload happened. It is
// meant to be polled periodically (e.g. by a time.Ticker in
// cmd/coreinstance) rather than run on every write.
func (e *Exporter) ExportPending(ctx context.Context) (bool, error) {
	sealed := e.store.SealedSegmentID()
	if sealed <= e.lastSegmentID {
		return false, nil
	}

	pr, pw := io.Pipe()
	var backupErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		next, err := e.store.Backup(ctx, pw, e.watermark)
		if err != nil {
			backupErr = err
			pw.CloseWithError(err)
			return
		}
		e.watermark = next
		pw.Close()
	}()

	segmentID := sealed
	gcsPath := objectName(e.instanceID, segmentID)
	if err := e.client.uploadReader(ctx, pr, gcsPath); err != nil {
		<-done
		return false, err
	}
	<-done
	if backupErr != nil {
		return false, backupErr
	}

	e.lastSegmentID = segmentID
	if e.log != nil {
		e.log.Info("backup: exported segment", "segment_id", segmentID, "gcs_path", gcsPath)
	}
	return true, nil
}
