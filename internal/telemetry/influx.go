// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/kittwire/core/pkg/logging"
)

// InfluxSink pushes handshake-latency and CHUM sync-lag samples to an
// InfluxDB bucket, mirroring the point-writing pattern the teacher's
// data_fetcher service uses for market data. It is an optional,
// best-effort sink: failures are logged and otherwise ignored, since
// the otel/Prometheus path already covers the metrics this duplicates
// for operators who don't run a time-series database.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      *logging.Logger
}

// NewInfluxSink opens a client against url/token and targets
// org/bucket for writes. Call Close when the instance shuts down.
func NewInfluxSink(url, token, org, bucket string, log *logging.Logger) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      log,
	}
}

// WriteHandshakeLatency records one handshake's end-to-end duration.
func (s *InfluxSink) WriteHandshakeLatency(ctx context.Context, instanceID string, d time.Duration, success bool) {
	if s == nil {
		return
	}
	point := influxdb2.NewPoint(
		"handshake_latency",
		map[string]string{"instance": instanceID, "success": boolLabel(success)},
		map[string]any{"seconds": d.Seconds()},
		time.Now(),
	)
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		s.log.Warn("influx write failed", "measurement", "handshake_latency", "error", err)
	}
}

// WriteSyncLag records how far behind (in entries) a channel's local
// head is from the most recent entry observed from a peer's ANNOUNCE.
func (s *InfluxSink) WriteSyncLag(ctx context.Context, topicID string, lagEntries int) {
	if s == nil {
		return
	}
	point := influxdb2.NewPoint(
		"sync_lag",
		map[string]string{"topicId": topicID},
		map[string]any{"entries": lagEntries},
		time.Now(),
	)
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		s.log.Warn("influx write failed", "measurement", "sync_lag", "error", err)
	}
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() {
	if s == nil {
		return
	}
	s.client.Close()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
