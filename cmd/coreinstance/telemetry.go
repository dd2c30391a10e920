// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"

	"github.com/kittwire/core/internal/telemetry"
)

// telemetryHandle bundles the telemetry.Telemetry this process set up
// along with the Prometheus registry buildRouter mounts at /metrics.
type telemetryHandle struct {
	t          *telemetry.Telemetry
	prometheus *telemetry.PrometheusRegistry
}

// setupTelemetry wires tracing and metrics for this instance. Trace
// spans go to stdout, matching a single-operator local instance with
// no collector configured; Prometheus is always requested here, and
// buildRouter mounts /metrics only when this setup succeeded.
func setupTelemetry(ctx context.Context, serviceVersion string) (*telemetryHandle, error) {
	t, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:       "coreinstance",
		ServiceVersion:    serviceVersion,
		TraceToStdout:     true,
		PrometheusEnabled: true,
	})
	if err != nil {
		return nil, err
	}
	return &telemetryHandle{t: t, prometheus: t.Registry}, nil
}

func (h *telemetryHandle) Shutdown(ctx context.Context) error {
	if h == nil || h.t == nil {
		return nil
	}
	return h.t.Shutdown(ctx)
}
