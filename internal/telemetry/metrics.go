// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kittwire/core/internal/chum"
)

// Metrics holds the counters and histograms recorded across the
// handshake, CHUM drain, and analysis-engine paths.
type Metrics struct {
	chumFrames       metric.Int64Counter
	handshakeLatency metric.Float64Histogram
	handshakeErrors  metric.Int64Counter
	proposalCacheHit metric.Int64Counter
	extractionErrors metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	chumFrames, err := meter.Int64Counter(
		"chum.frames",
		metric.WithDescription("CHUM frames sent or received, by type and direction"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return nil, err
	}

	handshakeLatency, err := meter.Float64Histogram(
		"session.handshake.duration",
		metric.WithDescription("Time from handshake start to an authenticated session"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	handshakeErrors, err := meter.Int64Counter(
		"session.handshake.errors",
		metric.WithDescription("Handshake failures by corerrors.Kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	proposalCacheHit, err := meter.Int64Counter(
		"analysis.proposal_cache",
		metric.WithDescription("Proposal ranking cache hits and misses"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	extractionErrors, err := meter.Int64Counter(
		"analysis.extraction.errors",
		metric.WithDescription("Structured-extraction failures, primarily malformed_analysis"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		chumFrames:       chumFrames,
		handshakeLatency: handshakeLatency,
		handshakeErrors:  handshakeErrors,
		proposalCacheHit: proposalCacheHit,
		extractionErrors: extractionErrors,
	}, nil
}

// RecordFrame increments the frame counter for one ANNOUNCE/REQUEST/
// DELIVER/... frame observed in a given direction ("sent" or "recv").
func (m *Metrics) RecordFrame(ctx context.Context, frameType chum.FrameType, direction string) {
	if m == nil {
		return
	}
	m.chumFrames.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(frameType)),
		attribute.String("direction", direction),
	))
}

// RecordHandshake records the duration of a completed handshake
// attempt and, on failure, increments the error counter under kind.
func (m *Metrics) RecordHandshake(ctx context.Context, seconds float64, kind string) {
	if m == nil {
		return
	}
	m.handshakeLatency.Record(ctx, seconds)
	if kind != "" {
		m.handshakeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// RecordProposalCache increments the cache hit or miss counter.
func (m *Metrics) RecordProposalCache(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.proposalCacheHit.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordExtractionError increments the extraction error counter under
// kind (typically corerrors.MalformedAnalysis).
func (m *Metrics) RecordExtractionError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.extractionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
