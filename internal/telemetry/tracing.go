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
	"go.opentelemetry.io/otel/trace"
)

// StartHandshakeSpan traces one Noise-style handshake attempt between
// this instance and remoteInstanceID.
func (t *Telemetry) StartHandshakeSpan(ctx context.Context, remoteInstanceID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "session.handshake",
		trace.WithAttributes(attribute.String("instance.remote", remoteInstanceID)),
	)
}

// StartCHUMDrainSpan traces one REQUEST/DELIVER exchange for a
// channel's backlog drain.
func (t *Telemetry) StartCHUMDrainSpan(ctx context.Context, channelID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "chum.drain",
		trace.WithAttributes(attribute.String("channel.id", channelID)),
	)
}

// StartExtractionSpan traces one structured-extraction LLM call for a
// topic (spec.md §4.G).
func (t *Telemetry) StartExtractionSpan(ctx context.Context, topicID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "analysis.extract",
		trace.WithAttributes(attribute.String("topic.id", topicID)),
	)
}
