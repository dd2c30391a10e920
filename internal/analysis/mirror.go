// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"context"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/pkg/logging"
)

// subjectClass is the Weaviate collection Subjects are mirrored into.
const subjectClass = "Subject"

// Mirror best-effort-copies upserted Subjects into a Weaviate
// collection so a future semantic-recall feature has a populated
// index. It is never on the critical path of proposal ranking, which
// stays Jaccard-based (spec.md §4.G); failures are logged and
// swallowed.
type Mirror struct {
	client *weaviate.Client
	log    *logging.Logger
}

// NewMirror builds a Mirror over an already-configured Weaviate
// client. Pass a nil client to disable mirroring entirely.
func NewMirror(client *weaviate.Client, log *logging.Logger) *Mirror {
	return &Mirror{client: client, log: log}
}

// UpsertSubject writes subject's keywords and topic as properties on
// a Weaviate object keyed by its identity hash. No embedding vector
// is attached: mirroring here only seeds the collection for later
// semantic search, not present-day ranking.
func (m *Mirror) UpsertSubject(ctx context.Context, idHash model.Hash, subject model.Subject) {
	if m == nil || m.client == nil {
		return
	}
	subjectUUID, _ := uuid.FromBytes(idHash[:16])
	obj := &models.Object{
		Class: subjectClass,
		ID:    strfmt.UUID(subjectUUID.String()),
		Properties: map[string]any{
			"topicId":      subject.TopicID,
			"keywords":     subject.Keywords,
			"messageCount": subject.MessageCount,
			"lastSeenAt":   subject.LastSeenAt,
		},
	}
	batcher := m.client.Batch().ObjectsBatcher().WithObjects(obj)
	if _, err := batcher.Do(ctx); err != nil {
		m.log.Warn("weaviate subject mirror failed", "subject", idHash.String(), "error", err)
	}
}
