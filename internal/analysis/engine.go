// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"context"
	"time"

	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
)

// Engine is the single entry point the query surface (internal/api)
// drives for both halves of spec.md §4.G: post-message extraction and
// on-demand proposal ranking.
type Engine struct {
	Extractor   *Extractor
	Recommender *Recommender
	Config      *ConfigStore
	store       *objectstore.Store
}

// New builds an Engine over store. extractor may be nil, in which case
// OnMessage is a no-op (extraction is optional per spec.md §4.G) —
// pass the Extractor built via NewExtractor, which already carries its
// own Mirror and Logger.
func New(store *objectstore.Store, extractor *Extractor) *Engine {
	recommender := NewRecommender(store)
	return &Engine{
		Extractor:   extractor,
		Recommender: recommender,
		Config:      NewConfigStore(store, recommender),
		store:       store,
	}
}

// OnMessage is invoked after a ChatMessage is appended; it runs
// extraction if an Extractor is configured, and is a no-op otherwise
// (extraction is optional per spec.md §4.G).
func (e *Engine) OnMessage(ctx context.Context, topicID string, author model.Hash, text string) (ExtractionResult, error) {
	if e.Extractor == nil {
		return ExtractionResult{}, nil
	}
	return e.Extractor.Extract(ctx, topicID, author, text)
}

// GetProposals implements the get_proposals query-surface operation
// (spec.md §6), loading the topic's active Subjects and the caller's
// ProposalConfig before ranking.
func (e *Engine) GetProposals(ctx context.Context, owner model.Hash, topicID string, forceRefresh bool) ([]Proposal, error) {
	cfg, err := e.Config.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	current, err := e.activeSubjects(ctx, topicID)
	if err != nil {
		return nil, err
	}
	return e.Recommender.GetProposals(ctx, topicID, current, WeightsOf(cfg), forceRefresh, time.Now().UTC())
}

func (e *Engine) activeSubjects(ctx context.Context, topicID string) ([]model.Subject, error) {
	var out []model.Subject
	err := e.store.ForEachOfType(ctx, model.TypeSubject, func(_ model.Hash, value any) error {
		if subject, ok := value.(model.Subject); ok && subject.TopicID == topicID {
			out = append(out, subject)
		}
		return nil
	})
	return out, err
}
