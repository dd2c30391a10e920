// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
)

// DefaultWeights are the spec.md §4.G defaults: w_m=0.7, w_r=0.3,
// minJaccard=0.2, recency window 30 days, maxProposals 10 (cap 50).
const (
	DefaultWeightJaccard = 0.7
	DefaultWeightRecency = 0.3
	DefaultMinJaccard    = 0.2
	DefaultMaxProposals  = 10
	MaxProposalsCap      = 50
	DefaultRecencyWindow = 30 * 24 * time.Hour
)

// Weights bundles the ranking parameters a ProposalConfig supplies.
type Weights struct {
	Jaccard       float64
	Recency       float64
	RecencyWindow time.Duration
	MinJaccard    float64
	MaxProposals  int
}

// DefaultWeightsValue is the zero-config fallback.
func DefaultWeightsValue() Weights {
	return Weights{
		Jaccard:       DefaultWeightJaccard,
		Recency:       DefaultWeightRecency,
		RecencyWindow: DefaultRecencyWindow,
		MinJaccard:    DefaultMinJaccard,
		MaxProposals:  DefaultMaxProposals,
	}
}

// Proposal is one ranked related-subject recommendation.
type Proposal struct {
	SubjectHash  model.Hash
	TopicID      string
	Keywords     []string
	Jaccard      float64
	RecencyBoost float64
	Relevance    float64
	LastSeenAt   time.Time
}

// jaccardIndex computes |A ∩ B| / |A ∪ B| over two keyword sets.
func jaccardIndex(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, k := range a {
		set[k] = true
	}
	intersection := 0
	union := len(set)
	for _, k := range b {
		if set[k] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// recencyBoost applies the linear decay from spec.md §4.G:
// max(0, 1 − age/W).
func recencyBoost(at time.Time, now time.Time, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	age := now.Sub(at)
	boost := 1 - float64(age)/float64(window)
	if boost < 0 {
		return 0
	}
	return boost
}

// Recommender ranks past Subjects against a topic's current active
// Subjects using a cached, on-demand computation (spec.md §4.G).
type Recommender struct {
	store *objectstore.Store
	cache *ProposalCache
}

// NewRecommender builds a Recommender over store, with its own
// 60-second/50-entry LRU cache.
func NewRecommender(store *objectstore.Store) *Recommender {
	return &Recommender{store: store, cache: NewProposalCache(50, 60*time.Second)}
}

// GetProposals implements the get_proposals query-surface operation
// (spec.md §6). now is passed in explicitly since recency decay must
// not depend on wall-clock time read inside a cached computation.
func (r *Recommender) GetProposals(ctx context.Context, topicID string, currentSubjects []model.Subject, weights Weights, forceRefresh bool, now time.Time) ([]Proposal, error) {
	if weights.MaxProposals <= 0 {
		weights = DefaultWeightsValue()
	}
	if weights.MaxProposals > MaxProposalsCap {
		weights.MaxProposals = MaxProposalsCap
	}

	subjectIDs := make([]string, 0, len(currentSubjects))
	currentKeywordSets := make([][]string, 0, len(currentSubjects))
	for _, s := range currentSubjects {
		subjectIDs = append(subjectIDs, model.KeywordCombo(s.Keywords))
		currentKeywordSets = append(currentKeywordSets, s.Keywords)
	}
	sort.Strings(subjectIDs)
	key := cacheKey(topicID, subjectIDs)

	if !forceRefresh {
		if cached, ok := r.cache.Get(key); ok {
			return cached, nil
		}
	}

	candidates, err := r.candidateSubjects(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("analysis: load candidate subjects: %w", err)
	}

	var proposals []Proposal
	for idHash, candidate := range candidates {
		best := 0.0
		for _, current := range currentKeywordSets {
			if j := jaccardIndex(current, candidate.Keywords); j > best {
				best = j
			}
		}
		if best < weights.MinJaccard {
			continue
		}
		boost := recencyBoost(candidate.LastSeenAt, now, weights.RecencyWindow)
		proposals = append(proposals, Proposal{
			SubjectHash:  idHash,
			TopicID:      candidate.TopicID,
			Keywords:     candidate.Keywords,
			Jaccard:      best,
			RecencyBoost: boost,
			Relevance:    weights.Jaccard*best + weights.Recency*boost,
			LastSeenAt:   candidate.LastSeenAt,
		})
	}

	sort.SliceStable(proposals, func(i, j int) bool {
		if proposals[i].Relevance != proposals[j].Relevance {
			return proposals[i].Relevance > proposals[j].Relevance
		}
		return proposals[i].LastSeenAt.After(proposals[j].LastSeenAt)
	})
	if len(proposals) > weights.MaxProposals {
		proposals = proposals[:weights.MaxProposals]
	}

	r.cache.Put(key, proposals)
	return proposals, nil
}

// InvalidateCache clears every cached proposal set. Called whenever a
// ProposalConfig write changes the ranking weights (spec.md §4.G).
func (r *Recommender) InvalidateCache() {
	r.cache.Clear()
}

func (r *Recommender) candidateSubjects(ctx context.Context, excludeTopicID string) (map[model.Hash]model.Subject, error) {
	out := make(map[model.Hash]model.Subject)
	err := r.store.ForEachOfType(ctx, model.TypeSubject, func(idHash model.Hash, raw any) error {
		subject, ok := raw.(model.Subject)
		if !ok || subject.TopicID == excludeTopicID {
			return nil
		}
		out[idHash] = subject
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func cacheKey(topicID string, sortedSubjectIDs []string) string {
	key := topicID
	for _, id := range sortedSubjectIDs {
		key += "|" + id
	}
	return key
}
