// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
	"github.com/kittwire/core/pkg/logging"
)

func TestJaccardIndex(t *testing.T) {
	assert.InDelta(t, 2.0/3.0, jaccardIndex([]string{"pizza", "dough", "yeast"}, []string{"pizza", "dough"}), 1e-9)
	assert.InDelta(t, 2.0/3.0, jaccardIndex([]string{"pizza", "recipe", "dough"}, []string{"pizza", "dough"}), 1e-9)
	assert.Equal(t, 0.0, jaccardIndex([]string{"galaxy", "star"}, []string{"pizza", "dough"}))
}

func TestRecencyBoost_LinearDecay(t *testing.T) {
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	assert.InDelta(t, 1.0, recencyBoost(now, now, 30*24*time.Hour), 1e-9)
	threeDaysAgo := now.Add(-3 * 24 * time.Hour)
	assert.InDelta(t, 0.9, recencyBoost(threeDaysAgo, now, 30*24*time.Hour), 1e-9)
	longAgo := now.Add(-60 * 24 * time.Hour)
	assert.Equal(t, 0.0, recencyBoost(longAgo, now, 30*24*time.Hour))
}

// TestGetProposals_RankingScenario reproduces the S5 scenario: three
// past Subjects, one current Subject, defaults applied.
func TestGetProposals_RankingScenario(t *testing.T) {
	store, err := objectstore.Open("", logging.Default())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	threeDaysAgo := now.Add(-3 * 24 * time.Hour)

	mustPutSubject(t, ctx, store, model.Subject{
		TopicID: "other-topic-1", Keywords: []string{"pizza", "dough", "yeast"}, LastSeenAt: now,
	})
	mustPutSubject(t, ctx, store, model.Subject{
		TopicID: "other-topic-2", Keywords: []string{"dough", "pizza", "recipe"}, LastSeenAt: threeDaysAgo,
	})
	mustPutSubject(t, ctx, store, model.Subject{
		TopicID: "other-topic-3", Keywords: []string{"galaxy", "star"}, LastSeenAt: now,
	})

	recommender := NewRecommender(store)
	current := []model.Subject{{TopicID: "current-topic", Keywords: []string{"pizza", "dough"}, LastSeenAt: now}}

	proposals, err := recommender.GetProposals(ctx, "current-topic", current, DefaultWeightsValue(), false, now)
	require.NoError(t, err)
	require.Len(t, proposals, 2, "the unrelated galaxy/star subject must be filtered by minJaccard")

	assert.InDelta(t, 2.0/3.0, proposals[0].Jaccard, 1e-9)
	assert.InDelta(t, 2.0/3.0, proposals[1].Jaccard, 1e-9)
	assert.Greater(t, proposals[0].Relevance, proposals[1].Relevance)
}

func TestGetProposals_RespectsMaxProposalsCapAndBound(t *testing.T) {
	store, err := objectstore.Open("", logging.Default())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		mustPutSubject(t, ctx, store, model.Subject{
			TopicID:    subjectTopicName(i),
			Keywords:   []string{"pizza", "dough"},
			LastSeenAt: now,
		})
	}

	recommender := NewRecommender(store)
	current := []model.Subject{{TopicID: "current-topic", Keywords: []string{"pizza", "dough"}, LastSeenAt: now}}
	weights := DefaultWeightsValue()
	weights.MaxProposals = 3

	proposals, err := recommender.GetProposals(ctx, "current-topic", current, weights, false, now)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(proposals), 3)
	for _, p := range proposals {
		assert.GreaterOrEqual(t, p.Jaccard, DefaultMinJaccard)
	}
}

func TestGetProposals_CachesUntilInvalidated(t *testing.T) {
	store, err := objectstore.Open("", logging.Default())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()
	now := time.Now().UTC()

	mustPutSubject(t, ctx, store, model.Subject{TopicID: "other", Keywords: []string{"pizza", "dough"}, LastSeenAt: now})

	recommender := NewRecommender(store)
	current := []model.Subject{{TopicID: "current", Keywords: []string{"pizza", "dough"}, LastSeenAt: now}}

	first, err := recommender.GetProposals(ctx, "current", current, DefaultWeightsValue(), false, now)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A new subject appears, but the cache should still serve the stale answer.
	mustPutSubject(t, ctx, store, model.Subject{TopicID: "other-2", Keywords: []string{"pizza", "dough"}, LastSeenAt: now})
	cached, err := recommender.GetProposals(ctx, "current", current, DefaultWeightsValue(), false, now)
	require.NoError(t, err)
	assert.Len(t, cached, 1, "cached result must not reflect the new subject yet")

	recommender.InvalidateCache()
	refreshed, err := recommender.GetProposals(ctx, "current", current, DefaultWeightsValue(), false, now)
	require.NoError(t, err)
	assert.Len(t, refreshed, 2, "after invalidation the new subject must be visible")
}

func mustPutSubject(t *testing.T, ctx context.Context, store *objectstore.Store, s model.Subject) {
	t.Helper()
	_, _, err := store.PutVersioned(ctx, s)
	require.NoError(t, err)
}

func subjectTopicName(i int) string {
	names := []string{"a", "b", "c", "d", "e", "f", "g"}
	return "topic-" + names[i]
}
