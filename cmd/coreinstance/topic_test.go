// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/topic"
)

func TestParseParticipantHash_RejectsGarbage(t *testing.T) {
	_, err := parseParticipantHash("not-a-hash")
	assert.Error(t, err)
}

func TestParseParticipantHash_AcceptsValidHash(t *testing.T) {
	dir := t.TempDir()
	in, err := bootstrap(context.Background(), dir, []byte("pw"), testLogger())
	require.NoError(t, err)
	defer in.Close()

	h, err := parseParticipantHash(in.self.String())
	require.NoError(t, err)
	assert.Equal(t, in.self, h)
}

func TestRunTopicCreate_TwoPartyTopic(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	in, err := bootstrap(ctx, dir, []byte("pw"), testLogger())
	require.NoError(t, err)
	defer in.Close()

	otherDir := t.TempDir()
	other, err := bootstrap(ctx, otherDir, []byte("pw"), testLogger())
	require.NoError(t, err)
	defer other.Close()

	_, err = in.fabric.CreateTwoPartyTopic(ctx, in.self, other.self)
	require.NoError(t, err)

	expected := topic.TwoPartyTopicID(in.self, other.self)
	assert.True(t, in.fabric.Exists(ctx, expected))
}

func TestRunTopicCreate_NPartyTopicPersistsName(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	in, err := bootstrap(ctx, dir, []byte("pw"), testLogger())
	require.NoError(t, err)
	defer in.Close()

	var others []model.Hash
	for i := 0; i < 2; i++ {
		peerDir := t.TempDir()
		peer, err := bootstrap(ctx, peerDir, []byte("pw"), testLogger())
		require.NoError(t, err)
		defer peer.Close()
		others = append(others, peer.self)
	}

	all := append([]model.Hash{in.self}, others...)
	topicIDHash, _, err := in.fabric.CreateNPartyTopic(ctx, "Design Review", all)
	require.NoError(t, err)

	env, err := in.store.Get(ctx, topicIDHash)
	require.NoError(t, err)
	value, err := model.DecodeValue(env.Type, env.Value)
	require.NoError(t, err)
	tp, ok := value.(model.Topic)
	require.True(t, ok)
	assert.Equal(t, "Design Review", tp.Name)
}
