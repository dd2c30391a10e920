// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittwire/core/internal/access"
	"github.com/kittwire/core/internal/analysis"
	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
	"github.com/kittwire/core/internal/pairing"
	"github.com/kittwire/core/internal/topic"
	"github.com/kittwire/core/pkg/logging"
)

func newTestService(t *testing.T, self model.Hash) (*Service, *objectstore.Store) {
	t.Helper()
	store, err := objectstore.Open("", logging.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fabric := topic.New(store)
	invites := pairing.NewRegistry()
	engine := analysis.New(store, nil)
	resolver := access.New(store, logging.Default())
	t.Cleanup(resolver.Close)

	svc := New(store, fabric, invites, engine, resolver, self, logging.Default())
	return svc, store
}

func TestGetContacts_NotAuthenticatedWithoutSelf(t *testing.T) {
	svc, _ := newTestService(t, model.Hash{})
	_, err := svc.GetContacts(context.Background())
	require.Error(t, err)
	kind, ok := corerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, corerrors.NotAuthenticated, kind)
}

func TestGetContacts_ReturnsSomeoneProfileView(t *testing.T) {
	alice := model.HashBytes([]byte("alice-svc"))
	svc, store := newTestService(t, alice)
	ctx := context.Background()

	bobPerson := model.HashBytes([]byte("bob-svc"))
	profileHash, _, err := store.PutVersioned(ctx, model.Profile{PersonRef: bobPerson, Nickname: "Bobby", Description: []string{"friend"}})
	require.NoError(t, err)
	_, _, err = store.PutVersioned(ctx, model.Someone{MainProfile: profileHash})
	require.NoError(t, err)

	contacts, err := svc.GetContacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, bobPerson, contacts[0].PersonHash)
	assert.Equal(t, "Bobby", contacts[0].Nickname)
}

func TestSendMessage_UnknownTopicRejected(t *testing.T) {
	alice := model.HashBytes([]byte("alice-send"))
	svc, _ := newTestService(t, alice)

	_, err := svc.SendMessage(context.Background(), "never-created", "hi", nil)
	require.Error(t, err)
	kind, ok := corerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, corerrors.UnknownTopic, kind)
}

func TestSendMessage_NotAuthorRejected(t *testing.T) {
	alice := model.HashBytes([]byte("alice-na"))
	bob := model.HashBytes([]byte("bob-na"))
	carol := model.HashBytes([]byte("carol-na"))
	svc, store := newTestService(t, carol)
	ctx := context.Background()
	fabric := topic.New(store)

	_, _, err := fabric.CreateNPartyTopic(ctx, "Not Author Test", []model.Hash{alice, bob})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, "not-author-test", "sneaky", nil)
	require.Error(t, err)
	kind, ok := corerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, corerrors.NotAuthor, kind)
}

func TestSendMessageAndRetrieveMessages_RoundTrip(t *testing.T) {
	alice := model.HashBytes([]byte("alice-rt"))
	bob := model.HashBytes([]byte("bob-rt"))
	svc, store := newTestService(t, alice)
	ctx := context.Background()
	fabric := topic.New(store)

	_, err := fabric.CreateTwoPartyTopic(ctx, alice, bob)
	require.NoError(t, err)
	topicID := topic.TwoPartyTopicID(alice, bob)

	_, err = svc.SendMessage(ctx, topicID, "hello bob", nil)
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, topicID, "second message", nil)
	require.NoError(t, err)

	messages, err := svc.RetrieveMessages(ctx, topicID, 0, model.Hash{})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello bob", messages[0].Text)
	assert.Equal(t, "second message", messages[1].Text)
}

func TestRetrieveMessages_UnknownTopicRejected(t *testing.T) {
	alice := model.HashBytes([]byte("alice-rm"))
	svc, _ := newTestService(t, alice)

	_, err := svc.RetrieveMessages(context.Background(), "never-created", 0, model.Hash{})
	require.Error(t, err)
	kind, ok := corerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, corerrors.UnknownTopic, kind)
}

func TestRetrieveMessages_LimitReturnsMostRecent(t *testing.T) {
	alice := model.HashBytes([]byte("alice-lim"))
	bob := model.HashBytes([]byte("bob-lim"))
	svc, store := newTestService(t, alice)
	ctx := context.Background()
	fabric := topic.New(store)

	_, err := fabric.CreateTwoPartyTopic(ctx, alice, bob)
	require.NoError(t, err)
	topicID := topic.TwoPartyTopicID(alice, bob)

	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.SendMessage(ctx, topicID, text, nil)
		require.NoError(t, err)
	}

	messages, err := svc.RetrieveMessages(ctx, topicID, 2, model.Hash{})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "two", messages[0].Text)
	assert.Equal(t, "three", messages[1].Text)
}

func TestListTopics_ReportsParticipantsAndLastMessage(t *testing.T) {
	alice := model.HashBytes([]byte("alice-lt"))
	bob := model.HashBytes([]byte("bob-lt"))
	svc, store := newTestService(t, alice)
	ctx := context.Background()
	fabric := topic.New(store)

	_, err := fabric.CreateTwoPartyTopic(ctx, alice, bob)
	require.NoError(t, err)
	topicID := topic.TwoPartyTopicID(alice, bob)
	_, err = svc.SendMessage(ctx, topicID, "hi there", nil)
	require.NoError(t, err)

	topics, err := svc.ListTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, topicID, topics[0].TopicID)
	assert.ElementsMatch(t, []model.Hash{alice, bob}, topics[0].Participants)
	require.NotNil(t, topics[0].LastMessage)
	assert.Equal(t, "hi there", topics[0].LastMessage.Text)
}

func TestCreateAndConsumeInvitation_RoundTrip(t *testing.T) {
	alice := model.HashBytes([]byte("alice-inv"))
	svc, _ := newTestService(t, alice)

	var targetKey [32]byte
	targetKey[0] = 0xCD
	text, err := svc.CreateInvitation(targetKey, "wss://peer.example:7420")
	require.NoError(t, err)

	peerKey, err := svc.ConsumeInvitation(text)
	require.NoError(t, err)
	assert.Equal(t, targetKey, peerKey)

	_, err = svc.ConsumeInvitation(text)
	require.Error(t, err)
	kind, ok := corerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, corerrors.InvitationConsumed, kind)
}

func TestConsumeInvitation_GarbageTextIsHandshakeFailed(t *testing.T) {
	alice := model.HashBytes([]byte("alice-garbage"))
	svc, _ := newTestService(t, alice)

	_, err := svc.ConsumeInvitation("not valid invitation text")
	require.Error(t, err)
	kind, ok := corerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, corerrors.HandshakeFailed, kind)
}

func TestUpdateProposalConfig_InvalidWeightsRejected(t *testing.T) {
	alice := model.HashBytes([]byte("alice-cfg"))
	svc, _ := newTestService(t, alice)

	_, err := svc.UpdateProposalConfig(context.Background(), model.ProposalConfig{
		WeightJaccard: 0.9,
		WeightRecency: 0.9, // sums well above 1
		MinJaccard:    0.1,
		MaxProposals:  10,
		RecencyWindow: 0,
	})
	require.Error(t, err)
	kind, ok := corerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, corerrors.InvalidWeights, kind)
}

func TestAccessibleTo_EmptyForUnknownPerson(t *testing.T) {
	alice := model.HashBytes([]byte("alice-acc"))
	svc, _ := newTestService(t, alice)

	accessible, err := svc.AccessibleTo(context.Background(), model.HashBytes([]byte("stranger")))
	require.NoError(t, err)
	assert.Empty(t, accessible)
}

func TestRetrieveMessages_ManyMessagesPreserveOrderUnderConcurrentLoad(t *testing.T) {
	alice := model.HashBytes([]byte("alice-many"))
	bob := model.HashBytes([]byte("bob-many"))
	svc, store := newTestService(t, alice)
	ctx := context.Background()
	fabric := topic.New(store)

	_, err := fabric.CreateTwoPartyTopic(ctx, alice, bob)
	require.NoError(t, err)
	topicID := topic.TwoPartyTopicID(alice, bob)

	const count = 40
	for i := 0; i < count; i++ {
		_, err := svc.SendMessage(ctx, topicID, fmt.Sprintf("message %02d", i), nil)
		require.NoError(t, err)
	}

	messages, err := svc.RetrieveMessages(ctx, topicID, 0, model.Hash{})
	require.NoError(t, err)
	require.Len(t, messages, count)
	for i, m := range messages {
		assert.Equal(t, fmt.Sprintf("message %02d", i), m.Text)
	}
}
