// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package topic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
	"github.com/kittwire/core/pkg/logging"
)

func openTestStore(t *testing.T) *objectstore.Store {
	t.Helper()
	store, err := objectstore.Open("", logging.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTwoPartyTopicID_OrderIndependent(t *testing.T) {
	a := model.HashBytes([]byte("alice"))
	b := model.HashBytes([]byte("bob"))
	assert.Equal(t, TwoPartyTopicID(a, b), TwoPartyTopicID(b, a))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "project-kittwire-chat", Slugify("Project Kittwire: Chat!"))
	assert.Equal(t, "", Slugify("!!!"))
}

func TestCreateTwoPartyTopic_AppendAndRead(t *testing.T) {
	store := openTestStore(t)
	fab := New(store)
	ctx := context.Background()

	alice := model.HashBytes([]byte("alice"))
	bob := model.HashBytes([]byte("bob"))

	_, err := fab.CreateTwoPartyTopic(ctx, alice, bob)
	require.NoError(t, err)

	topicID := TwoPartyTopicID(alice, bob)
	channelIDHash, _, err := store.PutVersioned(ctx, model.Channel{TopicID: topicID})
	require.NoError(t, err)

	msgHash, err := store.PutUnversioned(ctx, model.ChatMessage{Author: alice, Text: "hi bob"})
	require.NoError(t, err)
	_, err = fab.Append(ctx, channelIDHash, alice, msgHash)
	require.NoError(t, err)

	msgHash2, err := store.PutUnversioned(ctx, model.ChatMessage{Author: bob, Text: "hi alice"})
	require.NoError(t, err)
	_, err = fab.Append(ctx, channelIDHash, bob, msgHash2)
	require.NoError(t, err)

	entries, err := fab.ReadTopic(ctx, topicID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, msgHash, entries[0].Payload)
	assert.Equal(t, msgHash2, entries[1].Payload)
}

func TestAppend_OwnedChannelRejectsOtherAuthor(t *testing.T) {
	store := openTestStore(t)
	fab := New(store)
	ctx := context.Background()

	owner := model.HashBytes([]byte("owner"))
	intruder := model.HashBytes([]byte("intruder"))

	channelIDHash, _, err := store.PutVersioned(ctx, model.Channel{TopicID: "some-topic", OwnerPerson: owner})
	require.NoError(t, err)

	payloadHash, err := store.PutUnversioned(ctx, model.ChatMessage{Author: intruder, Text: "sneaky"})
	require.NoError(t, err)

	_, err = fab.Append(ctx, channelIDHash, intruder, payloadHash)
	require.Error(t, err)
	kind, ok := corerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, corerrors.NotAuthor, kind)
}

func TestCreateNPartyTopic_MergesAllOwnersInTimeOrder(t *testing.T) {
	store := openTestStore(t)
	fab := New(store)
	ctx := context.Background()

	alice := model.HashBytes([]byte("alice-n"))
	bob := model.HashBytes([]byte("bob-n"))
	carol := model.HashBytes([]byte("carol-n"))
	participants := []model.Hash{alice, bob, carol}

	topicIDHash, groupHash, err := fab.CreateNPartyTopic(ctx, "Project Kittwire", participants)
	require.NoError(t, err)
	require.False(t, topicIDHash.IsZero())
	require.False(t, groupHash.IsZero())

	// Fetch the created Topic to find each owner's channel.
	versionHash, err := store.HeadOf(ctx, topicIDHash)
	require.NoError(t, err)
	env, err := store.Get(ctx, versionHash)
	require.NoError(t, err)
	value, err := model.DecodeValue(env.Type, env.Value)
	require.NoError(t, err)
	topicObj := value.(model.Topic)
	require.Len(t, topicObj.Channels, 3)

	// Alice appends first, then Bob a millisecond later.
	msgA, err := store.PutUnversioned(ctx, model.ChatMessage{Author: alice, Text: "first"})
	require.NoError(t, err)
	_, err = fab.Append(ctx, topicObj.Channels[0], alice, msgA)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	msgB, err := store.PutUnversioned(ctx, model.ChatMessage{Author: bob, Text: "second"})
	require.NoError(t, err)
	_, err = fab.Append(ctx, topicObj.Channels[1], bob, msgB)
	require.NoError(t, err)

	entries, err := fab.ReadTopic(ctx, "project-kittwire")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, msgA, entries[0].Payload)
	assert.Equal(t, msgB, entries[1].Payload)
}

func TestCreateNPartyTopic_NameCollisionGetsSuffixed(t *testing.T) {
	store := openTestStore(t)
	fab := New(store)
	ctx := context.Background()

	participants := []model.Hash{model.HashBytes([]byte("p1")), model.HashBytes([]byte("p2"))}

	firstTopicHash, _, err := fab.CreateNPartyTopic(ctx, "Duplicate Name", participants)
	require.NoError(t, err)
	secondTopicHash, _, err := fab.CreateNPartyTopic(ctx, "Duplicate Name", participants)
	require.NoError(t, err)

	assert.NotEqual(t, firstTopicHash, secondTopicHash)

	_, err = fab.ReadTopic(ctx, "duplicate-name")
	require.NoError(t, err)
	_, err = fab.ReadTopic(ctx, "duplicate-name-2")
	require.NoError(t, err)
}

func TestReadTopic_UnknownTopic(t *testing.T) {
	store := openTestStore(t)
	fab := New(store)

	_, err := fab.ReadTopic(context.Background(), "never-created")
	require.Error(t, err)
	kind, ok := corerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, corerrors.UnknownTopic, kind)
}

func TestChannelID_MatchesWhatAppendWrites(t *testing.T) {
	store := openTestStore(t)
	fab := New(store)
	ctx := context.Background()

	alice := model.HashBytes([]byte("alice-ch"))
	bob := model.HashBytes([]byte("bob-ch"))
	_, err := fab.CreateTwoPartyTopic(ctx, alice, bob)
	require.NoError(t, err)
	topicID := TwoPartyTopicID(alice, bob)

	sharedChannelID, err := fab.ChannelID(topicID, model.Hash{})
	require.NoError(t, err)

	msg := model.HashBytes([]byte("hi"))
	_, err = fab.Append(ctx, sharedChannelID, alice, msg)
	require.NoError(t, err, "ChannelID must resolve to the same channel identity Append expects")
}

func TestChannelFor_ResolvesOwnedChannelInNPartyTopic(t *testing.T) {
	store := openTestStore(t)
	fab := New(store)
	ctx := context.Background()

	alice := model.HashBytes([]byte("alice-cf"))
	bob := model.HashBytes([]byte("bob-cf"))
	topicIDHash, _, err := fab.CreateNPartyTopic(ctx, "Channel For Test", []model.Hash{alice, bob})
	require.NoError(t, err)
	require.False(t, topicIDHash.IsZero())

	channelIDHash, err := fab.ChannelFor(ctx, "channel-for-test", alice)
	require.NoError(t, err)

	msg := model.HashBytes([]byte("hi"))
	_, err = fab.Append(ctx, channelIDHash, alice, msg)
	require.NoError(t, err)

	_, err = fab.ChannelFor(ctx, "channel-for-test", model.HashBytes([]byte("stranger")))
	require.Error(t, err)
	kind, ok := corerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, corerrors.NotAuthor, kind)
}

func TestParticipants_TwoPartyAndNParty(t *testing.T) {
	store := openTestStore(t)
	fab := New(store)
	ctx := context.Background()

	alice := model.HashBytes([]byte("alice-p"))
	bob := model.HashBytes([]byte("bob-p"))
	_, err := fab.CreateTwoPartyTopic(ctx, alice, bob)
	require.NoError(t, err)

	participants, err := fab.Participants(ctx, TwoPartyTopicID(alice, bob))
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Hash{alice, bob}, participants)

	carol := model.HashBytes([]byte("carol-p"))
	_, _, err = fab.CreateNPartyTopic(ctx, "Participants Test", []model.Hash{alice, bob, carol})
	require.NoError(t, err)

	nParticipants, err := fab.Participants(ctx, "participants-test")
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Hash{alice, bob, carol}, nParticipants)
}

// idAccessGrantsFor returns every IdAccess record whose Target is
// target, found via the reverse map (IdAccess is unversioned, so it
// has no current-version head index entry to range over).
func idAccessGrantsFor(t *testing.T, store *objectstore.Store, target model.Hash) []model.IdAccess {
	t.Helper()
	ctx := context.Background()
	referencing, err := store.ReverseRefs(ctx, target)
	require.NoError(t, err)

	var grants []model.IdAccess
	for _, h := range referencing {
		env, err := store.Get(ctx, h)
		require.NoError(t, err)
		if env.Type != model.TypeIdAccess {
			continue
		}
		value, err := model.DecodeValue(env.Type, env.Value)
		require.NoError(t, err)
		grant, ok := value.(model.IdAccess)
		if ok && grant.Target == target {
			grants = append(grants, grant)
		}
	}
	return grants
}

func TestCreateTwoPartyTopic_GrantsIdAccessToBothPersons(t *testing.T) {
	store := openTestStore(t)
	fab := New(store)
	ctx := context.Background()

	alice := model.HashBytes([]byte("alice-access"))
	bob := model.HashBytes([]byte("bob-access"))

	topicIDHash, err := fab.CreateTwoPartyTopic(ctx, alice, bob)
	require.NoError(t, err)

	topicID := TwoPartyTopicID(alice, bob)
	channelIDHash, err := fab.ChannelID(topicID, model.Hash{})
	require.NoError(t, err)

	channelGrants := idAccessGrantsFor(t, store, channelIDHash)
	require.Len(t, channelGrants, 1)
	assert.ElementsMatch(t, []model.Hash{alice, bob}, channelGrants[0].GranteePersons)

	topicGrants := idAccessGrantsFor(t, store, topicIDHash)
	require.Len(t, topicGrants, 1)
	assert.ElementsMatch(t, []model.Hash{alice, bob}, topicGrants[0].GranteePersons)
}

func TestCreateNPartyTopic_GrantsIdAccessToGroupOnEachChannelAndTopic(t *testing.T) {
	store := openTestStore(t)
	fab := New(store)
	ctx := context.Background()

	alice := model.HashBytes([]byte("alice-gaccess"))
	bob := model.HashBytes([]byte("bob-gaccess"))
	topicIDHash, groupHash, err := fab.CreateNPartyTopic(ctx, "Group Access Test", []model.Hash{alice, bob})
	require.NoError(t, err)

	versionHash, err := store.HeadOf(ctx, topicIDHash)
	require.NoError(t, err)
	env, err := store.Get(ctx, versionHash)
	require.NoError(t, err)
	value, err := model.DecodeValue(env.Type, env.Value)
	require.NoError(t, err)
	topicObj := value.(model.Topic)
	require.Len(t, topicObj.Channels, 2)

	topicGrants := idAccessGrantsFor(t, store, topicIDHash)
	require.Len(t, topicGrants, 1)
	assert.ElementsMatch(t, []model.Hash{groupHash}, topicGrants[0].GranteeGroups)

	for _, channelIDHash := range topicObj.Channels {
		channelGrants := idAccessGrantsFor(t, store, channelIDHash)
		require.Len(t, channelGrants, 1)
		assert.ElementsMatch(t, []model.Hash{groupHash}, channelGrants[0].GranteeGroups)
	}
}

func TestExists_TrueAfterCreateFalseOtherwise(t *testing.T) {
	store := openTestStore(t)
	fab := New(store)
	ctx := context.Background()

	assert.False(t, fab.Exists(ctx, "nope"))

	_, _, err := fab.CreateNPartyTopic(ctx, "existence-check", []model.Hash{model.HashBytes([]byte("p1"))})
	require.NoError(t, err)
	assert.True(t, fab.Exists(ctx, "existence-check"))
}
