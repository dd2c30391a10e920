// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package access

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

func newTestResolver(t *testing.T) (*objectstore.Store, *Resolver) {
	t.Helper()
	store, err := objectstore.Open("", logging.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	r := New(store, logging.Default())
	t.Cleanup(r.Close)
	return store, r
}

// waitForAccessible polls because the resolver applies Access events
// asynchronously off the store's event bus.
func waitForAccessible(t *testing.T, r *Resolver, person, hash model.Hash) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.IsAccessible(person, hash) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("hash %s never became accessible to %s", hash, person)
}

func TestAccessibleHashes_DirectGrant(t *testing.T) {
	store, r := newTestResolver(t)
	ctx := context.Background()

	person := model.HashBytes([]byte("person-a"))
	msgHash, err := store.PutUnversioned(ctx, model.ChatMessage{Author: person, Text: "hi"})
	require.NoError(t, err)

	_, err = store.PutUnversioned(ctx, model.Access{
		Target:         msgHash,
		GranteePersons: []model.Hash{person},
	})
	require.NoError(t, err)

	waitForAccessible(t, r, person, msgHash)
}

func TestAccessibleHashes_TransitiveClosure(t *testing.T) {
	store, r := newTestResolver(t)
	ctx := context.Background()

	person := model.HashBytes([]byte("person-b"))
	author := model.HashBytes([]byte("author"))

	msgHash, err := store.PutUnversioned(ctx, model.ChatMessage{Author: author, Text: "hello"})
	require.NoError(t, err)
	entryHash, err := store.PutUnversioned(ctx, model.ChannelEntry{
		Payload:   msgHash,
		Author:    author,
		Timestamp: time.Unix(0, 0).UTC(),
	})
	require.NoError(t, err)

	_, err = store.PutUnversioned(ctx, model.Access{
		Target:         entryHash,
		GranteePersons: []model.Hash{person},
	})
	require.NoError(t, err)

	waitForAccessible(t, r, person, entryHash)
	waitForAccessible(t, r, person, msgHash)
}

func TestAccessibleHashes_GroupGrant(t *testing.T) {
	store, r := newTestResolver(t)
	ctx := context.Background()

	member := model.HashBytes([]byte("member"))
	groupHash, err := store.PutUnversioned(ctx, model.Group{Members: []model.Hash{member}})
	require.NoError(t, err)

	target, err := store.PutUnversioned(ctx, model.ChatMessage{Author: member, Text: "group msg"})
	require.NoError(t, err)

	_, err = store.PutUnversioned(ctx, model.Access{
		Target:        target,
		GranteeGroups: []model.Hash{groupHash},
	})
	require.NoError(t, err)

	waitForAccessible(t, r, member, target)
}

func TestAccessibleHashes_IdAccessGrantsCurrentHead(t *testing.T) {
	store, r := newTestResolver(t)
	ctx := context.Background()

	person := model.HashBytes([]byte("person-c"))
	channel := model.Channel{TopicID: "channel-topic"}
	idHash, versionHash, err := store.PutVersioned(ctx, channel)
	require.NoError(t, err)

	_, err = store.PutUnversioned(ctx, model.IdAccess{
		Target:         idHash,
		GranteePersons: []model.Hash{person},
	})
	require.NoError(t, err)

	waitForAccessible(t, r, person, versionHash)
}

func TestAccessibleHashes_IdAccessFollowsNewHeadAfterAppend(t *testing.T) {
	store, r := newTestResolver(t)
	ctx := context.Background()

	person := model.HashBytes([]byte("person-d"))
	author := model.HashBytes([]byte("author-d"))

	idHash, _, err := store.PutVersioned(ctx, model.Channel{TopicID: "growing-topic"})
	require.NoError(t, err)

	_, err = store.PutUnversioned(ctx, model.IdAccess{
		Target:         idHash,
		GranteePersons: []model.Hash{person},
	})
	require.NoError(t, err)

	msgHash, err := store.PutUnversioned(ctx, model.ChatMessage{Author: author, Text: "appended after grant"})
	require.NoError(t, err)
	entryHash, err := store.PutUnversioned(ctx, model.ChannelEntry{
		Payload:   msgHash,
		Author:    author,
		Timestamp: time.Unix(0, 0).UTC(),
	})
	require.NoError(t, err)
	_, _, err = store.PutVersioned(ctx, model.Channel{TopicID: "growing-topic", Head: entryHash})
	require.NoError(t, err)

	waitForAccessible(t, r, person, entryHash)
	waitForAccessible(t, r, person, msgHash)
}

// waitForInaccessible polls for the negative counterpart of
// waitForAccessible, since revocation also lands asynchronously.
func waitForInaccessible(t *testing.T, r *Resolver, person, hash model.Hash) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !r.IsAccessible(person, hash) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("hash %s never became inaccessible to %s", hash, person)
}

func TestAccessibleHashes_SupersedingGrantRevokesOmittedPerson(t *testing.T) {
	store, r := newTestResolver(t)
	ctx := context.Background()

	alice := model.HashBytes([]byte("alice-revoke"))
	bob := model.HashBytes([]byte("bob-revoke"))

	msgHash, err := store.PutUnversioned(ctx, model.ChatMessage{Author: alice, Text: "secret"})
	require.NoError(t, err)

	_, err = store.PutUnversioned(ctx, model.Access{
		Target:         msgHash,
		GranteePersons: []model.Hash{bob},
	})
	require.NoError(t, err)
	waitForAccessible(t, r, bob, msgHash)

	_, err = store.PutUnversioned(ctx, model.Access{
		Target:         msgHash,
		GranteePersons: nil, // a later grant excluding Bob
	})
	require.NoError(t, err)
	waitForInaccessible(t, r, bob, msgHash)
}

func TestAccessibleHashes_GroupNeverLeaks(t *testing.T) {
	store, r := newTestResolver(t)
	ctx := context.Background()

	member := model.HashBytes([]byte("member-2"))
	groupHash, err := store.PutUnversioned(ctx, model.Group{Members: []model.Hash{member}})
	require.NoError(t, err)

	target, err := store.PutUnversioned(ctx, model.ChatMessage{Author: member, Text: "group msg 2"})
	require.NoError(t, err)

	_, err = store.PutUnversioned(ctx, model.Access{
		Target:        target,
		GranteeGroups: []model.Hash{groupHash},
	})
	require.NoError(t, err)

	waitForAccessible(t, r, member, target)
	assert.False(t, r.IsAccessible(member, groupHash), "Group objects must never become accessible themselves")
}
