// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittwire/core/internal/api"
	"github.com/kittwire/core/internal/chum"
	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/session"
	"github.com/kittwire/core/internal/topic"
)

// pipeTransport is an in-memory session.Transport, grounded on the
// loopback pair internal/chum/engine_test.go and
// internal/session/handshake_test.go use to drive a full handshake
// and protocol round trip without real sockets.
type pipeTransport struct {
	out chan []byte
	in  <-chan []byte
}

func newPipePair() (session.Transport, session.Transport) {
	a := make(chan []byte, 16)
	b := make(chan []byte, 16)
	return &pipeTransport{out: a, in: b}, &pipeTransport{out: b, in: a}
}

func (p *pipeTransport) SendFrame(ctx context.Context, frame []byte) error {
	cp := append([]byte(nil), frame...)
	select {
	case p.out <- cp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeTransport) RecvFrame(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-p.in:
		if !ok {
			return nil, fmt.Errorf("pipe closed")
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) Close() error { return nil }

// establishedChumSessions runs a real handshake over an in-memory pipe
// between two already-bootstrapped instances and returns the two
// negotiated Sessions, one per side.
func establishedChumSessions(t *testing.T, a, b *instance) (*session.Session, *session.Session) {
	t.Helper()
	aTransport, bTransport := newPipePair()

	type result struct {
		sess *session.Session
		err  error
	}
	aCh := make(chan result, 1)
	bCh := make(chan result, 1)
	go func() {
		s, err := session.RunInitiator(context.Background(), aTransport, session.HandshakeParams{
			LocalStatic:  a.keys.InstanceKeys,
			RemoteStatic: b.keys.InstanceKeys.Public,
			Group:        session.ConnectionGroupChum,
		})
		aCh <- result{s, err}
	}()
	go func() {
		s, err := session.RunResponder(context.Background(), bTransport, b.keys.InstanceKeys, a.keys.InstanceKeys.Public, 0)
		bCh <- result{s, err}
	}()
	aRes := <-aCh
	bRes := <-bCh
	require.NoError(t, aRes.err)
	require.NoError(t, bRes.err)
	return aRes.sess, bRes.sess
}

// runChumDrain starts both sides' CHUM engines over an already-
// established session pair, the way server.go's serveSession does for
// a real inbound connection.
func runChumDrain(ctx context.Context, a, b *instance, sessA, sessB *session.Session) {
	engineA := chum.New(a.store, a.resolver, sessA, b.self, a.log)
	engineB := chum.New(b.store, b.resolver, sessB, a.self, b.log)
	go engineA.Run(ctx)
	go engineB.Run(ctx)
}

func bootstrapTestInstance(t *testing.T, label string) *instance {
	t.Helper()
	dir := t.TempDir()
	in, err := bootstrap(context.Background(), dir, []byte("passphrase-"+label), testLogger())
	require.NoError(t, err)
	t.Cleanup(in.Close)
	return in
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition never became true")
}

// TestSync_TwoPartyRoundTrip covers spec.md §8 S1: after a full CHUM
// drain between two real instances, the receiving side learns the
// topic itself (it never existed locally) and can retrieve the
// other's message with identical content.
func TestSync_TwoPartyRoundTrip(t *testing.T) {
	alice := bootstrapTestInstance(t, "alice")
	bob := bootstrapTestInstance(t, "bob")
	ctx := context.Background()

	_, err := alice.fabric.CreateTwoPartyTopic(ctx, alice.self, bob.self)
	require.NoError(t, err)
	topicID := topic.TwoPartyTopicID(alice.self, bob.self)

	_, err = alice.svc.SendMessage(ctx, topicID, "hello bob", nil)
	require.NoError(t, err)

	sessA, sessB := establishedChumSessions(t, alice, bob)
	drainCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	runChumDrain(drainCtx, alice, bob, sessA, sessB)

	waitFor(t, func() bool { return bob.fabric.Exists(ctx, topicID) })

	var msgs []api.Message
	waitFor(t, func() bool {
		loaded, err := bob.svc.RetrieveMessages(ctx, topicID, 0, model.Hash{})
		if err != nil || len(loaded) != 1 {
			return false
		}
		msgs = loaded
		return true
	})

	require.Len(t, msgs, 1)
	assert.Equal(t, "hello bob", msgs[0].Text)
	assert.Equal(t, alice.self, msgs[0].Author)
}

// TestSync_AccessRevocationOmitsSupersededGrant covers spec.md §8 S3:
// Alice grants Bob a direct Access to one message, then immediately
// persists a new Access record for that same hash excluding Bob. A
// fresh drain must never deliver it, while a separately-synced,
// still-granted message is retrieved normally.
func TestSync_AccessRevocationOmitsSupersededGrant(t *testing.T) {
	alice := bootstrapTestInstance(t, "alice-revoke")
	bob := bootstrapTestInstance(t, "bob-revoke")
	ctx := context.Background()

	_, err := alice.fabric.CreateTwoPartyTopic(ctx, alice.self, bob.self)
	require.NoError(t, err)
	topicID := topic.TwoPartyTopicID(alice.self, bob.self)

	_, err = alice.svc.SendMessage(ctx, topicID, "you may keep this one", nil)
	require.NoError(t, err)

	secretHash, err := alice.store.PutUnversioned(ctx, model.ChatMessage{Author: alice.self, Text: "you may not keep this one"})
	require.NoError(t, err)
	_, err = alice.store.PutUnversioned(ctx, model.Access{Target: secretHash, GranteePersons: []model.Hash{bob.self}})
	require.NoError(t, err)
	_, err = alice.store.PutUnversioned(ctx, model.Access{Target: secretHash}) // supersedes: grants no one
	require.NoError(t, err)

	sessA, sessB := establishedChumSessions(t, alice, bob)
	drainCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	runChumDrain(drainCtx, alice, bob, sessA, sessB)

	waitFor(t, func() bool {
		msgs, err := bob.svc.RetrieveMessages(ctx, topicID, 0, model.Hash{})
		return err == nil && len(msgs) == 1 && msgs[0].Text == "you may keep this one"
	})

	<-time.After(100 * time.Millisecond) // let any in-flight announce/request settle
	_, err = bob.store.Get(ctx, secretHash)
	assert.Error(t, err, "the superseded grant must never have been announced to Bob")
}

// TestSync_NPartyAggregationAndNotAuthor covers spec.md §8 S2: three
// participants each independently derive the same deterministic
// Topic/Channel/Group identities and grant the same IdAccess records
// locally (spec.md §4.F topic IDs and access grants are pure
// functions of the participant set, so every member can compute them
// without waiting on a sync from whoever ran topic create first), then
// each writes to their own owned channel. A real drain lets a third
// party aggregate every message in deterministic time order. It also
// checks the NotAuthor half of S2: a non-participant can never write
// into the topic.
func TestSync_NPartyAggregationAndNotAuthor(t *testing.T) {
	alice := bootstrapTestInstance(t, "alice-nparty")
	bob := bootstrapTestInstance(t, "bob-nparty")
	carol := bootstrapTestInstance(t, "carol-nparty")
	ctx := context.Background()

	participants := []model.Hash{alice.self, bob.self, carol.self}
	for _, in := range []*instance{alice, bob, carol} {
		_, _, err := in.fabric.CreateNPartyTopic(ctx, "Three Way", participants)
		require.NoError(t, err)
	}
	topicID := "three-way"

	_, err := alice.svc.SendMessage(ctx, topicID, "alice first", nil)
	require.NoError(t, err)
	_, err = bob.svc.SendMessage(ctx, topicID, "bob second", nil)
	require.NoError(t, err)

	drainCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	sessAC, sessCA := establishedChumSessions(t, alice, carol)
	runChumDrain(drainCtx, alice, carol, sessAC, sessCA)
	sessBC, sessCB := establishedChumSessions(t, bob, carol)
	runChumDrain(drainCtx, bob, carol, sessBC, sessCB)

	var msgs []api.Message
	waitFor(t, func() bool {
		loaded, err := carol.svc.RetrieveMessages(ctx, topicID, 0, model.Hash{})
		if err != nil || len(loaded) != 2 {
			return false
		}
		msgs = loaded
		return true
	})

	require.Len(t, msgs, 2)
	assert.Equal(t, "alice first", msgs[0].Text)
	assert.Equal(t, alice.self, msgs[0].Author)
	assert.Equal(t, "bob second", msgs[1].Text)
	assert.Equal(t, bob.self, msgs[1].Author)

	dave := model.HashBytes([]byte("dave-nparty-stranger"))
	strangerSvc := api.New(carol.store, carol.fabric, carol.invites, carol.engine, carol.resolver, dave, carol.log)
	_, err = strangerSvc.SendMessage(ctx, topicID, "sneaky", nil)
	require.Error(t, err)
	kind, ok := corerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, corerrors.NotAuthor, kind)
}
