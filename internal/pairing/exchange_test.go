// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pairing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittwire/core/internal/corecrypto"
	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
	"github.com/kittwire/core/internal/session"
	"github.com/kittwire/core/pkg/logging"
)

// pipeTransport mirrors the one in the session package's own tests;
// duplicated here since it's test-only plumbing, not exported API.
type pipeTransport struct {
	out chan []byte
	in  <-chan []byte
}

func newPipePair() (session.Transport, session.Transport) {
	a := make(chan []byte, 8)
	b := make(chan []byte, 8)
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

func establishedPair(t *testing.T) (*session.Session, *session.Session) {
	t.Helper()
	initiatorStatic, err := corecrypto.GenerateKeyPair()
	require.NoError(t, err)
	responderStatic, err := corecrypto.GenerateKeyPair()
	require.NoError(t, err)

	initTransport, respTransport := newPipePair()

	type result struct {
		sess *session.Session
		err  error
	}
	initCh := make(chan result, 1)
	respCh := make(chan result, 1)

	go func() {
		s, err := session.RunInitiator(context.Background(), initTransport, session.HandshakeParams{
			LocalStatic:  initiatorStatic,
			RemoteStatic: responderStatic.Public,
			Group:        session.ConnectionGroupPairing,
		})
		initCh <- result{s, err}
	}()
	go func() {
		s, err := session.RunResponder(context.Background(), respTransport, responderStatic, initiatorStatic.Public, 0)
		respCh <- result{s, err}
	}()

	initRes := <-initCh
	respRes := <-respCh
	require.NoError(t, initRes.err)
	require.NoError(t, respRes.err)
	return initRes.sess, respRes.sess
}

func TestPairing_FullExchange(t *testing.T) {
	connecting, accepting := establishedPair(t)

	store, err := objectstore.Open("", logging.Default())
	require.NoError(t, err)
	defer store.Close()

	registry := NewRegistry()
	token, err := registry.Create([32]byte{1}, "wss://example.test/accept")
	require.NoError(t, err)

	inv, err := DecodeInvitationText(token)
	require.NoError(t, err)
	assert.Equal(t, "wss://example.test/accept", inv.EndpointURL)

	acceptingLocal := IdentityTuple{
		PersonID:     model.HashBytes([]byte("accepting-person")),
		InstanceID:   model.HashBytes([]byte("accepting-instance")),
		PersonKeys:   model.HashBytes([]byte("accepting-person-keys")),
		InstanceKeys: model.HashBytes([]byte("accepting-instance-keys")),
	}
	connectingLocal := IdentityTuple{
		PersonID:     model.HashBytes([]byte("connecting-person")),
		InstanceID:   model.HashBytes([]byte("connecting-instance")),
		PersonKeys:   model.HashBytes([]byte("connecting-person-keys")),
		InstanceKeys: model.HashBytes([]byte("connecting-instance-keys")),
	}

	type result struct {
		peer IdentityTuple
		err  error
	}
	acceptCh := make(chan result, 1)
	connectCh := make(chan result, 1)

	go func() {
		peer, err := AcceptIncoming(context.Background(), accepting, store, registry, acceptingLocal)
		acceptCh <- result{peer, err}
	}()
	go func() {
		peer, err := ConnectAndConsume(context.Background(), connecting, store, inv.Token, connectingLocal)
		connectCh <- result{peer, err}
	}()

	acceptRes := <-acceptCh
	connectRes := <-connectCh
	require.NoError(t, acceptRes.err)
	require.NoError(t, connectRes.err)

	assert.Equal(t, connectingLocal.PersonID, acceptRes.peer.PersonID)
	assert.Equal(t, acceptingLocal.PersonID, connectRes.peer.PersonID)

	// Token is single-use.
	err = registry.Consume(inv.Token)
	assert.Error(t, err)
	kind, ok := corerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, corerrors.InvitationConsumed, kind)
}

func TestRegistry_UnknownToken(t *testing.T) {
	registry := NewRegistry()
	err := registry.Consume("deadbeef")
	require.Error(t, err)
	kind, ok := corerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, corerrors.UnknownToken, kind)
}

func TestRegistry_ExpiredToken(t *testing.T) {
	registry := NewRegistry()
	token, err := registry.Create([32]byte{2}, "wss://example.test")
	require.NoError(t, err)
	inv, err := DecodeInvitationText(token)
	require.NoError(t, err)

	registry.mu.Lock()
	registry.invitations[inv.Token].ExpiresAt = time.Now().Add(-time.Second)
	registry.mu.Unlock()

	err = registry.Consume(inv.Token)
	require.Error(t, err)
	kind, ok := corerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, corerrors.InvitationExpired, kind)
}
