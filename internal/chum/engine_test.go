// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chum

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittwire/core/internal/access"
	"github.com/kittwire/core/internal/corecrypto"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
	"github.com/kittwire/core/internal/session"
	"github.com/kittwire/core/pkg/logging"
)

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

func establishedSessions(t *testing.T) (*session.Session, *session.Session) {
	t.Helper()
	aStatic, err := corecrypto.GenerateKeyPair()
	require.NoError(t, err)
	bStatic, err := corecrypto.GenerateKeyPair()
	require.NoError(t, err)

	aTransport, bTransport := newPipePair()

	type result struct {
		sess *session.Session
		err  error
	}
	aCh := make(chan result, 1)
	bCh := make(chan result, 1)
	go func() {
		s, err := session.RunInitiator(context.Background(), aTransport, session.HandshakeParams{
			LocalStatic:  aStatic,
			RemoteStatic: bStatic.Public,
			Group:        session.ConnectionGroupChum,
		})
		aCh <- result{s, err}
	}()
	go func() {
		s, err := session.RunResponder(context.Background(), bTransport, bStatic, aStatic.Public, 0)
		bCh <- result{s, err}
	}()
	aRes := <-aCh
	bRes := <-bCh
	require.NoError(t, aRes.err)
	require.NoError(t, bRes.err)
	return aRes.sess, bRes.sess
}

func TestEngine_AnnounceRequestDeliver(t *testing.T) {
	storeA, err := objectstore.Open("", logging.Default())
	require.NoError(t, err)
	defer storeA.Close()
	storeB, err := objectstore.Open("", logging.Default())
	require.NoError(t, err)
	defer storeB.Close()

	personB := model.HashBytes([]byte("person-b"))
	personA := model.HashBytes([]byte("person-a"))

	resolverA := access.New(storeA, logging.Default())
	defer resolverA.Close()
	resolverB := access.New(storeB, logging.Default())
	defer resolverB.Close()

	ctx := context.Background()

	// A authored a message and grants B access to it.
	msgHash, err := storeA.PutUnversioned(ctx, model.ChatMessage{Author: personA, Text: "hello from A"})
	require.NoError(t, err)
	_, err = storeA.PutUnversioned(ctx, model.Access{Target: msgHash, GranteePersons: []model.Hash{personB}})
	require.NoError(t, err)

	sessA, sessB := establishedSessions(t)

	engineA := New(storeA, resolverA, sessA, personB, logging.Default())
	engineB := New(storeB, resolverB, sessB, personA, logging.Default())

	runCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go engineA.Run(runCtx)
	go engineB.Run(runCtx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := storeB.Get(ctx, msgHash); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	env, err := storeB.Get(ctx, msgHash)
	require.NoError(t, err, "B must receive the message A was granted access to")
	assert.Equal(t, model.TypeChatMessage, env.Type)
}

func TestEngine_UnauthorizedRequestDenied(t *testing.T) {
	storeA, err := objectstore.Open("", logging.Default())
	require.NoError(t, err)
	defer storeA.Close()
	storeB, err := objectstore.Open("", logging.Default())
	require.NoError(t, err)
	defer storeB.Close()

	personB := model.HashBytes([]byte("person-b-2"))
	personA := model.HashBytes([]byte("person-a-2"))

	resolverA := access.New(storeA, logging.Default())
	defer resolverA.Close()
	resolverB := access.New(storeB, logging.Default())
	defer resolverB.Close()

	ctx := context.Background()

	// A has a message but never grants B access.
	msgHash, err := storeA.PutUnversioned(ctx, model.ChatMessage{Author: personA, Text: "private"})
	require.NoError(t, err)

	sessA, sessB := establishedSessions(t)
	engineA := New(storeA, resolverA, sessA, personB, logging.Default())
	engineB := New(storeB, resolverB, sessB, personA, logging.Default())

	runCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	go engineA.Run(runCtx)
	go engineB.Run(runCtx)

	<-runCtx.Done()
	_, err = storeB.Get(context.Background(), msgHash)
	assert.Error(t, err, "B must never receive an object it was not granted access to")
}

func TestEngine_DeliverRateLimitStillDeliversWithinDeadline(t *testing.T) {
	storeA, err := objectstore.Open("", logging.Default())
	require.NoError(t, err)
	defer storeA.Close()
	storeB, err := objectstore.Open("", logging.Default())
	require.NoError(t, err)
	defer storeB.Close()

	personB := model.HashBytes([]byte("person-b-3"))
	personA := model.HashBytes([]byte("person-a-3"))

	resolverA := access.New(storeA, logging.Default())
	defer resolverA.Close()
	resolverB := access.New(storeB, logging.Default())
	defer resolverB.Close()

	ctx := context.Background()

	msgHash, err := storeA.PutUnversioned(ctx, model.ChatMessage{Author: personA, Text: "rate limited hello"})
	require.NoError(t, err)
	_, err = storeA.PutUnversioned(ctx, model.Access{Target: msgHash, GranteePersons: []model.Hash{personB}})
	require.NoError(t, err)

	sessA, sessB := establishedSessions(t)

	engineA := New(storeA, resolverA, sessA, personB, logging.Default(), WithDeliverRateLimit(100, 10))
	engineB := New(storeB, resolverB, sessB, personA, logging.Default())

	runCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go engineA.Run(runCtx)
	go engineB.Run(runCtx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := storeB.Get(ctx, msgHash); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	env, err := storeB.Get(ctx, msgHash)
	require.NoError(t, err, "a generous rate limit must not prevent delivery within the test deadline")
	assert.Equal(t, model.TypeChatMessage, env.Type)
}
