// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package corecrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	ephemeral, err := GenerateKeyPair()
	require.NoError(t, err)

	sealed, err := SealEnvelope(&alice.Private, &bob.Public, ephemeral.Public)
	require.NoError(t, err)
	assert.Len(t, sealed, EnvelopeSize)

	opened, err := OpenEnvelope(sealed, &bob.Private, &alice.Public)
	require.NoError(t, err)
	assert.Equal(t, ephemeral.Public, opened)
}

func TestOpenEnvelope_WrongKeyFails(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)
	mallory, err := GenerateKeyPair()
	require.NoError(t, err)
	ephemeral, err := GenerateKeyPair()
	require.NoError(t, err)

	sealed, err := SealEnvelope(&alice.Private, &bob.Public, ephemeral.Public)
	require.NoError(t, err)

	_, err = OpenEnvelope(sealed, &mallory.Private, &alice.Public)
	assert.Error(t, err)
}

func TestDeriveSessionKey_Symmetric(t *testing.T) {
	aliceEph, err := GenerateKeyPair()
	require.NoError(t, err)
	bobEph, err := GenerateKeyPair()
	require.NoError(t, err)

	k1 := DeriveSessionKey(&bobEph.Public, &aliceEph.Private)
	k2 := DeriveSessionKey(&aliceEph.Public, &bobEph.Private)
	assert.Equal(t, k1, k2, "both sides must derive the same session key")
}

func TestCodec_RoleAsymmetricNonces(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	responder := NewCodec(key, RoleResponder)
	initiator := NewCodec(key, RoleInitiator)

	// Responder's first send must be accepted by the initiator as
	// its expected first remote nonce (0), and vice versa (1).
	frame, counter, err := responder.Seal([]byte("hello from responder"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), counter)

	plain, err := initiator.Open(frame)
	require.NoError(t, err)
	assert.Equal(t, "hello from responder", string(plain))

	frame2, counter2, err := initiator.Seal([]byte("hello from initiator"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), counter2)

	plain2, err := responder.Open(frame2)
	require.NoError(t, err)
	assert.Equal(t, "hello from initiator", string(plain2))
}

func TestCodec_OutOfOrderRejected(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	responder := NewCodec(key, RoleResponder)
	initiator := NewCodec(key, RoleInitiator)

	_, _, err := responder.Seal([]byte("first"))
	require.NoError(t, err)
	frame2, _, err := responder.Seal([]byte("second"))
	require.NoError(t, err)

	// initiator expects counter 0 first; delivering counter 2 first
	// must be rejected rather than silently accepted out of order.
	_, err = initiator.Open(frame2)
	assert.Error(t, err)
}

// TestCodec_ResponderMisinitializedRemoteNonceFailsFirstDecrypt guards
// against the documented regression where a responder's remoteNext
// starts at 0 instead of 1: the initiator's first frame carries
// counter 1, so a misinitialized responder would reject it as
// out-of-order (or, worse, silently accept the wrong counter).
func TestCodec_ResponderMisinitializedRemoteNonceFailsFirstDecrypt(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	initiator := NewCodec(key, RoleInitiator)
	buggyResponder := NewCodec(key, RoleResponder)
	buggyResponder.remoteNext = 0 // the documented bug: should be 1

	frame, counter, err := initiator.Seal([]byte("hello from initiator"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), counter)

	_, err = buggyResponder.Open(frame)
	assert.Error(t, err, "a responder expecting nonce 0 first must reject the initiator's actual first frame (nonce 1)")
}

func TestCodec_ReplayRejected(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	responder := NewCodec(key, RoleResponder)
	initiator := NewCodec(key, RoleInitiator)

	frame, _, err := responder.Seal([]byte("once"))
	require.NoError(t, err)

	_, err = initiator.Open(frame)
	require.NoError(t, err)

	_, err = initiator.Open(frame)
	assert.Error(t, err, "replaying the same frame must be rejected")
}
