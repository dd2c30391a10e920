// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package corecrypto implements spec.md §4.C's cryptographic primitives:
// ephemeral-key handshake envelopes and the role-asymmetric nonce
// codec used once a session's symmetric key is established.
package corecrypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// EnvelopeSize is the wire size of a sealed ephemeral-key envelope:
// a 24-byte nonce, a 32-byte public key, and box's 16-byte Poly1305
// tag (spec.md §4.C handshake phases 1-2).
const EnvelopeSize = 24 + 32 + box.Overhead

// KeyPair is a long-term or ephemeral Curve25519 keypair.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a fresh Curve25519 keypair, used both for
// long-term identity keys and per-handshake ephemeral keys.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("corecrypto: generate keypair: %w", err)
	}
	return KeyPair{Public: *pub, Private: *priv}, nil
}

// SealEnvelope encrypts ephemeralPub under the static key pair derived
// from (senderPriv, recipientPub), producing the one-time envelope
// described in spec.md §4.C phase 1/2. The nonce is generated fresh
// per call and prepended to the ciphertext.
func SealEnvelope(senderPriv *[32]byte, recipientPub *[32]byte, ephemeralPub [32]byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("corecrypto: seal envelope nonce: %w", err)
	}
	out := make([]byte, 24, EnvelopeSize)
	copy(out, nonce[:])
	out = box.Seal(out, ephemeralPub[:], &nonce, recipientPub, senderPriv)
	return out, nil
}

// OpenEnvelope reverses SealEnvelope, recovering the peer's ephemeral
// public key. Returns a plain error on a wrong size or authentication
// failure; the session package, which has the op context, wraps it as
// HandshakeFailed.
func OpenEnvelope(raw []byte, recipientPriv *[32]byte, senderPub *[32]byte) ([32]byte, error) {
	var ephemeralPub [32]byte
	if len(raw) != EnvelopeSize {
		return ephemeralPub, fmt.Errorf("corecrypto: envelope has wrong size %d, want %d", len(raw), EnvelopeSize)
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	opened, ok := box.Open(nil, raw[24:], &nonce, senderPub, recipientPriv)
	if !ok {
		return ephemeralPub, fmt.Errorf("corecrypto: envelope authentication failed")
	}
	copy(ephemeralPub[:], opened)
	return ephemeralPub, nil
}

// DeriveSessionKey computes the session's symmetric key as the
// Diffie-Hellman product of the peer's ephemeral public key and this
// side's ephemeral private key (spec.md §4.C phase 3). box.Precompute
// runs the same Curve25519+HSalsa20 derivation NaCl box uses
// internally, giving a key directly usable by the secretbox-based
// nonce codec in codec.go.
func DeriveSessionKey(peerEphemeralPub, ownEphemeralPriv *[32]byte) [32]byte {
	var sharedKey [32]byte
	box.Precompute(&sharedKey, peerEphemeralPub, ownEphemeralPriv)
	return sharedKey
}
