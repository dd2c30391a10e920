// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package corecrypto

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

// Role fixes which nonce parity a codec's local sends use, per
// spec.md §4.C: "Misalignment here breaks decryption silently; the
// specification mandates these exact initial values."
type Role int

const (
	// RoleResponder's local send nonces are even (0, 2, 4, ...); it
	// expects odd nonces from its peer.
	RoleResponder Role = iota
	// RoleInitiator's local send nonces are odd (1, 3, 5, ...); it
	// expects even nonces from its peer.
	RoleInitiator
)

// Codec applies authenticated encryption over an established session
// key, enforcing the role-asymmetric nonce discipline described in
// spec.md §4.C. The nonce is 24 bytes: a zero prefix and a
// little-endian counter held in the trailing 8 bytes (the
// specification's "1-byte, conceptually up to 8-byte" counter — 8
// bytes is the full generalization of that rule, so sessions with
// millions of messages never wrap).
type Codec struct {
	key [32]byte

	mu           sync.Mutex
	localCounter uint64
	remoteNext   uint64
}

// NewCodec builds a Codec for role over key, initializing local and
// remote counters to the exact starting values spec.md §4.C mandates:
// the responder's first local send is 0 and it expects 1 first; the
// initiator's first local send is 1 and it expects 0 first.
func NewCodec(key [32]byte, role Role) *Codec {
	c := &Codec{key: key}
	switch role {
	case RoleResponder:
		c.localCounter = 0
		c.remoteNext = 1
	case RoleInitiator:
		c.localCounter = 1
		c.remoteNext = 0
	}
	return c
}

func nonceFor(counter uint64) [24]byte {
	var nonce [24]byte
	binary.LittleEndian.PutUint64(nonce[16:], counter)
	return nonce
}

// Seal encrypts plaintext under the next local send nonce and returns
// the nonce-prefixed ciphertext along with the counter value used.
func (c *Codec) Seal(plaintext []byte) (out []byte, counter uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counter = c.localCounter
	nonce := nonceFor(counter)
	sealed := secretbox.Seal(nil, plaintext, &nonce, &c.key)

	out = make([]byte, 8, 8+len(sealed))
	binary.LittleEndian.PutUint64(out, counter)
	out = append(out, sealed...)

	c.localCounter += 2
	return out, counter, nil
}

// Open decrypts a frame produced by the peer's Seal, enforcing strict
// monotonic, same-parity ordering of the remote counter (spec.md §4.C:
// the remote counter discipline is the mirror image of the local one).
func (c *Codec) Open(frame []byte) ([]byte, error) {
	if len(frame) < 8 {
		return nil, fmt.Errorf("corecrypto: frame too short for counter")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	counter := binary.LittleEndian.Uint64(frame[:8])
	if counter != c.remoteNext {
		return nil, fmt.Errorf("corecrypto: unexpected remote nonce %d, want %d", counter, c.remoteNext)
	}
	nonce := nonceFor(counter)
	plaintext, ok := secretbox.Open(nil, frame[8:], &nonce, &c.key)
	if !ok {
		return nil, fmt.Errorf("corecrypto: frame authentication failed")
	}
	c.remoteNext += 2
	return plaintext, nil
}

// Zeroize clears the session key from memory when a session closes.
func (c *Codec) Zeroize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.key {
		c.key[i] = 0
	}
}
