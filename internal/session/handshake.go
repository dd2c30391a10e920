// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kittwire/core/internal/corecrypto"
	"github.com/kittwire/core/internal/corerrors"
)

// ConnectionGroup selects which next-layer protocol a session is for,
// negotiated as the final step of the handshake (spec.md §4.C phase 4).
type ConnectionGroup string

const (
	ConnectionGroupPairing ConnectionGroup = "pairing"
	ConnectionGroupChum    ConnectionGroup = "chum"
)

// groupFrame carries the phase-4 connection_group label. It has no
// encryption of its own: by this point it rides over the
// already-established Codec, so its confidentiality comes from the
// codec seal, not from this struct.
type groupFrame struct {
	ConnectionGroup ConnectionGroup `json:"connectionGroup"`
}

// DefaultHandshakeTimeout bounds each blocking handshake step (spec.md
// §4.C: "a handshake step that blocks for longer than a configured
// wall-clock budget MUST close the transport").
const DefaultHandshakeTimeout = 15 * time.Second

// HandshakeParams carries the long-term identity material needed to
// run either side of the handshake.
type HandshakeParams struct {
	LocalStatic  corecrypto.KeyPair
	RemoteStatic [32]byte // peer's published static public key
	Timeout      time.Duration
	Group        ConnectionGroup // group to propose, as initiator
}

// RunInitiator drives the four handshake phases as the party that
// opened the transport, targeting the peer's advertised static key.
func RunInitiator(ctx context.Context, t Transport, p HandshakeParams) (*Session, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	ephemeral, err := corecrypto.GenerateKeyPair()
	if err != nil {
		return nil, corerrors.Wrap("session.handshake.initiator", corerrors.HandshakeFailed, err)
	}

	// Phase 1: send our ephemeral public key, encrypted under the
	// static key pair (our long-term private, peer's long-term public).
	envelope, err := corecrypto.SealEnvelope(&p.LocalStatic.Private, &p.RemoteStatic, ephemeral.Public)
	if err != nil {
		return nil, corerrors.Wrap("session.handshake.initiator", corerrors.HandshakeFailed, err)
	}
	if err := sendWithTimeout(ctx, t, envelope, timeout); err != nil {
		return nil, corerrors.Wrap("session.handshake.initiator", corerrors.HandshakeFailed, err)
	}

	// Phase 2: receive the responder's ephemeral public key, sealed
	// the same way but under the inverse static pair.
	raw, err := recvWithTimeout(ctx, t, timeout)
	if err != nil {
		return nil, corerrors.Wrap("session.handshake.initiator", corerrors.HandshakeFailed, err)
	}
	peerEphemeral, err := corecrypto.OpenEnvelope(raw, &p.LocalStatic.Private, &p.RemoteStatic)
	if err != nil {
		t.Close()
		return nil, corerrors.Wrap("session.handshake.initiator", corerrors.HandshakeFailed, err)
	}

	// Phase 3: derive the shared session key.
	sessionKey := corecrypto.DeriveSessionKey(&peerEphemeral, &ephemeral.Private)
	codec := corecrypto.NewCodec(sessionKey, corecrypto.RoleInitiator)

	// Phase 4: propose the connection_group over the now-established
	// codec, and read back the responder's echo.
	s := &Session{transport: t, codec: codec}
	if err := s.sendGroup(ctx, timeout, p.Group); err != nil {
		return nil, corerrors.Wrap("session.handshake.initiator", corerrors.HandshakeFailed, err)
	}
	group, err := s.recvGroup(ctx, timeout)
	if err != nil {
		return nil, corerrors.Wrap("session.handshake.initiator", corerrors.HandshakeFailed, err)
	}
	s.Group = group
	return s, nil
}

// RunResponder drives the handshake as the party whose published
// instance key was targeted by the initiator.
func RunResponder(ctx context.Context, t Transport, local corecrypto.KeyPair, remoteStatic [32]byte, timeout time.Duration) (*Session, error) {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	// Phase 1: receive the initiator's ephemeral public key.
	raw, err := recvWithTimeout(ctx, t, timeout)
	if err != nil {
		return nil, corerrors.Wrap("session.handshake.responder", corerrors.HandshakeFailed, err)
	}
	peerEphemeral, err := corecrypto.OpenEnvelope(raw, &local.Private, &remoteStatic)
	if err != nil {
		t.Close()
		return nil, corerrors.Wrap("session.handshake.responder", corerrors.HandshakeFailed, err)
	}

	// Phase 2: generate our own ephemeral keypair and reply.
	ephemeral, err := corecrypto.GenerateKeyPair()
	if err != nil {
		return nil, corerrors.Wrap("session.handshake.responder", corerrors.HandshakeFailed, err)
	}
	envelope, err := corecrypto.SealEnvelope(&local.Private, &remoteStatic, ephemeral.Public)
	if err != nil {
		return nil, corerrors.Wrap("session.handshake.responder", corerrors.HandshakeFailed, err)
	}
	if err := sendWithTimeout(ctx, t, envelope, timeout); err != nil {
		return nil, corerrors.Wrap("session.handshake.responder", corerrors.HandshakeFailed, err)
	}

	// Phase 3: derive the shared session key.
	sessionKey := corecrypto.DeriveSessionKey(&peerEphemeral, &ephemeral.Private)
	codec := corecrypto.NewCodec(sessionKey, corecrypto.RoleResponder)

	// Phase 4: read the initiator's proposed connection_group and echo it.
	s := &Session{transport: t, codec: codec}
	group, err := s.recvGroup(ctx, timeout)
	if err != nil {
		return nil, corerrors.Wrap("session.handshake.responder", corerrors.HandshakeFailed, err)
	}
	if err := s.sendGroup(ctx, timeout, group); err != nil {
		return nil, corerrors.Wrap("session.handshake.responder", corerrors.HandshakeFailed, err)
	}
	s.Group = group
	return s, nil
}

func sendWithTimeout(ctx context.Context, t Transport, frame []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return t.SendFrame(ctx, frame)
}

func recvWithTimeout(ctx context.Context, t Transport, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return t.RecvFrame(ctx)
}

func (s *Session) sendGroup(ctx context.Context, timeout time.Duration, group ConnectionGroup) error {
	raw, err := json.Marshal(groupFrame{ConnectionGroup: group})
	if err != nil {
		return fmt.Errorf("session: marshal connection group: %w", err)
	}
	sealed, _, err := s.codec.Seal(raw)
	if err != nil {
		return err
	}
	return sendWithTimeout(ctx, s.transport, sealed, timeout)
}

func (s *Session) recvGroup(ctx context.Context, timeout time.Duration) (ConnectionGroup, error) {
	raw, err := recvWithTimeout(ctx, s.transport, timeout)
	if err != nil {
		return "", err
	}
	plain, err := s.codec.Open(raw)
	if err != nil {
		return "", err
	}
	var gf groupFrame
	if err := json.Unmarshal(plain, &gf); err != nil {
		return "", fmt.Errorf("session: unmarshal connection group: %w", err)
	}
	return gf.ConnectionGroup, nil
}
