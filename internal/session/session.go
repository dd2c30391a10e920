// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"fmt"

	"github.com/kittwire/core/internal/corecrypto"
	"github.com/kittwire/core/internal/corerrors"
)

// Session is an established, encrypted bidirectional channel to one
// peer, after the handshake in handshake.go has completed. Group
// records which next-layer protocol (pairing or chum) owns it.
type Session struct {
	transport Transport
	codec     *corecrypto.Codec
	Group     ConnectionGroup
}

// Send encrypts and writes one message.
func (s *Session) Send(ctx context.Context, plaintext []byte) error {
	sealed, _, err := s.codec.Seal(plaintext)
	if err != nil {
		return corerrors.Wrap("session.send", corerrors.TransportLost, err)
	}
	if err := s.transport.SendFrame(ctx, sealed); err != nil {
		return corerrors.Wrap("session.send", corerrors.TransportLost, err)
	}
	return nil
}

// Recv blocks for and decrypts the next message.
func (s *Session) Recv(ctx context.Context) ([]byte, error) {
	frame, err := s.transport.RecvFrame(ctx)
	if err != nil {
		return nil, corerrors.Wrap("session.recv", corerrors.TransportLost, err)
	}
	plain, err := s.codec.Open(frame)
	if err != nil {
		return nil, corerrors.Wrap("session.recv", corerrors.HandshakeFailed, fmt.Errorf("frame rejected: %w", err))
	}
	return plain, nil
}

// Close tears down the underlying transport and zeroizes the session
// key.
func (s *Session) Close() error {
	s.codec.Zeroize()
	return s.transport.Close()
}
