// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session implements spec.md §4.C: framed, encrypted
// bidirectional byte streams over either a direct WebSocket or a
// relay, the four-phase ephemeral-key handshake, and the
// role-asymmetric nonce discipline that follows it.
package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a bidirectional framed byte stream. Direct WebSocket
// connections and relayed connections both implement it, so the
// handshake and everything above it is transport-agnostic (spec.md
// §4.C: "two transports are supported and interchangeable at this
// layer").
type Transport interface {
	// SendFrame writes one opaque frame.
	SendFrame(ctx context.Context, frame []byte) error
	// RecvFrame blocks for the next frame.
	RecvFrame(ctx context.Context) ([]byte, error)
	Close() error
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// wsTransport adapts a *websocket.Conn to Transport using binary
// messages as frames — gorilla/websocket already preserves message
// boundaries, so no additional length-prefixing is needed on top of it.
type wsTransport struct {
	conn *websocket.Conn
}

// DialWebSocket opens a direct client connection to url, used when the
// peer has published a reachable InstanceEndpoint URL.
func DialWebSocket(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("session: dial websocket %s: %w", url, err)
	}
	return &wsTransport{conn: conn}, nil
}

// AcceptWebSocket upgrades an incoming HTTP request to a WebSocket
// transport, for use by a gin handler serving the instance's own
// listen endpoint.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request) (Transport, error) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("session: upgrade websocket: %w", err)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) SendFrame(ctx context.Context, frame []byte) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(dl)
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (t *wsTransport) RecvFrame(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(dl)
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("session: recv frame: %w", err)
	}
	return data, nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// relayFrame is the wire envelope a relay server forwards between two
// instances that cannot reach each other directly (spec.md §4.C:
// "both endpoints connect as clients to a relay service that forwards
// by target public-key").
type relayFrame struct {
	TargetPublicKey [32]byte `json:"targetPublicKey"`
	Payload         []byte   `json:"payload"`
}

// relayTransport wraps a WebSocket connection to a relay service,
// tagging outgoing frames with the recipient's static public key and
// unwrapping incoming ones.
type relayTransport struct {
	inner  Transport
	target [32]byte
}

// DialRelay connects to a relay service and addresses all subsequent
// frames to targetPublicKey.
func DialRelay(ctx context.Context, relayURL string, targetPublicKey [32]byte) (Transport, error) {
	inner, err := DialWebSocket(ctx, relayURL)
	if err != nil {
		return nil, fmt.Errorf("session: dial relay: %w", err)
	}
	return &relayTransport{inner: inner, target: targetPublicKey}, nil
}

func (t *relayTransport) SendFrame(ctx context.Context, frame []byte) error {
	wrapped, err := encodeRelayFrame(relayFrame{TargetPublicKey: t.target, Payload: frame})
	if err != nil {
		return err
	}
	return t.inner.SendFrame(ctx, wrapped)
}

func (t *relayTransport) RecvFrame(ctx context.Context) ([]byte, error) {
	raw, err := t.inner.RecvFrame(ctx)
	if err != nil {
		return nil, err
	}
	rf, err := decodeRelayFrame(raw)
	if err != nil {
		return nil, err
	}
	return rf.Payload, nil
}

func (t *relayTransport) Close() error {
	return t.inner.Close()
}
