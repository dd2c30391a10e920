// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pairing implements spec.md §4.D: invitation creation and
// consumption, mutual identity exchange, and trust-certificate
// issuance that follows a successful pairing session.
package pairing

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kittwire/core/internal/corerrors"
)

// Invitation is the transient PairingInvitation entity (spec.md §3):
// a one-time token bound to the target instance's public key and a
// reachable endpoint URL.
type Invitation struct {
	Token           string    `json:"token"`
	TargetPublicKey [32]byte  `json:"-"`
	EndpointURL     string    `json:"-"`
	ExpiresAt       time.Time `json:"-"`
}

// wireInvitation is the base64(JSON) opaque text handed to the UI
// layer (spec.md §6 invitation representation).
type wireInvitation struct {
	Token     string `json:"token"`
	PublicKey string `json:"publicKey"`
	URL       string `json:"url"`
}

// InvitationTTL bounds how long an unconsumed invitation remains valid.
const InvitationTTL = 10 * time.Minute

// Registry tracks outstanding invitations created by this instance and
// enforces single-use consumption (spec.md §4.D policy).
type Registry struct {
	mu          sync.Mutex
	invitations map[string]*Invitation
	consumed    map[string]bool
}

// NewRegistry builds an empty invitation registry.
func NewRegistry() *Registry {
	return &Registry{
		invitations: make(map[string]*Invitation),
		consumed:    make(map[string]bool),
	}
}

// Create mints a fresh invitation for targetPublicKey reachable at
// endpointURL, and returns its opaque, URL-safe wire form.
func (r *Registry) Create(targetPublicKey [32]byte, endpointURL string) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("pairing: generate token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	inv := &Invitation{
		Token:           token,
		TargetPublicKey: targetPublicKey,
		EndpointURL:     endpointURL,
		ExpiresAt:       time.Now().Add(InvitationTTL),
	}

	r.mu.Lock()
	r.invitations[token] = inv
	r.mu.Unlock()

	wire := wireInvitation{
		Token:     token,
		PublicKey: hex.EncodeToString(targetPublicKey[:]),
		URL:       endpointURL,
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("pairing: marshal invitation: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// DecodeInvitationText parses the opaque text a user pastes to
// consume an invitation, without touching the registry (the
// connecting instance never saw this token minted).
func DecodeInvitationText(text string) (Invitation, error) {
	raw, err := base64.URLEncoding.DecodeString(text)
	if err != nil {
		return Invitation{}, fmt.Errorf("pairing: decode invitation text: %w", err)
	}
	var wire wireInvitation
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Invitation{}, fmt.Errorf("pairing: unmarshal invitation text: %w", err)
	}
	keyBytes, err := hex.DecodeString(wire.PublicKey)
	if err != nil || len(keyBytes) != 32 {
		return Invitation{}, fmt.Errorf("pairing: invalid invitation public key")
	}
	var pub [32]byte
	copy(pub[:], keyBytes)
	return Invitation{Token: wire.Token, TargetPublicKey: pub, EndpointURL: wire.URL}, nil
}

// Consume validates and retires token on the accepting side (the
// instance that originally called Create). Returns corerrors with
// Kind UnknownToken, InvitationExpired, or InvitationConsumed on
// failure, matching spec.md §4.D: "the responder aborts if the token
// is unknown or already consumed."
func (r *Registry) Consume(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consumed[token] {
		return corerrors.Wrap("pairing.consume", corerrors.InvitationConsumed, nil)
	}
	inv, ok := r.invitations[token]
	if !ok {
		return corerrors.Wrap("pairing.consume", corerrors.UnknownToken, nil)
	}
	if time.Now().After(inv.ExpiresAt) {
		return corerrors.Wrap("pairing.consume", corerrors.InvitationExpired, nil)
	}
	r.consumed[token] = true
	delete(r.invitations, token)
	return nil
}
