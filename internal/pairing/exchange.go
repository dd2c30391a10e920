// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pairing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
	"github.com/kittwire/core/internal/session"
)

// IdentityTuple is what both sides exchange once the token is
// accepted (spec.md §4.D step 4).
type IdentityTuple struct {
	PersonID     model.Hash `json:"personId"`
	InstanceID   model.Hash `json:"instanceId"`
	PersonKeys   model.Hash `json:"personKeys"`
	InstanceKeys model.Hash `json:"instanceKeys"`
}

// TrustCertificate is the unversioned record both sides issue
// designating the peer's person keys as trusted (spec.md §4.D step 5:
// "RightToDeclareTrustedKeysForEverybodyCertificate or equivalent").
type TrustCertificate struct {
	Issuer       model.Hash `json:"issuer"`
	TrustedKeys  model.Hash `json:"trustedKeys"`
	TrustedOwner model.Hash `json:"trustedOwner"`
}

func (TrustCertificate) TypeTag() model.TypeTag { return "TrustCertificate" }

type pairingFrame struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

func sendFrame(ctx context.Context, s *session.Session, frameType string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("pairing: marshal %s frame: %w", frameType, err)
	}
	frame, err := json.Marshal(pairingFrame{Type: frameType, Body: raw})
	if err != nil {
		return fmt.Errorf("pairing: marshal %s envelope: %w", frameType, err)
	}
	return s.Send(ctx, frame)
}

func recvFrame(ctx context.Context, s *session.Session, wantType string, out any) error {
	raw, err := s.Recv(ctx)
	if err != nil {
		return err
	}
	var pf pairingFrame
	if err := json.Unmarshal(raw, &pf); err != nil {
		return fmt.Errorf("pairing: unmarshal frame: %w", err)
	}
	if pf.Type != wantType {
		return fmt.Errorf("pairing: expected %s frame, got %s", wantType, pf.Type)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(pf.Body, out)
}

// ConnectAndConsume drives the connecting instance's side of §4.D:
// dial to inv.EndpointURL (handled by the caller, which must already
// have produced an established pairing-group Session), send the
// token, exchange identity tuples, and issue mutual trust
// certificates and Profile/Someone records.
func ConnectAndConsume(ctx context.Context, s *session.Session, store *objectstore.Store, token string, local IdentityTuple) (IdentityTuple, error) {
	if err := sendFrame(ctx, s, "token", struct {
		Token string `json:"token"`
	}{Token: token}); err != nil {
		return IdentityTuple{}, err
	}

	var ack struct {
		Accepted bool   `json:"accepted"`
		Reason   string `json:"reason,omitempty"`
	}
	if err := recvFrame(ctx, s, "token_ack", &ack); err != nil {
		return IdentityTuple{}, err
	}
	if !ack.Accepted {
		return IdentityTuple{}, corerrors.Wrap("pairing.connect", corerrors.UnknownToken, fmt.Errorf("%s", ack.Reason))
	}

	return exchangeIdentitiesAndTrust(ctx, s, store, local)
}

// AcceptIncoming drives the accepting instance's side: validate the
// token against registry, ack, then exchange identities and trust.
func AcceptIncoming(ctx context.Context, s *session.Session, store *objectstore.Store, registry *Registry, local IdentityTuple) (IdentityTuple, error) {
	var tok struct {
		Token string `json:"token"`
	}
	if err := recvFrame(ctx, s, "token", &tok); err != nil {
		return IdentityTuple{}, err
	}

	consumeErr := registry.Consume(tok.Token)
	ack := struct {
		Accepted bool   `json:"accepted"`
		Reason   string `json:"reason,omitempty"`
	}{Accepted: consumeErr == nil}
	if consumeErr != nil {
		ack.Reason = consumeErr.Error()
	}
	if err := sendFrame(ctx, s, "token_ack", ack); err != nil {
		return IdentityTuple{}, err
	}
	if consumeErr != nil {
		return IdentityTuple{}, consumeErr
	}

	return exchangeIdentitiesAndTrust(ctx, s, store, local)
}

func exchangeIdentitiesAndTrust(ctx context.Context, s *session.Session, store *objectstore.Store, local IdentityTuple) (IdentityTuple, error) {
	if err := sendFrame(ctx, s, "identity", local); err != nil {
		return IdentityTuple{}, err
	}
	var peer IdentityTuple
	if err := recvFrame(ctx, s, "identity", &peer); err != nil {
		return IdentityTuple{}, err
	}

	cert := TrustCertificate{
		Issuer:       local.PersonID,
		TrustedKeys:  peer.PersonKeys,
		TrustedOwner: peer.PersonID,
	}
	if _, err := store.PutUnversioned(ctx, cert); err != nil {
		return IdentityTuple{}, fmt.Errorf("pairing: persist trust certificate: %w", err)
	}

	profile := model.Profile{PersonRef: peer.PersonID, Nickname: peer.PersonID.String()}
	profileIDHash, _, err := store.PutVersioned(ctx, profile)
	if err != nil {
		return IdentityTuple{}, fmt.Errorf("pairing: persist peer profile: %w", err)
	}
	// Referenced by identity hash, not content hash: Someone tracks the
	// profile's identity line, not one specific version of it.
	someone := model.Someone{MainProfile: profileIDHash, Profiles: []model.Hash{profileIDHash}}
	if _, _, err := store.PutVersioned(ctx, someone); err != nil {
		return IdentityTuple{}, fmt.Errorf("pairing: persist peer someone: %w", err)
	}

	return peer, nil
}
