// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kittwire/core/internal/pairing"
	"github.com/kittwire/core/internal/session"
)

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Creates or consumes a pairing invitation",
}

var (
	inviteTargetKeyHex string
	inviteEndpoint     string
	inviteText         string
)

var inviteCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates an invitation token for a known peer public key",
	RunE:  runInviteCreate,
}

var inviteConsumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Connects to a peer using a received invitation text and completes pairing",
	RunE:  runInviteConsume,
}

// localEndpointPrefix marks an invitation's EndpointURL as a local-
// network instance ID to resolve via discovery.Resolver rather than a
// directly dialable URL, for instances with no reachable public or
// relay address of their own.
const localEndpointPrefix = "local:"

func init() {
	inviteCreateCmd.Flags().StringVar(&inviteTargetKeyHex, "target-key", "", "expected peer's static public key, hex-encoded (required)")
	inviteCreateCmd.Flags().StringVar(&inviteEndpoint, "endpoint", "", "this instance's reachable session endpoint, e.g. wss://host:7420/session; omit to advertise for local-network discovery instead")
	inviteCreateCmd.MarkFlagRequired("target-key")

	inviteConsumeCmd.Flags().StringVar(&inviteText, "text", "", "invitation text received from the peer (required)")
	inviteConsumeCmd.MarkFlagRequired("text")

	inviteCmd.AddCommand(inviteCreateCmd, inviteConsumeCmd)
}

func runInviteCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := newLogger("coreinstance-invite", false)
	defer log.Close()

	in, err := bootstrap(ctx, dataDir, nil, log)
	if err != nil {
		return err
	}
	defer in.Close()

	keyBytes, err := hex.DecodeString(inviteTargetKeyHex)
	if err != nil || len(keyBytes) != 32 {
		return fmt.Errorf("invite create: --target-key must be 32 bytes hex")
	}
	var targetKey [32]byte
	copy(targetKey[:], keyBytes)

	endpoint := inviteEndpoint
	if endpoint == "" {
		endpoint = localEndpointPrefix + in.selfInst.String()
	}

	text, err := in.svc.CreateInvitation(targetKey, endpoint)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

// runInviteConsume drives the full §4.D pairing flow from the
// connecting side: decode the invitation text, dial the advertised
// endpoint, run the initiator handshake, and exchange identities over
// the established session. This is the real network-driving
// counterpart api.Service.ConsumeInvitation deliberately stops short
// of, since it requires this instance's own keypair and a live
// transport rather than a store lookup.
func runInviteConsume(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := newLogger("coreinstance-invite", false)
	defer log.Close()

	in, err := bootstrap(ctx, dataDir, nil, log)
	if err != nil {
		return err
	}
	defer in.Close()

	inv, err := pairing.DecodeInvitationText(inviteText)
	if err != nil {
		return fmt.Errorf("invite consume: decode invitation text: %w", err)
	}

	endpointURL := inv.EndpointURL
	if instanceID, ok := strings.CutPrefix(endpointURL, localEndpointPrefix); ok {
		endpointURL, err = in.discover.Resolve(ctx, instanceID)
		if err != nil {
			return fmt.Errorf("invite consume: resolve %s on local network: %w", instanceID, err)
		}
	}

	ourPublicKeyHex := hex.EncodeToString(in.keys.InstanceKeys.Public[:])
	dialURL := fmt.Sprintf("%s?peerKey=%s", endpointURL, ourPublicKeyHex)

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	transport, err := session.DialWebSocket(dialCtx, dialURL)
	if err != nil {
		return fmt.Errorf("invite consume: dial %s: %w", endpointURL, err)
	}

	sess, err := session.RunInitiator(ctx, transport, session.HandshakeParams{
		LocalStatic:  in.keys.InstanceKeys,
		RemoteStatic: inv.TargetPublicKey,
		Timeout:      in.cfg.Network.HandshakeTimeout,
		Group:        session.ConnectionGroupPairing,
	})
	if err != nil {
		return fmt.Errorf("invite consume: handshake failed: %w", err)
	}
	defer sess.Close()

	local, err := in.localIdentityTuple(ctx)
	if err != nil {
		return err
	}
	peer, err := pairing.ConnectAndConsume(ctx, sess, in.store, inv.Token, local)
	if err != nil {
		return fmt.Errorf("invite consume: %w", err)
	}

	fmt.Printf("paired with %s\n", peer.PersonID.String())
	return nil
}
