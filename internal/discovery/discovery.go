// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package discovery defines the local-network instance-discovery
// contract spec.md §6 requires but places out of scope for the mDNS
// implementation itself. cmd/coreinstance advertises through Resolver
// when discovery is enabled, and its invite commands resolve `local:`
// endpoints through it; internal/session does not call it.
package discovery

import (
	"context"
	"fmt"
)

// Resolver advertises this instance on the local network and resolves
// other instances' addresses by ID. A concrete implementation (mDNS/
// Bonjour, e.g. via hashicorp/mdns or grandcat/zeroconf) is an
// external collaborator per spec.md; NoopResolver below satisfies the
// interface for deployments that only ever connect via a relay or a
// recorded direct URL.
type Resolver interface {
	// Advertise publishes this instance's presence under instanceID on
	// the given port. Returns a function that withdraws the
	// advertisement; callers should defer it.
	Advertise(ctx context.Context, instanceID string, port int) (func(), error)

	// Resolve looks up the current network address for instanceID.
	// Returns an error if the instance cannot be found on the local
	// network within the resolver's search window.
	Resolve(ctx context.Context, instanceID string) (string, error)
}

// NoopResolver never finds anything; it's the default when no
// discovery backend is configured, so local-network auto-connect is
// simply unavailable rather than a startup failure.
type NoopResolver struct{}

// Advertise is a no-op; the returned withdraw function does nothing.
func (NoopResolver) Advertise(ctx context.Context, instanceID string, port int) (func(), error) {
	return func() {}, nil
}

// Resolve always fails: NoopResolver has no network visibility.
func (NoopResolver) Resolve(ctx context.Context, instanceID string) (string, error) {
	return "", fmt.Errorf("discovery: no resolver configured for instance %q", instanceID)
}

var _ Resolver = NoopResolver{}
