// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvertiseOnLocalNetwork_DisabledByDefault(t *testing.T) {
	dir := t.TempDir()
	in, err := bootstrap(context.Background(), dir, []byte("test-passphrase"), testLogger())
	require.NoError(t, err)
	t.Cleanup(in.Close)

	require.False(t, in.cfg.Discovery.Enabled)

	stop, err := advertiseOnLocalNetwork(context.Background(), in, ":7420", testLogger())
	require.NoError(t, err)
	assert.NotNil(t, stop)
	stop()
}

func TestAdvertiseOnLocalNetwork_EnabledAdvertisesViaResolver(t *testing.T) {
	dir := t.TempDir()
	in, err := bootstrap(context.Background(), dir, []byte("test-passphrase"), testLogger())
	require.NoError(t, err)
	t.Cleanup(in.Close)

	in.cfg.Discovery.Enabled = true

	stop, err := advertiseOnLocalNetwork(context.Background(), in, ":7420", testLogger())
	require.NoError(t, err)
	require.NotNil(t, stop)
	stop()
}

func TestAdvertiseOnLocalNetwork_RejectsMalformedAddr(t *testing.T) {
	dir := t.TempDir()
	in, err := bootstrap(context.Background(), dir, []byte("test-passphrase"), testLogger())
	require.NoError(t, err)
	t.Cleanup(in.Close)

	in.cfg.Discovery.Enabled = true

	_, err = advertiseOnLocalNetwork(context.Background(), in, "not-a-valid-addr", testLogger())
	assert.Error(t, err)
}
