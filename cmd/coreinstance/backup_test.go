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

func TestStartBackupExporter_DisabledWhenNoBucketConfigured(t *testing.T) {
	dir := t.TempDir()
	in, err := bootstrap(context.Background(), dir, []byte("test-passphrase"), testLogger())
	require.NoError(t, err)
	t.Cleanup(in.Close)

	require.Empty(t, in.cfg.Backup.BucketName)

	stop, err := startBackupExporter(context.Background(), in, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, stop)
	stop() // must not panic when backup was never started
}
