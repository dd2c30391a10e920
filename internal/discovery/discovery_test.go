// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopResolver_AdvertiseIsInert(t *testing.T) {
	withdraw, err := NoopResolver{}.Advertise(context.Background(), "instance-1", 4242)
	require.NoError(t, err)
	require.NotNil(t, withdraw)
	withdraw()
}

func TestNoopResolver_ResolveAlwaysFails(t *testing.T) {
	_, err := NoopResolver{}.Resolve(context.Background(), "instance-1")
	assert.Error(t, err)
}
