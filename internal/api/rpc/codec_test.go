// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec_RoundTrip(t *testing.T) {
	codec := jsonCodec{}
	in := &CreateInvitationRequest{TargetPublicKey: "abcd", EndpointURL: "wss://host/session"}

	data, err := codec.Marshal(in)
	require.NoError(t, err)

	var out CreateInvitationRequest
	require.NoError(t, codec.Unmarshal(data, &out))
	assert.Equal(t, *in, out)
}

func TestJSONCodec_Name(t *testing.T) {
	assert.Equal(t, "json", jsonCodec{}.Name())
}
