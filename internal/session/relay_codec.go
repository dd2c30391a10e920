// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"encoding/json"
	"fmt"
)

func encodeRelayFrame(rf relayFrame) ([]byte, error) {
	out, err := json.Marshal(rf)
	if err != nil {
		return nil, fmt.Errorf("session: encode relay frame: %w", err)
	}
	return out, nil
}

func decodeRelayFrame(raw []byte) (relayFrame, error) {
	var rf relayFrame
	if err := json.Unmarshal(raw, &rf); err != nil {
		return relayFrame{}, fmt.Errorf("session: decode relay frame: %w", err)
	}
	return rf, nil
}
