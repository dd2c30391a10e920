// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chum implements spec.md §4.E: the sync engine that runs
// symmetrically on both ends of a session in the "chum" connection
// group, announcing, requesting, and delivering objects while
// respecting access and local-only types.
package chum

import (
	"encoding/json"
	"fmt"

	"github.com/kittwire/core/internal/model"
)

// FrameType enumerates the chum wire frame kinds (spec.md §6).
type FrameType string

const (
	FrameAnnounce FrameType = "ANNOUNCE"
	FrameRequest  FrameType = "REQUEST"
	FrameDeliver  FrameType = "DELIVER"
	FrameDeny     FrameType = "DENY"
	FramePing     FrameType = "PING"
	FramePong     FrameType = "PONG"
	FrameClose    FrameType = "CLOSE"
)

// frame is the on-the-wire JSON shape: every message carries at least
// {"type": ...}, plus whatever fields that type needs.
type frame struct {
	Type FrameType     `json:"type"`
	Hash model.Hash    `json:"hash,omitempty"`
	ObjType model.TypeTag `json:"objType,omitempty"`
	Body []byte        `json:"body,omitempty"`
}

func encodeFrame(f frame) ([]byte, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("chum: encode %s frame: %w", f.Type, err)
	}
	return raw, nil
}

func decodeFrame(raw []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return frame{}, fmt.Errorf("chum: decode frame: %w", err)
	}
	return f, nil
}
