// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package objectstore

import (
	"github.com/kittwire/core/internal/model"
)

// Badger key prefixes. The object log ("obj:") is canonical; the
// reverse-map ("rev:") and head index ("head:") are derived and
// rebuildable from it (spec.md §4.A recovery semantics).
const (
	prefixObject   = "obj:"
	prefixReverse  = "rev:"
	prefixHead     = "head:"
	prefixVersion  = "ver:" // id hash -> ordered list of version hashes
	prefixSegment  = "seg:" // segment metadata, used by the backup exporter
	prefixChecksum = "sumrev:"
)

func objectKey(h model.Hash) []byte {
	return append([]byte(prefixObject), h[:]...)
}

// reverseKey encodes (referenced -> referencing) so that a prefix scan
// over referenced returns every object that embeds it.
func reverseKey(referenced, referencing model.Hash) []byte {
	out := make([]byte, 0, len(prefixReverse)+64)
	out = append(out, prefixReverse...)
	out = append(out, referenced[:]...)
	out = append(out, referencing[:]...)
	return out
}

func reversePrefix(referenced model.Hash) []byte {
	out := make([]byte, 0, len(prefixReverse)+32)
	out = append(out, prefixReverse...)
	out = append(out, referenced[:]...)
	return out
}

func headKey(idHash model.Hash) []byte {
	return append([]byte(prefixHead), idHash[:]...)
}

func versionKey(idHash model.Hash, seq uint64) []byte {
	out := make([]byte, 0, len(prefixVersion)+32+8)
	out = append(out, prefixVersion...)
	out = append(out, idHash[:]...)
	out = append(out, byte(seq>>56), byte(seq>>48), byte(seq>>40), byte(seq>>32),
		byte(seq>>24), byte(seq>>16), byte(seq>>8), byte(seq))
	return out
}

func versionPrefix(idHash model.Hash) []byte {
	return append([]byte(prefixVersion), idHash[:]...)
}

func segmentChecksumKey(segmentID uint64) []byte {
	out := make([]byte, 0, len(prefixChecksum)+8)
	out = append(out, prefixChecksum...)
	out = append(out, byte(segmentID>>56), byte(segmentID>>48), byte(segmentID>>40), byte(segmentID>>32),
		byte(segmentID>>24), byte(segmentID>>16), byte(segmentID>>8), byte(segmentID))
	return out
}
