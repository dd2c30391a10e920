// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package model defines the content-addressed data model shared by the
// object store, access resolver, sync engine, and topic fabric.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Hash is a 32-byte SHA-256 digest, rendered as lowercase hex at every
// external boundary (wire frames, file names, query results).
type Hash [32]byte

// String renders the hash as lowercase hex, matching spec.md §6.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash (unset reference).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash decodes a lowercase-hex hash string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("model: invalid hash %q: %w", s, err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("model: hash %q has %d bytes, want %d", s, len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}

// MarshalJSON renders the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON parses a hex string into h.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HashBytes returns the content hash of an arbitrary byte slice.
func HashBytes(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// CanonicalJSON marshals v with sorted map keys and no extraneous
// whitespace so that semantically identical values always hash
// identically — the precondition for hash stability (spec.md §8.1).
func CanonicalJSON(v any) ([]byte, error) {
	// encoding/json already sorts map[string]X keys; struct field order
	// is declaration order, which is stable per Go type. Re-marshaling
	// through a generic interface normalizes number/string formatting
	// for values that arrived as map[string]any (e.g. from the wire).
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalCanonical(generic)
}

func marshalCanonical(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte("{")
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, _ := json.Marshal(k)
			out = append(out, kb...)
			out = append(out, ':')
			vb, err := marshalCanonical(t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, vb...)
		}
		return append(out, '}'), nil
	case []any:
		out := []byte("[")
		for i, elem := range t {
			if i > 0 {
				out = append(out, ',')
			}
			eb, err := marshalCanonical(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, eb...)
		}
		return append(out, ']'), nil
	default:
		return json.Marshal(t)
	}
}
