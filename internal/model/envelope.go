// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package model

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Envelope is the on-disk/on-wire tagged representation of every
// stored object: `{"$type$": "...", "value": {...}}`.
type Envelope struct {
	Type  TypeTag         `json:"$type$"`
	Value json.RawMessage `json:"value"`
}

// Encode canonicalizes obj into an Envelope and returns both the
// envelope bytes and its content hash. Two calls with
// semantically-identical obj values always return the same hash
// (spec.md §8.1 hash stability).
func Encode(tag TypeTag, obj any) (Hash, []byte, error) {
	valueBytes, err := CanonicalJSON(obj)
	if err != nil {
		return Hash{}, nil, fmt.Errorf("model: encode %s: %w", tag, err)
	}
	env := Envelope{Type: tag, Value: valueBytes}
	full, err := CanonicalJSON(env)
	if err != nil {
		return Hash{}, nil, fmt.Errorf("model: encode envelope %s: %w", tag, err)
	}
	return HashBytes(full), full, nil
}

// DecodeEnvelope parses raw bytes into an Envelope without
// interpreting Value — callers dispatch on Type.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("model: decode envelope: %w", err)
	}
	return env, nil
}

// DecodeValue unmarshals an envelope's raw value into its concrete Go
// type according to tag, falling back to Unknown for any tag this
// build doesn't recognize (spec.md §9 forward compatibility). The
// returned value is suitable for ExtractHashes.
func DecodeValue(tag TypeTag, raw json.RawMessage) (any, error) {
	var (
		v   any
		err error
	)
	switch tag {
	case TypePerson:
		var x Person
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeKeys:
		var x Keys
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeInstance:
		var x Instance
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeInstanceEndpoint:
		var x InstanceEndpoint
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeProfile:
		var x Profile
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeSomeone:
		var x Someone
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeAccess:
		var x Access
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeIdAccess:
		var x IdAccess
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeGroup:
		var x Group
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeChannel:
		var x Channel
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeChannelEntry:
		var x ChannelEntry
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeTopic:
		var x Topic
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeChatMessage:
		var x ChatMessage
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeLLM:
		var x LLM
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeSubject:
		var x Subject
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeKeyword:
		var x Keyword
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeSummary:
		var x Summary
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeAttachment:
		var x Attachment
		err = json.Unmarshal(raw, &x)
		v = x
	case TypeProposalConfig:
		var x ProposalConfig
		err = json.Unmarshal(raw, &x)
		v = x
	default:
		v = Unknown{Tag: tag, Bytes: raw}
	}
	if err != nil {
		return nil, fmt.Errorf("model: decode value %s: %w", tag, err)
	}
	return v, nil
}

// ExtractHashes walks obj's JSON-visible fields and returns every
// embedded Hash value it finds, directly or nested in slices/maps/
// structs. This is the scan step of the reverse-map algorithm
// (spec.md §4.A): "the store scans the serialized object for all
// embedded hashes".
func ExtractHashes(obj any) []Hash {
	var out []Hash
	seen := map[Hash]bool{}
	walkForHashes(reflect.ValueOf(obj), &out, seen)
	return out
}

var hashType = reflect.TypeOf(Hash{})

func walkForHashes(v reflect.Value, out *[]Hash, seen map[Hash]bool) {
	if !v.IsValid() {
		return
	}
	if v.Type() == hashType {
		h := v.Interface().(Hash)
		if !h.IsZero() && !seen[h] {
			seen[h] = true
			*out = append(*out, h)
		}
		return
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if !v.IsNil() {
			walkForHashes(v.Elem(), out, seen)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).PkgPath != "" {
				continue // unexported
			}
			walkForHashes(v.Field(i), out, seen)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			walkForHashes(v.Index(i), out, seen)
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			walkForHashes(iter.Value(), out, seen)
		}
	}
}
