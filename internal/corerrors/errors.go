// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package corerrors defines the error-kind taxonomy shared by every
// component (spec.md §7). Kinds are sentinel values checked with
// errors.Is; CoreError carries the operation and an optional cause.
package corerrors

import (
	"errors"
	"fmt"
)

// Kind is one of the error taxonomy entries from spec.md §7. It is a
// classification, not a concrete Go type — callers switch on Kind via
// errors.Is against the sentinel Kind values below.
type Kind string

const (
	NotFound          Kind = "not_found"
	NotAuthor         Kind = "not_author"
	NotAuthenticated  Kind = "not_authenticated"
	HandshakeFailed   Kind = "handshake_failed"
	InvitationConsumed Kind = "invitation_consumed"
	InvitationExpired Kind = "invitation_expired"
	UnknownToken      Kind = "unknown_token"
	AccessDenied      Kind = "access_denied"
	Corrupt           Kind = "corrupt"
	TransportLost     Kind = "transport_lost"
	MalformedAnalysis Kind = "malformed_analysis"
	Fatal             Kind = "fatal"
	UnknownTopic      Kind = "unknown_topic"
	InvalidWeights    Kind = "invalid_weights"
)

// Sentinel errors usable directly with errors.Is when no extra
// context is needed.
var (
	ErrNotFound          = &CoreError{Kind: NotFound}
	ErrNotAuthor         = &CoreError{Kind: NotAuthor}
	ErrNotAuthenticated  = &CoreError{Kind: NotAuthenticated}
	ErrHandshakeFailed   = &CoreError{Kind: HandshakeFailed}
	ErrInvitationConsumed = &CoreError{Kind: InvitationConsumed}
	ErrInvitationExpired = &CoreError{Kind: InvitationExpired}
	ErrUnknownToken      = &CoreError{Kind: UnknownToken}
	ErrAccessDenied      = &CoreError{Kind: AccessDenied}
	ErrCorrupt           = &CoreError{Kind: Corrupt}
	ErrTransportLost     = &CoreError{Kind: TransportLost}
	ErrMalformedAnalysis = &CoreError{Kind: MalformedAnalysis}
	ErrFatal             = &CoreError{Kind: Fatal}
	ErrUnknownTopic      = &CoreError{Kind: UnknownTopic}
	ErrInvalidWeights    = &CoreError{Kind: InvalidWeights}
)

// CoreError wraps a failed operation with its kind and an optional
// cause, modeled on the teacher's CommandError.
type CoreError struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements error.
func (e *CoreError) Error() string {
	if e.Op != "" && e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return string(e.Kind)
}

// Unwrap enables errors.Is/As to see through to the cause.
func (e *CoreError) Unwrap() error {
	return e.Err
}

// Is compares by Kind only — CoreError values with different Op/Err
// but the same Kind are considered equal for errors.Is purposes so
// that code can do `errors.Is(err, corerrors.ErrNotFound)`.
func (e *CoreError) Is(target error) bool {
	var other *CoreError
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Wrap builds a CoreError for op/kind wrapping cause.
func Wrap(op string, kind Kind, cause error) error {
	return &CoreError{Kind: kind, Op: op, Err: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) a CoreError,
// returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
