// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rpc exposes the same query surface as internal/api's HTTP
// facade over gRPC, for operators and peer tooling that already speak
// gRPC rather than REST. There is no .proto/protoc step in this
// module's build, so messages are plain Go structs carried by a
// registered JSON codec instead of protoc-generated types — grpc-go's
// codec is a pluggable encoding.Codec, and nothing about unary call
// dispatch, interceptors, or otelgrpc instrumentation requires the
// default proto codec specifically.
package rpc

import "encoding/json"

const codecName = "json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec by
// marshaling request/response structs as JSON rather than protobuf
// wire format.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}
