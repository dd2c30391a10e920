// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	otelgrpc "go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"

	"github.com/kittwire/core/internal/api"
	"github.com/kittwire/core/pkg/logging"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// serviceName is the gRPC service name this package's methods are
// registered under, kw.core.v1.QuerySurface by analogy with the HTTP
// facade's /v1 route group.
const serviceName = "kw.core.v1.QuerySurface"

// QuerySurfaceServer is the interface grpc.Server.RegisterService
// checks the registered implementation against, standing in for what
// protoc-gen-go-grpc would otherwise generate from a .proto file.
type QuerySurfaceServer interface {
	GetContacts(context.Context, *Empty) (*GetContactsResponse, error)
	ListTopics(context.Context, *Empty) (*ListTopicsResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	RetrieveMessages(context.Context, *RetrieveMessagesRequest) (*RetrieveMessagesResponse, error)
	CreateInvitation(context.Context, *CreateInvitationRequest) (*CreateInvitationResponse, error)
	ConsumeInvitation(context.Context, *ConsumeInvitationRequest) (*ConsumeInvitationResponse, error)
	GetProposals(context.Context, *GetProposalsRequest) (*GetProposalsResponse, error)
	UpdateProposalConfig(context.Context, *UpdateProposalConfigRequest) (*UpdateProposalConfigResponse, error)
	Health(context.Context, *Empty) (*HealthResponse, error)
}

var _ QuerySurfaceServer = (*Handlers)(nil)

func unaryHandler[Req any, Resp any](fn func(context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// serviceDesc builds the grpc.ServiceDesc wiring each Handlers method
// to a gRPC method name. Built from h rather than as a package-level
// var since each unaryHandler closes over h's typed methods.
func serviceDesc(h *Handlers) grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*QuerySurfaceServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "GetContacts", Handler: unaryHandler(h.GetContacts)},
			{MethodName: "ListTopics", Handler: unaryHandler(h.ListTopics)},
			{MethodName: "SendMessage", Handler: unaryHandler(h.SendMessage)},
			{MethodName: "RetrieveMessages", Handler: unaryHandler(h.RetrieveMessages)},
			{MethodName: "CreateInvitation", Handler: unaryHandler(h.CreateInvitation)},
			{MethodName: "ConsumeInvitation", Handler: unaryHandler(h.ConsumeInvitation)},
			{MethodName: "GetProposals", Handler: unaryHandler(h.GetProposals)},
			{MethodName: "UpdateProposalConfig", Handler: unaryHandler(h.UpdateProposalConfig)},
			{MethodName: "Health", Handler: unaryHandler(h.Health)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "internal/api/rpc/server.go",
	}
}

// NewServer builds a *grpc.Server exposing svc's query surface,
// instrumented with otelgrpc the same way cmd/coreinstance's HTTP
// router is instrumented with otelgin.
func NewServer(svc *api.Service, log *logging.Logger) *grpc.Server {
	h := NewHandlers(svc, log)
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ForceServerCodec(jsonCodec{}),
	)
	desc := serviceDesc(h)
	server.RegisterService(&desc, h)
	return server
}
