// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/kittwire/core/internal/api"
	"github.com/kittwire/core/internal/chum"
	"github.com/kittwire/core/internal/pairing"
	"github.com/kittwire/core/internal/session"
)

// buildRouter assembles the gin engine this instance serves the
// query surface and inbound session transport from, grounded on
// cmd/codebuddy's router.Use(gin.Recovery())/conditional gin.Logger()
// bootstrap.
func (in *instance) buildRouter(debug bool, telemetry *telemetryHandle) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if debug {
		router.Use(gin.Logger())
	}
	if telemetry != nil {
		router.Use(otelgin.Middleware("coreinstance"))
		if telemetry.prometheus != nil {
			router.GET("/metrics", gin.WrapH(telemetry.prometheus.Handler()))
		}
	}

	handlers := api.NewHandlers(in.svc, in.log)
	v1 := router.Group("/v1")
	api.RegisterRoutes(v1, handlers)

	router.GET("/session", in.handleSessionUpgrade)
	return router
}

// handleSessionUpgrade accepts an inbound WebSocket transport, runs
// the responder side of the handshake, and dispatches the established
// Session to the pairing or CHUM protocol by its negotiated connection
// group (spec.md §4.C phase 4). The connecting party must present its
// claimed static public key as the "peerKey" query parameter: the
// handshake's own box-open failure is what actually authenticates the
// claim, since a false key can never produce a valid envelope.
func (in *instance) handleSessionUpgrade(c *gin.Context) {
	peerKeyHex := c.Query("peerKey")
	peerKeyBytes, err := hex.DecodeString(peerKeyHex)
	if err != nil || len(peerKeyBytes) != 32 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peerKey must be 32 bytes hex"})
		return
	}
	var remoteStatic [32]byte
	copy(remoteStatic[:], peerKeyBytes)

	transport, err := session.AcceptWebSocket(c.Writer, c.Request)
	if err != nil {
		in.log.Warn("coreinstance: websocket upgrade failed", "err", err)
		return
	}

	go in.serveSession(context.Background(), transport, remoteStatic)
}

// serveSession runs in its own goroutine per inbound connection for
// the lifetime of one handshake plus whichever protocol it negotiates.
func (in *instance) serveSession(ctx context.Context, t session.Transport, remoteStatic [32]byte) {
	sess, err := session.RunResponder(ctx, t, in.keys.InstanceKeys, remoteStatic, in.cfg.Network.HandshakeTimeout)
	if err != nil {
		in.log.Warn("coreinstance: handshake failed", "err", err)
		t.Close()
		return
	}
	defer sess.Close()

	switch sess.Group {
	case session.ConnectionGroupPairing:
		local, err := in.localIdentityTuple(ctx)
		if err != nil {
			in.log.Warn("coreinstance: build local identity tuple failed", "err", err)
			return
		}
		peer, err := pairing.AcceptIncoming(ctx, sess, in.store, in.invites, local)
		if err != nil {
			in.log.Warn("coreinstance: pairing exchange failed", "err", err)
			return
		}
		in.log.Info("coreinstance: paired with new peer", "peerPersonId", peer.PersonID.String())

	case session.ConnectionGroupChum:
		peer := in.peerForStaticKey(remoteStatic)
		engine := chum.New(in.store, in.resolver, sess, peer, in.log)
		if err := engine.Run(ctx); err != nil {
			in.log.Warn("coreinstance: chum session ended", "err", err)
		}

	default:
		in.log.Warn("coreinstance: unknown connection group", "group", sess.Group)
	}
}
