// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chum

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kittwire/core/internal/access"
	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
	"github.com/kittwire/core/internal/session"
	"github.com/kittwire/core/pkg/logging"
)

// AnnounceInterval is how often the engine re-diffs accessible_hashes
// against what it has already announced.
const AnnounceInterval = 2 * time.Second

// IdleTimeout is the CHUM idle budget from spec.md §5: "CHUM idle
// 120s (heartbeat on idle)".
const IdleTimeout = 120 * time.Second

// Engine runs the chum protocol symmetrically over one established
// session, for one peer identity (spec.md §4.E).
type Engine struct {
	store    *objectstore.Store
	resolver *access.Resolver
	sess     *session.Session
	peer     model.Hash
	log      *logging.Logger

	mu              sync.Mutex
	advertisedLocal map[model.Hash]bool
	pending         map[model.Hash]*pendingObject // delivered but blocked on missing refs

	lastActivity time.Time
	lastActMu    sync.Mutex

	deliverLimiter *rate.Limiter // nil means unthrottled
}

type pendingObject struct {
	raw     []byte
	missing map[model.Hash]bool
}

// Option configures an Engine beyond its required collaborators.
type Option func(*Engine)

// WithDeliverRateLimit caps outbound DELIVER frames to r per second
// (burst b), so one demanding peer's backfill can't starve the
// announce loop's bandwidth to every other peer on the same session.
func WithDeliverRateLimit(r float64, b int) Option {
	return func(e *Engine) {
		e.deliverLimiter = rate.NewLimiter(rate.Limit(r), b)
	}
}

// New builds an Engine for peer over an established chum-group session.
func New(store *objectstore.Store, resolver *access.Resolver, sess *session.Session, peer model.Hash, log *logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		resolver:        resolver,
		sess:            sess,
		peer:            peer,
		log:             log,
		advertisedLocal: make(map[model.Hash]bool),
		pending:         make(map[model.Hash]*pendingObject),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drives the engine until ctx is canceled or the session breaks.
// The announce loop and the receive loop run concurrently; either one
// returning ends the session (spec.md §5: "a session cancellation
// closes the transport... and is idempotent").
func (e *Engine) Run(ctx context.Context) error {
	e.markActivity()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.announceLoop(ctx) })
	g.Go(func() error { return e.receiveLoop(ctx) })
	g.Go(func() error { return e.idleWatchdog(ctx) })
	return g.Wait()
}

func (e *Engine) markActivity() {
	e.lastActMu.Lock()
	e.lastActivity = time.Now()
	e.lastActMu.Unlock()
}

func (e *Engine) idleSince() time.Duration {
	e.lastActMu.Lock()
	defer e.lastActMu.Unlock()
	return time.Since(e.lastActivity)
}

// idleWatchdog sends a PING whenever the session has been quiet for
// the idle budget, keeping the peer's liveness detection honest.
func (e *Engine) idleWatchdog(ctx context.Context) error {
	ticker := time.NewTicker(IdleTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if e.idleSince() >= IdleTimeout {
				raw, err := encodeFrame(frame{Type: FramePing})
				if err != nil {
					return err
				}
				if err := e.sess.Send(ctx, raw); err != nil {
					return corerrors.Wrap("chum.idle", corerrors.TransportLost, err)
				}
				e.markActivity()
			}
		}
	}
}

// announceLoop periodically recomputes accessible_hashes(peer) and
// emits ANNOUNCE for anything not yet advertised (spec.md §4.E steps
// 1-2).
func (e *Engine) announceLoop(ctx context.Context) error {
	ticker := time.NewTicker(AnnounceInterval)
	defer ticker.Stop()
	for {
		if err := e.announceOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) announceOnce(ctx context.Context) error {
	accessible, err := e.resolver.AccessibleHashes(ctx, e.peer)
	if err != nil {
		return fmt.Errorf("chum: resolve accessible hashes: %w", err)
	}

	e.mu.Lock()
	var toAnnounce []model.Hash
	for h := range accessible {
		if !e.advertisedLocal[h] {
			toAnnounce = append(toAnnounce, h)
		}
	}
	e.mu.Unlock()

	for _, h := range toAnnounce {
		env, err := e.store.Get(ctx, h)
		if err != nil {
			continue // object vanished or isn't locally resolvable; skip this round
		}
		if model.IsLocalOnly(env.Type) {
			continue // defense in depth: never announce local-only types
		}
		raw, err := encodeFrame(frame{Type: FrameAnnounce, Hash: h, ObjType: env.Type})
		if err != nil {
			return err
		}
		if err := e.sess.Send(ctx, raw); err != nil {
			return corerrors.Wrap("chum.announce", corerrors.TransportLost, err)
		}
		e.markActivity()
		e.mu.Lock()
		e.advertisedLocal[h] = true
		e.mu.Unlock()
	}
	return nil
}

// receiveLoop dispatches incoming frames until the session ends.
func (e *Engine) receiveLoop(ctx context.Context) error {
	for {
		raw, err := e.sess.Recv(ctx)
		if err != nil {
			return err
		}
		e.markActivity()
		f, err := decodeFrame(raw)
		if err != nil {
			e.log.Warn("chum: dropping malformed frame", "err", err)
			continue
		}
		if err := e.handleFrame(ctx, f); err != nil {
			return err
		}
	}
}

func (e *Engine) handleFrame(ctx context.Context, f frame) error {
	switch f.Type {
	case FrameAnnounce:
		return e.handleAnnounce(ctx, f)
	case FrameRequest:
		return e.handleRequest(ctx, f)
	case FrameDeliver:
		return e.handleDeliver(ctx, f)
	case FrameDeny:
		return nil // nothing to do; requester simply stops waiting
	case FramePing:
		raw, err := encodeFrame(frame{Type: FramePong})
		if err != nil {
			return err
		}
		return e.sess.Send(ctx, raw)
	case FramePong:
		return nil
	case FrameClose:
		return corerrors.Wrap("chum.receive", corerrors.TransportLost, fmt.Errorf("peer closed"))
	default:
		e.log.Warn("chum: unknown frame type", "type", f.Type)
		return nil
	}
}

// handleAnnounce implements spec.md §4.E step 3: request anything new
// and not local-only.
func (e *Engine) handleAnnounce(ctx context.Context, f frame) error {
	if model.IsLocalOnly(f.ObjType) {
		return nil
	}
	if _, err := e.store.Get(ctx, f.Hash); err == nil {
		return nil // already have it
	}
	raw, err := encodeFrame(frame{Type: FrameRequest, Hash: f.Hash})
	if err != nil {
		return err
	}
	if err := e.sess.Send(ctx, raw); err != nil {
		return corerrors.Wrap("chum.request", corerrors.TransportLost, err)
	}
	e.markActivity()
	return nil
}

// handleRequest implements spec.md §4.E step 4: deliver only if the
// peer is actually authorized, otherwise DENY without leaking whether
// the object exists.
func (e *Engine) handleRequest(ctx context.Context, f frame) error {
	accessible, err := e.resolver.AccessibleHashes(ctx, e.peer)
	if err != nil {
		return fmt.Errorf("chum: resolve accessible hashes: %w", err)
	}
	if !accessible[f.Hash] {
		raw, err := encodeFrame(frame{Type: FrameDeny, Hash: f.Hash})
		if err != nil {
			return err
		}
		return e.sess.Send(ctx, raw)
	}

	env, err := e.store.Get(ctx, f.Hash)
	if err != nil {
		raw, encErr := encodeFrame(frame{Type: FrameDeny, Hash: f.Hash})
		if encErr != nil {
			return encErr
		}
		return e.sess.Send(ctx, raw)
	}
	if model.IsLocalOnly(env.Type) {
		// Last line of defense: never deliver a local-only type even
		// if it slipped into accessible_hashes (spec.md §4.E).
		raw, err := encodeFrame(frame{Type: FrameDeny, Hash: f.Hash})
		if err != nil {
			return err
		}
		return e.sess.Send(ctx, raw)
	}

	if e.deliverLimiter != nil {
		if err := e.deliverLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("chum: deliver rate limit: %w", err)
		}
	}

	body, err := model.CanonicalJSON(env)
	if err != nil {
		return fmt.Errorf("chum: re-encode object for delivery: %w", err)
	}
	raw, err := encodeFrame(frame{Type: FrameDeliver, Hash: f.Hash, ObjType: env.Type, Body: body})
	if err != nil {
		return err
	}
	if err := e.sess.Send(ctx, raw); err != nil {
		return corerrors.Wrap("chum.deliver", corerrors.TransportLost, err)
	}
	e.markActivity()
	return nil
}

// handleDeliver implements spec.md §4.E step 5 plus the receive-side
// causal buffering rule: an object isn't surfaced (persisted and
// released from the pending set) until every hash it references is
// already present locally.
func (e *Engine) handleDeliver(ctx context.Context, f frame) error {
	env, err := model.DecodeEnvelope(f.Body)
	if err != nil {
		return fmt.Errorf("chum: decode delivered envelope: %w", err)
	}
	computedHash := model.HashBytes(f.Body)
	if computedHash != f.Hash {
		e.log.Warn("chum: delivered content hash mismatch, dropping", "claimed", f.Hash.String(), "computed", computedHash.String())
		return nil
	}
	if model.IsLocalOnly(env.Type) {
		e.log.Warn("chum: dropping local-only delivery", "hash", f.Hash.String(), "type", env.Type)
		return nil
	}

	value, err := model.DecodeValue(env.Type, env.Value)
	if err != nil {
		return fmt.Errorf("chum: decode delivered value: %w", err)
	}
	missing := make(map[model.Hash]bool)
	for _, ref := range model.ExtractHashes(value) {
		if _, err := e.store.Get(ctx, ref); err != nil {
			missing[ref] = true
		}
	}

	if len(missing) == 0 {
		return e.persistDelivered(ctx, env, value)
	}

	e.mu.Lock()
	e.pending[f.Hash] = &pendingObject{raw: f.Body, missing: missing}
	e.mu.Unlock()
	e.log.Debug("chum: buffering delivery pending references", "hash", f.Hash.String(), "missing", len(missing))
	return nil
}

func (e *Engine) persistDelivered(ctx context.Context, env model.Envelope, value any) error {
	var hash model.Hash
	var err error
	if versioned, ok := value.(model.Versioned); ok {
		_, hash, err = e.store.PutVersioned(ctx, versioned)
	} else if unversioned, ok := value.(model.Unversioned); ok {
		hash, err = e.store.PutUnversioned(ctx, unversioned)
	} else {
		return fmt.Errorf("chum: delivered type %s is neither versioned nor unversioned", env.Type)
	}
	if err != nil {
		return fmt.Errorf("chum: persist delivered object: %w", err)
	}
	e.releaseDependents(ctx, hash)
	return nil
}

// releaseDependents walks the pending buffer releasing any object
// whose last missing reference just resolved.
func (e *Engine) releaseDependents(ctx context.Context, resolved model.Hash) {
	e.mu.Lock()
	ready := make(map[model.Hash]*pendingObject)
	for h, p := range e.pending {
		delete(p.missing, resolved)
		if len(p.missing) == 0 {
			ready[h] = p
			delete(e.pending, h)
		}
	}
	e.mu.Unlock()

	// persistDelivered may recursively release further dependents, so
	// this runs outside the lock held above.
	for h, p := range ready {
		e.finishPending(ctx, h, p)
	}
}

func (e *Engine) finishPending(ctx context.Context, hash model.Hash, p *pendingObject) {
	env, err := model.DecodeEnvelope(p.raw)
	if err != nil {
		e.log.Warn("chum: failed to re-decode released delivery", "hash", hash.String(), "err", err)
		return
	}
	value, err := model.DecodeValue(env.Type, env.Value)
	if err != nil {
		e.log.Warn("chum: failed to re-decode released delivery value", "hash", hash.String(), "err", err)
		return
	}
	if err := e.persistDelivered(ctx, env, value); err != nil {
		e.log.Warn("chum: failed to persist released delivery", "hash", hash.String(), "err", err)
	}
}
