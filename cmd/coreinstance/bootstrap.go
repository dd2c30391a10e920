// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kittwire/core/internal/access"
	"github.com/kittwire/core/internal/analysis"
	"github.com/kittwire/core/internal/api"
	"github.com/kittwire/core/internal/config"
	"github.com/kittwire/core/internal/discovery"
	"github.com/kittwire/core/internal/keychain"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
	"github.com/kittwire/core/internal/pairing"
	"github.com/kittwire/core/internal/topic"
	"github.com/kittwire/core/pkg/logging"
)

// instance bundles every wired collaborator a coreinstance process
// needs, built once by bootstrap and shared across the run/invite/
// topic/doctor subcommands.
type instance struct {
	dataDir  string
	cfg      config.InstanceConfig
	keys     keychain.Keychain
	store    *objectstore.Store
	fabric   *topic.Fabric
	invites  *pairing.Registry
	engine   *analysis.Engine
	resolver *access.Resolver
	discover discovery.Resolver
	svc      *api.Service
	self     model.Hash // Person identity hash
	selfInst model.Hash // Instance identity hash
	log      *logging.Logger
}

// keychainPath and configPath are fixed filenames under dataDir, kept
// alongside the object store segments.
func keychainPath(dataDir string) string { return filepath.Join(dataDir, "keychain.bin") }
func configPath(dataDir string) string   { return filepath.Join(dataDir, "core.yaml") }
func storeDir(dataDir string) string     { return filepath.Join(dataDir, "store") }

// bootstrap loads (or, on first run, creates) everything a coreinstance
// command needs: config, keychain, object store, and the local
// Person/Instance/Keys identity triple (spec.md §6 persisted-state
// items (a)-(d)). passphrase unlocks the keychain; pass nil to read it
// from the CORE_KEYCHAIN_PASSPHRASE environment variable.
func bootstrap(ctx context.Context, dataDir string, passphrase []byte, log *logging.Logger) (*instance, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("coreinstance: create data dir: %w", err)
	}

	cfg, err := config.Load(configPath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("coreinstance: load config: %w", err)
	}

	if len(passphrase) == 0 {
		passphrase = []byte(os.Getenv("CORE_KEYCHAIN_PASSPHRASE"))
	}
	keys, err := loadOrCreateKeychain(keychainPath(dataDir), passphrase)
	if err != nil {
		return nil, fmt.Errorf("coreinstance: load keychain: %w", err)
	}

	store, err := objectstore.Open(storeDir(dataDir), log)
	if err != nil {
		return nil, fmt.Errorf("coreinstance: open object store: %w", err)
	}

	self, selfInstance, err := ensureIdentity(ctx, store, keys)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("coreinstance: ensure identity: %w", err)
	}

	fabric := topic.New(store)
	invites := pairing.NewRegistry()
	resolver := access.New(store, log)
	engine := analysis.New(store, buildExtractor(cfg, store, log))
	svc := api.New(store, fabric, invites, engine, resolver, self, log)

	return &instance{
		dataDir:  dataDir,
		cfg:      cfg,
		keys:     keys,
		store:    store,
		fabric:   fabric,
		invites:  invites,
		engine:   engine,
		resolver: resolver,
		discover: buildDiscoveryResolver(cfg),
		svc:      svc,
		self:     self,
		selfInst: selfInstance,
		log:      log,
	}, nil
}

// buildDiscoveryResolver returns the local-network resolver cfg asks
// for. No concrete mDNS/Bonjour backend ships in this tree (spec.md
// §6 places it out of scope); NoopResolver is the only discovery.Resolver
// available regardless of cfg.Discovery.Enabled, which instead governs
// whether run attempts to advertise at all.
func buildDiscoveryResolver(cfg config.InstanceConfig) discovery.Resolver {
	return discovery.NoopResolver{}
}

// Close releases the instance's collaborators that hold background
// goroutines or file handles.
func (in *instance) Close() {
	in.resolver.Close()
	in.store.Close()
}

func loadOrCreateKeychain(path string, passphrase []byte) (keychain.Keychain, error) {
	if _, err := os.Stat(path); err == nil {
		return keychain.Load(path, passphrase)
	}
	kc, err := keychain.Generate()
	if err != nil {
		return keychain.Keychain{}, err
	}
	if err := keychain.Save(path, kc, passphrase); err != nil {
		return keychain.Keychain{}, err
	}
	return kc, nil
}

// ensureIdentity persists the local Person, its Keys, and this
// Instance, returning the Person and Instance identity hashes
// (spec.md §4.E). Those hashes are the same on every run. The Keys
// records carry the current time in GeneratedAt, so each run stores a
// new version of both Keys identities; the Instance refers to its Keys
// by identity hash, so its content does not change between runs.
func ensureIdentity(ctx context.Context, store *objectstore.Store, keys keychain.Keychain) (model.Hash, model.Hash, error) {
	person := model.Person{DisplayName: "local", PublicKey: model.HashBytes(keys.PersonKeys.Public[:])}
	personIDHash, _, err := store.PutVersioned(ctx, person)
	if err != nil {
		return model.Hash{}, model.Hash{}, fmt.Errorf("persist person: %w", err)
	}

	personKeys := model.Keys{
		OwnerKind:     model.KeyOwnerPerson,
		OwnerRef:      personIDHash,
		EncryptionKey: keys.PersonKeys.Public,
		GeneratedAt:   time.Now(),
	}
	if _, _, err := store.PutVersioned(ctx, personKeys); err != nil {
		return model.Hash{}, model.Hash{}, fmt.Errorf("persist person keys: %w", err)
	}

	instanceKeys := model.Keys{
		OwnerKind:     model.KeyOwnerInstance,
		OwnerRef:      personIDHash,
		EncryptionKey: keys.InstanceKeys.Public,
		GeneratedAt:   time.Now(),
	}
	instanceKeysIDHash, _, err := store.PutVersioned(ctx, instanceKeys)
	if err != nil {
		return model.Hash{}, model.Hash{}, fmt.Errorf("persist instance keys: %w", err)
	}

	inst := model.Instance{Owner: personIDHash, Name: "coreinstance", KeysRef: instanceKeysIDHash}
	instanceIDHash, _, err := store.PutVersioned(ctx, inst)
	if err != nil {
		return model.Hash{}, model.Hash{}, fmt.Errorf("persist instance: %w", err)
	}

	return personIDHash, instanceIDHash, nil
}

// buildExtractor wires an analysis.Extractor against cfg's configured
// LLM provider, or returns nil (disabling extraction, which is
// optional per spec.md §4.G) when no API key is present.
func buildExtractor(cfg config.InstanceConfig, store *objectstore.Store, log *logging.Logger) *analysis.Extractor {
	apiKey := os.Getenv(cfg.LLMProvider.APIKeyEnv)
	if apiKey == "" {
		log.Warn("coreinstance: no LLM API key configured, extraction disabled", "env", cfg.LLMProvider.APIKeyEnv)
		return nil
	}
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = cfg.LLMProvider.BaseURL
	client := openai.NewClientWithConfig(clientCfg)
	mirror := analysis.NewMirror(nil, log)
	return analysis.NewExtractor(client, cfg.LLMProvider.Model, store, mirror, log,
		analysis.WithCallRateLimit(cfg.LLMProvider.CallRateLimit, cfg.LLMProvider.CallRateBurst))
}

// localIdentityTuple builds the IdentityTuple this instance presents
// during a pairing handshake (spec.md §4.D step 4).
func (in *instance) localIdentityTuple(ctx context.Context) (pairing.IdentityTuple, error) {
	return pairing.IdentityTuple{
		PersonID:     in.self,
		InstanceID:   in.selfInst,
		PersonKeys:   model.HashBytes(in.keys.PersonKeys.Public[:]),
		InstanceKeys: model.HashBytes(in.keys.InstanceKeys.Public[:]),
	}, nil
}

// peerForStaticKey resolves a locally-known Keys record matching
// staticKey back to the Person it belongs to, for wiring a CHUM
// session to the right owner argument. Returns the zero Hash if no
// matching Keys record is on file, which chum.Engine treats as an
// unidentified peer.
func (in *instance) peerForStaticKey(staticKey [32]byte) model.Hash {
	var owner model.Hash
	_ = in.store.ForEachOfType(context.Background(), model.TypeKeys, func(idHash model.Hash, value any) error {
		keys, ok := value.(model.Keys)
		if !ok || keys.OwnerKind != model.KeyOwnerPerson {
			return nil
		}
		if keys.EncryptionKey == staticKey {
			owner = keys.OwnerRef
		}
		return nil
	})
	return owner
}
