// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"context"
	"fmt"

	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
)

// ConfigStore reads and writes one user's ProposalConfig, invalidating
// the shared Recommender cache on every write (spec.md §4.G:
// "a config write clears the cache").
type ConfigStore struct {
	store       *objectstore.Store
	recommender *Recommender
}

// NewConfigStore builds a ConfigStore over store, clearing recommender's
// cache whenever Update succeeds.
func NewConfigStore(store *objectstore.Store, recommender *Recommender) *ConfigStore {
	return &ConfigStore{store: store, recommender: recommender}
}

// Get loads owner's current ProposalConfig, or the defaults if none
// has been written yet.
func (c *ConfigStore) Get(ctx context.Context, owner model.Hash) (model.ProposalConfig, error) {
	idHash, err := identityHashOf(model.ProposalConfig{OwnerPerson: owner})
	if err != nil {
		return model.ProposalConfig{}, err
	}
	versionHash, err := c.store.HeadOf(ctx, idHash)
	if err != nil {
		return defaultConfig(owner), nil
	}
	env, err := c.store.Get(ctx, versionHash)
	if err != nil {
		return model.ProposalConfig{}, err
	}
	value, err := model.DecodeValue(env.Type, env.Value)
	if err != nil {
		return model.ProposalConfig{}, err
	}
	cfg, ok := value.(model.ProposalConfig)
	if !ok {
		return model.ProposalConfig{}, fmt.Errorf("analysis: %s is not a ProposalConfig", idHash)
	}
	return cfg, nil
}

// Update validates and persists a new ProposalConfig for owner,
// implementing the update_proposal_config query-surface operation
// (spec.md §6). Returns InvalidWeights if the weights don't sum
// sensibly or any bound is out of range.
func (c *ConfigStore) Update(ctx context.Context, cfg model.ProposalConfig) (model.ProposalConfig, error) {
	if err := validateWeights(cfg); err != nil {
		return model.ProposalConfig{}, corerrors.Wrap("analysis.updateProposalConfig", corerrors.InvalidWeights, err)
	}
	if _, _, err := c.store.PutVersioned(ctx, cfg); err != nil {
		return model.ProposalConfig{}, fmt.Errorf("analysis: persist proposal config: %w", err)
	}
	c.recommender.InvalidateCache()
	return cfg, nil
}

func validateWeights(cfg model.ProposalConfig) error {
	if cfg.WeightJaccard < 0 || cfg.WeightRecency < 0 {
		return fmt.Errorf("analysis: weights must be non-negative")
	}
	if cfg.WeightJaccard+cfg.WeightRecency == 0 {
		return fmt.Errorf("analysis: weights must not both be zero")
	}
	if cfg.MinJaccard < 0 || cfg.MinJaccard > 1 {
		return fmt.Errorf("analysis: minJaccard must be in [0,1]")
	}
	if cfg.MaxProposals <= 0 || cfg.MaxProposals > MaxProposalsCap {
		return fmt.Errorf("analysis: maxProposals must be in (0,%d]", MaxProposalsCap)
	}
	if cfg.RecencyWindow <= 0 {
		return fmt.Errorf("analysis: recencyWindow must be positive")
	}
	return nil
}

func defaultConfig(owner model.Hash) model.ProposalConfig {
	d := DefaultWeightsValue()
	return model.ProposalConfig{
		OwnerPerson:   owner,
		WeightJaccard: d.Jaccard,
		WeightRecency: d.Recency,
		RecencyWindow: d.RecencyWindow,
		MinJaccard:    d.MinJaccard,
		MaxProposals:  d.MaxProposals,
	}
}

// WeightsOf adapts a ProposalConfig to the Weights shape Recommender
// consumes.
func WeightsOf(cfg model.ProposalConfig) Weights {
	return Weights{
		Jaccard:       cfg.WeightJaccard,
		Recency:       cfg.WeightRecency,
		RecencyWindow: cfg.RecencyWindow,
		MinJaccard:    cfg.MinJaccard,
		MaxProposals:  cfg.MaxProposals,
	}
}
