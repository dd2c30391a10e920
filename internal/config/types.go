// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config provides the per-instance configuration schema and
// loader, following the teacher's cmd/aleutian/config package: a YAML
// file under the instance directory, created with sensible defaults
// on first run, validated with struct tags on every load.
package config

import "time"

// CurrentConfigVersion is written into Meta.Version on every fresh
// default config. Load reads Meta.Version back but does not check it.
const CurrentConfigVersion = "1"

// InstanceConfig is the full schema of core.yaml.
type InstanceConfig struct {
	// Meta carries schema versioning.
	Meta ConfigMeta `yaml:"meta"`

	// Network configures how this instance listens and reaches peers.
	Network NetworkConfig `yaml:"network" validate:"required"`

	// LLMProvider configures the structured-extraction chat-completion
	// backend the analysis engine calls.
	LLMProvider LLMProviderConfig `yaml:"llm_provider" validate:"required"`

	// Proposals holds instance-wide proposal weights. Load validates
	// them, but no other package reads this field.
	Proposals ProposalWeightsConfig `yaml:"proposals" validate:"required"`

	// Backup configures the optional GCS segment-export sink. Zero
	// value disables it.
	Backup BackupConfig `yaml:"backup"`

	// Discovery configures local-network instance advertisement
	// (internal/discovery). Disabled by default.
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// ConfigMeta records config schema versioning.
type ConfigMeta struct {
	// Version is the schema version this file was written against.
	Version string `yaml:"version"`
}

// NetworkConfig configures listening and peer reachability.
type NetworkConfig struct {
	// ListenAddr is the local address the WebSocket session transport
	// binds to, e.g. "0.0.0.0:7420".
	ListenAddr string `yaml:"listen_addr" validate:"required,hostname_port"`

	// RelayURL is the relay service this instance falls back to when
	// a peer isn't reachable directly or on the local network. Empty
	// disables relay fallback.
	RelayURL string `yaml:"relay_url,omitempty" validate:"omitempty,url"`

	// HandshakeTimeout bounds each blocking handshake step (spec.md
	// §5). Mirrors session.DefaultHandshakeTimeout unless overridden.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" validate:"required,gt=0"`

	// CHUMIdleTimeout is the idle budget before a PING heartbeat is
	// due (spec.md §5: "CHUM idle 120s"). chum.Engine does not read
	// this field; its heartbeat runs on the chum.IdleTimeout constant.
	CHUMIdleTimeout time.Duration `yaml:"chum_idle_timeout" validate:"required,gt=0"`

	// DeliverRateLimit is a per-session cap on outbound DELIVER frames
	// per second, 0 meaning unthrottled. cmd/coreinstance builds its
	// chum.Engine without WithDeliverRateLimit, so it is not applied.
	DeliverRateLimit float64 `yaml:"deliver_rate_limit" validate:"gte=0"`

	// DeliverRateBurst is the token-bucket burst size paired with
	// DeliverRateLimit.
	DeliverRateBurst int `yaml:"deliver_rate_burst" validate:"gte=0"`
}

// LLMProviderConfig configures the OpenAI-compatible chat-completion
// client the analysis engine's Extractor uses.
type LLMProviderConfig struct {
	// BaseURL is the API base, e.g. "https://api.openai.com/v1" or a
	// local gpt-oss-compatible endpoint.
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// Model is the chat-completion model name passed on every
	// extraction call.
	Model string `yaml:"model" validate:"required"`

	// APIKeyEnv names the environment variable the API key is read
	// from; the key itself is never written to this file.
	APIKeyEnv string `yaml:"api_key_env" validate:"required"`

	// CallRateLimit caps chat-completion calls per second (0 disables
	// throttling).
	CallRateLimit float64 `yaml:"call_rate_limit" validate:"gte=0"`

	// CallRateBurst is the token-bucket burst size paired with
	// CallRateLimit.
	CallRateBurst int `yaml:"call_rate_burst" validate:"gte=0"`
}

// ProposalWeightsConfig mirrors model.ProposalConfig's tunables as the
// instance-wide default seeded for users with no config of their own.
type ProposalWeightsConfig struct {
	WeightJaccard float64       `yaml:"weight_jaccard" validate:"gte=0"`
	WeightRecency float64       `yaml:"weight_recency" validate:"gte=0"`
	RecencyWindow time.Duration `yaml:"recency_window" validate:"required,gt=0"`
	MinJaccard    float64       `yaml:"min_jaccard" validate:"gte=0,lte=1"`
	MaxProposals  int           `yaml:"max_proposals" validate:"required,gt=0"`
}

// BackupConfig configures the optional GCS segment-export sink
// (internal/backup). BucketName empty disables it.
type BackupConfig struct {
	BucketName        string `yaml:"bucket_name,omitempty"`
	ServiceAccountKey string `yaml:"service_account_key,omitempty" validate:"omitempty,file"`
}

// DiscoveryConfig configures local-network instance advertisement and
// resolution (internal/discovery). cmd/coreinstance uses
// discovery.NoopResolver whatever the value; Enabled only decides
// whether run advertises the instance.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() InstanceConfig {
	return InstanceConfig{
		Meta: ConfigMeta{Version: CurrentConfigVersion},
		Network: NetworkConfig{
			ListenAddr:       "0.0.0.0:7420",
			HandshakeTimeout: 15 * time.Second,
			CHUMIdleTimeout:  120 * time.Second,
			DeliverRateLimit: 50,
			DeliverRateBurst: 10,
		},
		LLMProvider: LLMProviderConfig{
			BaseURL:       "https://api.openai.com/v1",
			Model:         "gpt-4o-mini",
			APIKeyEnv:     "CORE_LLM_API_KEY",
			CallRateLimit: 2,
			CallRateBurst: 2,
		},
		Proposals: ProposalWeightsConfig{
			WeightJaccard: 0.7,
			WeightRecency: 0.3,
			RecencyWindow: 14 * 24 * time.Hour,
			MinJaccard:    0.05,
			MaxProposals:  10,
		},
	}
}
