// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/pkg/logging"
)

var validate = validator.New()

// Load reads the config at path, writing a default file there first
// if none exists, then validates it against InstanceConfig's struct
// tags. A
// malformed or out-of-range config is Fatal: cmd/coreinstance cannot
// start without a usable listen address and handshake timeout, the
// same startup-failure convention internal/keychain uses.
func Load(path string) (InstanceConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return InstanceConfig{}, corerrors.Wrap("config.load", corerrors.Fatal, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return InstanceConfig{}, corerrors.Wrap("config.load", corerrors.Fatal, fmt.Errorf("read %s: %w", path, err))
	}

	var cfg InstanceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return InstanceConfig{}, corerrors.Wrap("config.load", corerrors.Fatal, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return InstanceConfig{}, corerrors.Wrap("config.load", corerrors.Fatal, err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create directory %s: %w", dir, err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("config: marshal default: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Watcher reloads the config from disk whenever it changes on disk and
// serves the latest good copy from Current(). cmd/coreinstance loads
// its config once with Load and starts no Watcher, so a running
// instance picks up config edits only on restart.
type Watcher struct {
	path string
	log  *logging.Logger

	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	current InstanceConfig
}

// WatchFile starts watching path, loading it once synchronously
// before returning so callers always see a valid Current() right
// away.
func WatchFile(path string, log *logging.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{path: path, log: log, watcher: fw, current: cfg}
	go w.run()
	return w, nil
}

// Current returns the most recently successfully loaded config.
func (w *Watcher) Current() InstanceConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warn("config: watcher error", "err", err)
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		if w.log != nil {
			w.log.Warn("config: reload failed, keeping previous config", "path", w.path, "err", err)
		}
		return
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	if w.log != nil {
		w.log.Info("config: reloaded", "path", w.path)
	}
}
