// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package events

import (
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/autobrr/mulearr/internal/domain"
	"github.com/autobrr/mulearr/pkg/jsonfile"
)

const configFile = "notifications.json"

// ServiceConfig is one configured notification target. Options carries
// the type-specific fields (tokens, hosts, addresses) opaquely.
type ServiceConfig struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Type    string            `json:"type"`
	Enabled bool              `json:"enabled"`
	Options map[string]string `json:"options"`
}

// ScriptConfig points at the user's event script.
type ScriptConfig struct {
	Enabled        bool   `json:"enabled"`
	Path           string `json:"path"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// Config is the persisted notification settings.
type Config struct {
	Enabled  bool                      `json:"enabled"`
	Events   map[domain.EventType]bool `json:"events"`
	Services []ServiceConfig           `json:"services"`
	Script   ScriptConfig              `json:"script"`
}

func defaultConfig() Config {
	events := make(map[domain.EventType]bool, len(domain.AllEventTypes))
	for _, event := range domain.AllEventTypes {
		events[event] = true
	}
	return Config{
		Events: events,
		Script: ScriptConfig{TimeoutSeconds: 30},
	}
}

// normalize fills gaps a hand-edited file may have left.
func (c *Config) normalize() {
	if c.Events == nil {
		c.Events = make(map[domain.EventType]bool, len(domain.AllEventTypes))
	}
	for _, event := range domain.AllEventTypes {
		if _, ok := c.Events[event]; !ok {
			c.Events[event] = true
		}
	}
	if c.Script.TimeoutSeconds <= 0 {
		c.Script.TimeoutSeconds = 30
	}
}

func (c *Config) validate() error {
	for event := range c.Events {
		known := false
		for _, candidate := range domain.AllEventTypes {
			if event == candidate {
				known = true
				break
			}
		}
		if !known {
			return errors.Wrapf(domain.ErrBadRequest, "unknown event type %q", event)
		}
	}

	seen := make(map[string]struct{}, len(c.Services))
	for _, svc := range c.Services {
		if svc.ID == "" {
			return errors.Wrap(domain.ErrBadRequest, "service id is required")
		}
		if _, dup := seen[svc.ID]; dup {
			return errors.Wrapf(domain.ErrBadRequest, "duplicate service id %q", svc.ID)
		}
		seen[svc.ID] = struct{}{}
	}
	return nil
}

// ConfigStore persists the notification settings.
type ConfigStore struct {
	path string

	mu  sync.RWMutex
	cfg Config
}

// OpenConfig loads notifications.json, falling back to defaults when
// the file does not exist.
func OpenConfig(dataDir string) (*ConfigStore, error) {
	s := &ConfigStore{
		path: filepath.Join(dataDir, configFile),
		cfg:  defaultConfig(),
	}

	var stored Config
	found, err := jsonfile.Load(s.path, &stored)
	if err != nil {
		return nil, errors.Wrap(err, "load notification config")
	}
	if found {
		stored.normalize()
		s.cfg = stored
	}
	return s, nil
}

// Get returns a copy of the current settings.
func (s *ConfigStore) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.copied()
}

// Update validates, persists and swaps in the new settings.
func (s *ConfigStore) Update(cfg Config) error {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := jsonfile.Save(s.path, cfg); err != nil {
		return errors.Wrap(err, "persist notification config")
	}
	s.cfg = cfg
	return nil
}

func (c Config) copied() Config {
	out := c
	out.Events = make(map[domain.EventType]bool, len(c.Events))
	for event, enabled := range c.Events {
		out.Events[event] = enabled
	}
	out.Services = make([]ServiceConfig, len(c.Services))
	copy(out.Services, c.Services)
	return out
}
