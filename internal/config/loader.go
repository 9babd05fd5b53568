// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hjson/hjson-go/v4"
)

// EnvServer overrides server.url when set.
const EnvServer = "CONVO_SERVER"

// Loader handles configuration file loading.
type Loader struct {
	getenv func(string) string
}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{getenv: os.Getenv}
}

// Load reads and parses the configuration from the given path.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes HJSON (or plain JSON) configuration bytes.
func Parse(data []byte) (*Config, error) {
	// Parse HJSON to intermediate map
	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}

	// Convert to JSON and unmarshal to struct (for type safety)
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with the environment override and default
// values applied.
func (l *Loader) LoadWithDefaults(ctx context.Context, path string) (*Config, error) {
	cfg, err := l.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	l.applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns the configuration used when no file exists.
func (l *Loader) Default() *Config {
	cfg := &Config{}
	l.applyEnv(cfg)
	applyDefaults(cfg)
	return cfg
}

// FindConfig searches for a config file in the current directory.
// It looks for convo.hjson first, then convo.json.
func (l *Loader) FindConfig() (string, error) {
	candidates := []string{
		"convo.hjson",
		"convo.json",
	}

	for _, name := range candidates {
		path := filepath.Join(".", name)
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("config file not found (looked for convo.hjson, convo.json)")
}

func (l *Loader) applyEnv(cfg *Config) {
	if l.getenv == nil {
		return
	}
	if v := strings.TrimSpace(l.getenv(EnvServer)); v != "" {
		cfg.Server.URL = v
	}
}

// applyDefaults sets default values for missing config fields.
func applyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = "1.0"
	}

	if cfg.Server.URL == "" {
		cfg.Server.URL = "http://127.0.0.1:8080"
	}

	if cfg.Hydrate.Timeout == "" {
		cfg.Hydrate.Timeout = "10s"
	}

	if cfg.Reconnect.Interval == "" {
		cfg.Reconnect.Interval = "2s"
	}
	if cfg.Reconnect.Burst == 0 {
		cfg.Reconnect.Burst = 3
	}

	// Events defaults
	if cfg.Events.History.MaxEvents == 0 {
		cfg.Events.History.MaxEvents = 10000
	}
	if cfg.Events.History.MaxAge == "" {
		cfg.Events.History.MaxAge = "1h"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	// Dev server defaults
	if cfg.DevServer.Host == "" {
		cfg.DevServer.Host = "127.0.0.1"
	}
	if cfg.DevServer.Port == 0 {
		cfg.DevServer.Port = 8080
	}
}
