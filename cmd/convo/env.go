// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/wingedpig/convo/internal/config"
	"github.com/wingedpig/convo/internal/conversation"
	"github.com/wingedpig/convo/internal/events"
	"github.com/wingedpig/convo/internal/pending"
	"github.com/wingedpig/convo/internal/transport"
	"github.com/wingedpig/convo/pkg/client"
)

// env is what every command needs: the resolved config, a logger and the
// backend endpoints.
type env struct {
	cfg       *config.Config
	logger    zerolog.Logger
	location  transport.Location
	client    *client.Client
	selection transport.Selection
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	loader := config.NewLoader()
	path := c.String("config")
	if path == "" {
		found, err := loader.FindConfig()
		if err != nil {
			return loader.Default(), nil
		}
		path = found
	}
	cfg, err := loader.LoadWithDefaults(c.Context, path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags lets global flags override the file.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if v := strings.TrimSpace(c.String("server")); v != "" {
		cfg.Server.URL = v
	}
	if v := strings.TrimSpace(c.String("profile")); v != "" {
		cfg.Profile.Slug = v
	}
	if v := strings.TrimSpace(c.String("registry")); v != "" {
		cfg.Profile.Registry = v
	}
	if v := strings.TrimSpace(c.String("log-level")); v != "" {
		cfg.Logging.Level = v
	}
}

func loadEnv(c *cli.Context) (*env, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	applyFlags(c, cfg)
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}

	loc, err := transport.ParseLocation(cfg.Server.URL)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:      cfg,
		logger:   newLogger(cfg.Logging, os.Stderr),
		location: loc,
		client:   client.New(loc.HTTPBase()),
		selection: transport.Selection{
			Profile:  cfg.Profile.Slug,
			Registry: cfg.Profile.Registry,
		},
	}, nil
}

// newLogger builds the CLI logger. Unknown levels fall back to info.
func newLogger(lc config.LoggingConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}
	if lc.Format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func (e *env) newBus() *events.MemoryEventBus {
	return events.NewMemoryEventBus(events.MemoryBusConfig{
		HistoryMaxEvents: e.cfg.Events.History.MaxEvents,
		HistoryMaxAge:    e.cfg.HistoryMaxAge(),
		Logger:           e.logger,
	})
}

func (e *env) newManager(bus events.EventBus, tracker *pending.Tracker) *conversation.Manager {
	opts := []conversation.Option{
		conversation.WithLogger(e.logger),
		conversation.WithHydrateTimeout(e.cfg.HydrateTimeout()),
		conversation.WithSelection(e.selection),
	}
	if e.cfg.Reconnect.Enabled {
		opts = append(opts, conversation.WithReconnect(e.cfg.ReconnectInterval(), e.cfg.Reconnect.Burst))
	}
	return conversation.NewManager(conversation.Deps{
		Location: e.location,
		Client:   e.client,
		Events:   bus,
		Pending:  tracker,
	}, opts...)
}

func requireConv(c *cli.Context) (string, error) {
	conv := strings.TrimSpace(c.String("conv"))
	if conv == "" {
		return "", fmt.Errorf("--conv is required")
	}
	return conv, nil
}

// waitReady blocks until the conversation is connected (and hydrated).
func waitReady(ctx context.Context, h *conversation.Handle) error {
	select {
	case <-h.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
