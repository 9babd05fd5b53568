// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads convo.hjson configuration files.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Version   string          `json:"version"`
	Server    ServerConfig    `json:"server"`
	Profile   ProfileConfig   `json:"profile"`
	Hydrate   HydrateConfig   `json:"hydrate"`
	Reconnect ReconnectConfig `json:"reconnect"`
	Events    EventsConfig    `json:"events"`
	Logging   LoggingConfig   `json:"logging"`
	DevServer DevServerConfig `json:"dev_server"`
}

// ServerConfig locates the chat backend.
type ServerConfig struct {
	// URL is the backend base, e.g. "http://localhost:8080/app". The
	// WebSocket URL is derived from it.
	URL string `json:"url"`
}

// ProfileConfig selects the backend profile sent with every connection
// and prompt. Blank values are omitted.
type ProfileConfig struct {
	Slug     string `json:"slug"`
	Registry string `json:"registry"`
}

// HydrateConfig configures snapshot hydration on connect.
type HydrateConfig struct {
	Enabled *bool  `json:"enabled"`
	Timeout string `json:"timeout"`
}

// ReconnectConfig configures automatic reconnects after an unexpected close.
type ReconnectConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval"`
	Burst    int    `json:"burst"`
}

// EventsConfig configures the observer bus.
type EventsConfig struct {
	History HistoryConfig `json:"history"`
}

// HistoryConfig configures event history retention.
type HistoryConfig struct {
	MaxEvents int    `json:"max_events"`
	MaxAge    string `json:"max_age"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level  string `json:"level"`  // "debug", "info", "warn", "error"
	Format string `json:"format"` // "json", "console"
}

// DevServerConfig configures the development backend.
type DevServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns host:port.
func (d DevServerConfig) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// ParseDuration parses a duration string, returning a default if empty.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := parseDurationWithDays(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// HydrateEnabled reports whether conversations hydrate from a snapshot
// on connect. Defaults to true.
func (c *Config) HydrateEnabled() bool {
	if c.Hydrate.Enabled == nil {
		return true
	}
	return *c.Hydrate.Enabled
}

// HydrateTimeout bounds one snapshot fetch.
func (c *Config) HydrateTimeout() time.Duration {
	return ParseDuration(c.Hydrate.Timeout, 10*time.Second)
}

// ReconnectInterval is the minimum spacing between reconnect attempts.
func (c *Config) ReconnectInterval() time.Duration {
	return ParseDuration(c.Reconnect.Interval, 2*time.Second)
}

// HistoryMaxAge is the event history retention.
func (c *Config) HistoryMaxAge() time.Duration {
	return ParseDuration(c.Events.History.MaxAge, time.Hour)
}
