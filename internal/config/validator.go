// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateServer(cfg, errs)
	v.validateReconnect(cfg, errs)
	v.validateEvents(cfg, errs)
	v.validateLogging(cfg, errs)
	v.validateDevServer(cfg, errs)
	v.validateDurations(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateServer(cfg *Config, errs *ValidationError) {
	if cfg.Server.URL == "" {
		errs.Add("server.url", "is required")
		return
	}
	u, err := url.Parse(cfg.Server.URL)
	if err != nil {
		errs.Add("server.url", fmt.Sprintf("invalid url: %s", err))
		return
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		errs.Add("server.url", fmt.Sprintf("unsupported scheme '%s', must be one of: http, https, ws, wss", u.Scheme))
	}
	if u.Host == "" {
		errs.Add("server.url", "host is required")
	}
}

func (v *Validator) validateReconnect(cfg *Config, errs *ValidationError) {
	if cfg.Reconnect.Burst < 0 {
		errs.Add("reconnect.burst", "must not be negative")
	}
}

func (v *Validator) validateEvents(cfg *Config, errs *ValidationError) {
	if cfg.Events.History.MaxEvents < 0 {
		errs.Add("events.history.max_events", "must not be negative")
	}
}

func (v *Validator) validateLogging(cfg *Config, errs *ValidationError) {
	if cfg.Logging.Level != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[cfg.Logging.Level] {
			errs.Add("logging.level", fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", cfg.Logging.Level))
		}
	}

	if cfg.Logging.Format != "" {
		validFormats := map[string]bool{
			"json":    true,
			"console": true,
		}
		if !validFormats[cfg.Logging.Format] {
			errs.Add("logging.format", fmt.Sprintf("invalid format '%s', must be one of: json, console", cfg.Logging.Format))
		}
	}
}

func (v *Validator) validateDevServer(cfg *Config, errs *ValidationError) {
	if cfg.DevServer.Port < 0 || cfg.DevServer.Port > 65535 {
		errs.Add("dev_server.port", "must be between 0 and 65535")
	}
}

func (v *Validator) validateDurations(cfg *Config, errs *ValidationError) {
	durations := []struct {
		field string
		value string
	}{
		{"hydrate.timeout", cfg.Hydrate.Timeout},
		{"reconnect.interval", cfg.Reconnect.Interval},
		{"events.history.max_age", cfg.Events.History.MaxAge},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := parseDurationWithDays(d.value)
		if err != nil {
			errs.Add(d.field, fmt.Sprintf("invalid duration format: %s", err))
		} else if parsed <= 0 {
			errs.Add(d.field, "must be positive")
		}
	}
}

// parseDurationWithDays parses a duration string that may include days (e.g., "7d").
func parseDurationWithDays(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}
