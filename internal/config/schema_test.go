// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input      string
		defaultVal time.Duration
		expected   time.Duration
	}{
		{"", 5 * time.Second, 5 * time.Second},
		{"1s", 5 * time.Second, time.Second},
		{"250ms", 0, 250 * time.Millisecond},
		{"2d", 0, 48 * time.Hour},
		{"invalid", 5 * time.Second, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseDuration(tt.input, tt.defaultVal))
		})
	}
}

func TestConfig_HydrateEnabled(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.HydrateEnabled())

	cfg.Hydrate.Enabled = boolPtr(false)
	assert.False(t, cfg.HydrateEnabled())

	cfg.Hydrate.Enabled = boolPtr(true)
	assert.True(t, cfg.HydrateEnabled())
}

func TestDevServerConfig_Addr(t *testing.T) {
	assert.Equal(t, "0.0.0.0:9000", DevServerConfig{Host: "0.0.0.0", Port: 9000}.Addr())
	assert.Equal(t, "[::1]:80", DevServerConfig{Host: "::1", Port: 80}.Addr())
}
