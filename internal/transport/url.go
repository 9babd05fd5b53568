// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package transport owns the WebSocket connection of one conversation.
package transport

import (
	"fmt"
	"net/url"
	"strings"
)

// Location is where the chat backend lives, in page terms: the HTTP scheme
// the runtime was served from, the host, and an optional path prefix.
type Location struct {
	Scheme     string // "http" or "https"
	Host       string
	BasePrefix string
}

// Selection picks a backend profile for a connection or prompt.
type Selection struct {
	Profile  string `json:"profile,omitempty"`
	Registry string `json:"registry,omitempty"`
}

// ParseLocation splits a base URL like "https://chat.local/app" into a
// Location.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Location{}, fmt.Errorf("parse server url: %w", err)
	}
	if u.Host == "" {
		return Location{}, fmt.Errorf("parse server url %q: missing host", raw)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "http", "https":
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	default:
		return Location{}, fmt.Errorf("parse server url %q: unsupported scheme %q", raw, u.Scheme)
	}
	return Location{
		Scheme:     scheme,
		Host:       u.Host,
		BasePrefix: normalizePrefix(u.Path),
	}, nil
}

// HTTPBase returns scheme://host/prefix, the base for HTTP endpoints.
func (l Location) HTTPBase() string {
	scheme := l.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + l.Host + normalizePrefix(l.BasePrefix)
}

// BuildURL returns {ws|wss}://{host}{prefix}/ws?conv_id=..[&profile=..][&registry=..].
// wss is used when the location's scheme is https.
func BuildURL(loc Location, convID string, sel Selection) string {
	scheme := "ws"
	if strings.EqualFold(strings.TrimSuffix(loc.Scheme, ":"), "https") {
		scheme = "wss"
	}

	q := url.Values{}
	q.Set("conv_id", convID)
	if p := strings.TrimSpace(sel.Profile); p != "" {
		q.Set("profile", p)
	}
	if r := strings.TrimSpace(sel.Registry); r != "" {
		q.Set("registry", r)
	}
	return scheme + "://" + loc.Host + normalizePrefix(loc.BasePrefix) + "/ws?" + q.Encode()
}

func normalizePrefix(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
