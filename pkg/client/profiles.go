// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Profile is a chat profile document.
type Profile struct {
	Registry      string                 `json:"registry,omitempty"`
	Slug          string                 `json:"slug"`
	DisplayName   string                 `json:"display_name,omitempty"`
	Description   string                 `json:"description,omitempty"`
	DefaultPrompt string                 `json:"default_prompt,omitempty"`
	IsDefault     bool                   `json:"is_default"`
	Version       int64                  `json:"version,omitempty"`
	Extensions    map[string]interface{} `json:"extensions,omitempty"`
	Runtime       map[string]interface{} `json:"runtime,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// StarterSuggestionsExtension is the profile extension key carrying starter
// prompts for an empty conversation.
const StarterSuggestionsExtension = "webchat.starter_suggestions@v1"

// StarterSuggestions returns the profile's starter prompts, if any.
func (p Profile) StarterSuggestions() []string {
	ext, ok := p.Extensions[StarterSuggestionsExtension].(map[string]interface{})
	if !ok {
		return nil
	}
	items, _ := ext["items"].([]interface{})
	var out []string
	for _, it := range items {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// CurrentProfile is the body of GET/POST /api/chat/profile.
type CurrentProfile struct {
	Slug     string   `json:"slug"`
	Registry string   `json:"registry,omitempty"`
	Profile  *Profile `json:"profile,omitempty"`
}

// DeleteOptions qualifies a profile delete.
type DeleteOptions struct {
	Registry string

	// ExpectedVersion guards against concurrent edits when positive.
	ExpectedVersion int64
}

// ProfileClient manages chat profiles.
//
// Access this client through [Client.Profiles]:
//
//	profiles, err := client.Profiles.List(ctx, "")
type ProfileClient struct {
	c *Client
}

func profilePath(slug string) string {
	return "/api/chat/profiles/" + url.PathEscape(slug)
}

// withRegistry appends ?registry= (or &registry=) when registry is not blank.
func withRegistry(path, registry string) string {
	registry = strings.TrimSpace(registry)
	if registry == "" {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "registry=" + url.QueryEscape(registry)
}

func (p *ProfileClient) call(ctx context.Context, method, path string, body interface{}, what string) (json.RawMessage, error) {
	return p.c.do(ctx, request{method: method, path: path, body: body, stage: StageProfile, what: what})
}

// List returns the profiles of a registry; a blank registry means the
// server default.
func (p *ProfileClient) List(ctx context.Context, registry string) ([]Profile, error) {
	data, err := p.call(ctx, http.MethodGet, withRegistry("/api/chat/profiles", registry), nil, "profile list request")
	if err != nil {
		return nil, err
	}
	return decodeProfileList(data)
}

// decodeProfileList accepts a JSON array, or an object keyed by array
// index as some intermediaries re-encode arrays.
func decodeProfileList(data json.RawMessage) ([]Profile, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Profile{}, nil
	}
	if trimmed[0] == '[' {
		var list []Profile
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to parse profiles: %w", err)
		}
		return list, nil
	}

	var indexed map[string]Profile
	if err := json.Unmarshal(trimmed, &indexed); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}
	type entry struct {
		index int
		p     Profile
	}
	entries := make([]entry, 0, len(indexed))
	for k, v := range indexed {
		i, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("failed to parse profiles: non-index key %q", k)
		}
		entries = append(entries, entry{index: i, p: v})
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].index < entries[b].index })

	list := make([]Profile, len(entries))
	for i, e := range entries {
		list[i] = e.p
	}
	return list, nil
}

// Get returns one profile.
func (p *ProfileClient) Get(ctx context.Context, slug, registry string) (*Profile, error) {
	data, err := p.call(ctx, http.MethodGet, withRegistry(profilePath(slug), registry), nil, "profile request")
	if err != nil {
		return nil, err
	}
	return decodePtr[Profile](data, "profile")
}

// Create creates a profile from an arbitrary payload.
func (p *ProfileClient) Create(ctx context.Context, payload map[string]interface{}) (*Profile, error) {
	data, err := p.call(ctx, http.MethodPost, "/api/chat/profiles", payload, "profile create")
	if err != nil {
		return nil, err
	}
	return decodePtr[Profile](data, "profile")
}

// Update patches a profile.
func (p *ProfileClient) Update(ctx context.Context, slug string, payload map[string]interface{}) (*Profile, error) {
	data, err := p.call(ctx, http.MethodPatch, profilePath(slug), payload, "profile update")
	if err != nil {
		return nil, err
	}
	return decodePtr[Profile](data, "profile")
}

// Delete removes a profile.
func (p *ProfileClient) Delete(ctx context.Context, slug string, opts DeleteOptions) error {
	path := withRegistry(profilePath(slug), opts.Registry)
	if opts.ExpectedVersion > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + "expected_version=" + strconv.FormatInt(opts.ExpectedVersion, 10)
	}
	_, err := p.call(ctx, http.MethodDelete, path, nil, "profile delete")
	return err
}

// SetDefault marks a profile as its registry's default. payload may be nil.
func (p *ProfileClient) SetDefault(ctx context.Context, slug string, payload map[string]interface{}) (*Profile, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	data, err := p.call(ctx, http.MethodPost, profilePath(slug)+"/default", payload, "set default profile")
	if err != nil {
		return nil, err
	}
	return decodePtr[Profile](data, "profile")
}

// Current returns the session's current profile.
func (p *ProfileClient) Current(ctx context.Context) (*CurrentProfile, error) {
	data, err := p.call(ctx, http.MethodGet, "/api/chat/profile", nil, "current profile request")
	if err != nil {
		return nil, err
	}
	return decodePtr[CurrentProfile](data, "current profile")
}

// SetCurrent selects the session's current profile.
func (p *ProfileClient) SetCurrent(ctx context.Context, slug string) (*CurrentProfile, error) {
	data, err := p.call(ctx, http.MethodPost, "/api/chat/profile", map[string]string{"slug": slug}, "set current profile")
	if err != nil {
		return nil, err
	}
	return decodePtr[CurrentProfile](data, "current profile")
}

func decodePtr[T any](data json.RawMessage, what string) (*T, error) {
	v, err := decode[T](data, what)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
