// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/wingedpig/convo/pkg/client"
)

// DefaultRegistry is the registry used when a request names none.
const DefaultRegistry = "default"

var (
	errProfileNotFound = errors.New("profile not found")
	errProfileExists   = errors.New("profile already exists")
	errVersionMismatch = errors.New("profile version mismatch")
)

// profileStore is an in-memory profile registry with a single current
// selection.
type profileStore struct {
	mu         sync.Mutex
	registries map[string]map[string]client.Profile
	current    client.CurrentProfile
}

func newProfileStore(seed []client.Profile) *profileStore {
	ps := &profileStore{registries: make(map[string]map[string]client.Profile)}
	for _, p := range seed {
		p.Registry = registryName(p.Registry)
		if p.Version == 0 {
			p.Version = 1
		}
		ps.registryLocked(p.Registry)[p.Slug] = p
	}
	return ps
}

func registryName(r string) string {
	if r = strings.TrimSpace(r); r == "" {
		return DefaultRegistry
	}
	return r
}

func (ps *profileStore) registryLocked(name string) map[string]client.Profile {
	reg, ok := ps.registries[name]
	if !ok {
		reg = make(map[string]client.Profile)
		ps.registries[name] = reg
	}
	return reg
}

func (ps *profileStore) list(registry string) []client.Profile {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	reg := ps.registries[registryName(registry)]
	out := make([]client.Profile, 0, len(reg))
	for _, p := range reg {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

func (ps *profileStore) get(registry, slug string) (client.Profile, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.registries[registryName(registry)][slug]
	return p, ok
}

func (ps *profileStore) create(p client.Profile) (client.Profile, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p.Registry = registryName(p.Registry)
	reg := ps.registryLocked(p.Registry)
	if _, ok := reg[p.Slug]; ok {
		return client.Profile{}, errProfileExists
	}
	p.Version = 1
	if p.IsDefault {
		clearDefaultLocked(reg)
	}
	reg[p.Slug] = p
	return p, nil
}

// update merges patch into the stored profile. Slug and registry are fixed.
func (ps *profileStore) update(registry, slug string, patch []byte) (client.Profile, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	registry = registryName(registry)
	reg := ps.registries[registry]
	p, ok := reg[slug]
	if !ok {
		return client.Profile{}, errProfileNotFound
	}
	if err := json.Unmarshal(patch, &p); err != nil {
		return client.Profile{}, fmt.Errorf("invalid profile patch: %w", err)
	}
	p.Slug = slug
	p.Registry = registry
	p.Version = reg[slug].Version + 1
	if p.IsDefault && !reg[slug].IsDefault {
		clearDefaultLocked(reg)
	}
	reg[slug] = p
	return p, nil
}

func (ps *profileStore) remove(registry, slug string, expectedVersion int64) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	reg := ps.registries[registryName(registry)]
	p, ok := reg[slug]
	if !ok {
		return errProfileNotFound
	}
	if expectedVersion > 0 && p.Version != expectedVersion {
		return errVersionMismatch
	}
	delete(reg, slug)
	if ps.current.Slug == slug && ps.current.Registry == p.Registry {
		ps.current = client.CurrentProfile{}
	}
	return nil
}

func (ps *profileStore) setDefault(registry, slug string) (client.Profile, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	reg := ps.registries[registryName(registry)]
	p, ok := reg[slug]
	if !ok {
		return client.Profile{}, errProfileNotFound
	}
	clearDefaultLocked(reg)
	p.IsDefault = true
	p.Version++
	reg[slug] = p
	return p, nil
}

func clearDefaultLocked(reg map[string]client.Profile) {
	for slug, p := range reg {
		if p.IsDefault {
			p.IsDefault = false
			p.Version++
			reg[slug] = p
		}
	}
}

// currentProfile returns the selection, falling back to the default
// registry's default profile.
func (ps *profileStore) currentProfile() client.CurrentProfile {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.current.Slug != "" {
		cur := ps.current
		if p, ok := ps.registries[registryName(cur.Registry)][cur.Slug]; ok {
			cur.Profile = &p
		}
		return cur
	}
	for _, p := range ps.registries[DefaultRegistry] {
		if p.IsDefault {
			return client.CurrentProfile{Slug: p.Slug, Registry: p.Registry, Profile: &p}
		}
	}
	return client.CurrentProfile{}
}

func (ps *profileStore) setCurrent(registry, slug string) (client.CurrentProfile, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	registry = registryName(registry)
	p, ok := ps.registries[registry][slug]
	if !ok {
		return client.CurrentProfile{}, errProfileNotFound
	}
	ps.current = client.CurrentProfile{Slug: slug, Registry: registry}
	return client.CurrentProfile{Slug: slug, Registry: registry, Profile: &p}, nil
}

func writeProfileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errProfileNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errProfileExists), errors.Is(err, errVersionMismatch):
		WriteError(w, http.StatusConflict, err.Error())
	default:
		WriteError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.profiles.list(r.URL.Query().Get("registry")))
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	p, ok := s.profiles.get(r.URL.Query().Get("registry"), slug)
	if !ok {
		writeProfileError(w, errProfileNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	var p client.Profile
	if err := readJSON(w, r, &p); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p.Slug = strings.TrimSpace(p.Slug)
	if p.Slug == "" {
		WriteError(w, http.StatusBadRequest, "slug is required")
		return
	}
	created, err := s.profiles.create(p)
	if err != nil {
		writeProfileError(w, err)
		return
	}
	s.logger.Info().Str("slug", created.Slug).Str("registry", created.Registry).Msg("profile created")
	WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := readJSON(w, r, &patch); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	registry := r.URL.Query().Get("registry")
	if raw, ok := patch["registry"]; ok {
		json.Unmarshal(raw, &registry)
	}
	body, _ := json.Marshal(patch)
	p, err := s.profiles.update(registry, mux.Vars(r)["slug"], body)
	if err != nil {
		writeProfileError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProfile(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var expected int64
	if v := query.Get("expected_version"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid expected_version")
			return
		}
		expected = n
	}
	if err := s.profiles.remove(query.Get("registry"), mux.Vars(r)["slug"], expected); err != nil {
		writeProfileError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setDefaultProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Registry string `json:"registry"`
	}
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &body); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if body.Registry == "" {
		body.Registry = r.URL.Query().Get("registry")
	}
	p, err := s.profiles.setDefault(body.Registry, mux.Vars(r)["slug"])
	if err != nil {
		writeProfileError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (s *Server) currentProfile(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.profiles.currentProfile())
}

func (s *Server) setCurrentProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Slug     string `json:"slug"`
		Registry string `json:"registry"`
	}
	if err := readJSON(w, r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Slug) == "" {
		WriteError(w, http.StatusBadRequest, "slug is required")
		return
	}
	cur, err := s.profiles.setCurrent(body.Registry, strings.TrimSpace(body.Slug))
	if err != nil {
		writeProfileError(w, err)
		return
	}
	s.logger.Info().Str("slug", cur.Slug).Str("registry", cur.Registry).Msg("current profile changed")
	WriteJSON(w, http.StatusOK, cur)
}
