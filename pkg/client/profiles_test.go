// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"testing"
)

func TestProfiles_List(t *testing.T) {
	var requestURI string
	server := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		requestURI = r.URL.RequestURI()
		jsonHandler([]map[string]interface{}{
			{"slug": "default", "is_default": false},
			{"slug": "inventory", "is_default": true, "extensions": map[string]interface{}{
				StarterSuggestionsExtension: map[string]interface{}{"items": []string{"restock"}},
			}},
		}, http.StatusOK)(w, r)
	})

	profiles, err := New(server.URL+"/chat").Profiles.List(context.Background(), "default")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if requestURI != "/chat/api/chat/profiles?registry=default" {
		t.Errorf("request = %q", requestURI)
	}
	if len(profiles) != 2 {
		t.Fatalf("len = %d, want 2", len(profiles))
	}
	if !profiles[1].IsDefault || profiles[1].Slug != "inventory" {
		t.Errorf("profiles[1] = %+v", profiles[1])
	}
	if got := profiles[1].StarterSuggestions(); !reflect.DeepEqual(got, []string{"restock"}) {
		t.Errorf("StarterSuggestions() = %v", got)
	}
	if profiles[0].StarterSuggestions() != nil {
		t.Error("default profile should have no suggestions")
	}
}

func TestProfiles_ListIndexedObject(t *testing.T) {
	server := mockServer(t, jsonHandler(map[string]interface{}{
		"10": map[string]interface{}{"slug": "late"},
		"1":  map[string]interface{}{"slug": "inventory", "is_default": true},
		"0":  map[string]interface{}{"slug": "default"},
	}, http.StatusOK))

	profiles, err := New(server.URL).Profiles.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var slugs []string
	for _, p := range profiles {
		slugs = append(slugs, p.Slug)
	}
	if !reflect.DeepEqual(slugs, []string{"default", "inventory", "late"}) {
		t.Errorf("slugs = %v", slugs)
	}
}

func TestDecodeProfileList(t *testing.T) {
	got, err := decodeProfileList(json.RawMessage(`null`))
	if err != nil || len(got) != 0 {
		t.Errorf("null: got %v, err %v", got, err)
	}
	if _, err := decodeProfileList(json.RawMessage(`{"a":{"slug":"x"}}`)); err == nil {
		t.Error("expected error for non-index key")
	}
	if _, err := decodeProfileList(json.RawMessage(`"nope"`)); err == nil {
		t.Error("expected error for string payload")
	}
}

func TestProfiles_CreateUpdateSetDefault(t *testing.T) {
	type call struct {
		method, uri string
		body        map[string]interface{}
	}
	var calls []call
	server := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		calls = append(calls, call{r.Method, r.URL.RequestURI(), body})
		jsonHandler(map[string]interface{}{"registry": "default", "slug": "analyst", "is_default": true, "version": 2}, http.StatusOK)(w, r)
	})
	profiles := New(server.URL).Profiles
	ctx := context.Background()

	created, err := profiles.Create(ctx, map[string]interface{}{"slug": "analyst"})
	if err != nil || created.Slug != "analyst" || created.Version != 2 {
		t.Fatalf("Create() = %+v, %v", created, err)
	}
	if _, err := profiles.Update(ctx, "analyst", map[string]interface{}{"expected_version": 1}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	doc, err := profiles.SetDefault(ctx, "analyst", nil)
	if err != nil || !doc.IsDefault {
		t.Fatalf("SetDefault() = %+v, %v", doc, err)
	}

	want := []struct{ method, uri string }{
		{http.MethodPost, "/api/chat/profiles"},
		{http.MethodPatch, "/api/chat/profiles/analyst"},
		{http.MethodPost, "/api/chat/profiles/analyst/default"},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %d, want %d", len(calls), len(want))
	}
	for i, w := range want {
		if calls[i].method != w.method || calls[i].uri != w.uri {
			t.Errorf("call %d = %s %s, want %s %s", i, calls[i].method, calls[i].uri, w.method, w.uri)
		}
	}
	if calls[1].body["expected_version"] != float64(1) {
		t.Errorf("update body = %v", calls[1].body)
	}
	if calls[2].body == nil {
		t.Error("set default should send an empty object")
	}
}

func TestProfiles_Delete(t *testing.T) {
	var uri, method string
	server := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		uri, method = r.URL.RequestURI(), r.Method
		w.WriteHeader(http.StatusNoContent)
	})

	err := New(server.URL).Profiles.Delete(context.Background(), "old one", DeleteOptions{Registry: "team", ExpectedVersion: 4})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if method != http.MethodDelete || uri != "/api/chat/profiles/old%20one?registry=team&expected_version=4" {
		t.Errorf("request = %s %s", method, uri)
	}
}

func TestProfiles_CurrentAndSetCurrent(t *testing.T) {
	server := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/profile" {
			t.Errorf("path = %q", r.URL.Path)
		}
		slug := "default"
		if r.Method == http.MethodPost {
			var body struct{ Slug string }
			json.NewDecoder(r.Body).Decode(&body)
			slug = body.Slug
		}
		jsonHandler(map[string]interface{}{"slug": slug, "registry": "default"}, http.StatusOK)(w, r)
	})
	profiles := New(server.URL).Profiles

	cur, err := profiles.Current(context.Background())
	if err != nil || cur.Slug != "default" {
		t.Fatalf("Current() = %+v, %v", cur, err)
	}
	cur, err = profiles.SetCurrent(context.Background(), "agent")
	if err != nil || cur.Slug != "agent" {
		t.Fatalf("SetCurrent() = %+v, %v", cur, err)
	}
}

func TestProfiles_ErrorFallbacks(t *testing.T) {
	server := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/api/chat/profiles/missing" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, "profile not found")
			return
		}
		w.WriteHeader(http.StatusConflict)
	})
	profiles := New(server.URL).Profiles
	ctx := context.Background()

	check := func(err error, status int, msg string) {
		t.Helper()
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) {
			t.Fatalf("error = %v, want *HTTPError", err)
		}
		if httpErr.Status != status || httpErr.Message != msg || httpErr.Stage != StageProfile {
			t.Errorf("error = %+v, want %d %q", httpErr, status, msg)
		}
	}

	_, err := profiles.Get(ctx, "missing", "")
	check(err, http.StatusNotFound, "profile not found")

	_, err = profiles.List(ctx, "")
	check(err, http.StatusConflict, "profile list request failed (409)")

	err = profiles.Delete(ctx, "x", DeleteOptions{})
	check(err, http.StatusConflict, "profile delete failed (409)")

	_, err = profiles.SetCurrent(ctx, "x")
	check(err, http.StatusConflict, "set current profile failed (409)")
}
