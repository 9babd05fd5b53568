// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package timeline holds the per-conversation ordered entity store.
package timeline

import (
	"errors"
	"strings"
)

// ErrDuplicateEntity is returned by AddEntity when the id already exists.
var ErrDuplicateEntity = errors.New("entity already exists")

// Entity kinds produced by the default handlers.
const (
	KindMessage       = "message"
	KindToolCall      = "tool_call"
	KindToolResult    = "tool_result"
	KindLog           = "log"
	KindAgentMode     = "agent_mode"
	KindDebuggerPause = "debugger_pause"
	KindSuggestions   = "suggestions"

	// KindMissing labels an order entry whose entity is absent. It only
	// appears in debug snapshots.
	KindMissing = "<missing>"
)

// Props is the open, kind-specific property bag of an entity. Values must be
// JSON-safe: strings, numbers, booleans, nil, []any and map[string]any.
type Props map[string]any

// Entity is the atomic unit of conversation state.
type Entity struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt,omitempty"` // 0 until the entity is upserted again
	Version   int64  `json:"version,omitempty"`   // 0 when unknown
	Props     Props  `json:"props"`
}

// ConversationState is the ordered view of one conversation.
type ConversationState struct {
	ByID  map[string]Entity `json:"byId"`
	Order []string          `json:"order"`
}

// Entities returns entities in timeline order, skipping orphaned ids.
func (s ConversationState) Entities() []Entity {
	out := make([]Entity, 0, len(s.Order))
	for _, id := range s.Order {
		if e, ok := s.ByID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy of the entity, including nested props.
func (e Entity) Clone() Entity {
	e.Props = e.Props.Clone()
	return e
}

// Clone deep-copies the property bag.
func (p Props) Clone() Props {
	if p == nil {
		return nil
	}
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Props:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// String returns the string value at key, or "" if missing or not a string.
func (p Props) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Bool returns the bool value at key.
func (p Props) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Map returns the nested mapping at key.
func (p Props) Map(key string) map[string]any {
	switch t := p[key].(type) {
	case map[string]any:
		return t
	case Props:
		return t
	}
	return nil
}

// Role returns the normalized role of a message entity.
func (e Entity) Role() string {
	if e.Props == nil {
		return ""
	}
	role, _ := e.Props["role"].(string)
	return strings.ToLower(strings.TrimSpace(role))
}
