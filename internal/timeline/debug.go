// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DebugEntity is one row of a debug snapshot.
type DebugEntity struct {
	ID         string `json:"id" yaml:"id"`
	OrderIndex int    `json:"orderIndex" yaml:"orderIndex"`
	Kind       string `json:"kind" yaml:"kind"`
	CreatedAt  int64  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt  *int64 `json:"updatedAt" yaml:"updatedAt"`
	Version    *int64 `json:"version" yaml:"version"`
	Props      Props  `json:"props" yaml:"props"`
}

// DebugSummary counts entities per kind.
type DebugSummary struct {
	EntityCount int            `json:"entityCount" yaml:"entityCount"`
	OrderCount  int            `json:"orderCount" yaml:"orderCount"`
	Kinds       map[string]int `json:"kinds" yaml:"kinds"`
}

// DebugSnapshot is a serializable dump of one conversation's timeline.
type DebugSnapshot struct {
	ConversationID string       `json:"conversationId" yaml:"conversationId"`
	ExportedAt     string       `json:"exportedAt" yaml:"exportedAt"`
	Summary        DebugSummary `json:"summary" yaml:"summary"`
	Timeline       struct {
		Order    []string      `json:"order" yaml:"order"`
		Entities []DebugEntity `json:"entities" yaml:"entities"`
	} `json:"timeline" yaml:"timeline"`
}

// BuildDebugSnapshot renders state for inspection. Order entries without an
// entity are reported with kind KindMissing instead of being dropped.
func BuildDebugSnapshot(convID string, state ConversationState, exportedAt time.Time) DebugSnapshot {
	snap := DebugSnapshot{
		ConversationID: convID,
		ExportedAt:     exportedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		Summary: DebugSummary{
			EntityCount: len(state.ByID),
			OrderCount:  len(state.Order),
			Kinds:       map[string]int{},
		},
	}
	snap.Timeline.Order = append([]string{}, state.Order...)
	snap.Timeline.Entities = make([]DebugEntity, 0, len(state.Order))

	for i, id := range state.Order {
		e, ok := state.ByID[id]
		if !ok {
			snap.Timeline.Entities = append(snap.Timeline.Entities, DebugEntity{
				ID:         id,
				OrderIndex: i,
				Kind:       KindMissing,
			})
			continue
		}
		snap.Summary.Kinds[e.Kind]++
		row := DebugEntity{
			ID:         e.ID,
			OrderIndex: i,
			Kind:       e.Kind,
			CreatedAt:  e.CreatedAt,
			Props:      e.Props.Clone(),
		}
		if e.UpdatedAt != 0 {
			v := e.UpdatedAt
			row.UpdatedAt = &v
		}
		if e.Version != 0 {
			v := e.Version
			row.Version = &v
		}
		snap.Timeline.Entities = append(snap.Timeline.Entities, row)
	}
	return snap
}

// YAML renders the whole snapshot.
func (d DebugSnapshot) YAML() (string, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal debug snapshot: %w", err)
	}
	return string(out), nil
}

// EntityYAML renders a single row, optionally tagged with its conversation.
func EntityYAML(e DebugEntity, convID string) (string, error) {
	doc := yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value any) error {
		var v yaml.Node
		if err := v.Encode(value); err != nil {
			return err
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, &v)
		return nil
	}

	if convID != "" {
		if err := add("conversationId", convID); err != nil {
			return "", err
		}
	}
	fields := []struct {
		key   string
		value any
	}{
		{"id", e.ID},
		{"orderIndex", e.OrderIndex},
		{"kind", e.Kind},
		{"createdAt", e.CreatedAt},
		{"updatedAt", e.UpdatedAt},
		{"version", e.Version},
		{"props", e.Props},
	}
	for _, f := range fields {
		if err := add(f.key, f.value); err != nil {
			return "", fmt.Errorf("encode %s: %w", f.key, err)
		}
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("marshal entity: %w", err)
	}
	return string(out), nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// ExportFileName returns the file name used when saving a snapshot export.
func (d DebugSnapshot) ExportFileName() string {
	segment := strings.Trim(unsafeFileChars.ReplaceAllString(strings.TrimSpace(d.ConversationID), "-"), "-")
	if segment == "" {
		segment = "conversation"
	}
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(d.ExportedAt)
	return fmt.Sprintf("timeline-%s-%s.yaml", segment, stamp)
}
