// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package sem

import (
	"strings"

	"github.com/wingedpig/convo/internal/timeline"
)

// Event types handled by the default registry.
const (
	TypeTimelineUpsert     = "timeline.upsert"
	TypeLLMStart           = "llm.start"
	TypeLLMDelta           = "llm.delta"
	TypeLLMFinal           = "llm.final"
	TypeLLMThinkingStart   = "llm.thinking.start"
	TypeLLMThinkingDelta   = "llm.thinking.delta"
	TypeLLMThinkingFinal   = "llm.thinking.final"
	TypeLLMThinkingSummary = "llm.thinking.summary"
	TypeToolStart          = "tool.start"
	TypeToolDelta          = "tool.delta"
	TypeToolResult         = "tool.result"
	TypeToolDone           = "tool.done"
	TypeLog                = "log"
	TypeAgentMode          = "agent.mode"
	TypeDebuggerPause      = "debugger.pause"
)

// LLMStart opens an assistant or thinking stream.
type LLMStart struct {
	Role string `json:"role"`
}

// LLMDelta carries the incremental and cumulative stream text.
type LLMDelta struct {
	Delta      string `json:"delta"`
	Cumulative string `json:"cumulative"`
}

// LLMFinal closes a stream with its final text.
type LLMFinal struct {
	Text string `json:"text"`
}

// LLMDone closes a thinking stream without text.
type LLMDone struct{}

// ToolStart announces a tool call.
type ToolStart struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolDelta patches a running tool call.
type ToolDelta struct {
	Patch map[string]any `json:"patch"`
}

// ToolResult reports a tool's output.
type ToolResult struct {
	Result     any    `json:"result"`
	CustomKind string `json:"customKind"`
}

// ToolDone marks a tool call finished.
type ToolDone struct{}

// Log is a structured log line from the backend.
type Log struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields"`
}

// AgentMode reports the agent's current mode.
type AgentMode struct {
	Title string         `json:"title"`
	Data  map[string]any `json:"data"`
}

// DebuggerPause reports a paused debugger step. DeadlineMs is kept as
// decimal digits because it may exceed the float64-safe integer range.
type DebuggerPause struct {
	PauseID    string         `json:"pauseId"`
	Phase      string         `json:"phase"`
	Summary    string         `json:"summary"`
	DeadlineMs DecimalString  `json:"deadlineMs"`
	Extra      map[string]any `json:"extra"`
}

// EntityTransport is the wire form of a timeline entity, used by
// timeline.upsert events and by snapshots.
type EntityTransport struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	CreatedAtMs Int64          `json:"createdAtMs"`
	UpdatedAtMs Int64          `json:"updatedAtMs"`
	Version     Int64          `json:"version,omitempty"`
	Props       map[string]any `json:"props"`
}

// TimelineUpsert carries a full entity for a conversation.
type TimelineUpsert struct {
	ConvID  string           `json:"convId"`
	Version Int64            `json:"version"`
	Entity  *EntityTransport `json:"entity"`
}

// Snapshot is the body of GET /api/timeline.
type Snapshot struct {
	ConvID       string            `json:"convId"`
	Version      Int64             `json:"version"`
	ServerTimeMs Int64             `json:"serverTimeMs"`
	Entities     []EntityTransport `json:"entities"`
}

// EntityFromTransport maps a wire entity to a timeline entity. fallbackVersion
// is used when the entity carries no version of its own. It returns false for
// entities without an id or kind.
func EntityFromTransport(t EntityTransport, fallbackVersion int64) (timeline.Entity, bool) {
	id := strings.TrimSpace(t.ID)
	kind := strings.TrimSpace(t.Kind)
	if id == "" || kind == "" {
		return timeline.Entity{}, false
	}
	version := int64(t.Version)
	if version == 0 {
		version = fallbackVersion
	}
	props := timeline.Props(t.Props)
	if props == nil {
		props = timeline.Props{}
	}
	return timeline.Entity{
		ID:        id,
		Kind:      kind,
		CreatedAt: int64(t.CreatedAtMs),
		UpdatedAt: int64(t.UpdatedAtMs),
		Version:   version,
		Props:     props,
	}, true
}

// TimelineEntities maps every valid snapshot entity, in order.
func (s Snapshot) TimelineEntities() []timeline.Entity {
	out := make([]timeline.Entity, 0, len(s.Entities))
	for _, t := range s.Entities {
		if e, ok := EntityFromTransport(t, int64(s.Version)); ok {
			out = append(out, e)
		}
	}
	return out
}
