// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"strings"
	"sync"
)

// StreamKind separates assistant text streams from thinking streams.
type StreamKind string

const (
	StreamLLM      StreamKind = "llm"
	StreamThinking StreamKind = "thinking"
)

// StreamState tracks one in-progress text stream.
type StreamState struct {
	Role    string
	Emitted bool
}

// Coalescer holds the in-progress LLM streams, keyed by conversation, stream
// kind and event id.
type Coalescer struct {
	mu      sync.Mutex
	streams map[string]*StreamState
}

// NewCoalescer creates an empty coalescer.
func NewCoalescer() *Coalescer {
	return &Coalescer{streams: make(map[string]*StreamState)}
}

// StreamKey builds the coalescer key `conv:kind:id`.
func StreamKey(convID string, kind StreamKind, eventID string) string {
	return convID + ":" + string(kind) + ":" + eventID
}

func defaultRole(kind StreamKind) string {
	if kind == StreamThinking {
		return "thinking"
	}
	return "assistant"
}

func isNonEmptyText(s string) bool {
	return strings.TrimSpace(s) != ""
}

// ensure returns the state for key, creating it with the default role.
// Callers hold c.mu.
func (c *Coalescer) ensure(key string, kind StreamKind) *StreamState {
	st, ok := c.streams[key]
	if !ok {
		st = &StreamState{Role: defaultRole(kind)}
		c.streams[key] = st
	}
	return st
}

// SetRole opens (or reopens) a stream. Blank roles keep the current one.
func (c *Coalescer) SetRole(convID string, kind StreamKind, eventID, role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.ensure(StreamKey(convID, kind, eventID), kind)
	if isNonEmptyText(role) {
		st.Role = role
	}
}

// Emission says what a stream update should write to the timeline.
type Emission struct {
	// Write is false when nothing should be upserted.
	Write     bool
	Role      string
	Content   string
	Streaming bool
}

// Text records stream text. A streaming call with blank text is a no-op. A
// final call (streaming=false) closes the stream; blank final text still
// clears the streaming flag when something was emitted before.
func (c *Coalescer) Text(convID string, kind StreamKind, eventID, text string, streaming bool) Emission {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := StreamKey(convID, kind, eventID)
	st := c.ensure(key, kind)

	if !isNonEmptyText(text) {
		if streaming {
			return Emission{}
		}
		delete(c.streams, key)
		if !st.Emitted {
			return Emission{}
		}
		return Emission{Write: true, Role: st.Role}
	}

	st.Emitted = true
	if !streaming {
		delete(c.streams, key)
	}
	return Emission{Write: true, Role: st.Role, Content: text, Streaming: streaming}
}

// Close ends a stream without new text.
func (c *Coalescer) Close(convID string, kind StreamKind, eventID string) Emission {
	return c.Text(convID, kind, eventID, "", false)
}

// Active reports whether a stream is open.
func (c *Coalescer) Active(convID string, kind StreamKind, eventID string) (StreamState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.streams[StreamKey(convID, kind, eventID)]
	if !ok {
		return StreamState{}, false
	}
	return *st, true
}

// ResetConversation drops every open stream of a conversation.
func (c *Coalescer) ResetConversation(convID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := convID + ":"
	for key := range c.streams {
		if strings.HasPrefix(key, prefix) {
			delete(c.streams, key)
		}
	}
}

// Reset drops all stream state.
func (c *Coalescer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streams = make(map[string]*StreamState)
}

// Len returns the number of open streams.
func (c *Coalescer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}
