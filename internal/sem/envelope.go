// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sem decodes Streamed Event Model envelopes and their typed payloads.
package sem

import (
	"bytes"
	"encoding/json"
)

// Envelope is the wire wrapper `{ "sem": true, "event": {...} }`.
type Envelope struct {
	SEM   bool  `json:"sem"`
	Event Event `json:"event"`
}

// Event is one typed event inside an envelope. Data and Metadata stay raw
// until a handler decodes them.
type Event struct {
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	Seq      *Seq            `json:"seq,omitempty"`
	StreamID string          `json:"stream_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// UnmarshalJSON decodes an event. A seq that is not an integer is dropped
// rather than failing the event; such events order before sequenced ones.
func (e *Event) UnmarshalJSON(b []byte) error {
	type plain Event
	var wire struct {
		plain
		Seq json.RawMessage `json:"seq"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	*e = Event(wire.plain)
	e.Seq, _ = seqFromJSON(wire.Seq)
	return nil
}

// ParseEnvelope parses a raw frame. It returns false when the frame is not
// JSON, lacks the sem marker or lacks an event; such frames belong to some
// other protocol and are ignored.
func ParseEnvelope(raw []byte) (Envelope, bool) {
	var probe struct {
		SEM   *bool           `json:"sem"`
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Envelope{}, false
	}
	if probe.SEM == nil || !*probe.SEM || len(probe.Event) == 0 || bytes.Equal(probe.Event, []byte("null")) {
		return Envelope{}, false
	}

	var ev Event
	if err := json.Unmarshal(probe.Event, &ev); err != nil {
		return Envelope{}, false
	}
	return Envelope{SEM: true, Event: ev}, true
}

// Frame builds the wire bytes for an event. Used by servers and tests.
func Frame(ev Event) ([]byte, error) {
	return json.Marshal(Envelope{SEM: true, Event: ev})
}

// Metadata is the optional metadata block carried by llm.* events.
type Metadata struct {
	Model      string `json:"model,omitempty"`
	DurationMs Int64  `json:"durationMs,omitempty"`
	Usage      *Usage `json:"usage,omitempty"`
}

// Usage holds token counters reported by the model provider.
type Usage struct {
	InputTokens              Int64 `json:"inputTokens,omitempty"`
	OutputTokens             Int64 `json:"outputTokens,omitempty"`
	CachedTokens             Int64 `json:"cachedTokens,omitempty"`
	CacheCreationInputTokens Int64 `json:"cacheCreationInputTokens,omitempty"`
	CacheReadInputTokens     Int64 `json:"cacheReadInputTokens,omitempty"`
}

// DecodeMetadata decodes the event's metadata block.
func (e Event) DecodeMetadata() (Metadata, error) {
	return Decode[Metadata](e.Metadata)
}
