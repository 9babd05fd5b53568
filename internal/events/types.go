// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the observer bus for conversation activity.
package events

import (
	"context"
	"time"
)

// Event represents an immutable event record.
type Event struct {
	ID           string                 `json:"id"`
	Version      string                 `json:"version"`
	Type         string                 `json:"type"`
	Timestamp    time.Time              `json:"timestamp"`
	Conversation string                 `json:"conversation"`
	Payload      map[string]interface{} `json:"payload"`
}

// EventHandler processes received events.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter for querying event history.
type EventFilter struct {
	Types        []string  // Event types to match (supports wildcards)
	Conversation string    // Filter by conversation
	Since        time.Time // Events after this time
	Until        time.Time // Events before this time
	Limit        int       // Maximum events to return
}

// EventBus is the core event pub/sub system.
type EventBus interface {
	// Publish emits an event to all matching subscribers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching pattern.
	Subscribe(pattern string, handler EventHandler) (SubscriptionID, error)

	// SubscribeAsync registers an async handler with buffered channel.
	SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter EventFilter) ([]Event, error)

	// ClearConversation drops the history of one conversation and returns
	// how many events were removed.
	ClearConversation(convID string) int

	// Close shuts down the event bus gracefully.
	Close() error
}

// Common event types
const (
	// Every SEM frame received on a conversation, before projection.
	EventEnvelope = "conversation.envelope"

	// Ref-count transitions
	EventClaimed  = "conversation.claimed"
	EventReleased = "conversation.released"

	// Transport status changes
	EventStatus = "conversation.status"

	// Hydrate lifecycle; payload "phase" holds the hydrate phase name.
	EventLifecycle = "conversation.lifecycle"

	// Timeline changes
	EventTimelineChanged = "timeline.changed"

	// Session errors (transport, hydrate, send)
	EventSessionError = "session.error"

	// Pending-turn placeholder visibility changed
	EventPendingChanged = "pending.changed"
)
