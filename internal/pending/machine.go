// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pending decides when a "waiting for AI" placeholder should render
// for a submitted prompt.
package pending

import (
	"github.com/wingedpig/convo/internal/session"
	"github.com/wingedpig/convo/internal/timeline"
)

// Phase of a pending AI turn.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseWaitingForUserAppend Phase = "waiting_for_user_append"
	PhaseWaitingForAISignal   Phase = "waiting_for_ai_signal"
	PhaseAIActive             Phase = "ai_active"
	PhaseError                Phase = "error"
)

// State is the pending-turn state of one window and conversation.
// UserEntityIndex is -1 until the user's message is found.
type State struct {
	Phase           Phase  `json:"phase"`
	BaselineIndex   int    `json:"baselineIndex"`
	UserEntityIndex int    `json:"userEntityIndex"`
	Reason          string `json:"reason,omitempty"`
}

// Snapshot is what a reconcile step looks at.
type Snapshot struct {
	Entities         []timeline.Entity
	ConnectionStatus session.Status
}

// Idle returns the idle state.
func Idle(reason string) State {
	if reason == "" {
		reason = "idle"
	}
	return State{Phase: PhaseIdle, UserEntityIndex: -1, Reason: reason}
}

// Begin starts a turn; entityCount is the timeline length at submit time.
func Begin(entityCount int) State {
	return State{
		Phase:           PhaseWaitingForUserAppend,
		BaselineIndex:   max(0, entityCount),
		UserEntityIndex: -1,
		Reason:          "submit",
	}
}

// MarkError moves a turn to the error phase.
func MarkError(reason string) State {
	return State{Phase: PhaseError, UserEntityIndex: -1, Reason: reason}
}

// ShouldShowPlaceholder is true only while waiting for the AI to act.
func ShouldShowPlaceholder(s State) bool {
	return s.Phase == PhaseWaitingForAISignal
}

func isUserMessage(e timeline.Entity) bool {
	return e.Kind == timeline.KindMessage && e.Role() == "user"
}

// isAISignal matches any entity that is not the user's own message.
func isAISignal(e timeline.Entity) bool {
	if e.Kind != timeline.KindMessage {
		return true
	}
	return e.Role() != "user"
}

func indexFrom(entities []timeline.Entity, start int, match func(timeline.Entity) bool) int {
	for i := max(0, start); i < len(entities); i++ {
		if match(entities[i]) {
			return i
		}
	}
	return -1
}

// Advance computes the next state from a timeline and connection snapshot.
func Advance(s State, snap Snapshot) State {
	if s.Phase == PhaseIdle || s.Phase == PhaseAIActive {
		return s
	}
	if snap.ConnectionStatus == session.StatusError {
		return MarkError("connection-error")
	}
	switch s.Phase {
	case PhaseError:
		return Idle("error-ack")

	case PhaseWaitingForUserAppend:
		idx := indexFrom(snap.Entities, s.BaselineIndex, isUserMessage)
		if idx < 0 {
			return s
		}
		return State{
			Phase:           PhaseWaitingForAISignal,
			BaselineIndex:   s.BaselineIndex,
			UserEntityIndex: idx,
			Reason:          "user-appended",
		}

	case PhaseWaitingForAISignal:
		start := s.BaselineIndex
		if s.UserEntityIndex >= 0 {
			start = s.UserEntityIndex
		}
		idx := indexFrom(snap.Entities, start+1, isAISignal)
		if idx < 0 {
			return s
		}
		return State{
			Phase:           PhaseAIActive,
			BaselineIndex:   s.BaselineIndex,
			UserEntityIndex: s.UserEntityIndex,
			Reason:          "ai-signal:" + snap.Entities[idx].Kind,
		}
	}
	return s
}
