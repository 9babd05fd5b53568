// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package pending

import (
	"sort"
	"strings"
	"sync"

	"github.com/wingedpig/convo/internal/session"
	"github.com/wingedpig/convo/internal/timeline"
)

type windowState struct {
	convID string
	state  State
}

// Tracker holds pending-turn state per window. A window shows one
// conversation at a time; pointing it at another conversation resets it.
type Tracker struct {
	mu       sync.Mutex
	byWindow map[string]*windowState
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{byWindow: make(map[string]*windowState)}
}

func (t *Tracker) ensure(windowID, convID string) *windowState {
	windowID = strings.TrimSpace(windowID)
	convID = strings.TrimSpace(convID)
	if windowID == "" || convID == "" {
		return nil
	}
	ws := t.byWindow[windowID]
	if ws == nil || ws.convID != convID {
		ws = &windowState{convID: convID, state: Idle("")}
		t.byWindow[windowID] = ws
	}
	return ws
}

// Begin starts a pending turn for the window; entityCount is the timeline
// length when the prompt was submitted.
func (t *Tracker) Begin(windowID, convID string, entityCount int) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	ws := t.ensure(windowID, convID)
	if ws == nil {
		return Idle("")
	}
	ws.state = Begin(entityCount)
	return ws.state
}

// Fail forces the window's turn into the error phase, e.g. after the prompt
// request itself failed.
func (t *Tracker) Fail(windowID, convID, reason string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	ws := t.ensure(windowID, convID)
	if ws == nil {
		return Idle("")
	}
	ws.state = MarkError(reason)
	return ws.state
}

// Reconcile advances the window's turn against a snapshot and returns the
// new state.
func (t *Tracker) Reconcile(windowID, convID string, snap Snapshot) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	ws := t.ensure(windowID, convID)
	if ws == nil {
		return Idle("")
	}
	ws.state = Advance(ws.state, snap)
	return ws.state
}

// ReconcileConversation advances every window showing convID and returns
// the windows whose phase changed, sorted.
func (t *Tracker) ReconcileConversation(convID string, snap Snapshot) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var changed []string
	for id, ws := range t.byWindow {
		if ws.convID != convID {
			continue
		}
		prev := ws.state.Phase
		ws.state = Advance(ws.state, snap)
		if ws.state.Phase != prev {
			changed = append(changed, id)
		}
	}
	sort.Strings(changed)
	return changed
}

// Watching reports whether any window shows convID.
func (t *Tracker) Watching(convID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ws := range t.byWindow {
		if ws.convID == convID {
			return true
		}
	}
	return false
}

// State returns the window's current state.
func (t *Tracker) State(windowID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ws := t.byWindow[strings.TrimSpace(windowID)]; ws != nil {
		return ws.state
	}
	return Idle("")
}

// ShouldShowPlaceholder reports whether the window should render the
// waiting placeholder.
func (t *Tracker) ShouldShowPlaceholder(windowID string) bool {
	return ShouldShowPlaceholder(t.State(windowID))
}

// Forget drops a window.
func (t *Tracker) Forget(windowID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byWindow, strings.TrimSpace(windowID))
}

// Windows lists tracked window ids, sorted.
func (t *Tracker) Windows() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.byWindow))
	for id := range t.byWindow {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PlaceholderFromTimeline answers the placeholder question without stored
// state: given the baseline recorded at submit time (nil when no prompt is
// awaiting), it replays the machine over the current entities.
func PlaceholderFromTimeline(entities []timeline.Entity, status session.Status, baseline *int) bool {
	if baseline == nil {
		return false
	}
	snap := Snapshot{Entities: entities, ConnectionStatus: status}
	s := Advance(Begin(*baseline), snap)
	if s.Phase == PhaseWaitingForAISignal {
		s = Advance(s, snap)
	}
	return ShouldShowPlaceholder(s)
}
