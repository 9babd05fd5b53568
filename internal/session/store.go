// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sort"
	"sync"
)

// maxErrorHistory bounds ErrorHistory per conversation.
const maxErrorHistory = 50

// Store holds session state for every conversation.
type Store struct {
	mu    sync.RWMutex
	convs map[string]*State
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{convs: make(map[string]*State)}
}

// Get returns a copy of the conversation's state. Unknown conversations
// report StatusIdle.
func (s *Store) Get(convID string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.convs[convID]
	if !ok {
		return State{ConvID: convID, Status: StatusIdle}
	}
	return st.clone()
}

// Status is shorthand for Get(convID).Status.
func (s *Store) Status(convID string) Status {
	return s.Get(convID).Status
}

// ConversationIDs lists conversations with session state, sorted.
func (s *Store) ConversationIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) update(convID string, fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.convs[convID]
	if !ok {
		st = &State{ConvID: convID, Status: StatusIdle}
		s.convs[convID] = st
	}
	fn(st)
}

// Apply runs a session action. It reports false for foreign actions.
func (s *Store) Apply(action interface{ ActionType() string }) bool {
	switch a := action.(type) {
	case SetStatus:
		s.update(a.ConvID, func(st *State) {
			st.Status = a.Status
			if a.Status == StatusConnected {
				st.HydrationError = ""
			}
			if a.Status != StatusConnected {
				st.IsStreaming = false
			}
		})
	case StreamStarted:
		s.update(a.ConvID, func(st *State) {
			st.IsStreaming = true
			st.StreamStartTime = a.At
			st.StreamOutputTokens = 0
			if a.Model != "" {
				st.ModelName = a.Model
			}
		})
	case UsageUpdated:
		s.update(a.ConvID, func(st *State) {
			st.StreamOutputTokens = a.Usage.OutputTokens
		})
	case StreamFinished:
		s.update(a.ConvID, func(st *State) {
			st.IsStreaming = false
			if a.Model != "" {
				st.ModelName = a.Model
			}
			stats := &TurnStats{Model: st.ModelName, DurationMs: a.DurationMs}
			if a.Usage != nil {
				stats.Usage = *a.Usage
				st.StreamOutputTokens = a.Usage.OutputTokens
				st.ConversationInputTokens += a.Usage.InputTokens
				st.ConversationOutputTokens += a.Usage.OutputTokens
				st.ConversationCachedTokens += a.Usage.CachedTokens + a.Usage.CacheReadInputTokens
			}
			st.TurnStats = stats
		})
	case CursorAdvanced:
		s.update(a.ConvID, func(st *State) {
			st.LastStreamID = a.StreamID
			st.LastSeq = a.Seq
		})
	case ErrorRecorded:
		s.update(a.ConvID, func(st *State) {
			rec := a.Error
			st.CurrentError = &rec
			st.appendError(rec)
		})
	case HydrationFailed:
		s.update(a.ConvID, func(st *State) {
			st.HydrationError = a.Message
			st.appendError(ErrorRecord{Stage: StageHydrate, Message: a.Message, At: a.At, Recoverable: true})
		})
	case ErrorCleared:
		s.update(a.ConvID, func(st *State) {
			st.CurrentError = nil
		})
	default:
		return false
	}
	return true
}

func (st *State) appendError(rec ErrorRecord) {
	st.ErrorHistory = append(st.ErrorHistory, rec)
	if len(st.ErrorHistory) > maxErrorHistory {
		st.ErrorHistory = st.ErrorHistory[len(st.ErrorHistory)-maxErrorHistory:]
	}
}
