// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store keeps one ordered timeline per conversation.
//
// Mutations of a single conversation are serialized by that conversation's
// lock; different conversations never contend. Readers get deep copies.
type Store struct {
	mu    sync.RWMutex
	convs map[string]*conversation
	now   func() int64
}

type conversation struct {
	mu    sync.RWMutex
	byID  map[string]Entity
	order []string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the millisecond clock used to stamp UpdatedAt.
func WithClock(now func() int64) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		convs: make(map[string]*conversation),
		now:   func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// conv returns the conversation entry, creating it lazily when create is set.
func (s *Store) conv(convID string, create bool) *conversation {
	s.mu.RLock()
	c := s.convs[convID]
	s.mu.RUnlock()
	if c != nil || !create {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c = s.convs[convID]; c == nil {
		c = &conversation{byID: make(map[string]Entity)}
		s.convs[convID] = c
	}
	return c
}

// AddEntity appends a fresh entity. It fails with ErrDuplicateEntity when the
// id is already present.
func (s *Store) AddEntity(convID string, e Entity) error {
	if e.ID == "" {
		return fmt.Errorf("add entity: empty id")
	}
	c := s.conv(convID, true)
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byID[e.ID]; exists {
		return fmt.Errorf("add entity %s: %w", e.ID, ErrDuplicateEntity)
	}
	c.byID[e.ID] = e.Clone()
	c.order = append(c.order, e.ID)
	return nil
}

// UpsertEntity appends the entity when its id is new, otherwise merges it in
// place without changing its position.
func (s *Store) UpsertEntity(convID string, e Entity) error {
	if e.ID == "" {
		return fmt.Errorf("upsert entity: empty id")
	}
	c := s.conv(convID, true)
	c.mu.Lock()
	defer c.mu.Unlock()
	s.upsertLocked(c, e)
	return nil
}

func (s *Store) upsertLocked(c *conversation, e Entity) {
	existing, ok := c.byID[e.ID]
	if !ok {
		c.byID[e.ID] = e.Clone()
		c.order = append(c.order, e.ID)
		return
	}
	c.byID[e.ID] = s.merge(existing, e)
}

// merge applies an incoming entity onto the stored one. Last writer wins.
func (s *Store) merge(existing, incoming Entity) Entity {
	merged := existing.Clone()
	if incoming.Kind != "" {
		merged.Kind = incoming.Kind
	}
	if merged.CreatedAt == 0 {
		merged.CreatedAt = incoming.CreatedAt
	}
	if incoming.Version != 0 {
		merged.Version = incoming.Version
	}
	if incoming.UpdatedAt != 0 {
		merged.UpdatedAt = incoming.UpdatedAt
	} else {
		merged.UpdatedAt = s.now()
	}
	if merged.Props == nil && incoming.Props != nil {
		merged.Props = make(Props, len(incoming.Props))
	}
	for k, v := range incoming.Props {
		merged.Props[k] = cloneValue(v)
	}
	return merged
}

// HydrateFromSnapshot upserts snapshot entities in the given order. Local
// entities absent from the snapshot are kept: the snapshot may lag a very
// recent local append.
func (s *Store) HydrateFromSnapshot(convID string, entities []Entity) {
	c := s.conv(convID, true)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entities {
		if e.ID == "" {
			continue
		}
		s.upsertLocked(c, e)
	}
}

// Conversation returns a consistent copy of one conversation's timeline.
// An unknown conversation yields an empty state.
func (s *Store) Conversation(convID string) ConversationState {
	c := s.conv(convID, false)
	if c == nil {
		return ConversationState{ByID: map[string]Entity{}, Order: []string{}}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := ConversationState{
		ByID:  make(map[string]Entity, len(c.byID)),
		Order: append([]string(nil), c.order...),
	}
	for id, e := range c.byID {
		state.ByID[id] = e.Clone()
	}
	return state
}

// Exists reports whether the conversation has ever been written.
func (s *Store) Exists(convID string) bool {
	return s.conv(convID, false) != nil
}

// Entities returns the conversation's entities in order.
func (s *Store) Entities(convID string) []Entity {
	return s.Conversation(convID).Entities()
}

// Entity returns one entity by id.
func (s *Store) Entity(convID, id string) (Entity, bool) {
	c := s.conv(convID, false)
	if c == nil {
		return Entity{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	if !ok {
		return Entity{}, false
	}
	return e.Clone(), true
}

// Len returns the number of ordered entries in the conversation.
func (s *Store) Len(convID string) int {
	c := s.conv(convID, false)
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// ConversationIDs lists every conversation with a timeline, sorted.
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
