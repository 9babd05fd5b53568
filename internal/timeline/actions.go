// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package timeline

// Action types emitted by event handlers and applied by the conversation
// reducer.
const (
	ActionAddEntity    = "timeline/addEntity"
	ActionUpsertEntity = "timeline/upsertEntity"
	ActionHydrate      = "timeline/hydrateFromSnapshot"
)

// AddEntityAction appends an entity with a fresh id.
type AddEntityAction struct {
	ConvID string
	Entity Entity
}

func (AddEntityAction) ActionType() string { return ActionAddEntity }

// UpsertEntityAction inserts or merges an entity.
type UpsertEntityAction struct {
	ConvID string
	Entity Entity
}

func (UpsertEntityAction) ActionType() string { return ActionUpsertEntity }

// HydrateAction merges a server snapshot.
type HydrateAction struct {
	ConvID   string
	Entities []Entity
}

func (HydrateAction) ActionType() string { return ActionHydrate }

// Apply runs a timeline action against the store. It reports false for
// actions that belong to another reducer.
func (s *Store) Apply(action interface{ ActionType() string }) (bool, error) {
	switch a := action.(type) {
	case AddEntityAction:
		return true, s.AddEntity(a.ConvID, a.Entity)
	case UpsertEntityAction:
		return true, s.UpsertEntity(a.ConvID, a.Entity)
	case HydrateAction:
		s.HydrateFromSnapshot(a.ConvID, a.Entities)
		return true, nil
	}
	return false, nil
}
