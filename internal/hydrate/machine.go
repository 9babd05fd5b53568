// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package hydrate reconciles a live SEM stream with a fetched timeline
// snapshot: frames that arrive before the snapshot are buffered and replayed
// in a deterministic order once it is merged.
package hydrate

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/wingedpig/convo/internal/sem"
	"github.com/wingedpig/convo/internal/timeline"
)

// State is the hydration state of a connection.
type State int

const (
	NotHydrated State = iota
	Hydrating
	Hydrated
)

func (s State) String() string {
	switch s {
	case NotHydrated:
		return "not-hydrated"
	case Hydrating:
		return "hydrating"
	case Hydrated:
		return "hydrated"
	default:
		return "unknown"
	}
}

// Phase names a lifecycle step.
type Phase string

const (
	PhaseConnectBegin    Phase = "connect.begin"
	PhaseWSOpen          Phase = "ws.open"
	PhaseHydrateStart    Phase = "hydrate.start"
	PhaseFrameBuffered   Phase = "frame.buffered"
	PhaseSnapshotApplied Phase = "hydrate.snapshot.applied"
	PhaseReplayBegin     Phase = "replay.begin"
	PhaseReplayComplete  Phase = "replay.complete"
	PhaseHydrateComplete Phase = "hydrate.complete"
	PhaseHydrateFailed   Phase = "hydrate.failed"
	PhaseDisconnect      Phase = "disconnect"
)

// Lifecycle is one traced step.
type Lifecycle struct {
	ConvID   string    `json:"convId"`
	Phase    Phase     `json:"phase"`
	Epoch    uint64    `json:"epoch"`
	Buffered int       `json:"buffered,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Config wires a Machine to the rest of the runtime.
type Config struct {
	// Project runs a frame through the event registry.
	Project func(raw []byte)
	// Merge applies snapshot entities to the timeline non-destructively.
	Merge func(entities []timeline.Entity)
	// OnLifecycle receives every lifecycle step. Optional.
	OnLifecycle func(Lifecycle)
	Logger      zerolog.Logger
}

type bufferedFrame struct {
	raw []byte
	key sem.OrderKey
}

// Machine is the hydrate/buffer/replay state machine of one conversation.
// It is not safe for concurrent use; the conversation loop drives it.
type Machine struct {
	convID string
	cfg    Config

	state  State
	epoch  uint64
	buffer []bufferedFrame
}

// New creates a machine in the NotHydrated state.
func New(convID string, cfg Config) *Machine {
	if cfg.Project == nil {
		cfg.Project = func([]byte) {}
	}
	if cfg.Merge == nil {
		cfg.Merge = func([]timeline.Entity) {}
	}
	return &Machine{convID: convID, cfg: cfg}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Epoch returns the current connection generation.
func (m *Machine) Epoch() uint64 { return m.epoch }

// Buffered returns the number of frames waiting for replay.
func (m *Machine) Buffered() int { return len(m.buffer) }

// Trace reports a lifecycle step owned by the caller, such as ws.open.
func (m *Machine) Trace(phase Phase) {
	m.emit(Lifecycle{Phase: phase})
}

func (m *Machine) emit(l Lifecycle) {
	if m.cfg.OnLifecycle == nil {
		return
	}
	l.ConvID = m.convID
	l.Epoch = m.epoch
	l.At = time.Now()
	m.cfg.OnLifecycle(l)
}

// Connect starts a new connection generation. With hydrate set the machine
// buffers until Resolve; otherwise it projects immediately. The returned
// epoch identifies this generation.
func (m *Machine) Connect(hydrate bool) uint64 {
	m.epoch++
	m.buffer = nil
	if hydrate {
		m.state = NotHydrated
	} else {
		m.state = Hydrated
	}
	m.emit(Lifecycle{Phase: PhaseConnectBegin})
	return m.epoch
}

// BeginFetch records that the snapshot request is in flight and returns the
// epoch the result must be resolved with. It returns false when no
// hydration is pending.
func (m *Machine) BeginFetch() (uint64, bool) {
	if m.state != NotHydrated {
		return 0, false
	}
	m.state = Hydrating
	m.emit(Lifecycle{Phase: PhaseHydrateStart})
	return m.epoch, true
}

// Frame buffers a raw frame while not hydrated, and projects it otherwise.
func (m *Machine) Frame(raw []byte) {
	if m.state == Hydrated {
		m.cfg.Project(raw)
		return
	}
	var key sem.OrderKey
	if env, ok := sem.ParseEnvelope(raw); ok {
		key = sem.KeyOf(env.Event)
	}
	m.buffer = append(m.buffer, bufferedFrame{raw: raw, key: key})
	m.emit(Lifecycle{Phase: PhaseFrameBuffered, Buffered: len(m.buffer)})
}

// Resolve completes hydration for epoch. A nil fetchErr merges snap; a
// non-nil one falls back to an empty merge so buffered frames are not lost.
// Either way the buffer is replayed and the machine becomes Hydrated.
// Results for a stale epoch, or arriving when nothing is pending, are
// discarded and Resolve returns false.
func (m *Machine) Resolve(epoch uint64, snap []timeline.Entity, fetchErr error) bool {
	if epoch != m.epoch || m.state == Hydrated {
		m.cfg.Logger.Debug().
			Str("conv_id", m.convID).
			Uint64("epoch", epoch).
			Uint64("current", m.epoch).
			Msg("discarding stale snapshot")
		return false
	}

	if fetchErr != nil {
		m.cfg.Logger.Warn().Err(fetchErr).Str("conv_id", m.convID).Msg("hydration failed, projecting without snapshot")
		m.emit(Lifecycle{Phase: PhaseHydrateFailed, Error: fetchErr.Error()})
	} else {
		m.cfg.Merge(snap)
		m.emit(Lifecycle{Phase: PhaseSnapshotApplied})
	}

	m.state = Hydrated
	m.replay()
	m.emit(Lifecycle{Phase: PhaseHydrateComplete})
	return true
}

func (m *Machine) replay() {
	frames := m.buffer
	m.buffer = nil
	m.emit(Lifecycle{Phase: PhaseReplayBegin, Buffered: len(frames)})

	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].key.Less(frames[j].key)
	})
	for _, f := range frames {
		m.cfg.Project(f.raw)
	}
	m.emit(Lifecycle{Phase: PhaseReplayComplete, Buffered: len(frames)})
}

// Disconnect drops buffered frames and invalidates the in-flight fetch.
func (m *Machine) Disconnect() {
	m.epoch++
	m.buffer = nil
	m.state = NotHydrated
	m.emit(Lifecycle{Phase: PhaseDisconnect})
}
