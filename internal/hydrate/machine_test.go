// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package hydrate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/convo/internal/registry"
	"github.com/wingedpig/convo/internal/timeline"
)

// rig drives a machine against a real registry and timeline store.
type rig struct {
	m      *Machine
	store  *timeline.Store
	phases []Phase
	raw    []string
}

func newRig(t *testing.T, convID string) *rig {
	t.Helper()
	r := &rig{store: timeline.NewStore()}
	reg := registry.NewDefault()
	ctx := registry.Context{ConvID: convID, Dispatch: func(a registry.Action) {
		r.store.Apply(a)
	}}
	r.m = New(convID, Config{
		Project: func(raw []byte) {
			r.raw = append(r.raw, string(raw))
			reg.DispatchFrame(raw, ctx)
		},
		Merge:       func(es []timeline.Entity) { r.store.HydrateFromSnapshot(convID, es) },
		OnLifecycle: func(l Lifecycle) { r.phases = append(r.phases, l.Phase) },
	})
	return r
}

func upsertFrame(id string, seq int, content string) []byte {
	return []byte(fmt.Sprintf(`{"sem":true,"event":{"type":"timeline.upsert","id":"%s","seq":%d,"stream_id":"s","data":{"entity":{"id":"%s","kind":"message","props":{"content":"%s"}}}}}`,
		id, seq, id, content))
}

func TestMachine_NoHydrateProjectsImmediately(t *testing.T) {
	r := newRig(t, "c")
	r.m.Connect(false)
	assert.Equal(t, Hydrated, r.m.State())

	_, ok := r.m.BeginFetch()
	assert.False(t, ok)

	r.m.Frame(upsertFrame("a", 1, "x"))
	assert.Equal(t, 1, r.store.Len("c"))
	assert.Zero(t, r.m.Buffered())
}

func TestMachine_BuffersUntilResolved(t *testing.T) {
	r := newRig(t, "c")
	r.m.Connect(true)
	r.m.Trace(PhaseWSOpen)
	epoch, ok := r.m.BeginFetch()
	require.True(t, ok)
	assert.Equal(t, Hydrating, r.m.State())

	r.m.Frame(upsertFrame("msg-buffered", 1, "buffered"))
	assert.Equal(t, 1, r.m.Buffered())
	assert.Zero(t, r.store.Len("c"))

	require.True(t, r.m.Resolve(epoch, nil, nil))
	assert.Equal(t, Hydrated, r.m.State())
	assert.Equal(t, []string{"msg-buffered"}, r.store.Conversation("c").Order)

	assert.Equal(t, []Phase{
		PhaseConnectBegin, PhaseWSOpen, PhaseHydrateStart, PhaseFrameBuffered,
		PhaseSnapshotApplied, PhaseReplayBegin, PhaseReplayComplete, PhaseHydrateComplete,
	}, r.phases)

	// Steady state projects directly.
	r.m.Frame(upsertFrame("live", 2, "now"))
	assert.Equal(t, []string{"msg-buffered", "live"}, r.store.Conversation("c").Order)
}

func TestMachine_ReplaysInSeqOrder(t *testing.T) {
	r := newRig(t, "c")
	epoch := r.m.Connect(true)
	r.m.BeginFetch()

	// Same entity, out-of-order arrival: seq 2 then seq 1.
	r.m.Frame(upsertFrame("e", 2, "second"))
	r.m.Frame(upsertFrame("e", 1, "first"))
	require.True(t, r.m.Resolve(epoch, nil, nil))

	e, ok := r.store.Entity("c", "e")
	require.True(t, ok)
	assert.Equal(t, "second", e.Props["content"])
	require.Len(t, r.raw, 2)
	assert.Contains(t, r.raw[0], `"seq":1`)
	assert.Contains(t, r.raw[1], `"seq":2`)
}

func TestMachine_OrderingKeyAcrossStreams(t *testing.T) {
	r := newRig(t, "c")
	epoch := r.m.Connect(true)
	r.m.BeginFetch()

	frames := []string{
		`{"sem":true,"event":{"type":"log","id":"b2","stream_id":"b","seq":"18446744073709551616"}}`,
		`{"sem":true,"event":{"type":"log","id":"b1","stream_id":"b","seq":9}}`,
		`{"sem":true,"event":{"type":"log","id":"a1","stream_id":"a","seq":5}}`,
		`{"sem":true,"event":{"type":"log","id":"b0","stream_id":"b"}}`,
		`{"sem":true,"event":{"type":"log","id":"n1"}}`,
		`{"sem":true,"event":{"type":"log","id":"n2"}}`,
	}
	for _, f := range frames {
		r.m.Frame([]byte(f))
	}
	r.m.Resolve(epoch, nil, nil)

	assert.Equal(t, []string{"n1", "n2", "a1", "b0", "b1", "b2"}, r.store.Conversation("c").Order)
}

func TestMachine_SnapshotMergeIsNonDestructive(t *testing.T) {
	r := newRig(t, "c")
	require.NoError(t, r.store.AddEntity("c", timeline.Entity{ID: timeline.StarterSuggestionsID, Kind: timeline.KindSuggestions}))
	require.NoError(t, r.store.AddEntity("c", timeline.Entity{ID: "user-1", Kind: timeline.KindMessage, Props: timeline.Props{"role": "user"}}))
	require.NoError(t, r.store.AddEntity("c", timeline.Entity{ID: "assistant-1", Kind: timeline.KindMessage, Props: timeline.Props{"role": "assistant", "content": "Initial summary"}}))

	epoch := r.m.Connect(true)
	r.m.BeginFetch()
	r.m.Resolve(epoch, []timeline.Entity{
		{ID: "assistant-1", Kind: timeline.KindMessage, Props: timeline.Props{"role": "assistant", "content": "Hydrated summary"}},
		{ID: "status-1", Kind: "status", Props: timeline.Props{"text": "Updating widget"}},
	}, nil)

	state := r.store.Conversation("c")
	assert.Equal(t, []string{timeline.StarterSuggestionsID, "user-1", "assistant-1", "status-1"}, state.Order)
	assert.Equal(t, "Hydrated summary", state.ByID["assistant-1"].Props["content"])
}

func TestMachine_FailureFallsBackToHydrated(t *testing.T) {
	r := newRig(t, "c")
	require.NoError(t, r.store.AddEntity("c", timeline.Entity{ID: "keep", Kind: timeline.KindLog}))

	epoch := r.m.Connect(true)
	r.m.BeginFetch()
	r.m.Frame(upsertFrame("late", 1, "x"))
	require.True(t, r.m.Resolve(epoch, nil, errors.New("timeline request failed (500)")))

	assert.Equal(t, Hydrated, r.m.State())
	assert.Equal(t, []string{"keep", "late"}, r.store.Conversation("c").Order)
	assert.Contains(t, r.phases, PhaseHydrateFailed)
	assert.NotContains(t, r.phases, PhaseSnapshotApplied)
	assert.Equal(t, PhaseHydrateComplete, r.phases[len(r.phases)-1])
}

func TestMachine_StaleResolutionIsDiscarded(t *testing.T) {
	r := newRig(t, "c")
	first := r.m.Connect(true)
	r.m.BeginFetch()
	r.m.Frame(upsertFrame("old", 1, "x"))

	r.m.Disconnect()
	assert.Zero(t, r.m.Buffered())

	second := r.m.Connect(true)
	require.NotEqual(t, first, second)
	r.m.BeginFetch()

	assert.False(t, r.m.Resolve(first, []timeline.Entity{{ID: "ghost", Kind: "message"}}, nil))
	assert.Zero(t, r.store.Len("c"))
	assert.Equal(t, Hydrating, r.m.State())

	assert.True(t, r.m.Resolve(second, nil, nil))
	assert.False(t, r.m.Resolve(second, nil, nil))
}

func TestMachine_ReconnectLifecycleTrace(t *testing.T) {
	r := newRig(t, "conv-remount")
	r.m.Connect(false)
	r.m.Trace(PhaseWSOpen)
	r.m.Disconnect()

	epoch := r.m.Connect(true)
	r.m.Trace(PhaseWSOpen)
	r.m.BeginFetch()
	r.m.Frame(upsertFrame("msg-remount", 7, "hydrated after remount"))
	r.m.Resolve(epoch, nil, nil)
	r.m.Disconnect()

	assert.Equal(t, []Phase{PhaseConnectBegin, PhaseWSOpen, PhaseDisconnect, PhaseConnectBegin, PhaseWSOpen}, r.phases[:5])
	index := func(p Phase) int {
		for i, q := range r.phases {
			if q == p {
				return i
			}
		}
		return -1
	}
	assert.Greater(t, index(PhaseHydrateStart), 4)
	assert.Greater(t, index(PhaseFrameBuffered), 4)
	assert.Greater(t, index(PhaseSnapshotApplied), index(PhaseFrameBuffered))
	assert.Greater(t, index(PhaseReplayBegin), index(PhaseSnapshotApplied))
	assert.Greater(t, index(PhaseReplayComplete), index(PhaseReplayBegin))
	assert.Greater(t, index(PhaseHydrateComplete), index(PhaseReplayComplete))
	assert.Equal(t, PhaseDisconnect, r.phases[len(r.phases)-1])
	assert.Equal(t, []string{"msg-remount"}, r.store.Conversation("conv-remount").Order)
}

func TestFetch_Timeout(t *testing.T) {
	slow := func(ctx context.Context, convID string) ([]timeline.Entity, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	_, err := Fetch(context.Background(), slow, "c", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrSnapshotTimeout)

	fast := func(ctx context.Context, convID string) ([]timeline.Entity, error) {
		return []timeline.Entity{{ID: convID}}, nil
	}
	got, err := Fetch(context.Background(), fast, "c", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "c", got[0].ID)
}
