// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package e2e

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/convo/internal/conversation"
	"github.com/wingedpig/convo/internal/devserver"
	"github.com/wingedpig/convo/internal/events"
	"github.com/wingedpig/convo/internal/pending"
	"github.com/wingedpig/convo/internal/sem"
	"github.com/wingedpig/convo/internal/session"
	"github.com/wingedpig/convo/internal/timeline"
	"github.com/wingedpig/convo/internal/transport"
	"github.com/wingedpig/convo/pkg/client"
)

const waitFor = 5 * time.Second

type stack struct {
	srv     *devserver.Server
	m       *conversation.Manager
	bus     *events.MemoryEventBus
	tracker *pending.Tracker

	mu         sync.Mutex
	placeholds []bool
}

func newStack(t *testing.T, profiles ...client.Profile) *stack {
	t.Helper()
	srv := devserver.New(devserver.WithReplyDelay(2*time.Millisecond), devserver.WithProfiles(profiles...))
	ts := httptest.NewServer(srv.Handler())

	loc, err := transport.ParseLocation(ts.URL)
	require.NoError(t, err)

	st := &stack{
		srv:     srv,
		bus:     events.NewMemoryEventBus(events.MemoryBusConfig{HistoryMaxEvents: 1000, HistoryMaxAge: time.Hour}),
		tracker: pending.NewTracker(),
	}
	st.m = conversation.NewManager(conversation.Deps{
		Location: loc,
		Client:   client.New(loc.HTTPBase()),
		Events:   st.bus,
		Pending:  st.tracker,
	})
	_, err = st.bus.Subscribe(events.EventPendingChanged, func(_ context.Context, e events.Event) error {
		st.mu.Lock()
		st.placeholds = append(st.placeholds, e.Payload["placeholder"].(bool))
		st.mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		st.m.Close()
		st.bus.Close()
		srv.Close()
		ts.Close()
	})
	return st
}

func (st *stack) claim(t *testing.T, opts conversation.ClaimOptions) *conversation.Handle {
	t.Helper()
	h, err := st.m.Claim(context.Background(), opts)
	require.NoError(t, err)
	select {
	case <-h.Ready():
	case <-time.After(waitFor):
		t.Fatalf("%s never became ready", opts.ConvID)
	}
	return h
}

func publishUpsert(t *testing.T, srv *devserver.Server, convID, id, role, content string) {
	t.Helper()
	data, err := json.Marshal(sem.TimelineUpsert{Entity: &sem.EntityTransport{
		ID: id, Kind: "message", Props: map[string]any{"role": role, "content": content},
	}})
	require.NoError(t, err)
	require.NoError(t, srv.Publish(convID, sem.Event{Type: sem.TypeTimelineUpsert, ID: id, Data: data}))
}

type row struct {
	Role      string
	Content   string
	Streaming bool
}

func rows(entities []timeline.Entity) []row {
	var out []row
	for _, e := range entities {
		if m, ok := e.AsMessage(); ok {
			out = append(out, row{m.Role, m.Content, m.Streaming})
		}
	}
	return out
}

func TestClaimSendStream(t *testing.T) {
	st := newStack(t)
	h := st.claim(t, conversation.ClaimOptions{ConvID: "c1", Hydrate: true, WindowID: "w1"})
	defer h.Release()

	assert.Equal(t, session.StatusConnected, st.m.Sessions().Status("c1"))
	require.Eventually(t, func() bool { return st.srv.Sockets("c1") == 1 }, waitFor, 5*time.Millisecond)

	require.NoError(t, st.m.SendFromWindow(context.Background(), "w1", "c1", "what is up"))

	require.Eventually(t, func() bool {
		return st.tracker.State("w1").Phase == pending.PhaseAIActive
	}, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		got := rows(st.m.Timeline().Entities("c1"))
		return len(got) == 2 && !got[1].Streaming
	}, waitFor, 5*time.Millisecond)

	want := []row{
		{Role: "user", Content: "what is up"},
		{Role: "assistant", Content: "You said: what is up"},
	}
	if diff := cmp.Diff(want, rows(st.m.Timeline().Entities("c1"))); diff != "" {
		t.Errorf("timeline mismatch (-want +got):\n%s", diff)
	}

	require.Eventually(t, func() bool { return st.m.Sessions().Get("c1").TurnStats != nil }, waitFor, 5*time.Millisecond)
	sess := st.m.Sessions().Get("c1")
	assert.False(t, sess.IsStreaming)
	assert.Equal(t, "echo-1", sess.ModelName)
	assert.Equal(t, int64(3), sess.ConversationInputTokens)
	assert.NotEmpty(t, sess.LastSeq)

	st.mu.Lock()
	placeholds := append([]bool(nil), st.placeholds...)
	st.mu.Unlock()
	assert.Equal(t, []bool{true, false}, placeholds)
}

func TestHydrateThenLiveFrames(t *testing.T) {
	st := newStack(t)
	publishUpsert(t, st.srv, "c1", "old-1", "user", "earlier question")
	publishUpsert(t, st.srv, "c1", "old-2", "assistant", "earlier answer")

	h := st.claim(t, conversation.ClaimOptions{ConvID: "c1", Hydrate: true})
	defer h.Release()

	assert.Equal(t, []string{"old-1", "old-2"}, st.m.Timeline().Conversation("c1").Order)

	publishUpsert(t, st.srv, "c1", "new-1", "user", "follow up")
	require.Eventually(t, func() bool { return st.m.Timeline().Len("c1") == 3 }, waitFor, 5*time.Millisecond)

	hist, err := st.bus.History(events.EventFilter{Conversation: "c1", Types: []string{events.EventLifecycle}})
	require.NoError(t, err)
	var phases []string
	for _, e := range hist {
		phases = append(phases, e.Payload["phase"].(string))
	}
	assert.Contains(t, phases, "hydrate.snapshot.applied")
	assert.Contains(t, phases, "hydrate.complete")
}

func TestSharedConnection(t *testing.T) {
	st := newStack(t)
	h1 := st.claim(t, conversation.ClaimOptions{ConvID: "c1"})
	h2 := st.claim(t, conversation.ClaimOptions{ConvID: "c1"})

	require.Eventually(t, func() bool { return st.srv.Sockets("c1") == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 2, st.m.Refs("c1"))

	h1.Release()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, st.srv.Sockets("c1"))

	h2.Release()
	require.Eventually(t, func() bool { return st.srv.Sockets("c1") == 0 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, session.StatusClosed, st.m.Sessions().Status("c1"))
}

func TestSendWithProfileSelection(t *testing.T) {
	st := newStack(t,
		client.Profile{Slug: "default", IsDefault: true},
		client.Profile{Slug: "agent", Registry: "team"},
	)

	h := st.claim(t, conversation.ClaimOptions{
		ConvID:    "c1",
		WindowID:  "w1",
		Selection: transport.Selection{Profile: "agent", Registry: "team"},
	})
	defer h.Release()
	require.NoError(t, st.m.SendFromWindow(context.Background(), "w1", "c1", "hi"))

	h2 := st.claim(t, conversation.ClaimOptions{
		ConvID:    "c2",
		WindowID:  "w2",
		Selection: transport.Selection{Profile: "ghost"},
	})
	defer h2.Release()
	err := st.m.SendFromWindow(context.Background(), "w2", "c2", "hi")
	var httpErr *client.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 404, httpErr.Status)
	assert.Equal(t, session.StageSend, st.m.Sessions().Get("c2").CurrentError.Stage)
}
