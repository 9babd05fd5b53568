// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package pending

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/convo/internal/session"
	"github.com/wingedpig/convo/internal/timeline"
)

func msg(id, role string) timeline.Entity {
	return timeline.Entity{ID: id, Kind: timeline.KindMessage, Props: timeline.Props{"role": role}}
}

func snap(status session.Status, es ...timeline.Entity) Snapshot {
	return Snapshot{Entities: es, ConnectionStatus: status}
}

func TestPlaceholderLifecycle(t *testing.T) {
	history := []timeline.Entity{msg("old-u", "user"), msg("old-a", "assistant")}

	s := Begin(len(history))
	assert.False(t, ShouldShowPlaceholder(s))
	assert.Equal(t, "submit", s.Reason)

	// Nothing new yet.
	s = Advance(s, snap(session.StatusConnected, history...))
	assert.Equal(t, PhaseWaitingForUserAppend, s.Phase)

	withUser := append(append([]timeline.Entity{}, history...), msg("u1", " User "))
	s = Advance(s, snap(session.StatusConnected, withUser...))
	require.Equal(t, PhaseWaitingForAISignal, s.Phase)
	assert.Equal(t, 2, s.UserEntityIndex)
	assert.True(t, ShouldShowPlaceholder(s))

	// A second user message (an echo) keeps waiting.
	withEcho := append(append([]timeline.Entity{}, withUser...), msg("u1-echo", "user"))
	s = Advance(s, snap(session.StatusConnected, withEcho...))
	assert.True(t, ShouldShowPlaceholder(s))

	withAI := append(append([]timeline.Entity{}, withEcho...), timeline.Entity{ID: "tc", Kind: timeline.KindToolCall})
	s = Advance(s, snap(session.StatusConnected, withAI...))
	assert.Equal(t, PhaseAIActive, s.Phase)
	assert.Equal(t, "ai-signal:tool_call", s.Reason)
	assert.False(t, ShouldShowPlaceholder(s))

	// ai_active is terminal until the next Begin.
	assert.Equal(t, s, Advance(s, snap(session.StatusError)))
}

func TestAssistantMessageIsAISignal(t *testing.T) {
	s := Begin(0)
	s = Advance(s, snap(session.StatusConnected, msg("u", "user"), msg("a", "assistant")))
	assert.Equal(t, PhaseWaitingForAISignal, s.Phase)
	s = Advance(s, snap(session.StatusConnected, msg("u", "user"), msg("a", "assistant")))
	assert.Equal(t, PhaseAIActive, s.Phase)
	assert.Equal(t, "ai-signal:message", s.Reason)
}

func TestUserMessageBeforeBaselineIsIgnored(t *testing.T) {
	s := Begin(1)
	s = Advance(s, snap(session.StatusConnected, msg("u0", "user")))
	assert.Equal(t, PhaseWaitingForUserAppend, s.Phase)
}

func TestConnectionErrorAndAcknowledge(t *testing.T) {
	s := Begin(0)
	s = Advance(s, snap(session.StatusError))
	assert.Equal(t, PhaseError, s.Phase)
	assert.Equal(t, "connection-error", s.Reason)

	s = Advance(s, snap(session.StatusConnected))
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Equal(t, "error-ack", s.Reason)

	idle := Idle("")
	assert.Equal(t, idle, Advance(idle, snap(session.StatusError)))
}

func TestBeginClampsNegativeBaseline(t *testing.T) {
	assert.Equal(t, 0, Begin(-3).BaselineIndex)
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	tr.Begin("w1", "c1", 0)
	tr.Begin("w2", "c1", 0)
	tr.Begin("w3", "c2", 0)

	changed := tr.ReconcileConversation("c1", snap(session.StatusConnected, msg("u", "user")))
	assert.Equal(t, []string{"w1", "w2"}, changed)
	assert.Empty(t, tr.ReconcileConversation("c1", snap(session.StatusConnected, msg("u", "user"))))
	assert.True(t, tr.Watching("c2"))
	assert.False(t, tr.Watching("c3"))
	assert.True(t, tr.ShouldShowPlaceholder("w1"))
	assert.True(t, tr.ShouldShowPlaceholder("w2"))
	assert.False(t, tr.ShouldShowPlaceholder("w3"))

	st := tr.Reconcile("w1", "c1", snap(session.StatusConnected, msg("u", "user"), timeline.Entity{ID: "l", Kind: timeline.KindLog}))
	assert.Equal(t, PhaseAIActive, st.Phase)
	assert.True(t, tr.ShouldShowPlaceholder("w2"))

	// Repointing a window at another conversation resets it.
	tr.Reconcile("w2", "c9", snap(session.StatusConnected))
	assert.Equal(t, PhaseIdle, tr.State("w2").Phase)

	tr.Fail("w3", "c2", "send-failed")
	assert.Equal(t, PhaseError, tr.State("w3").Phase)

	tr.Forget("w1")
	assert.Equal(t, []string{"w2", "w3"}, tr.Windows())
	assert.Equal(t, PhaseIdle, tr.State("missing").Phase)
	assert.Equal(t, PhaseIdle, tr.Begin(" ", "c1", 0).Phase)
}

func TestPlaceholderFromTimeline(t *testing.T) {
	base := 1
	es := []timeline.Entity{msg("a0", "assistant"), msg("u", "user")}
	assert.True(t, PlaceholderFromTimeline(es, session.StatusConnected, &base))
	assert.False(t, PlaceholderFromTimeline(es, session.StatusConnected, nil))
	assert.False(t, PlaceholderFromTimeline(es, session.StatusError, &base))

	es = append(es, msg("a1", "assistant"))
	assert.False(t, PlaceholderFromTimeline(es, session.StatusConnected, &base))
}
