// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/wingedpig/convo/internal/events"
	"github.com/wingedpig/convo/internal/hydrate"
	"github.com/wingedpig/convo/internal/pending"
	"github.com/wingedpig/convo/internal/registry"
	"github.com/wingedpig/convo/internal/sem"
	"github.com/wingedpig/convo/internal/session"
	"github.com/wingedpig/convo/internal/timeline"
	"github.com/wingedpig/convo/internal/transport"
)

const inboxSize = 256

// convSession is one claimed conversation. Every mutation runs on its loop
// goroutine, fed through inbox; transport callbacks and snapshot results
// only enqueue.
type convSession struct {
	m         *Manager
	convID    string
	selection transport.Selection
	hydrate   bool

	refs int // guarded by m.mu

	transport Transport
	machine   *hydrate.Machine
	limiter   *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan func()
	quit   chan struct{}
	done   chan struct{}

	ready     chan struct{}
	readyOnce sync.Once
	stopOnce  sync.Once
}

func newConvSession(m *Manager, convID string, sel transport.Selection, hydrateOn bool) *convSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &convSession{
		m:         m,
		convID:    convID,
		selection: sel,
		hydrate:   hydrateOn,
		limiter:   rate.NewLimiter(rate.Every(m.reconnectInterval), m.reconnectBurst),
		ctx:       ctx,
		cancel:    cancel,
		inbox:     make(chan func(), inboxSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
	}
	s.machine = hydrate.New(convID, hydrate.Config{
		Project:     s.project,
		Merge:       s.merge,
		OnLifecycle: s.lifecycle,
		Logger:      m.logger,
	})
	url := transport.BuildURL(m.deps.Location, convID, sel)
	s.transport = m.newTransport(url, transport.Callbacks{
		OnOpen:    func() { s.enqueue(s.onOpen) },
		OnMessage: func(raw []byte) { s.enqueue(func() { s.onMessage(raw) }) },
		OnError:   func(err error) { s.enqueue(func() { s.onError(err) }) },
		OnClose:   func(err error) { s.enqueue(func() { s.onClose(err) }) },
		OnStatus:  func(st session.Status) { s.enqueue(func() { s.onStatus(st) }) },
	})
	return s
}

// enqueue hands fn to the loop. It gives up once the session is stopping.
func (s *convSession) enqueue(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.ctx.Done():
	}
}

func (s *convSession) run() {
	defer close(s.done)
	s.connect()
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.quit:
			s.teardown()
			return
		}
	}
}

// stop shuts the loop down and waits for the teardown.
func (s *convSession) stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		close(s.quit)
	})
	<-s.done
}

func (s *convSession) teardown() {
	if err := s.transport.Close(); err != nil {
		s.m.logger.Debug().Err(err).Str("conv_id", s.convID).Msg("transport close failed")
	}
	s.machine.Disconnect()
	s.m.deps.Registry.ResetConversation(s.convID)
	s.m.deps.Sessions.Apply(session.SetStatus{ConvID: s.convID, Status: session.StatusClosed})
	s.m.publish(s.convID, events.EventReleased, nil)
	if s.m.deps.Events != nil {
		s.m.deps.Events.ClearConversation(s.convID)
	}
}

func (s *convSession) connect() {
	if s.ctx.Err() != nil {
		return
	}
	s.machine.Connect(s.hydrate)
	if err := s.transport.Connect(s.ctx); err != nil {
		// OnError already recorded the failure.
		s.scheduleReconnect()
	}
}

func (s *convSession) scheduleReconnect() {
	if !s.m.reconnect || s.ctx.Err() != nil {
		return
	}
	go func() {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
		s.m.logger.Info().Str("conv_id", s.convID).Msg("reconnecting")
		s.enqueue(s.connect)
	}()
}

func (s *convSession) onOpen() {
	s.machine.Trace(hydrate.PhaseWSOpen)
	epoch, ok := s.machine.BeginFetch()
	if !ok {
		s.markReady()
		return
	}
	go func() {
		entities, err := hydrate.Fetch(s.ctx, s.m.fetch, s.convID, s.m.hydrateTimeout)
		s.enqueue(func() { s.resolve(epoch, entities, err) })
	}()
}

func (s *convSession) resolve(epoch uint64, entities []timeline.Entity, err error) {
	if !s.machine.Resolve(epoch, entities, err) {
		return
	}
	if err != nil {
		at := s.m.now()
		s.m.deps.Sessions.Apply(session.HydrationFailed{ConvID: s.convID, Message: err.Error(), At: at})
		s.m.publish(s.convID, events.EventSessionError, map[string]interface{}{
			"stage":   string(session.StageHydrate),
			"message": err.Error(),
		})
	}
	s.markReady()
	s.reconcilePending()
}

func (s *convSession) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *convSession) onMessage(raw []byte) {
	payload := map[string]interface{}{"frame": string(raw)}
	if env, ok := sem.ParseEnvelope(raw); ok {
		payload["event_type"] = env.Event.Type
		payload["event_id"] = env.Event.ID
	}
	s.m.publish(s.convID, events.EventEnvelope, payload)
	s.machine.Frame(raw)
}

func (s *convSession) onError(err error) {
	rec := session.ErrorRecord{
		Stage:       session.StageTransport,
		Message:     err.Error(),
		At:          s.m.now(),
		Recoverable: true,
	}
	s.m.deps.Sessions.Apply(session.ErrorRecorded{ConvID: s.convID, Error: rec})
	s.m.publish(s.convID, events.EventSessionError, map[string]interface{}{
		"stage":   string(rec.Stage),
		"message": rec.Message,
	})
}

// onClose handles a close. A nil error is a requested close.
func (s *convSession) onClose(err error) {
	if err == nil || s.ctx.Err() != nil {
		return
	}
	s.m.logger.Warn().Err(err).Str("conv_id", s.convID).Msg("conversation transport closed")
	s.machine.Disconnect()
	s.m.deps.Registry.ResetConversation(s.convID)
	s.scheduleReconnect()
}

func (s *convSession) onStatus(st session.Status) {
	s.m.deps.Sessions.Apply(session.SetStatus{ConvID: s.convID, Status: st})
	s.m.publish(s.convID, events.EventStatus, map[string]interface{}{"status": string(st)})
	s.reconcilePending()
}

func (s *convSession) lifecycle(l hydrate.Lifecycle) {
	payload := map[string]interface{}{
		"phase": string(l.Phase),
		"epoch": l.Epoch,
	}
	if l.Buffered > 0 {
		payload["buffered"] = l.Buffered
	}
	if l.Error != "" {
		payload["error"] = l.Error
	}
	s.m.publish(s.convID, events.EventLifecycle, payload)
}

// project runs one frame through the registry.
func (s *convSession) project(raw []byte) {
	env, ok := sem.ParseEnvelope(raw)
	if !ok {
		return
	}
	s.m.deps.Registry.Dispatch(env, registry.Context{ConvID: s.convID, Dispatch: s.apply})
	if env.Event.StreamID != "" || env.Event.Seq != nil {
		s.m.deps.Sessions.Apply(session.CursorAdvanced{
			ConvID:   s.convID,
			StreamID: env.Event.StreamID,
			Seq:      env.Event.Seq.String(),
		})
	}
	s.reconcilePending()
}

func (s *convSession) merge(entities []timeline.Entity) {
	s.apply(timeline.HydrateAction{ConvID: s.convID, Entities: entities})
}

// apply is the conversation reducer: timeline actions first, then session
// actions.
func (s *convSession) apply(a registry.Action) {
	ok, err := s.m.deps.Timeline.Apply(a)
	if ok {
		if err != nil {
			// Duplicate tool.start delivery; the entity already exists.
			s.m.logger.Debug().Err(err).Str("conv_id", s.convID).Str("action", a.ActionType()).Msg("timeline action ignored")
			return
		}
		s.publishChange(a)
		return
	}
	if s.m.deps.Sessions.Apply(a) {
		return
	}
	s.m.logger.Debug().Str("conv_id", s.convID).Str("action", a.ActionType()).Msg("unhandled action")
}

func (s *convSession) publishChange(a registry.Action) {
	payload := map[string]interface{}{"action": a.ActionType()}
	switch a := a.(type) {
	case timeline.AddEntityAction:
		payload["entity_id"] = a.Entity.ID
		payload["kind"] = a.Entity.Kind
	case timeline.UpsertEntityAction:
		payload["entity_id"] = a.Entity.ID
		payload["kind"] = a.Entity.Kind
	case timeline.HydrateAction:
		payload["entities"] = len(a.Entities)
	}
	s.m.publish(s.convID, events.EventTimelineChanged, payload)
}

func (s *convSession) reconcilePending() {
	tr := s.m.deps.Pending
	if tr == nil || !tr.Watching(s.convID) {
		return
	}
	changed := tr.ReconcileConversation(s.convID, pending.Snapshot{
		Entities:         s.m.deps.Timeline.Entities(s.convID),
		ConnectionStatus: s.m.deps.Sessions.Status(s.convID),
	})
	for _, window := range changed {
		st := tr.State(window)
		s.m.publish(s.convID, events.EventPendingChanged, map[string]interface{}{
			"window_id":   window,
			"phase":       string(st.Phase),
			"placeholder": pending.ShouldShowPlaceholder(st),
		})
	}
}
