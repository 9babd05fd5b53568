// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package conversation keeps exactly one live transport per conversation,
// however many consumers claim it, and projects the conversation's stream
// into the timeline and session stores.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wingedpig/convo/internal/events"
	"github.com/wingedpig/convo/internal/hydrate"
	"github.com/wingedpig/convo/internal/pending"
	"github.com/wingedpig/convo/internal/registry"
	"github.com/wingedpig/convo/internal/sem"
	"github.com/wingedpig/convo/internal/session"
	"github.com/wingedpig/convo/internal/timeline"
	"github.com/wingedpig/convo/internal/transport"
	"github.com/wingedpig/convo/pkg/client"
)

var (
	// ErrManagerClosed is returned by Claim after Close.
	ErrManagerClosed = errors.New("conversation manager is closed")

	// ErrNoConversation is returned for a blank conversation id.
	ErrNoConversation = errors.New("conversation id is required")
)

// Transport is one live connection. *transport.Client satisfies it.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
}

// TransportFactory builds the transport of a conversation.
type TransportFactory func(url string, cb transport.Callbacks) Transport

// Deps are the collaborators a Manager projects into. Events and Pending
// are optional.
type Deps struct {
	Location transport.Location
	Client   *client.Client
	Registry *registry.Registry
	Timeline *timeline.Store
	Sessions *session.Store
	Events   events.EventBus
	Pending  *pending.Tracker
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithTransportFactory replaces the WebSocket transport.
func WithTransportFactory(f TransportFactory) Option {
	return func(m *Manager) {
		m.newTransport = f
	}
}

// WithFetcher replaces the HTTP snapshot fetch.
func WithFetcher(f hydrate.Fetcher) Option {
	return func(m *Manager) {
		m.fetch = f
	}
}

// WithHydrateTimeout bounds each snapshot fetch. Zero means no deadline.
func WithHydrateTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.hydrateTimeout = d
	}
}

// WithReconnect re-dials a conversation whose transport closed without a
// release, at most burst times in a row and then once per interval.
func WithReconnect(interval time.Duration, burst int) Option {
	return func(m *Manager) {
		m.reconnect = true
		m.reconnectInterval = interval
		m.reconnectBurst = max(1, burst)
	}
}

// WithSelection sets the profile selection used by Send for conversations
// that are not claimed.
func WithSelection(sel transport.Selection) Option {
	return func(m *Manager) {
		m.selection = sel
	}
}

// WithClock overrides the millisecond clock used for error records.
func WithClock(now func() int64) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager is the reference-counted conversation connection manager.
type Manager struct {
	deps   Deps
	logger zerolog.Logger
	now    func() int64

	newTransport      TransportFactory
	fetch             hydrate.Fetcher
	hydrateTimeout    time.Duration
	reconnect         bool
	reconnectInterval time.Duration
	reconnectBurst    int
	selection         transport.Selection

	mu       sync.Mutex
	sessions map[string]*convSession
	stopping map[string]*convSession // released, teardown still running
	closed   bool
}

// NewManager creates a manager. Registry, Timeline and Sessions default to
// fresh instances when nil.
func NewManager(deps Deps, opts ...Option) *Manager {
	if deps.Timeline == nil {
		deps.Timeline = timeline.NewStore()
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewStore()
	}
	m := &Manager{
		deps:              deps,
		logger:            zerolog.Nop(),
		now:               func() int64 { return time.Now().UnixMilli() },
		hydrateTimeout:    10 * time.Second,
		reconnectInterval: 2 * time.Second,
		reconnectBurst:    1,
		sessions:          make(map[string]*convSession),
		stopping:          make(map[string]*convSession),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.deps.Registry == nil {
		m.deps.Registry = registry.NewDefault(registry.WithLogger(m.logger))
	}
	if m.newTransport == nil {
		m.newTransport = func(url string, cb transport.Callbacks) Transport {
			return transport.NewClient(url, cb, transport.WithLogger(m.logger))
		}
	}
	if m.fetch == nil {
		m.fetch = m.fetchSnapshot
	}
	return m
}

// Timeline returns the timeline store the manager projects into.
func (m *Manager) Timeline() *timeline.Store { return m.deps.Timeline }

// Sessions returns the session store.
func (m *Manager) Sessions() *session.Store { return m.deps.Sessions }

// Registry returns the event registry.
func (m *Manager) Registry() *registry.Registry { return m.deps.Registry }

// ClaimOptions describe one consumer's interest in a conversation.
type ClaimOptions struct {
	ConvID    string
	Selection transport.Selection

	// Hydrate fetches the server snapshot on every (re)connect and buffers
	// live frames until it is merged.
	Hydrate bool

	// WindowID names the consumer for pending-turn tracking. Optional.
	WindowID string
}

// Handle is one claim. Release it when the consumer goes away.
type Handle struct {
	m        *Manager
	s        *convSession
	windowID string
	once     sync.Once
}

// ConvID returns the claimed conversation.
func (h *Handle) ConvID() string { return h.s.convID }

// Ready is closed once the conversation's first connection is open and,
// when hydrating, the snapshot has been merged and the buffer replayed.
func (h *Handle) Ready() <-chan struct{} { return h.s.ready }

// Release drops the claim. The last release closes the transport. Calling
// Release more than once is a no-op.
func (h *Handle) Release() {
	h.once.Do(func() {
		if h.windowID != "" && h.m.deps.Pending != nil {
			h.m.deps.Pending.Forget(h.windowID)
		}
		h.m.release(h.s)
	})
}

// Claim adds a reference to a conversation, connecting it on the first
// claim. Connection failures do not fail the claim; they surface as session
// status and errors.
func (m *Manager) Claim(ctx context.Context, opts ClaimOptions) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	convID := strings.TrimSpace(opts.ConvID)
	if convID == "" {
		return nil, ErrNoConversation
	}

	m.mu.Lock()
	// A released session still owns the conversation's shared state until
	// its teardown finishes.
	for {
		if m.closed {
			m.mu.Unlock()
			return nil, ErrManagerClosed
		}
		old, ok := m.stopping[convID]
		if !ok {
			break
		}
		m.mu.Unlock()
		select {
		case <-old.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		m.mu.Lock()
		if m.stopping[convID] == old {
			delete(m.stopping, convID)
		}
	}
	s, ok := m.sessions[convID]
	if ok {
		s.refs++
		refs := s.refs
		m.mu.Unlock()
		m.logger.Debug().Str("conv_id", convID).Int("refs", refs).Msg("conversation claimed")
	} else {
		s = newConvSession(m, convID, opts.Selection, opts.Hydrate)
		s.refs = 1
		m.sessions[convID] = s
		m.mu.Unlock()
		m.logger.Info().Str("conv_id", convID).Bool("hydrate", opts.Hydrate).Msg("opening conversation")
		go s.run()
	}
	m.publish(convID, events.EventClaimed, map[string]interface{}{"window_id": opts.WindowID})

	return &Handle{m: m, s: s, windowID: strings.TrimSpace(opts.WindowID)}, nil
}

func (m *Manager) release(s *convSession) {
	m.mu.Lock()
	s.refs--
	if s.refs > 0 {
		m.mu.Unlock()
		return
	}
	if m.sessions[s.convID] == s {
		delete(m.sessions, s.convID)
	}
	m.stopping[s.convID] = s
	m.mu.Unlock()

	m.logger.Info().Str("conv_id", s.convID).Msg("closing conversation")
	s.stop()

	m.mu.Lock()
	if m.stopping[s.convID] == s {
		delete(m.stopping, s.convID)
	}
	m.mu.Unlock()
}

// ActiveConversationIDs lists claimed conversations, sorted.
func (m *Manager) ActiveConversationIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Refs returns the number of claims on a conversation.
func (m *Manager) Refs(convID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[convID]; ok {
		return s.refs
	}
	return 0
}

// Send submits a prompt to a conversation. A failed request is recorded
// as a send-stage session error and returned.
func (m *Manager) Send(ctx context.Context, convID, prompt string) error {
	return m.SendFromWindow(ctx, "", convID, prompt)
}

// SendFromWindow is Send that also starts a pending AI turn for windowID.
func (m *Manager) SendFromWindow(ctx context.Context, windowID, convID, prompt string) error {
	if m.deps.Client == nil {
		return fmt.Errorf("send %s: no chat client configured", convID)
	}

	sel := m.selection
	m.mu.Lock()
	if s, ok := m.sessions[convID]; ok {
		sel = s.selection
	}
	m.mu.Unlock()

	if windowID != "" && m.deps.Pending != nil {
		m.deps.Pending.Begin(windowID, convID, m.deps.Timeline.Len(convID))
	}

	err := m.deps.Client.SubmitPrompt(ctx, client.PromptRequest{
		Prompt:   prompt,
		ConvID:   convID,
		Profile:  sel.Profile,
		Registry: sel.Registry,
	})
	if err == nil {
		return nil
	}

	rec := session.ErrorRecord{
		Stage:       session.StageSend,
		Message:     err.Error(),
		At:          m.now(),
		Recoverable: true,
	}
	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) {
		rec.Status = httpErr.Status
	}
	m.deps.Sessions.Apply(session.ErrorRecorded{ConvID: convID, Error: rec})
	m.publish(convID, events.EventSessionError, map[string]interface{}{
		"stage":   string(rec.Stage),
		"message": rec.Message,
		"status":  rec.Status,
	})
	if windowID != "" && m.deps.Pending != nil {
		m.deps.Pending.Fail(windowID, convID, "send-failed")
	}
	m.logger.Warn().Err(err).Str("conv_id", convID).Msg("prompt submit failed")
	return fmt.Errorf("send %s: %w", convID, err)
}

// Close releases every conversation. Later claims fail.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*convSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*convSession)
	m.mu.Unlock()

	for _, s := range sessions {
		s.stop()
	}
	return nil
}

// fetchSnapshot is the default fetcher: GET /api/timeline decoded by the
// SEM codec.
func (m *Manager) fetchSnapshot(ctx context.Context, convID string) ([]timeline.Entity, error) {
	if m.deps.Client == nil {
		return nil, fmt.Errorf("fetch snapshot %s: no chat client configured", convID)
	}
	raw, err := m.deps.Client.FetchTimelineSnapshot(ctx, convID)
	if err != nil {
		return nil, err
	}
	snap, err := sem.Decode[sem.Snapshot](raw)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot %s: %w", convID, err)
	}
	return snap.TimelineEntities(), nil
}

func (m *Manager) publish(convID, eventType string, payload map[string]interface{}) {
	if m.deps.Events == nil {
		return
	}
	err := m.deps.Events.Publish(context.Background(), events.Event{
		Type:         eventType,
		Conversation: convID,
		Payload:      payload,
	})
	if err != nil && !errors.Is(err, events.ErrBusClosed) {
		m.logger.Debug().Err(err).Str("type", eventType).Msg("publish failed")
	}
}
