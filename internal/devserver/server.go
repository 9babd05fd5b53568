// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package devserver is an in-memory SEM chat backend. It serves the
// WebSocket stream, the timeline snapshot, the prompt endpoint and the
// profile API, and answers every prompt with a streamed echo.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/wingedpig/convo/internal/devserver/middleware"
	"github.com/wingedpig/convo/internal/events"
	"github.com/wingedpig/convo/internal/sem"
	"github.com/wingedpig/convo/pkg/client"
)

// ErrServerClosed is returned by Publish after Close.
var ErrServerClosed = errors.New("devserver closed")

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithClock overrides the wall clock used for entity timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithReplyDelay sets the pause between streamed reply chunks.
func WithReplyDelay(d time.Duration) Option {
	return func(s *Server) {
		s.replyDelay = d
	}
}

// WithModel sets the model name reported in llm metadata.
func WithModel(name string) Option {
	return func(s *Server) {
		s.model = name
	}
}

// WithProfiles seeds the profile registry. Profiles without a registry go
// to DefaultRegistry.
func WithProfiles(profiles ...client.Profile) Option {
	return func(s *Server) {
		s.seed = append(s.seed, profiles...)
	}
}

// conversation is the server-side materialized state of one conversation.
type conversation struct {
	streamID string
	seq      int64
	version  int64
	order    []string
	entities map[string]sem.EntityTransport
}

// Server is the development backend.
type Server struct {
	logger     zerolog.Logger
	now        func() time.Time
	replyDelay time.Duration
	model      string
	seed       []client.Profile

	bus      *events.MemoryEventBus
	profiles *profileStore
	router   *mux.Router

	ctx     context.Context
	cancel  context.CancelFunc
	replies sync.WaitGroup

	mu     sync.Mutex
	convs  map[string]*conversation
	server *http.Server

	// Separate from mu: Publish holds mu while a slow socket drains.
	socketsMu sync.Mutex
	sockets   map[string]int
}

// New creates a server with a "default" profile in DefaultRegistry unless
// profiles are seeded.
func New(opts ...Option) *Server {
	s := &Server{
		logger:     zerolog.Nop(),
		now:        time.Now,
		replyDelay: 20 * time.Millisecond,
		model:      "echo-1",
		convs:      make(map[string]*conversation),
		sockets:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.bus = events.NewMemoryEventBus(events.MemoryBusConfig{
		HistoryMaxEvents: 10000,
		HistoryMaxAge:    time.Hour,
		Logger:           s.logger,
	})
	if len(s.seed) == 0 {
		s.seed = []client.Profile{{Slug: "default", DisplayName: "Default", IsDefault: true}}
	}
	s.profiles = newProfileStore(s.seed)
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.CORS)

	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
	r.HandleFunc("/chat", s.handleChat).Methods("POST", "OPTIONS")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/timeline", s.handleTimeline).Methods("GET")
	api.HandleFunc("/events", s.handleEventHistory).Methods("GET")

	profiles := api.PathPrefix("/chat").Subrouter()
	profiles.HandleFunc("/profiles", s.listProfiles).Methods("GET")
	profiles.HandleFunc("/profiles", s.createProfile).Methods("POST")
	profiles.HandleFunc("/profiles/{slug}", s.getProfile).Methods("GET")
	profiles.HandleFunc("/profiles/{slug}", s.updateProfile).Methods("PATCH")
	profiles.HandleFunc("/profiles/{slug}", s.deleteProfile).Methods("DELETE")
	profiles.HandleFunc("/profiles/{slug}/default", s.setDefaultProfile).Methods("POST")
	profiles.HandleFunc("/profile", s.currentProfile).Methods("GET")
	profiles.HandleFunc("/profile", s.setCurrentProfile).Methods("POST")

	return r
}

// Handler returns the HTTP handler, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info().Str("addr", addr).Msg("dev server listening")
	return srv.ListenAndServe()
}

// Shutdown stops the HTTP listener, then closes the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	var err error
	if srv != nil {
		s.logger.Info().Msg("shutting down dev server")
		shutdownCtx := ctx
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
		}
		err = srv.Shutdown(shutdownCtx)
	}
	s.Close()
	return err
}

// Close stops in-flight replies and the event bus. Open sockets end once
// their subscription is gone.
func (s *Server) Close() {
	s.cancel()
	s.replies.Wait()
	s.bus.Close()
}

func (s *Server) convLocked(convID string) *conversation {
	c, ok := s.convs[convID]
	if !ok {
		c = &conversation{
			streamID: "stream-" + uuid.NewString(),
			entities: make(map[string]sem.EntityTransport),
		}
		s.convs[convID] = c
	}
	return c
}

// Publish broadcasts an event to every socket of the conversation. Events
// without a seq get the conversation's next seq and stream id.
// timeline.upsert and llm.final events are also materialized into the
// snapshot.
func (s *Server) Publish(convID string, ev sem.Event) error {
	convID = strings.TrimSpace(convID)
	if convID == "" {
		return errors.New("publish: conversation id is required")
	}
	if s.ctx.Err() != nil {
		return ErrServerClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.convLocked(convID)
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Seq == nil {
		c.seq++
		ev.Seq = sem.NewSeq(c.seq)
		if ev.StreamID == "" {
			ev.StreamID = c.streamID
		}
	}
	s.materializeLocked(c, ev)

	raw, err := sem.Frame(ev)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	// Publishing under s.mu keeps socket order equal to seq order. Sockets
	// apply backpressure here instead of dropping frames.
	err = s.bus.Publish(context.Background(), events.Event{
		Type:         events.EventEnvelope,
		Conversation: convID,
		Payload: map[string]interface{}{
			"frame":      string(raw),
			"event_type": ev.Type,
			"event_id":   ev.ID,
		},
	})
	if errors.Is(err, events.ErrBusClosed) {
		return ErrServerClosed
	}
	return err
}

func (s *Server) materializeLocked(c *conversation, ev sem.Event) {
	nowMs := s.now().UnixMilli()
	switch ev.Type {
	case sem.TypeTimelineUpsert:
		data, err := sem.Decode[sem.TimelineUpsert](ev.Data)
		if err != nil || data.Entity == nil || data.Entity.ID == "" {
			return
		}
		s.storeLocked(c, *data.Entity, nowMs)
	case sem.TypeLLMFinal:
		data, err := sem.Decode[sem.LLMFinal](ev.Data)
		if err != nil || data.Text == "" {
			return
		}
		s.storeLocked(c, sem.EntityTransport{
			ID:   ev.ID,
			Kind: "message",
			Props: map[string]any{
				"role":      "assistant",
				"content":   data.Text,
				"streaming": false,
			},
		}, nowMs)
	}
}

func (s *Server) storeLocked(c *conversation, e sem.EntityTransport, nowMs int64) {
	c.version++
	if prev, ok := c.entities[e.ID]; ok {
		e.CreatedAtMs = prev.CreatedAtMs
		e.UpdatedAtMs = sem.Int64(nowMs)
	} else {
		c.order = append(c.order, e.ID)
		if e.CreatedAtMs == 0 {
			e.CreatedAtMs = sem.Int64(nowMs)
		}
	}
	e.Version = sem.Int64(c.version)
	c.entities[e.ID] = e
}

// Snapshot returns the materialized timeline of a conversation.
func (s *Server) Snapshot(convID string) sem.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := sem.Snapshot{
		ConvID:       convID,
		ServerTimeMs: sem.Int64(s.now().UnixMilli()),
		Entities:     []sem.EntityTransport{},
	}
	c, ok := s.convs[convID]
	if !ok {
		return snap
	}
	snap.Version = sem.Int64(c.version)
	for _, id := range c.order {
		snap.Entities = append(snap.Entities, c.entities[id])
	}
	return snap
}

// Sockets returns the number of open WebSockets of a conversation.
func (s *Server) Sockets(convID string) int {
	s.socketsMu.Lock()
	defer s.socketsMu.Unlock()
	return s.sockets[convID]
}

func (s *Server) addSocket(convID string, delta int) {
	s.socketsMu.Lock()
	defer s.socketsMu.Unlock()
	s.sockets[convID] += delta
	if s.sockets[convID] <= 0 {
		delete(s.sockets, convID)
	}
}
