// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package registry maps SEM event types to handlers that turn wire events
// into timeline and session actions.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wingedpig/convo/internal/sem"
)

// Action is a state mutation produced by a handler. The registry does not
// know which store applies it.
type Action interface {
	ActionType() string
}

// Context is passed to every handler.
type Context struct {
	ConvID   string
	Dispatch func(Action)
}

func (c Context) emit(a Action) {
	if c.Dispatch != nil {
		c.Dispatch(a)
	}
}

// Handler projects one event.
type Handler func(ev sem.Event, ctx Context)

// Registry maps event types to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	streams *Coalescer
	logger  zerolog.Logger
	now     func() int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for handler panics and dropped events.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithClock overrides the millisecond clock used for CreatedAt stamps.
func WithClock(now func() int64) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates a registry with no handlers. Call RegisterDefaults to install
// the built-in set.
func New(opts ...Option) *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
		streams:  NewCoalescer(),
		logger:   zerolog.Nop(),
		now:      func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDefault creates a registry with the default handlers installed.
func NewDefault(opts ...Option) *Registry {
	r := New(opts...)
	r.RegisterDefaults()
	return r
}

// Register sets the handler for an event type, replacing only that type.
func (r *Registry) Register(eventType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = h
}

// Unregister removes the handler for an event type.
func (r *Registry) Unregister(eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, eventType)
}

// Clear removes every handler and all open stream state.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.handlers = make(map[string]Handler)
	r.mu.Unlock()
	r.streams.Reset()
}

// Has reports whether a handler is registered for eventType.
func (r *Registry) Has(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[eventType]
	return ok
}

// Types lists registered event types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Streams exposes the coalescer, mainly for tests and teardown.
func (r *Registry) Streams() *Coalescer {
	return r.streams
}

// ResetConversation drops open streams of one conversation. Used when a
// conversation's transport is torn down.
func (r *Registry) ResetConversation(convID string) {
	r.streams.ResetConversation(convID)
}

// Dispatch routes an envelope to its handler. Envelopes without the sem
// marker and unregistered types are ignored. It reports whether a handler ran.
func (r *Registry) Dispatch(env sem.Envelope, ctx Context) bool {
	if !env.SEM {
		return false
	}
	r.mu.RLock()
	h, ok := r.handlers[env.Event.Type]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.invoke(h, env.Event, ctx)
}

// DispatchFrame parses a raw frame and dispatches it.
func (r *Registry) DispatchFrame(raw []byte, ctx Context) bool {
	env, ok := sem.ParseEnvelope(raw)
	if !ok {
		return false
	}
	return r.Dispatch(env, ctx)
}

func (r *Registry) invoke(h Handler, ev sem.Event, ctx Context) (ran bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("type", ev.Type).
				Str("id", ev.ID).
				Str("conv_id", ctx.ConvID).
				Interface("panic", rec).
				Msg("sem handler panic")
			ran = false
		}
	}()
	h(ev, ctx)
	return true
}
