// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"bytes"
	"encoding/json"

	"github.com/wingedpig/convo/internal/sem"
	"github.com/wingedpig/convo/internal/session"
	"github.com/wingedpig/convo/internal/timeline"
)

// RegisterDefaults installs the built-in handlers. It is additive: handlers
// registered for other event types are left alone.
func (r *Registry) RegisterDefaults() {
	r.Register(sem.TypeTimelineUpsert, r.handleTimelineUpsert)

	r.Register(sem.TypeLLMStart, r.handleLLMStart)
	r.Register(sem.TypeLLMDelta, r.streamDelta(StreamLLM))
	r.Register(sem.TypeLLMFinal, r.handleLLMFinal)

	r.Register(sem.TypeLLMThinkingStart, r.handleThinkingStart)
	r.Register(sem.TypeLLMThinkingDelta, r.streamDelta(StreamThinking))
	r.Register(sem.TypeLLMThinkingFinal, r.handleThinkingFinal)
	r.Register(sem.TypeLLMThinkingSummary, r.handleThinkingSummary)

	r.Register(sem.TypeToolStart, r.handleToolStart)
	r.Register(sem.TypeToolDelta, r.handleToolDelta)
	r.Register(sem.TypeToolResult, r.handleToolResult)
	r.Register(sem.TypeToolDone, r.handleToolDone)

	r.Register(sem.TypeLog, r.handleLog)
	r.Register(sem.TypeAgentMode, r.handleAgentMode)
	r.Register(sem.TypeDebuggerPause, r.handleDebuggerPause)
}

func (r *Registry) upsert(ctx Context, e timeline.Entity) {
	ctx.emit(timeline.UpsertEntityAction{ConvID: ctx.ConvID, Entity: e})
}

func (r *Registry) add(ctx Context, e timeline.Entity) {
	ctx.emit(timeline.AddEntityAction{ConvID: ctx.ConvID, Entity: e})
}

// entity stamps CreatedAt with the local clock at handling time.
func (r *Registry) entity(id, kind string, props timeline.Props) timeline.Entity {
	return timeline.Entity{ID: id, Kind: kind, CreatedAt: r.now(), Props: props}
}

func (r *Registry) decodeFailed(ev sem.Event, ctx Context, err error) {
	r.logger.Debug().Err(err).Str("type", ev.Type).Str("id", ev.ID).Str("conv_id", ctx.ConvID).Msg("sem payload dropped")
}

// payload decodes ev.Data into T. An undecodable payload is logged and the
// handler carries on with the zero value; an absent one is not logged.
func payload[T any](r *Registry, ev sem.Event, ctx Context) T {
	data, err := sem.Decode[T](ev.Data)
	if err != nil && !absent(ev.Data) {
		r.decodeFailed(ev, ctx, err)
	}
	return data
}

// metadata decodes ev.Metadata, logging it when present but undecodable.
func (r *Registry) metadata(ev sem.Event, ctx Context) (sem.Metadata, bool) {
	md, err := ev.DecodeMetadata()
	if err != nil {
		if !absent(ev.Metadata) {
			r.decodeFailed(ev, ctx, err)
		}
		return sem.Metadata{}, false
	}
	return md, true
}

func absent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func (r *Registry) handleTimelineUpsert(ev sem.Event, ctx Context) {
	data, err := sem.Decode[sem.TimelineUpsert](ev.Data)
	if err != nil {
		r.decodeFailed(ev, ctx, err)
		return
	}
	if data.Entity == nil {
		return
	}
	e, ok := sem.EntityFromTransport(*data.Entity, int64(data.Version))
	if !ok {
		return
	}
	r.upsert(ctx, e)
}

func (r *Registry) writeStream(ev sem.Event, ctx Context, em Emission) {
	if !em.Write {
		return
	}
	props := timeline.MessageProps{Role: em.Role, Content: em.Content, Streaming: em.Streaming}.Props()
	r.upsert(ctx, r.entity(ev.ID, timeline.KindMessage, props))
}

func (r *Registry) handleLLMStart(ev sem.Event, ctx Context) {
	data := payload[sem.LLMStart](r, ev, ctx)
	r.streams.SetRole(ctx.ConvID, StreamLLM, ev.ID, data.Role)

	md, _ := r.metadata(ev, ctx)
	ctx.emit(session.StreamStarted{ConvID: ctx.ConvID, Model: md.Model, At: r.now()})
}

func (r *Registry) streamDelta(kind StreamKind) Handler {
	return func(ev sem.Event, ctx Context) {
		data := payload[sem.LLMDelta](r, ev, ctx)
		r.writeStream(ev, ctx, r.streams.Text(ctx.ConvID, kind, ev.ID, data.Cumulative, true))

		if kind != StreamLLM {
			return
		}
		if md, ok := r.metadata(ev, ctx); ok && md.Usage != nil {
			ctx.emit(session.UsageUpdated{ConvID: ctx.ConvID, Usage: sessionUsage(md.Usage)})
		}
	}
}

func (r *Registry) handleLLMFinal(ev sem.Event, ctx Context) {
	data := payload[sem.LLMFinal](r, ev, ctx)
	r.writeStream(ev, ctx, r.streams.Text(ctx.ConvID, StreamLLM, ev.ID, data.Text, false))

	finished := session.StreamFinished{ConvID: ctx.ConvID}
	if md, ok := r.metadata(ev, ctx); ok {
		finished.Model = md.Model
		finished.DurationMs = int64(md.DurationMs)
		if md.Usage != nil {
			u := sessionUsage(md.Usage)
			finished.Usage = &u
		}
	}
	ctx.emit(finished)
}

func (r *Registry) handleThinkingStart(ev sem.Event, ctx Context) {
	data := payload[sem.LLMStart](r, ev, ctx)
	r.streams.SetRole(ctx.ConvID, StreamThinking, ev.ID, data.Role)
}

func (r *Registry) handleThinkingFinal(ev sem.Event, ctx Context) {
	r.writeStream(ev, ctx, r.streams.Close(ctx.ConvID, StreamThinking, ev.ID))
}

func (r *Registry) handleThinkingSummary(ev sem.Event, ctx Context) {
	data := payload[sem.LLMFinal](r, ev, ctx)
	r.writeStream(ev, ctx, r.streams.Text(ctx.ConvID, StreamThinking, ev.ID, data.Text, false))
}

// handleToolStart appends: tool-call ids are fresh per call.
func (r *Registry) handleToolStart(ev sem.Event, ctx Context) {
	data := payload[sem.ToolStart](r, ev, ctx)
	props := timeline.ToolCallProps{Name: data.Name, Input: data.Input}.Props()
	r.add(ctx, r.entity(ev.ID, timeline.KindToolCall, props))
}

func (r *Registry) handleToolDelta(ev sem.Event, ctx Context) {
	data := payload[sem.ToolDelta](r, ev, ctx)
	props := make(timeline.Props, len(data.Patch))
	for k, v := range data.Patch {
		props[k] = v
	}
	r.upsert(ctx, r.entity(ev.ID, timeline.KindToolCall, props))
}

// ToolResultID returns the entity id of a tool result. A call may emit one
// custom-kind result and one generic result without collision.
func ToolResultID(eventID, customKind string) string {
	if customKind != "" {
		return eventID + ":custom"
	}
	return eventID + ":result"
}

func (r *Registry) handleToolResult(ev sem.Event, ctx Context) {
	data := payload[sem.ToolResult](r, ev, ctx)
	props := timeline.ToolResultProps{Result: data.Result, CustomKind: data.CustomKind}.Props()
	r.upsert(ctx, r.entity(ToolResultID(ev.ID, data.CustomKind), timeline.KindToolResult, props))
}

func (r *Registry) handleToolDone(ev sem.Event, ctx Context) {
	r.upsert(ctx, r.entity(ev.ID, timeline.KindToolCall, timeline.Props{"done": true}))
}

func (r *Registry) handleLog(ev sem.Event, ctx Context) {
	data := payload[sem.Log](r, ev, ctx)
	props := timeline.LogProps{Level: data.Level, Message: data.Message, Fields: data.Fields}.Props()
	r.add(ctx, r.entity(ev.ID, timeline.KindLog, props))
}

func (r *Registry) handleAgentMode(ev sem.Event, ctx Context) {
	data := payload[sem.AgentMode](r, ev, ctx)
	props := timeline.AgentModeProps{Title: data.Title, Data: data.Data}.Props()
	r.upsert(ctx, r.entity(ev.ID, timeline.KindAgentMode, props))
}

func (r *Registry) handleDebuggerPause(ev sem.Event, ctx Context) {
	data := payload[sem.DebuggerPause](r, ev, ctx)
	props := timeline.DebuggerPauseProps{
		PauseID:    data.PauseID,
		Phase:      data.Phase,
		Summary:    data.Summary,
		DeadlineMs: string(data.DeadlineMs),
		Extra:      data.Extra,
	}.Props()
	r.upsert(ctx, r.entity(ev.ID, timeline.KindDebuggerPause, props))
}

func sessionUsage(u *sem.Usage) session.Usage {
	return session.Usage{
		InputTokens:              int64(u.InputTokens),
		OutputTokens:             int64(u.OutputTokens),
		CachedTokens:             int64(u.CachedTokens),
		CacheCreationInputTokens: int64(u.CacheCreationInputTokens),
		CacheReadInputTokens:     int64(u.CacheReadInputTokens),
	}
}
