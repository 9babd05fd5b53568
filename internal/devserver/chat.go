// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package devserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wingedpig/convo/internal/sem"
	"github.com/wingedpig/convo/pkg/client"
)

// PromptAccepted is the body of a successful POST /chat.
type PromptAccepted struct {
	ConvID string `json:"conv_id"`
	TurnID string `json:"turn_id"`
}

// handleChat records the prompt as a user message and streams the reply in
// the background.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		return
	}

	var req client.PromptRequest
	if err := readJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.ConvID = strings.TrimSpace(req.ConvID)
	if req.ConvID == "" {
		WriteError(w, http.StatusBadRequest, "conv_id is required")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		WriteError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if req.Profile != "" {
		if _, ok := s.profiles.get(req.Registry, req.Profile); !ok {
			WriteError(w, http.StatusNotFound, "profile not found: "+req.Profile)
			return
		}
	}

	turnID := uuid.NewString()
	if err := s.publishUserMessage(req.ConvID, turnID, req.Prompt); err != nil {
		WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	s.replies.Add(1)
	go func() {
		defer s.replies.Done()
		s.streamReply(req.ConvID, turnID, req.Prompt)
	}()

	s.logger.Info().Str("conv_id", req.ConvID).Str("turn_id", turnID).Str("profile", req.Profile).Msg("prompt accepted")
	WriteJSON(w, http.StatusAccepted, PromptAccepted{ConvID: req.ConvID, TurnID: turnID})
}

func (s *Server) publishUserMessage(convID, turnID, prompt string) error {
	data, err := json.Marshal(sem.TimelineUpsert{
		ConvID: convID,
		Entity: &sem.EntityTransport{
			ID:   "user-" + turnID,
			Kind: "message",
			Props: map[string]any{
				"role":    "user",
				"content": prompt,
			},
		},
	})
	if err != nil {
		return err
	}
	return s.Publish(convID, sem.Event{Type: sem.TypeTimelineUpsert, ID: "user-" + turnID, Data: data})
}

// replyChunks splits the echoed reply into word-sized cumulative steps.
func replyChunks(reply string) []string {
	words := strings.Fields(reply)
	out := make([]string, 0, len(words))
	for i := range words {
		out = append(out, strings.Join(words[:i+1], " "))
	}
	return out
}

// streamReply emits llm.start, one llm.delta per word and llm.final.
func (s *Server) streamReply(convID, turnID, prompt string) {
	msgID := "assistant-" + turnID
	reply := "You said: " + strings.TrimSpace(prompt)
	start := s.now()

	log := s.logger.With().Str("conv_id", convID).Str("turn_id", turnID).Logger()
	emit := func(typ string, data, metadata interface{}) bool {
		ev := sem.Event{Type: typ, ID: msgID}
		ev.Data, _ = json.Marshal(data)
		if metadata != nil {
			ev.Metadata, _ = json.Marshal(metadata)
		}
		if err := s.Publish(convID, ev); err != nil {
			log.Debug().Err(err).Str("type", typ).Msg("reply aborted")
			return false
		}
		return true
	}
	pause := func() bool {
		if s.replyDelay <= 0 {
			return s.ctx.Err() == nil
		}
		t := time.NewTimer(s.replyDelay)
		defer t.Stop()
		select {
		case <-t.C:
			return true
		case <-s.ctx.Done():
			return false
		}
	}

	if !emit(sem.TypeLLMStart, sem.LLMStart{Role: "assistant"}, sem.Metadata{Model: s.model}) {
		return
	}
	prev := ""
	for _, cumulative := range replyChunks(reply) {
		if !pause() {
			return
		}
		delta := strings.TrimPrefix(cumulative, prev)
		prev = cumulative
		usage := &sem.Usage{OutputTokens: sem.Int64(len(strings.Fields(cumulative)))}
		if !emit(sem.TypeLLMDelta, sem.LLMDelta{Delta: delta, Cumulative: cumulative}, sem.Metadata{Model: s.model, Usage: usage}) {
			return
		}
	}
	if !pause() {
		return
	}
	words := sem.Int64(len(strings.Fields(reply)))
	emit(sem.TypeLLMFinal, sem.LLMFinal{Text: reply}, sem.Metadata{
		Model:      s.model,
		DurationMs: sem.Int64(s.now().Sub(start).Milliseconds()),
		Usage: &sem.Usage{
			InputTokens:  sem.Int64(len(strings.Fields(prompt))),
			OutputTokens: words,
		},
	})
	log.Debug().Msg("reply complete")
}
