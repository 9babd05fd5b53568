// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package devserver

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wingedpig/convo/internal/events"
)

const (
	socketBuffer = 256
	pingInterval = 54 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket streams SEM frames of one conversation.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	convID := strings.TrimSpace(query.Get("conv_id"))
	if convID == "" {
		WriteError(w, http.StatusBadRequest, "conv_id is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := s.logger.With().Str("conv_id", convID).Logger()

	frames := make(chan string, socketBuffer)
	done := make(chan struct{})
	stopped := make(chan struct{})

	// Synchronous so a burst blocks the publisher instead of being dropped.
	subID, err := s.bus.Subscribe(events.EventEnvelope, func(_ context.Context, e events.Event) error {
		if e.Conversation != convID {
			return nil
		}
		frame, _ := e.Payload["frame"].(string)
		select {
		case frames <- frame:
		case <-done:
		case <-stopped:
		case <-s.ctx.Done():
		}
		return nil
	})
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		return
	}
	defer s.bus.Unsubscribe(subID)

	s.addSocket(convID, 1)
	defer s.addSocket(convID, -1)
	defer close(stopped)
	log.Info().Str("profile", query.Get("profile")).Str("registry", query.Get("registry")).Msg("socket opened")

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	// Read goroutine (for close detection)
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case frame := <-frames:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-done:
			log.Info().Msg("socket closed")
			return
		}
	}
}

// handleTimeline serves GET /api/timeline?conv_id=.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	convID := strings.TrimSpace(r.URL.Query().Get("conv_id"))
	if convID == "" {
		WriteError(w, http.StatusBadRequest, "conv_id is required")
		return
	}
	WriteJSON(w, http.StatusOK, s.Snapshot(convID))
}

// handleEventHistory returns the frames recently published, newest last.
func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := events.EventFilter{
		Types:        []string{events.EventEnvelope},
		Conversation: query.Get("conv_id"),
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if sinceStr := query.Get("since"); sinceStr != "" {
		if t, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			filter.Since = t
		}
	}

	history, err := s.bus.History(filter)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if history == nil {
		history = []events.Event{}
	}
	WriteJSON(w, http.StatusOK, history)
}
