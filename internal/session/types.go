// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session tracks per-conversation connection and usage metadata.
package session

// Status is the managed connection status of a conversation.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusClosed     Status = "closed"
	StatusError      Status = "error"
)

// ErrorStage says where a recorded error came from.
type ErrorStage string

const (
	StageTransport ErrorStage = "transport"
	StageHydrate   ErrorStage = "hydrate"
	StageSend      ErrorStage = "send"
)

// ErrorRecord is one error surfaced to the UI.
type ErrorRecord struct {
	Stage       ErrorStage `json:"stage"`
	Message     string     `json:"message"`
	Status      int        `json:"status,omitempty"`
	At          int64      `json:"at"`
	Recoverable bool       `json:"recoverable"`
}

// Usage holds token counters for a single model call.
type Usage struct {
	InputTokens              int64 `json:"inputTokens"`
	OutputTokens             int64 `json:"outputTokens"`
	CachedTokens             int64 `json:"cachedTokens"`
	CacheCreationInputTokens int64 `json:"cacheCreationInputTokens"`
	CacheReadInputTokens     int64 `json:"cacheReadInputTokens"`
}

// TurnStats describes the most recently finished turn.
type TurnStats struct {
	Model      string `json:"model,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Usage      Usage  `json:"usage"`
}

// State is the session metadata of one conversation.
type State struct {
	ConvID      string `json:"convId"`
	Status      Status `json:"connectionStatus"`
	IsStreaming bool   `json:"isStreaming"`

	// Cursor of the last projected frame.
	LastStreamID string `json:"lastStreamId,omitempty"`
	LastSeq      string `json:"lastSeq,omitempty"`

	ModelName          string     `json:"modelName,omitempty"`
	StreamStartTime    int64      `json:"streamStartTime,omitempty"`
	StreamOutputTokens int64      `json:"streamOutputTokens"`
	TurnStats          *TurnStats `json:"turnStats,omitempty"`

	ConversationInputTokens  int64 `json:"conversationInputTokens"`
	ConversationOutputTokens int64 `json:"conversationOutputTokens"`
	ConversationCachedTokens int64 `json:"conversationCachedTokens"`

	CurrentError   *ErrorRecord  `json:"currentError,omitempty"`
	ErrorHistory   []ErrorRecord `json:"errorHistory,omitempty"`
	HydrationError string        `json:"hydrationError,omitempty"`
}

// TotalTokens returns input + output + cached tokens for the conversation.
func (s State) TotalTokens() int64 {
	total := s.ConversationInputTokens + s.ConversationOutputTokens + s.ConversationCachedTokens
	if total < 0 {
		return 0
	}
	return total
}

// LastError returns the current error message, or "".
func (s State) LastError() string {
	if s.CurrentError != nil {
		return s.CurrentError.Message
	}
	return ""
}

// HasRecoverableError reports whether the current error can be retried.
func (s State) HasRecoverableError() bool {
	return s.CurrentError != nil && s.CurrentError.Recoverable
}

func (s State) clone() State {
	if s.TurnStats != nil {
		ts := *s.TurnStats
		s.TurnStats = &ts
	}
	if s.CurrentError != nil {
		ce := *s.CurrentError
		s.CurrentError = &ce
	}
	s.ErrorHistory = append([]ErrorRecord(nil), s.ErrorHistory...)
	return s
}
