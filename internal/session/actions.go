// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

// SetStatus records a transport status change.
type SetStatus struct {
	ConvID string
	Status Status
}

func (SetStatus) ActionType() string { return "session/setStatus" }

// StreamStarted marks the start of an assistant stream.
type StreamStarted struct {
	ConvID string
	Model  string
	At     int64
}

func (StreamStarted) ActionType() string { return "session/streamStarted" }

// UsageUpdated carries intermediate usage while a stream is running.
type UsageUpdated struct {
	ConvID string
	Usage  Usage
}

func (UsageUpdated) ActionType() string { return "session/usageUpdated" }

// StreamFinished closes the stream and folds its usage into the totals.
type StreamFinished struct {
	ConvID     string
	Model      string
	DurationMs int64
	Usage      *Usage
}

func (StreamFinished) ActionType() string { return "session/streamFinished" }

// CursorAdvanced records the ordering key of the last projected frame.
type CursorAdvanced struct {
	ConvID   string
	StreamID string
	Seq      string
}

func (CursorAdvanced) ActionType() string { return "session/cursorAdvanced" }

// ErrorRecorded appends an error to the session.
type ErrorRecorded struct {
	ConvID string
	Error  ErrorRecord
}

func (ErrorRecorded) ActionType() string { return "session/errorRecorded" }

// HydrationFailed records a failed snapshot fetch.
type HydrationFailed struct {
	ConvID  string
	Message string
	At      int64
}

func (HydrationFailed) ActionType() string { return "session/hydrationFailed" }

// ErrorCleared drops the current error.
type ErrorCleared struct {
	ConvID string
}

func (ErrorCleared) ActionType() string { return "session/errorCleared" }
