// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package timeline

// Typed views over Props for the kinds the default handlers produce.
// Unknown kinds keep their raw Props untouched.

// MessageProps is the payload of a message entity.
type MessageProps struct {
	Role      string
	Content   string
	Streaming bool
}

// Props converts to the property bag. Content is omitted when empty so a
// closing upsert does not clobber already streamed text.
func (m MessageProps) Props() Props {
	p := Props{"role": m.Role, "streaming": m.Streaming}
	if m.Content != "" {
		p["content"] = m.Content
	}
	return p
}

// AsMessage reads the message view of an entity.
func (e Entity) AsMessage() (MessageProps, bool) {
	if e.Kind != KindMessage {
		return MessageProps{}, false
	}
	return MessageProps{
		Role:      e.Props.String("role"),
		Content:   e.Props.String("content"),
		Streaming: e.Props.Bool("streaming"),
	}, true
}

// ToolCallProps is the payload of a tool_call entity.
type ToolCallProps struct {
	Name  string
	Input map[string]any
	Done  bool
}

// Props converts to the property bag.
func (t ToolCallProps) Props() Props {
	p := Props{"name": t.Name, "input": t.Input}
	if t.Done {
		p["done"] = true
	}
	return p
}

// AsToolCall reads the tool_call view of an entity.
func (e Entity) AsToolCall() (ToolCallProps, bool) {
	if e.Kind != KindToolCall {
		return ToolCallProps{}, false
	}
	return ToolCallProps{
		Name:  e.Props.String("name"),
		Input: e.Props.Map("input"),
		Done:  e.Props.Bool("done"),
	}, true
}

// ToolResultProps is the payload of a tool_result entity.
type ToolResultProps struct {
	Result     any
	CustomKind string
}

// Props converts to the property bag.
func (t ToolResultProps) Props() Props {
	return Props{"result": t.Result, "customKind": t.CustomKind}
}

// AsToolResult reads the tool_result view of an entity.
func (e Entity) AsToolResult() (ToolResultProps, bool) {
	if e.Kind != KindToolResult {
		return ToolResultProps{}, false
	}
	return ToolResultProps{Result: e.Props["result"], CustomKind: e.Props.String("customKind")}, true
}

// LogProps is the payload of a log entity.
type LogProps struct {
	Level   string
	Message string
	Fields  map[string]any
}

// Props converts to the property bag.
func (l LogProps) Props() Props {
	fields := l.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return Props{"level": l.Level, "message": l.Message, "fields": fields}
}

// AsLog reads the log view of an entity.
func (e Entity) AsLog() (LogProps, bool) {
	if e.Kind != KindLog {
		return LogProps{}, false
	}
	return LogProps{Level: e.Props.String("level"), Message: e.Props.String("message"), Fields: e.Props.Map("fields")}, true
}

// AgentModeProps is the payload of an agent_mode entity.
type AgentModeProps struct {
	Title string
	Data  map[string]any
}

// Props converts to the property bag.
func (a AgentModeProps) Props() Props {
	data := a.Data
	if data == nil {
		data = map[string]any{}
	}
	return Props{"title": a.Title, "data": data}
}

// AsAgentMode reads the agent_mode view of an entity.
func (e Entity) AsAgentMode() (AgentModeProps, bool) {
	if e.Kind != KindAgentMode {
		return AgentModeProps{}, false
	}
	return AgentModeProps{Title: e.Props.String("title"), Data: e.Props.Map("data")}, true
}

// DebuggerPauseProps is the payload of a debugger_pause entity. DeadlineMs
// is a decimal string because the wire value may exceed 2^53.
type DebuggerPauseProps struct {
	PauseID    string
	Phase      string
	Summary    string
	DeadlineMs string
	Extra      map[string]any
}

// Props converts to the property bag.
func (d DebuggerPauseProps) Props() Props {
	extra := d.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	return Props{
		"pauseId":    d.PauseID,
		"phase":      d.Phase,
		"summary":    d.Summary,
		"deadlineMs": d.DeadlineMs,
		"extra":      extra,
	}
}

// AsDebuggerPause reads the debugger_pause view of an entity.
func (e Entity) AsDebuggerPause() (DebuggerPauseProps, bool) {
	if e.Kind != KindDebuggerPause {
		return DebuggerPauseProps{}, false
	}
	return DebuggerPauseProps{
		PauseID:    e.Props.String("pauseId"),
		Phase:      e.Props.String("phase"),
		Summary:    e.Props.String("summary"),
		DeadlineMs: e.Props.String("deadlineMs"),
		Extra:      e.Props.Map("extra"),
	}, true
}
