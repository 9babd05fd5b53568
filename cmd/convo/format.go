// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wingedpig/convo/internal/timeline"
)

const maxLine = 200

func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxLine {
		return s[:maxLine-3] + "..."
	}
	return s
}

// formatEntity renders one timeline entity as a single terminal line.
func formatEntity(e timeline.Entity) string {
	if m, ok := e.AsMessage(); ok {
		marker := ""
		if m.Streaming {
			marker = " …"
		}
		return fmt.Sprintf("[%s] %s%s", m.Role, clip(m.Content), marker)
	}
	if tc, ok := e.AsToolCall(); ok {
		state := "running"
		if tc.Done {
			state = "done"
		}
		input, _ := json.Marshal(tc.Input)
		return fmt.Sprintf("[tool %s] %s %s", state, tc.Name, clip(string(input)))
	}
	if tr, ok := e.AsToolResult(); ok {
		result, _ := json.Marshal(tr.Result)
		label := "result"
		if tr.CustomKind != "" {
			label = tr.CustomKind
		}
		return fmt.Sprintf("[tool %s] %s", label, clip(string(result)))
	}
	if l, ok := e.AsLog(); ok {
		return fmt.Sprintf("[log %s] %s", l.Level, clip(l.Message))
	}
	if a, ok := e.AsAgentMode(); ok {
		return fmt.Sprintf("[mode] %s", a.Title)
	}
	if d, ok := e.AsDebuggerPause(); ok {
		return fmt.Sprintf("[paused %s] %s", d.Phase, clip(d.Summary))
	}
	props, _ := json.Marshal(e.Props)
	return fmt.Sprintf("[%s] %s", e.Kind, clip(string(props)))
}
