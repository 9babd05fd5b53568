// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package timeline

// Well-known ids of the suggestion entities.
const (
	StarterSuggestionsID   = "suggestions:starter"
	AssistantSuggestionsID = "suggestions:assistant"
)

// RenderableEntities returns ordered entities excluding suggestion entities.
func RenderableEntities(state ConversationState) []Entity {
	all := state.Entities()
	out := all[:0:0]
	for _, e := range all {
		if e.Kind != KindSuggestions {
			out = append(out, e)
		}
	}
	return out
}

type suggestionsProps struct {
	items    []string
	consumed bool
}

func readSuggestions(e Entity, ok bool) (suggestionsProps, bool) {
	if !ok || e.Kind != KindSuggestions {
		return suggestionsProps{}, false
	}
	var sp suggestionsProps
	switch items := e.Props["items"].(type) {
	case []string:
		sp.items = append(sp.items, items...)
	case []any:
		for _, it := range items {
			if s, ok := it.(string); ok && s != "" {
				sp.items = append(sp.items, s)
			}
		}
	}
	_, sp.consumed = e.Props["consumedAt"]
	return sp, true
}

// Suggestions returns the prompt suggestions to offer. Unconsumed assistant
// suggestions win; starter suggestions are shown only while the conversation
// has nothing renderable yet.
func Suggestions(state ConversationState) []string {
	a, ok := state.ByID[AssistantSuggestionsID]
	if sp, ok := readSuggestions(a, ok); ok && !sp.consumed && len(sp.items) > 0 {
		return sp.items
	}

	s, ok := state.ByID[StarterSuggestionsID]
	sp, ok := readSuggestions(s, ok)
	if !ok || sp.consumed || len(sp.items) == 0 {
		return nil
	}
	if len(RenderableEntities(state)) > 0 {
		return nil
	}
	return sp.items
}
