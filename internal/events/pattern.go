// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"errors"
	"fmt"
	"strings"
)

type patternKind int

const (
	matchExact  patternKind = iota
	matchAll                // "*"
	matchPrefix             // "conversation.*"
	matchSuffix             // "*.changed"
)

// Pattern is a compiled event type pattern. A single "*" may stand for the
// whole type, or for everything after (or before) one dot-separated segment.
type Pattern struct {
	kind  patternKind
	affix string
}

// CompilePattern parses pattern. "*", "prefix.*", "*.suffix" and exact
// types are accepted; a wildcard anywhere else is an error.
func CompilePattern(pattern string) (Pattern, error) {
	switch {
	case pattern == "":
		return Pattern{}, errors.New("empty pattern")
	case pattern == "*":
		return Pattern{kind: matchAll}, nil
	case strings.HasSuffix(pattern, ".*") && !strings.Contains(pattern[:len(pattern)-2], "*"):
		return Pattern{kind: matchPrefix, affix: pattern[:len(pattern)-1]}, nil
	case strings.HasPrefix(pattern, "*.") && !strings.Contains(pattern[2:], "*"):
		return Pattern{kind: matchSuffix, affix: pattern[1:]}, nil
	case strings.Contains(pattern, "*"):
		return Pattern{}, fmt.Errorf("invalid pattern %q: wildcard must be a whole segment at either end", pattern)
	}
	return Pattern{kind: matchExact, affix: pattern}, nil
}

// Match reports whether eventType matches.
func (p Pattern) Match(eventType string) bool {
	if eventType == "" {
		return false
	}
	switch p.kind {
	case matchAll:
		return true
	case matchPrefix:
		return strings.HasPrefix(eventType, p.affix)
	case matchSuffix:
		return strings.HasSuffix(eventType, p.affix)
	}
	return eventType == p.affix
}

// MatchPattern compiles pattern and matches eventType against it. Invalid
// patterns match nothing.
func MatchPattern(eventType, pattern string) bool {
	p, err := CompilePattern(pattern)
	return err == nil && p.Match(eventType)
}
