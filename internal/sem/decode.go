// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package sem

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ErrDecode wraps every payload decoding failure.
var ErrDecode = errors.New("sem: decode payload")

// Decode decodes a raw payload into T. Unknown fields are ignored. A missing
// or non-object payload, or one that does not fit T, yields an error wrapping
// ErrDecode; callers treat that the same as an absent payload.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return out, fmt.Errorf("%w: payload is not an object", ErrDecode)
	}
	if err := json.Unmarshal(trimmed, &out); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}

// Int64 is an int64 that accepts a JSON number or a decimal string, the two
// encodings protobuf JSON uses for 64-bit integers.
type Int64 int64

func (i *Int64) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		*i = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("invalid int64 %q", s)
		}
		n = int64(f)
	}
	*i = Int64(n)
	return nil
}

// DecimalString keeps an integer exactly as its decimal digits, whatever its
// magnitude. It accepts a JSON number or a string.
type DecimalString string

func (d *DecimalString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		*d = ""
		return nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid integer %q", s)
	}
	*d = DecimalString(n.String())
	return nil
}

// Seq is an arbitrary-precision event sequence number. The zero value is
// not used; an absent seq is represented by a nil *Seq.
type Seq struct {
	n big.Int
}

// NewSeq builds a Seq from an int64.
func NewSeq(v int64) *Seq {
	s := &Seq{}
	s.n.SetInt64(v)
	return s
}

// ParseSeq parses a decimal sequence number.
func ParseSeq(v string) (*Seq, bool) {
	s := &Seq{}
	if _, ok := s.n.SetString(strings.TrimSpace(v), 10); !ok {
		return nil, false
	}
	return s, true
}

func (s *Seq) UnmarshalJSON(b []byte) error {
	seq, ok := seqFromJSON(b)
	if !ok {
		return fmt.Errorf("invalid seq %s", bytes.TrimSpace(b))
	}
	s.n.Set(&seq.n)
	return nil
}

// seqFromJSON reads a seq given as a JSON number or string. Exponent and
// decimal forms are accepted when they denote an integer; anything else,
// including null, yields false.
func seqFromJSON(b []byte) (*Seq, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, false
	}
	str := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &str); err != nil {
			return nil, false
		}
	}
	if seq, ok := ParseSeq(str); ok {
		return seq, true
	}
	f, _, err := big.ParseFloat(strings.TrimSpace(str), 10, 256, big.ToNearestEven)
	if err != nil || !f.IsInt() {
		return nil, false
	}
	seq := &Seq{}
	f.Int(&seq.n)
	return seq, true
}

func (s *Seq) MarshalJSON() ([]byte, error) {
	return []byte(s.n.String()), nil
}

// Cmp compares two sequence numbers like big.Int.Cmp.
func (s *Seq) Cmp(o *Seq) int {
	return s.n.Cmp(&o.n)
}

func (s *Seq) String() string {
	if s == nil {
		return ""
	}
	return s.n.String()
}
