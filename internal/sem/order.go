// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package sem

// OrderKey positions a buffered frame for replay.
type OrderKey struct {
	StreamID string
	Seq      *Seq
}

// KeyOf returns the replay ordering key of an event.
func KeyOf(ev Event) OrderKey {
	return OrderKey{StreamID: ev.StreamID, Seq: ev.Seq}
}

// Less orders by stream id (lexical), then by seq as an arbitrary-precision
// integer. Frames without a seq sort before frames with one.
func (k OrderKey) Less(o OrderKey) bool {
	if k.StreamID != o.StreamID {
		return k.StreamID < o.StreamID
	}
	switch {
	case k.Seq == nil && o.Seq == nil:
		return false
	case k.Seq == nil:
		return true
	case o.Seq == nil:
		return false
	}
	return k.Seq.Cmp(o.Seq) < 0
}
