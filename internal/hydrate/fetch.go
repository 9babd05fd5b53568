// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package hydrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wingedpig/convo/internal/timeline"
)

// ErrSnapshotTimeout is returned when the snapshot fetch exceeds its deadline.
var ErrSnapshotTimeout = errors.New("snapshot fetch timed out")

// Fetcher loads the server snapshot of a conversation.
type Fetcher func(ctx context.Context, convID string) ([]timeline.Entity, error)

// Fetch runs f under timeout. A zero timeout means no deadline beyond ctx.
func Fetch(ctx context.Context, f Fetcher, convID string, timeout time.Duration) ([]timeline.Entity, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	entities, err := f(ctx, convID)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrSnapshotTimeout, timeout)
		}
		return nil, err
	}
	return entities, nil
}
