// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/wingedpig/convo/internal/sem"
	"github.com/wingedpig/convo/internal/timeline"
	"github.com/wingedpig/convo/pkg/client"
)

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write a conversation's timeline as a YAML debug snapshot",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "conv", Usage: "Conversation `ID`", Required: true},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output `FILE`; \"-\" for stdout (default: timeline-<conv>-<time>.yaml)",
			},
		},
		Action: runExport,
	}
}

func runExport(c *cli.Context) error {
	conv, err := requireConv(c)
	if err != nil {
		return err
	}
	e, err := loadEnv(c)
	if err != nil {
		return err
	}

	snap, err := exportSnapshot(c.Context, e.client, conv, time.Now())
	if err != nil {
		return err
	}
	out, err := snap.YAML()
	if err != nil {
		return err
	}

	path := c.String("out")
	if path == "-" {
		_, err := fmt.Fprint(c.App.Writer, out)
		return err
	}
	if path == "" {
		path = snap.ExportFileName()
	}
	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	e.logger.Info().Str("path", path).Int("entities", snap.Summary.EntityCount).Msg("timeline exported")
	return nil
}

// exportSnapshot hydrates a fresh store from the backend snapshot.
func exportSnapshot(ctx context.Context, c *client.Client, conv string, now time.Time) (timeline.DebugSnapshot, error) {
	raw, err := c.FetchTimelineSnapshot(ctx, conv)
	if err != nil {
		return timeline.DebugSnapshot{}, fmt.Errorf("failed to fetch timeline: %w", err)
	}
	snap, err := sem.Decode[sem.Snapshot](raw)
	if err != nil {
		return timeline.DebugSnapshot{}, err
	}
	store := timeline.NewStore()
	store.HydrateFromSnapshot(conv, snap.TimelineEntities())
	return timeline.BuildDebugSnapshot(conv, store.Conversation(conv), now), nil
}
