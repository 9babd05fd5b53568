// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/wingedpig/convo/internal/conversation"
	"github.com/wingedpig/convo/internal/events"
	"github.com/wingedpig/convo/internal/session"
	"github.com/wingedpig/convo/internal/timeline"
)

var errConnectionLost = errors.New("connection lost")

func tailCommand() *cli.Command {
	return &cli.Command{
		Name:  "tail",
		Usage: "Print a conversation's timeline as it changes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "conv", Usage: "Conversation `ID`", Required: true},
			&cli.BoolFlag{Name: "no-hydrate", Usage: "Skip the snapshot and print live events only"},
			&cli.BoolFlag{Name: "json", Usage: "Print entities as JSON lines"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Trace connection lifecycle and envelopes to stderr"},
		},
		Action: runTail,
	}
}

func runTail(c *cli.Context) error {
	conv, err := requireConv(c)
	if err != nil {
		return err
	}
	e, err := loadEnv(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := e.newBus()
	defer bus.Close()
	m := e.newManager(bus, nil)
	defer m.Close()

	p := &printer{w: c.App.Writer, errW: c.App.ErrWriter, json: c.Bool("json"), seen: map[string]string{}}
	if c.Bool("verbose") {
		if _, err := bus.SubscribeAsync("conversation.*", func(_ context.Context, ev events.Event) error {
			p.trace(ev)
			return nil
		}, 256); err != nil {
			return err
		}
	}

	changes := make(chan events.Event, 256)
	if _, err := bus.SubscribeAsync(events.EventTimelineChanged, forward(changes), 256); err != nil {
		return err
	}
	statuses := make(chan events.Event, 16)
	if _, err := bus.SubscribeAsync(events.EventStatus, forward(statuses), 16); err != nil {
		return err
	}
	bus.Subscribe(events.EventSessionError, func(_ context.Context, ev events.Event) error {
		e.logger.Warn().Interface("stage", ev.Payload["stage"]).Interface("message", ev.Payload["message"]).Msg("session error")
		return nil
	})

	h, err := m.Claim(ctx, conversation.ClaimOptions{
		ConvID:    conv,
		Selection: e.selection,
		Hydrate:   e.cfg.HydrateEnabled() && !c.Bool("no-hydrate"),
		WindowID:  "cli-" + uuid.NewString(),
	})
	if err != nil {
		return err
	}
	defer h.Release()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := waitReady(gctx, h); err != nil {
			return nil
		}
		for _, ent := range timeline.RenderableEntities(m.Timeline().Conversation(conv)) {
			p.print(ent)
		}
		for {
			select {
			case ev := <-changes:
				id, _ := ev.Payload["entity_id"].(string)
				if id == "" {
					// Snapshot merges carry no id; print whatever changed.
					for _, ent := range m.Timeline().Entities(conv) {
						p.print(ent)
					}
					continue
				}
				if ent, ok := m.Timeline().Entity(conv, id); ok {
					p.print(ent)
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case ev := <-statuses:
				st, _ := ev.Payload["status"].(string)
				e.logger.Debug().Str("status", st).Msg("connection status")
				if session.Status(st) == session.StatusError && !e.cfg.Reconnect.Enabled {
					return fmt.Errorf("%s: %w", conv, errConnectionLost)
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	return g.Wait()
}

func forward(ch chan<- events.Event) events.EventHandler {
	return func(_ context.Context, ev events.Event) error {
		select {
		case ch <- ev:
		default:
		}
		return nil
	}
}

// printer writes entities, skipping repeats of an unchanged line, and
// trace lines when verbose.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	errW io.Writer
	json bool
	seen map[string]string
}

// trace writes "# <type> key=value ..." with keys sorted. Raw frames are
// left out; envelopes carry their event type and id instead.
func (p *printer) trace(ev events.Event) {
	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		if k != "frame" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(ev.Type)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, ev.Payload[k])
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.errW, b.String())
}

func (p *printer) print(ent timeline.Entity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var line string
	if p.json {
		data, err := json.Marshal(ent)
		if err != nil {
			return
		}
		line = string(data)
	} else {
		line = fmt.Sprintf("%-12s %s", ent.ID, formatEntity(ent))
	}
	if p.seen[ent.ID] == line {
		return
	}
	p.seen[ent.ID] = line
	fmt.Fprintln(p.w, line)
}
