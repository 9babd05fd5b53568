// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/wingedpig/convo/internal/conversation"
	"github.com/wingedpig/convo/internal/events"
	"github.com/wingedpig/convo/internal/pending"
	"github.com/wingedpig/convo/internal/timeline"
	"github.com/wingedpig/convo/pkg/client"
)

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Submit a prompt to a conversation",
		ArgsUsage: "PROMPT...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "conv", Usage: "Conversation `ID`", Required: true},
			&cli.BoolFlag{Name: "wait", Usage: "Wait for the assistant's reply and print it"},
			&cli.DurationFlag{Name: "timeout", Usage: "How long --wait waits", Value: 2 * time.Minute},
		},
		Action: runSend,
	}
}

func runSend(c *cli.Context) error {
	conv, err := requireConv(c)
	if err != nil {
		return err
	}
	prompt := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if prompt == "" {
		return fmt.Errorf("a prompt is required")
	}
	e, err := loadEnv(c)
	if err != nil {
		return err
	}

	if !c.Bool("wait") {
		return e.client.SubmitPrompt(c.Context, client.PromptRequest{
			Prompt:   prompt,
			ConvID:   conv,
			Profile:  e.selection.Profile,
			Registry: e.selection.Registry,
		})
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
	defer cancel()

	reply, err := sendAndWait(ctx, e, conv, prompt)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, reply)
	return nil
}

// sendAndWait claims the conversation, submits the prompt and returns the
// first finished assistant message after it.
func sendAndWait(ctx context.Context, e *env, conv, prompt string) (string, error) {
	bus := e.newBus()
	defer bus.Close()
	tracker := pending.NewTracker()
	m := e.newManager(bus, tracker)
	defer m.Close()

	changes := make(chan events.Event, 256)
	if _, err := bus.SubscribeAsync(events.EventTimelineChanged, forward(changes), 256); err != nil {
		return "", err
	}

	window := "cli-" + uuid.NewString()
	h, err := m.Claim(ctx, conversation.ClaimOptions{
		ConvID:    conv,
		Selection: e.selection,
		Hydrate:   e.cfg.HydrateEnabled(),
		WindowID:  window,
	})
	if err != nil {
		return "", err
	}
	defer h.Release()
	if err := waitReady(ctx, h); err != nil {
		return "", err
	}

	baseline := m.Timeline().Len(conv)
	if err := m.SendFromWindow(ctx, window, conv, prompt); err != nil {
		return "", err
	}

	for {
		if reply, ok := finishedReply(m.Timeline().Entities(conv), baseline); ok {
			return reply, nil
		}
		st := tracker.State(window)
		if st.Phase == pending.PhaseError {
			return "", fmt.Errorf("%s: %s", conv, st.Reason)
		}
		select {
		case <-changes:
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for reply: %w", ctx.Err())
		}
	}
}

func finishedReply(entities []timeline.Entity, baseline int) (string, bool) {
	for i := max(0, baseline); i < len(entities); i++ {
		msg, ok := entities[i].AsMessage()
		if ok && msg.Role == "assistant" && !msg.Streaming && msg.Content != "" {
			return msg.Content, true
		}
	}
	return "", false
}
