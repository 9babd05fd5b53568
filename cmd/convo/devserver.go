// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/wingedpig/convo/internal/config"
	"github.com/wingedpig/convo/internal/devserver"
)

func devServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "dev-server",
		Usage: "Run the in-memory development backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Listen `HOST` (default: dev_server.host)"},
			&cli.IntFlag{Name: "port", Usage: "Listen `PORT` (default: dev_server.port)"},
			&cli.DurationFlag{Name: "reply-delay", Usage: "Pause between streamed reply chunks", Value: 50 * time.Millisecond},
		},
		Action: runDevServer,
	}
}

func runDevServer(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	if c.IsSet("host") {
		e.cfg.DevServer.Host = c.String("host")
	}
	if c.IsSet("port") {
		e.cfg.DevServer.Port = c.Int("port")
	}
	if err := config.NewValidator().Validate(e.cfg); err != nil {
		return err
	}
	addr := e.cfg.DevServer.Addr()

	srv := devserver.New(
		devserver.WithLogger(e.logger),
		devserver.WithReplyDelay(c.Duration("reply-delay")),
	)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
