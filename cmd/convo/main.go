// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// convo is a command-line client for SEM chat backends.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "0.1.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "convo",
		Usage:   "Follow and drive conversations on a SEM chat backend",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default: ./convo.hjson or ./convo.json)",
			},
			&cli.StringFlag{
				Name:  "server",
				Usage: "Backend base `URL`",
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "Profile `SLUG` sent with prompts and sockets",
			},
			&cli.StringFlag{
				Name:  "registry",
				Usage: "Profile registry `NAME`",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			tailCommand(),
			sendCommand(),
			profilesCommand(),
			exportCommand(),
			devServerCommand(),
		},
	}
}
