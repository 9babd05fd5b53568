// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
)

func profilesCommand() *cli.Command {
	return &cli.Command{
		Name:  "profiles",
		Usage: "Manage chat profiles",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List the profiles of a registry",
				Action: runProfilesList,
			},
			{
				Name:   "current",
				Usage:  "Show the current profile",
				Action: runProfilesCurrent,
			},
			{
				Name:      "use",
				Usage:     "Select the current profile",
				ArgsUsage: "SLUG",
				Action:    runProfilesUse,
			},
		},
	}
}

func runProfilesList(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	profiles, err := e.client.Profiles.List(c.Context, e.selection.Registry)
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}
	if len(profiles) == 0 {
		fmt.Fprintln(c.App.Writer, "No profiles")
		return nil
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME\tDEFAULT\tVERSION")
	for _, p := range profiles {
		def := ""
		if p.IsDefault {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", p.Slug, p.DisplayName, def, p.Version)
	}
	return tw.Flush()
}

func runProfilesCurrent(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	cur, err := e.client.Profiles.Current(c.Context)
	if err != nil {
		return fmt.Errorf("failed to get current profile: %w", err)
	}
	if cur.Slug == "" {
		fmt.Fprintln(c.App.Writer, "No current profile")
		return nil
	}
	fmt.Fprintf(c.App.Writer, "%s (registry %s)\n", cur.Slug, registryLabel(cur.Registry))
	if cur.Profile != nil {
		for _, s := range cur.Profile.StarterSuggestions() {
			fmt.Fprintf(c.App.Writer, "  - %s\n", s)
		}
	}
	return nil
}

func runProfilesUse(c *cli.Context) error {
	slug := c.Args().First()
	if slug == "" {
		return fmt.Errorf("usage: convo profiles use SLUG")
	}
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	cur, err := e.client.Profiles.SetCurrent(c.Context, slug)
	if err != nil {
		return fmt.Errorf("failed to select profile: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Using profile %s (registry %s)\n", cur.Slug, registryLabel(cur.Registry))
	return nil
}

func registryLabel(r string) string {
	if r == "" {
		return "default"
	}
	return r
}
