// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"fmt"
	"io"
	"os"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/config"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/jobs"
	"github.com/urfave/cli/v3"
)

// Sweep runs one reconciliation pass and exits.
func Sweep(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	a, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	a.runner.RunOnce(ctx)
	return nil
}

// Compare prints the drift between confirmed registrations and the whitelist.
func Compare(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	a, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	drift, err := jobs.Compare(ctx, a.repo)
	if err != nil {
		return err
	}
	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	return printDrift(out, drift)
}

func printDrift(w io.Writer, drift *jobs.Drift) error {
	sections := []struct {
		title string
		names []string
	}{
		{"Confirmed registrations missing from the whitelist", drift.MissingFromWhitelist},
		{"Whitelist entries without a registration", drift.WithoutRegistration},
	}
	for _, s := range sections {
		if _, err := fmt.Fprintf(w, "%s (%d):\n", s.title, len(s.names)); err != nil {
			return err
		}
		for _, name := range s.names {
			if _, err := fmt.Fprintf(w, "  %s\n", name); err != nil {
				return err
			}
		}
	}
	return nil
}
