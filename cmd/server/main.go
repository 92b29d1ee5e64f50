// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"os"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/config"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/server"
	"github.com/urfave/cli/v3"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cmd := &cli.Command{
		Name:    "whitelist-registration",
		Usage:   "Minecraft whitelist registration service",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags:   config.Flags(),
		Action:  server.Run,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the web server and the reconciliation jobs",
				Action: server.Run,
			},
			{
				Name:   "sweep",
				Usage:  "Run one reconciliation pass and exit",
				Action: server.Sweep,
			},
			{
				Name:   "compare",
				Usage:  "List drift between confirmed registrations and the whitelist",
				Action: server.Compare,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
