/*
Package main is the entry point for the travelintel CLI.

Usage:

	travelintel [command]

Examples:

	# Run a local backend and sign in against it
	travelintel devserver --user ana:ana@example.com:secret &
	travelintel --base-url http://localhost:8000/api login ana@example.com

	# Personalized data for the signed-in user
	travelintel dashboard
	travelintel recommend --category beach --weather
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aixgo-dev/travelintel/internal/cli"
	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	metrics.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
