package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/travelintel"
	"github.com/aixgo-dev/travelintel/pkg/config"
	"github.com/aixgo-dev/travelintel/pkg/telemetry/outbox"
)

// NewOutboxCmd creates the 'outbox' command group.
func NewOutboxCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and drain the durable telemetry outbox",
		Long: `The outbox stores telemetry batches in a local SQLite database until the
backend accepts them. It is used when telemetry.outbox.enabled is set.`,
	}
	cmd.AddCommand(newOutboxRelayCmd(opts), newOutboxStatsCmd(opts), newOutboxPurgeCmd(opts))
	return cmd
}

func newOutboxRelayCmd(opts *GlobalOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Deliver pending batches",
		Long: `Deliver pending batches with retry and rate limiting. Runs until interrupted
unless --once is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			cfg.Telemetry.Outbox.Enabled = true
			return withConfiguredClient(cmd.Context(), cfg, func(c *travelintel.Client) error {
				return runRelay(cmd.Context(), cmd.OutOrStdout(), c.Relay, once)
			}, travelintel.WithoutRelay())
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Make a single delivery pass and exit")
	return cmd
}

func runRelay(ctx context.Context, w io.Writer, relay *outbox.Relay, once bool) error {
	if once {
		n, err := relay.RunOnce(ctx)
		fmt.Fprintf(w, "Delivered %d batch(es)\n", n)
		return err
	}
	fmt.Fprintln(w, "Relaying outbox, press Ctrl+C to stop")
	return relay.Run(ctx)
}

func newOutboxStatsCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show outbox counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOutbox(opts, func(o *outbox.Outbox) error {
				stats, err := o.Stats(cmd.Context())
				if err != nil {
					return err
				}
				printStats(cmd.OutOrStdout(), o.Path(), stats)
				return nil
			})
		},
	}
}

func printStats(w io.Writer, path string, stats outbox.Stats) {
	fmt.Fprintf(w, "Database:   %s\n", path)
	fmt.Fprintf(w, "Pending:    %d\n", stats.Pending)
	fmt.Fprintf(w, "Delivered:  %d\n", stats.Delivered)
	fmt.Fprintf(w, "Failed:     %d\n", stats.Failed)
	if !stats.OldestPending.IsZero() {
		fmt.Fprintf(w, "Oldest:     %s (%s ago)\n",
			stats.OldestPending.Format(time.RFC3339), time.Since(stats.OldestPending).Round(time.Second))
	}
}

func newOutboxPurgeCmd(opts *GlobalOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:     "purge",
		Short:   "Delete delivered and failed batches",
		Example: `  travelintel outbox purge --older-than 1h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOutbox(opts, func(o *outbox.Outbox) error {
				n, err := o.Purge(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Purged %d batch(es)\n", n)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only purge batches older than this")
	return cmd
}

func withOutbox(opts *GlobalOptions, fn func(*outbox.Outbox) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	return withOutboxAt(cfg, fn)
}

func withOutboxAt(cfg *config.Config, fn func(*outbox.Outbox) error) error {
	logger, err := newLogger(cfg, io.Discard)
	if err != nil {
		return err
	}
	o, err := outbox.Open(cfg.Telemetry.Outbox.Path, outbox.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = o.Close() }()
	return fn(o)
}
