package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/travelintel"
	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
)

// NewMetricsCmd creates the 'metrics' command.
func NewMetricsCmd(opts *GlobalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve health checks and Prometheus metrics",
		Long: `Open a client (restoring the session and starting the outbox relay when
enabled) and expose /health, /health/live, /health/ready and /metrics until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Observability.MetricsAddr
			}
			return withConfiguredClient(cmd.Context(), cfg, func(c *travelintel.Client) error {
				return serveMetrics(cmd.Context(), addr, c.Health, func(a string) {
					fmt.Fprintf(cmd.OutOrStdout(), "Serving metrics on %s\n", a)
				})
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to observability.metrics_addr)")
	return cmd
}

func serveMetrics(ctx context.Context, addr string, checker *metrics.HealthChecker, started func(string)) error {
	srv := metrics.NewServer(addr, checker)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	started(addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
