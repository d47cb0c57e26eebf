package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/travelintel/internal/devserver"
	"github.com/aixgo-dev/travelintel/pkg/config"
)

// NewDevServerCmd creates the 'devserver' command.
func NewDevServerCmd(opts *GlobalOptions) *cobra.Command {
	var (
		addr    string
		users   []string
		origins []string
		limit   float64
		burst   int
	)

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local in-memory backend",
		Long: `Run a local backend implementing the auth, telemetry and personalization
endpoints under /api. State is kept in memory and lost on exit. One-time codes
are written to the log instead of being sent by SMS.

Seed accounts with --user username:email:password.`,
		Example: `  travelintel devserver --addr :8000 --user ana:ana@example.com:secret
  travelintel --base-url http://localhost:8000/api login ana@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return runDevServer(cmd.Context(), cfg, addr, users, devserver.Config{
				JWTSecret:    os.Getenv("TRAVELINTEL_DEVSERVER_SECRET"),
				AllowOrigins: origins,
				RateLimit:    limit,
				RateBurst:    burst,
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", ":8000", "Listen address")
	f.StringArrayVar(&users, "user", nil, "Seed account username:email:password[:phone] (repeatable)")
	f.StringSliceVar(&origins, "cors-origin", nil, "Allowed CORS origins")
	f.Float64Var(&limit, "rate-limit", 0, "Requests per second per client on /api/ai (0 disables)")
	f.IntVar(&burst, "rate-burst", 10, "Burst size for --rate-limit")
	return cmd
}

func runDevServer(ctx context.Context, cfg *config.Config, addr string, users []string, dsCfg devserver.Config) error {
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	srv, err := devserver.New(dsCfg, logger)
	if err != nil {
		return err
	}

	for _, spec := range users {
		parts := strings.Split(spec, ":")
		if len(parts) < 3 {
			return fmt.Errorf("invalid --user %q, expected username:email:password[:phone]", spec)
		}
		phone := ""
		if len(parts) > 3 {
			phone = parts[3]
		}
		u, err := srv.AddUser(parts[0], parts[1], parts[2], phone)
		if err != nil {
			return fmt.Errorf("failed to seed %s: %w", parts[0], err)
		}
		logger.Info("seeded account", "username", u.Username, "id", u.ID.String())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
