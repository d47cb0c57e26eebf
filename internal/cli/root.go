/*
Package cli implements the travelintel command line client.

Each command is built by a NewXxxCmd constructor and delegates to a runXxx
function. Commands that talk to the backend open a travelintel.Client from the
configuration named by --config and close it before returning, so buffered
telemetry is flushed on exit.
*/
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/travelintel"
	"github.com/aixgo-dev/travelintel/pkg/config"
	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
)

// GlobalOptions are the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	EnvFile    string
	BaseURL    string
	Verbose    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &GlobalOptions{}

	root := &cobra.Command{
		Use:   "travelintel",
		Short: "Travel intelligence client",
		Long: `travelintel talks to the travel intelligence API.

It keeps a signed-in session on disk (or in redis), buffers interaction
telemetry and fetches personalized recommendations, insights and analytics.
Every personalization command returns a sensible default when the backend is
unavailable.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", defaultConfigPath(), "Path to the YAML config file")
	flags.StringVar(&opts.EnvFile, "env-file", ".env", "Optional .env file loaded before the config")
	flags.StringVar(&opts.BaseURL, "base-url", "", "Override api.base_url")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		NewLoginCmd(opts),
		NewRegisterCmd(opts),
		NewOTPCmd(opts),
		NewLogoutCmd(opts),
		NewWhoamiCmd(opts),
		NewTrackCmd(opts),
		NewRecommendCmd(opts),
		NewPersonalityCmd(opts),
		NewAnalyticsCmd(opts),
		NewInsightsCmd(opts),
		NewBehaviorCmd(opts),
		NewBudgetCmd(opts),
		NewChatCmd(opts),
		NewPrefsCmd(opts),
		NewDashboardCmd(opts),
		NewOutboxCmd(opts),
		NewDevServerCmd(opts),
		NewMetricsCmd(opts),
		NewLoadTestCmd(opts),
		NewConfigCmd(opts),
	)

	return root
}

func defaultConfigPath() string {
	if p := os.Getenv("TRAVELINTEL_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(config.DataDir(), "config.yaml")
}

// loadConfig reads the .env file and the config file. A missing config file
// at the default location is not an error.
func loadConfig(opts *GlobalOptions) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return nil, err
	}

	path := opts.ConfigPath
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigPath() {
		path = ""
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.BaseURL != "" {
		cfg.API.BaseURL = opts.BaseURL
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := metrics.NewLogger(cfg.Logging, w)
	if err != nil {
		return nil, err
	}
	return metrics.ForChannel(logger, metrics.ChannelCLI), nil
}

// withClient opens a client, runs fn and closes the client.
func withClient(ctx context.Context, opts *GlobalOptions, fn func(*travelintel.Client) error, clientOpts ...travelintel.Option) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	return withConfiguredClient(ctx, cfg, fn, clientOpts...)
}

func withConfiguredClient(ctx context.Context, cfg *config.Config, fn func(*travelintel.Client) error, clientOpts ...travelintel.Option) error {
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	clientOpts = append([]travelintel.Option{travelintel.WithLogger(logger)}, clientOpts...)
	client, err := travelintel.New(ctx, cfg, clientOpts...)
	if err != nil {
		return err
	}

	runErr := fn(client)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Telemetry.SendTimeout)
	defer cancel()
	if err := client.Close(closeCtx); err != nil {
		logger.Warn("client shutdown incomplete", "error", err)
	}
	return runErr
}
