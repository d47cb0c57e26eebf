package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Channel names a logical component in structured logs.
type Channel string

const (
	ChannelAuth            Channel = "auth"
	ChannelTelemetry       Channel = "telemetry"
	ChannelPersonalization Channel = "personalization"
	ChannelOutbox          Channel = "outbox"
	ChannelDevServer       Channel = "devserver"
	ChannelCLI             Channel = "cli"
)

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger builds a logger writing to w (stderr when nil).
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(handler), nil
}

// ForChannel returns logger tagged with the channel attribute. A nil logger
// yields slog.Default().
func ForChannel(logger *slog.Logger, ch Channel) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("channel", string(ch))
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}
