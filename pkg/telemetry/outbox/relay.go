package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/aixgo-dev/travelintel/internal/apiclient"
	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
	"github.com/aixgo-dev/travelintel/pkg/telemetry"
)

// Deliverer sends one batch and reports the outcome.
// *telemetry.HTTPTransport satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, actions []telemetry.UserAction) error
}

// RelayConfig tunes a Relay.
type RelayConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	BatchLimit     int           `yaml:"batch_limit"`
	MaxTries       uint          `yaml:"max_tries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Burst          int           `yaml:"burst"`
	PurgeSchedule  string        `yaml:"purge_schedule"`
	PurgeAfter     time.Duration `yaml:"purge_after"`
}

// DefaultRelayConfig returns the default relay tuning.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		PollInterval:   5 * time.Second,
		BatchLimit:     50,
		MaxTries:       5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		RatePerSecond:  5,
		Burst:          1,
		PurgeSchedule:  "@every 1h",
		PurgeAfter:     24 * time.Hour,
	}
}

func (c RelayConfig) withDefaults() RelayConfig {
	d := DefaultRelayConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = d.BatchLimit
	}
	if c.MaxTries == 0 {
		c.MaxTries = d.MaxTries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = d.RatePerSecond
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	if c.PurgeSchedule == "" {
		c.PurgeSchedule = d.PurgeSchedule
	}
	if c.PurgeAfter <= 0 {
		c.PurgeAfter = d.PurgeAfter
	}
	return c
}

// Relay drains pending batches to a Deliverer.
type Relay struct {
	outbox    *Outbox
	deliverer Deliverer
	cfg       RelayConfig
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewRelay creates a relay. Zero config fields take their defaults.
func NewRelay(o *Outbox, d Deliverer, cfg RelayConfig, logger *slog.Logger) *Relay {
	cfg = cfg.withDefaults()
	return &Relay{
		outbox:    o,
		deliverer: d,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:    metrics.ForChannel(logger, metrics.ChannelOutbox),
	}
}

// Run drains the outbox every PollInterval and purges old rows on
// PurgeSchedule until ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(r.cfg.PurgeSchedule, func() { r.purge(ctx) }); err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", r.cfg.PurgeSchedule, err)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", "poll_interval", r.cfg.PollInterval, "path", r.outbox.Path())
	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("outbox relay pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce delivers pending batches oldest first. It stops at the first batch
// that still fails after retries, leaving it and later batches pending.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	entries, err := r.outbox.Pending(ctx, r.cfg.BatchLimit)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, e := range entries {
		if err := r.limiter.Wait(ctx); err != nil {
			return delivered, err
		}

		err := r.deliver(ctx, e)
		if err == nil {
			if err := r.outbox.MarkDelivered(ctx, e.ID); err != nil {
				return delivered, err
			}
			metrics.RecordOutboxDelivery(metrics.StatusSuccess)
			delivered++
			continue
		}

		metrics.RecordOutboxDelivery(metrics.StatusError)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return delivered, err
		}

		permanent := isPermanent(err)
		if merr := r.outbox.MarkFailed(ctx, e.ID, err, permanent); merr != nil {
			return delivered, merr
		}
		if permanent {
			r.logger.Error("dropping undeliverable batch", "id", e.ID, "error", err)
			continue
		}
		r.updatePending(ctx)
		return delivered, fmt.Errorf("batch %d: %w", e.ID, err)
	}

	r.updatePending(ctx)
	return delivered, nil
}

func (r *Relay) deliver(ctx context.Context, e Entry) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialBackoff
	b.MaxInterval = r.cfg.MaxBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := r.deliverer.Deliver(ctx, e.Actions)
		if err != nil && isPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Debug("retrying batch", "id", e.ID, "in", next, "error", err)
		}),
	)
	return err
}

func (r *Relay) purge(ctx context.Context) {
	n, err := r.outbox.Purge(ctx, r.cfg.PurgeAfter)
	if err != nil {
		r.logger.Warn("outbox purge failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("purged outbox batches", "count", n)
	}
}

func (r *Relay) updatePending(ctx context.Context) {
	if stats, err := r.outbox.Stats(ctx); err == nil {
		metrics.SetOutboxPending(stats.Pending)
	}
}

// isPermanent reports whether retrying err cannot help: a 4xx other than
// 408 and 429.
func isPermanent(err error) bool {
	se, ok := apiclient.AsStatusError(err)
	if !ok {
		return false
	}
	switch se.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500
}
