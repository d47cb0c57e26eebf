// Package travelintel is the client SDK for the travel intelligence API. It
// wires session storage, the auth lifecycle, the telemetry buffer and the
// personalization client from a single Config.
package travelintel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aixgo-dev/travelintel/internal/apiclient"
	"github.com/aixgo-dev/travelintel/internal/observability"
	"github.com/aixgo-dev/travelintel/pkg/auth"
	"github.com/aixgo-dev/travelintel/pkg/config"
	"github.com/aixgo-dev/travelintel/pkg/identity"
	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
	"github.com/aixgo-dev/travelintel/pkg/personalization"
	"github.com/aixgo-dev/travelintel/pkg/session"
	"github.com/aixgo-dev/travelintel/pkg/telemetry"
	"github.com/aixgo-dev/travelintel/pkg/telemetry/outbox"
)

// Client bundles the SDK components for one process.
type Client struct {
	Identity        *identity.SessionContext
	Auth            *auth.Manager
	Tracker         *telemetry.Tracker
	Personalization *personalization.Client
	// Outbox and Relay are nil unless telemetry.outbox.enabled is set. The
	// relay runs in the background unless WithoutRelay was given.
	Outbox *outbox.Outbox
	Relay  *outbox.Relay
	Health *metrics.HealthChecker

	logger  *slog.Logger
	store   session.Store
	api     *apiclient.Client
	tracing bool

	relayCancel context.CancelFunc
	relayDone   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
	store      session.Store
	ident      *identity.SessionContext
	transport  telemetry.Transport
	noRelay    bool
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger. By default one is built from cfg.Logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient sets the HTTP client used for every backend call.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithStore supplies a session store instead of building one from cfg.Session.
// The client takes ownership and closes it.
func WithStore(s session.Store) Option {
	return func(o *options) { o.store = s }
}

// WithSessionContext supplies the session identity.
func WithSessionContext(ident *identity.SessionContext) Option {
	return func(o *options) { o.ident = ident }
}

// WithTransport overrides the telemetry transport. The outbox is not opened
// when a transport is supplied.
func WithTransport(t telemetry.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithoutRelay opens the outbox but does not start the background relay.
func WithoutRelay() Option {
	return func(o *options) { o.noRelay = true }
}

// New builds a Client. The persisted session, if any, is restored before New
// returns.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		logger, err := metrics.NewLogger(cfg.Logging, os.Stderr)
		if err != nil {
			return nil, err
		}
		o.logger = logger
	}

	metrics.InitMetrics()

	c := &Client{logger: o.logger}

	if cfg.Observability.Tracing.Enabled {
		if err := observability.Init(ctx, cfg.Observability.Tracing); err != nil {
			o.logger.Warn("tracing disabled", "error", err)
		} else {
			c.tracing = true
		}
	}

	store := o.store
	if store == nil {
		s, err := session.NewStore(cfg.Session)
		if err != nil {
			return nil, c.abort(fmt.Errorf("failed to open session store: %w", err))
		}
		store = s
	}
	c.store = store

	c.Identity = o.ident
	if c.Identity == nil {
		c.Identity = identity.NewSessionContext()
	}

	apiOpts := []apiclient.Option{apiclient.WithTimeout(cfg.API.Timeout)}
	persOpts := []apiclient.Option{apiclient.WithTimeout(cfg.Personalization.Timeout)}
	if o.httpClient != nil {
		apiOpts = append(apiOpts, apiclient.WithHTTPClient(o.httpClient))
		persOpts = append(persOpts, apiclient.WithHTTPClient(o.httpClient))
	}
	c.api = apiclient.New(cfg.API.BaseURL, c.Identity, apiOpts...)
	persAPI := apiclient.New(cfg.API.BaseURL, c.Identity, persOpts...)

	c.Auth = auth.NewManager(c.api, store, c.Identity, auth.WithLogger(o.logger))
	c.Auth.Restore(ctx)

	transport := o.transport
	if transport == nil {
		httpTransport := telemetry.NewHTTPTransport(c.api, o.logger)
		transport = httpTransport

		if cfg.Telemetry.Outbox.Enabled {
			ob, err := outbox.Open(cfg.Telemetry.Outbox.Path, outbox.WithLogger(o.logger))
			if err != nil {
				_ = store.Close()
				return nil, c.abort(fmt.Errorf("failed to open outbox: %w", err))
			}
			c.Outbox = ob
			transport = outbox.NewTransport(ob, o.logger)

			c.Relay = outbox.NewRelay(ob, httpTransport, cfg.Telemetry.Outbox.Relay, o.logger)
			if !o.noRelay {
				relay := c.Relay
				relayCtx, cancel := context.WithCancel(context.Background())
				c.relayCancel = cancel
				c.relayDone = make(chan struct{})
				go func() {
					defer close(c.relayDone)
					if err := relay.Run(relayCtx); err != nil {
						o.logger.Error("outbox relay stopped", "error", err)
					}
				}()
			}
		}
	}

	c.Tracker = telemetry.NewTracker(transport, c.Identity,
		telemetry.WithFlushInterval(cfg.Telemetry.FlushInterval),
		telemetry.WithSendTimeout(cfg.Telemetry.SendTimeout),
		telemetry.WithLogger(o.logger),
	)

	c.Personalization = personalization.NewClient(persAPI,
		personalization.WithRecorder(c.Tracker),
		personalization.WithLogger(o.logger),
	)

	c.Health = metrics.NewHealthChecker()
	c.Health.RegisterCheck(metrics.StoreCheck(store.Ping))
	if c.Outbox != nil {
		c.Health.RegisterCheck(metrics.OutboxCheck(c.Outbox.Ping))
	}
	c.Health.RegisterCheck(metrics.BackendCheck(c.pingBackend))

	o.logger.Debug("client ready",
		"base_url", cfg.API.BaseURL,
		"session_id", c.Identity.SessionID(),
		"authenticated", c.Auth.IsAuthenticated(),
		"outbox", c.Outbox != nil,
	)
	return c, nil
}

// pingBackend treats any HTTP response as reachable.
func (c *Client) pingBackend(ctx context.Context) error {
	_, err := c.api.Do(ctx, http.MethodGet, "/", nil, nil)
	if err == nil {
		return nil
	}
	if _, ok := apiclient.AsStatusError(err); ok {
		return nil
	}
	return err
}

// abort releases what New set up before failing with err.
func (c *Client) abort(err error) error {
	if c.tracing {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := observability.Shutdown(ctx); serr != nil {
			c.logger.Warn("failed to shut down tracing", "error", serr)
		}
		c.tracing = false
	}
	return err
}

// Close destroys the tracker, stops the relay and releases storage. It is
// safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		var errs []error
		if err := c.Tracker.Destroy(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracker: %w", err))
		}
		if c.relayCancel != nil {
			c.relayCancel()
			select {
			case <-c.relayDone:
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("relay: %w", ctx.Err()))
			}
		}
		if c.Outbox != nil {
			if err := c.Outbox.Close(); err != nil {
				errs = append(errs, fmt.Errorf("outbox: %w", err))
			}
		}
		if err := c.store.Close(); err != nil && !errors.Is(err, session.ErrStorageClosed) {
			errs = append(errs, fmt.Errorf("session store: %w", err))
		}
		c.api.CloseIdleConnections()
		if c.tracing {
			if err := observability.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracing: %w", err))
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
