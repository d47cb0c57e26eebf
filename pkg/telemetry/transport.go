package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aixgo-dev/travelintel/internal/apiclient"
	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
)

// PathTrackActions is the ingestion endpoint relative to the API base URL.
const PathTrackActions = "/ai/track-actions/"

// Transport delivers a batch. Implementations never report failure to the
// caller; events in a failed batch are lost unless the implementation
// persists them.
type Transport interface {
	Send(ctx context.Context, actions []UserAction)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, actions []UserAction)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, actions []UserAction) {
	f(ctx, actions)
}

// HTTPTransport posts batches to the ingestion endpoint with whatever
// authorization header is installed at send time.
type HTTPTransport struct {
	api    *apiclient.Client
	path   string
	logger *slog.Logger
}

// NewHTTPTransport creates a transport over api.
func NewHTTPTransport(api *apiclient.Client, logger *slog.Logger) *HTTPTransport {
	return &HTTPTransport{
		api:    api,
		path:   PathTrackActions,
		logger: metrics.ForChannel(logger, metrics.ChannelTelemetry),
	}
}

// Send delivers actions once, logging and swallowing any failure.
func (t *HTTPTransport) Send(ctx context.Context, actions []UserAction) {
	if len(actions) == 0 {
		return
	}
	if err := t.Deliver(ctx, actions); err != nil {
		t.logger.Warn("failed to deliver telemetry batch", "count", len(actions), "error", err)
	}
}

// Deliver posts actions and reports the outcome. The response body is ignored.
func (t *HTTPTransport) Deliver(ctx context.Context, actions []UserAction) error {
	start := time.Now()
	_, err := t.api.Do(ctx, http.MethodPost, t.path, Batch{Actions: actions}, nil)
	if err != nil {
		metrics.RecordTelemetrySend(metrics.StatusError, time.Since(start))
		return err
	}
	metrics.RecordTelemetrySend(metrics.StatusSuccess, time.Since(start))
	t.logger.Debug("delivered telemetry batch", "count", len(actions))
	return nil
}
