package outbox

import (
	"context"
	"log/slog"

	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
	"github.com/aixgo-dev/travelintel/pkg/telemetry"
)

// Transport implements telemetry.Transport by appending to the outbox.
// Delivery happens later, through a Relay.
type Transport struct {
	outbox *Outbox
	logger *slog.Logger
}

var _ telemetry.Transport = (*Transport)(nil)

// NewTransport creates a transport writing to o.
func NewTransport(o *Outbox, logger *slog.Logger) *Transport {
	return &Transport{
		outbox: o,
		logger: metrics.ForChannel(logger, metrics.ChannelOutbox),
	}
}

// Send appends actions. An append failure is logged and the batch is lost.
func (t *Transport) Send(ctx context.Context, actions []telemetry.UserAction) {
	if len(actions) == 0 {
		return
	}
	id, err := t.outbox.Append(ctx, actions)
	if err != nil {
		t.logger.Error("failed to append telemetry batch", "count", len(actions), "error", err)
		return
	}
	t.logger.Debug("queued telemetry batch", "id", id, "count", len(actions))

	if stats, err := t.outbox.Stats(ctx); err == nil {
		metrics.SetOutboxPending(stats.Pending)
	}
}
