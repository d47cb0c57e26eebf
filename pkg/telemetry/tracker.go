// Package telemetry buffers user interactions and hands them to a Transport
// in batches: on a fixed interval, when the application is hidden, on an
// explicit Flush, and once more on Destroy. Urgent actions are additionally
// sent on their own the moment they are recorded.
package telemetry

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aixgo-dev/travelintel/internal/observability"
	"github.com/aixgo-dev/travelintel/pkg/identity"
	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
)

const (
	// DefaultFlushInterval is the periodic flush interval.
	DefaultFlushInterval = 30 * time.Second

	// DefaultSendTimeout bounds a single Transport.Send call.
	DefaultSendTimeout = 15 * time.Second
)

// Tracker owns the event buffer. It is safe for concurrent use.
type Tracker struct {
	transport   Transport
	ident       *identity.SessionContext
	logger      *slog.Logger
	interval    time.Duration
	sendTimeout time.Duration
	now         func() time.Time

	mu        sync.Mutex
	buffer    []UserAction
	destroyed bool

	stopChan chan struct{}
	stopOnce sync.Once
	loop     sync.WaitGroup
	inflight sync.WaitGroup
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithFlushInterval overrides DefaultFlushInterval.
func WithFlushInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithSendTimeout overrides DefaultSendTimeout.
func WithSendTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.sendTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates a tracker and starts its periodic flush.
func NewTracker(transport Transport, ident *identity.SessionContext, opts ...Option) *Tracker {
	t := &Tracker{
		transport:   transport,
		ident:       ident,
		logger:      slog.Default(),
		interval:    DefaultFlushInterval,
		sendTimeout: DefaultSendTimeout,
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = metrics.ForChannel(t.logger, metrics.ChannelTelemetry)

	t.loop.Add(1)
	go t.run()

	return t
}

// SessionID returns the session id stamped on every action.
func (t *Tracker) SessionID() string {
	return t.ident.SessionID()
}

// Record stamps and buffers one action. It never blocks on delivery. Unknown
// types and records after Destroy are dropped.
func (t *Tracker) Record(actionType ActionType, data map[string]any) {
	if !actionType.Valid() {
		t.logger.Warn("dropping action with unknown type", "type", string(actionType))
		metrics.RecordDroppedAction("unknown_type")
		return
	}

	action := UserAction{
		ID:        ulid.Make().String(),
		Type:      actionType,
		Data:      maps.Clone(data),
		Timestamp: t.now().UTC(),
		UserID:    t.ident.UserID(),
		SessionID: t.ident.SessionID(),
	}
	if action.Data == nil {
		action.Data = map[string]any{}
	}

	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		metrics.RecordDroppedAction("destroyed")
		return
	}
	t.buffer = append(t.buffer, action)
	pending := len(t.buffer)
	if actionType.Urgent() {
		t.inflight.Add(1)
	}
	t.mu.Unlock()

	metrics.RecordAction(string(actionType))
	metrics.SetBufferSize(pending)

	if actionType.Urgent() {
		go t.send(TriggerUrgent, []UserAction{action})
	}
}

// SetVisibility reports a visibility change. Becoming hidden flushes.
func (t *Tracker) SetVisibility(v Visibility) {
	if v == Hidden {
		t.flush(TriggerVisibility)
	}
}

// Flush dispatches everything buffered so far.
func (t *Tracker) Flush() {
	t.flush(TriggerManual)
}

// Pending returns the number of buffered actions.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}

// Destroy stops the periodic flush, flushes once more and waits for in-flight
// sends to finish or ctx to end. Later calls are no-ops.
func (t *Tracker) Destroy(ctx context.Context) error {
	first := false
	t.stopOnce.Do(func() {
		first = true
		close(t.stopChan)
	})
	if !first {
		return nil
	}
	t.loop.Wait()

	t.mu.Lock()
	t.destroyed = true
	t.mu.Unlock()

	t.flush(TriggerDestroy)

	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.logger.Warn("telemetry sends still in flight at shutdown")
		return ctx.Err()
	}
}

func (t *Tracker) run() {
	defer t.loop.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.flush(TriggerTimer)
		case <-t.stopChan:
			return
		}
	}
}

// flush swaps the buffer for an empty one under the lock and sends the old
// contents outside it, so concurrent triggers never share an action.
func (t *Tracker) flush(trigger string) {
	t.mu.Lock()
	if len(t.buffer) == 0 {
		t.mu.Unlock()
		return
	}
	batch := t.buffer
	t.buffer = nil
	t.inflight.Add(1)
	t.mu.Unlock()

	metrics.SetBufferSize(0)
	metrics.RecordFlush(trigger, len(batch))

	go t.send(trigger, batch)
}

// send runs one Transport call. Caller has done inflight.Add(1).
func (t *Tracker) send(trigger string, batch []UserAction) {
	defer t.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), t.sendTimeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "telemetry.send",
		attribute.String("telemetry.trigger", trigger),
		attribute.Int("telemetry.batch_size", len(batch)),
	)
	defer span.End()

	t.transport.Send(ctx, batch)
}
