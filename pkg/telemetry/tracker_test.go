package telemetry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/travelintel/pkg/identity"
	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
)

// recordingTransport captures every Send call.
type recordingTransport struct {
	mu      sync.Mutex
	batches [][]UserAction
	block   chan struct{}
}

func (r *recordingTransport) Send(ctx context.Context, actions []UserAction) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, actions)
}

func (r *recordingTransport) snapshot() [][]UserAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]UserAction, len(r.batches))
	copy(out, r.batches)
	return out
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func newTestTracker(t *testing.T, transport Transport, opts ...Option) (*Tracker, *identity.SessionContext) {
	t.Helper()
	ident := identity.NewSessionContextWithID("session-1")
	opts = append([]Option{WithFlushInterval(time.Hour), WithLogger(metrics.DiscardLogger())}, opts...)
	tracker := NewTracker(transport, ident, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tracker.Destroy(ctx)
	})
	return tracker, ident
}

func TestTrackerBatchPreservesOrderAndSession(t *testing.T) {
	transport := &recordingTransport{}
	tracker, _ := newTestTracker(t, transport)

	types := []ActionType{ActionPageView, ActionSearch, ActionTripClick, ActionWishlistAdd, ActionLayoutView}
	for i, typ := range types {
		tracker.Record(typ, map[string]any{"seq": i})
	}
	assert.Equal(t, len(types), tracker.Pending())

	tracker.Flush()
	require.Eventually(t, func() bool { return transport.count() == 1 }, time.Second, 5*time.Millisecond)

	batch := transport.snapshot()[0]
	require.Len(t, batch, len(types))
	for i, action := range batch {
		assert.Equal(t, types[i], action.Type)
		assert.Equal(t, i, action.Data["seq"])
		assert.Equal(t, "session-1", action.SessionID)
		assert.NotEmpty(t, action.ID)
		assert.False(t, action.Timestamp.IsZero())
	}
	assert.Equal(t, 0, tracker.Pending())
}

func TestTrackerFlushTriggersNeverShareActions(t *testing.T) {
	transport := &recordingTransport{}
	tracker, _ := newTestTracker(t, transport)

	tracker.Record(ActionPageView, nil)
	tracker.Record(ActionSearch, nil)

	tracker.SetVisibility(Hidden)
	tracker.Flush()
	tracker.SetVisibility(Hidden)

	require.Eventually(t, func() bool { return transport.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, transport.count())
	assert.Len(t, transport.snapshot()[0], 2)
}

func TestTrackerConcurrentTriggers(t *testing.T) {
	transport := &recordingTransport{}
	tracker, _ := newTestTracker(t, transport, WithFlushInterval(2*time.Millisecond))

	const workers, perWorker = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tracker.Record(ActionPageView, map[string]any{"w": w, "i": i})
				if i%10 == 0 {
					tracker.SetVisibility(Hidden)
				}
			}
		}(w)
	}
	wg.Wait()

	require.NoError(t, tracker.Destroy(context.Background()))

	seen := make(map[string]bool)
	for _, batch := range transport.snapshot() {
		for _, a := range batch {
			require.False(t, seen[a.ID], "action %s delivered twice", a.ID)
			seen[a.ID] = true
		}
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestTrackerUrgentActionDeliveredTwice(t *testing.T) {
	for _, typ := range []ActionType{ActionBookingAttempt, ActionChatInteraction} {
		t.Run(string(typ), func(t *testing.T) {
			transport := &recordingTransport{}
			tracker, _ := newTestTracker(t, transport)

			tracker.Record(typ, map[string]any{"tripId": "t-1"})

			require.Eventually(t, func() bool { return transport.count() == 1 }, time.Second, 5*time.Millisecond)
			immediate := transport.snapshot()[0]
			require.Len(t, immediate, 1)
			assert.Equal(t, typ, immediate[0].Type)
			assert.Equal(t, 1, tracker.Pending())

			tracker.Flush()
			require.Eventually(t, func() bool { return transport.count() == 2 }, time.Second, 5*time.Millisecond)

			batched := transport.snapshot()[1]
			require.Len(t, batched, 1)
			assert.Equal(t, immediate[0].ID, batched[0].ID)
		})
	}
}

func TestTrackerPeriodicFlush(t *testing.T) {
	transport := &recordingTransport{}
	tracker, _ := newTestTracker(t, transport, WithFlushInterval(20*time.Millisecond))

	tracker.Record(ActionAnalyticsView, nil)

	require.Eventually(t, func() bool { return transport.count() == 1 }, time.Second, 5*time.Millisecond)

	// empty buffer produces no sends
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, transport.count())
}

func TestTrackerStampsUserID(t *testing.T) {
	transport := &recordingTransport{}
	tracker, ident := newTestTracker(t, transport)

	tracker.Record(ActionPageView, nil)
	ident.Install("tok", "42")
	tracker.Record(ActionPageView, nil)
	ident.Clear()
	tracker.Record(ActionPageView, nil)

	tracker.Flush()
	require.Eventually(t, func() bool { return transport.count() == 1 }, time.Second, 5*time.Millisecond)

	batch := transport.snapshot()[0]
	require.Len(t, batch, 3)
	assert.Equal(t, "", batch[0].UserID)
	assert.Equal(t, "42", batch[1].UserID)
	assert.Equal(t, "", batch[2].UserID)
}

func TestTrackerRecordCopiesData(t *testing.T) {
	transport := &recordingTransport{}
	tracker, _ := newTestTracker(t, transport)

	data := map[string]any{"query": "kyoto"}
	tracker.Record(ActionSearch, data)
	data["query"] = "mutated"

	tracker.Flush()
	require.Eventually(t, func() bool { return transport.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "kyoto", transport.snapshot()[0][0].Data["query"])
}

func TestTrackerDropsUnknownType(t *testing.T) {
	transport := &recordingTransport{}
	tracker, _ := newTestTracker(t, transport)

	tracker.Record(ActionType("mouse_wiggle"), nil)
	assert.Equal(t, 0, tracker.Pending())
}

func TestTrackerDestroy(t *testing.T) {
	transport := &recordingTransport{}
	tracker, _ := newTestTracker(t, transport)

	for i := 0; i < 3; i++ {
		tracker.Record(ActionSearch, map[string]any{"i": i})
	}

	require.NoError(t, tracker.Destroy(context.Background()))
	require.Equal(t, 1, transport.count())
	assert.Len(t, transport.snapshot()[0], 3)

	tracker.Record(ActionSearch, nil)
	assert.Equal(t, 0, tracker.Pending())

	require.NoError(t, tracker.Destroy(context.Background()))
	assert.Equal(t, 1, transport.count())
}

func TestTrackerDestroyHonoursContext(t *testing.T) {
	transport := &recordingTransport{block: make(chan struct{})}
	tracker, _ := newTestTracker(t, transport)
	defer close(transport.block)

	tracker.Record(ActionPageView, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tracker.Destroy(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestActionTypes(t *testing.T) {
	all := ActionTypes()
	assert.Len(t, all, 15)
	for _, typ := range all {
		assert.True(t, typ.Valid(), typ)
	}

	var urgent []ActionType
	for _, typ := range all {
		if typ.Urgent() {
			urgent = append(urgent, typ)
		}
	}
	assert.ElementsMatch(t, []ActionType{ActionBookingAttempt, ActionChatInteraction}, urgent)
	assert.False(t, ActionType("").Valid())
}

func ExampleTracker() {
	ident := identity.NewSessionContextWithID("example")
	done := make(chan struct{})
	tracker := NewTracker(TransportFunc(func(ctx context.Context, actions []UserAction) {
		fmt.Println(len(actions), actions[0].Type, actions[0].SessionID)
		close(done)
	}), ident, WithLogger(metrics.DiscardLogger()))

	tracker.Record(ActionPageView, map[string]any{"page": "/trips"})
	tracker.Flush()
	<-done
	_ = tracker.Destroy(context.Background())
	// Output: 1 page_view example
}
