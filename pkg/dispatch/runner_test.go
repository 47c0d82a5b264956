package dispatch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandstone-edu/webhooks/pkg/dispatch"
)

func newRunner(t *testing.T, stores *dispatch.MemoryStores, opts ...dispatch.RunnerOption) *dispatch.Runner {
	t.Helper()
	return dispatch.NewRunner(newProcessor(t, stores), stores.Events, stores.Deliveries, discardLogger(), opts...)
}

func TestRunner_BatchTallies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	okSrv := statusServer(t, http.StatusOK)
	flakySrv := statusServer(t, http.StatusServiceUnavailable)
	deadSrv := statusServer(t, http.StatusGone)

	stores := dispatch.NewMemoryStores()
	createSubscription(t, stores, okSrv.URL, func(s *dispatch.Subscription) {
		s.EventTypes = []dispatch.EventType{dispatch.EventUserCreated}
	})
	createSubscription(t, stores, flakySrv.URL, func(s *dispatch.Subscription) {
		s.EventTypes = []dispatch.EventType{dispatch.EventEssaySubmitted}
	})
	createSubscription(t, stores, deadSrv.URL, func(s *dispatch.Subscription) {
		s.EventTypes = []dispatch.EventType{dispatch.EventQuizCompleted}
	})

	createEvent(t, stores, dispatch.EventUserCreated)
	createEvent(t, stores, dispatch.EventEssaySubmitted)
	createEvent(t, stores, dispatch.EventQuizCompleted)

	stats, err := newRunner(t, stores).RunBatch(ctx)
	require.NoError(t, err)

	assert.Equal(t, dispatch.BatchStats{Processed: 3, Delivered: 1, Retried: 1, Failed: 1}, stats)
}

func TestRunner_EmptyQueue(t *testing.T) {
	t.Parallel()

	stores := dispatch.NewMemoryStores()
	stats, err := newRunner(t, stores).RunBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats)
}

func TestRunner_BatchSizeLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := statusServer(t, http.StatusOK)

	stores := dispatch.NewMemoryStores()
	createSubscription(t, stores, srv.URL)
	for range 5 {
		createEvent(t, stores, dispatch.EventUserCreated)
	}

	runner := newRunner(t, stores, dispatch.WithBatchSize(2))

	stats, err := runner.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)

	stats, err = runner.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)

	stats, err = runner.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
}

func TestRunner_ProcessesOldestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		order = append(order, r.Header.Get("X-Webhook-Id"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	stores := dispatch.NewMemoryStores()
	createSubscription(t, stores, srv.URL)

	base := time.Now().UTC().Add(-time.Minute)
	var want []string
	for i := range 3 {
		event, err := dispatch.NewEvent(dispatch.EventUserCreated, nil)
		require.NoError(t, err)
		event.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, stores.Events.Create(ctx, event))
		want = append(want, event.ID.String())
	}

	_, err := newRunner(t, stores).RunBatch(ctx)
	require.NoError(t, err)

	assert.Equal(t, want, order)
}

func TestRunner_SkipsFutureRetries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := statusServer(t, http.StatusOK)

	stores := dispatch.NewMemoryStores()
	createSubscription(t, stores, srv.URL)

	due := createEvent(t, stores, dispatch.EventUserCreated)
	notYet := createEvent(t, stores, dispatch.EventUserCreated)
	require.NoError(t, stores.Events.ScheduleRetry(ctx, notYet.ID, 1, time.Now().UTC().Add(time.Hour), "endpoint down"))

	stats, err := newRunner(t, stores).RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)

	stored, err := stores.Events.Get(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, dispatch.EventDelivered, stored.Status)

	stored, err = stores.Events.Get(ctx, notYet.ID)
	require.NoError(t, err)
	assert.Equal(t, dispatch.EventRetrying, stored.Status)
}

func TestRunner_CleanupPurgesTerminalOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	stores := dispatch.NewMemoryStores()
	old := time.Now().UTC().Add(-48 * time.Hour)

	makeEvent := func(status dispatch.EventStatus, createdAt time.Time) *dispatch.Event {
		event, err := dispatch.NewEvent(dispatch.EventUserCreated, nil)
		require.NoError(t, err)
		event.CreatedAt = createdAt
		require.NoError(t, stores.Events.Create(ctx, event))
		switch status {
		case dispatch.EventDelivered:
			require.NoError(t, stores.Events.MarkDelivered(ctx, event.ID, createdAt))
		case dispatch.EventFailed:
			require.NoError(t, stores.Events.MarkFailed(ctx, event.ID, "exhausted", createdAt))
		}
		return event
	}

	oldDelivered := makeEvent(dispatch.EventDelivered, old)
	oldFailed := makeEvent(dispatch.EventFailed, old)
	oldPending := makeEvent(dispatch.EventPending, old)
	recentDelivered := makeEvent(dispatch.EventDelivered, time.Now().UTC())

	require.NoError(t, stores.Deliveries.Create(ctx, &dispatch.Delivery{
		ID: uuid.New(), EventID: oldDelivered.ID, CompletedAt: old,
	}))
	require.NoError(t, stores.Deliveries.Create(ctx, &dispatch.Delivery{
		ID: uuid.New(), EventID: recentDelivered.ID, CompletedAt: time.Now().UTC(),
	}))

	runner := newRunner(t, stores, dispatch.WithRetention(24*time.Hour))

	events, deliveries, err := runner.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), events)
	assert.Equal(t, int64(1), deliveries)

	_, err = stores.Events.Get(ctx, oldDelivered.ID)
	assert.ErrorIs(t, err, dispatch.ErrEventNotFound)
	_, err = stores.Events.Get(ctx, oldFailed.ID)
	assert.ErrorIs(t, err, dispatch.ErrEventNotFound)

	// Non-terminal events survive retention regardless of age.
	_, err = stores.Events.Get(ctx, oldPending.ID)
	assert.NoError(t, err)
	_, err = stores.Events.Get(ctx, recentDelivered.ID)
	assert.NoError(t, err)

	rows, err := stores.Deliveries.ListByEvent(ctx, recentDelivered.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
