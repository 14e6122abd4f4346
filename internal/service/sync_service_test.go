package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
	"github.com/spec-kit/cuadrilla-dispatch/internal/integration/reclamos"
	"github.com/spec-kit/cuadrilla-dispatch/internal/observability"
	"github.com/spec-kit/cuadrilla-dispatch/internal/repository/memstore"
	apperrors "github.com/spec-kit/cuadrilla-dispatch/pkg/util"
)

// brokenComplaints rejects every update for the listed complaints.
type brokenComplaints struct {
	mu     sync.Mutex
	broken map[int64]bool
	synced []statusCall
}

func (b *brokenComplaints) UpdateStatus(_ context.Context, complaintID int64, update reclamos.StatusUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.broken[complaintID] {
		return &reclamos.StatusError{Method: "PATCH", StatusCode: 422, Body: "estado invalido"}
	}
	b.synced = append(b.synced, statusCall{ComplaintID: complaintID, Update: update})
	return nil
}

func (b *brokenComplaints) syncedIDs() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]int64, 0, len(b.synced))
	for _, c := range b.synced {
		ids = append(ids, c.ComplaintID)
	}
	return ids
}

func enqueue(t *testing.T, store *memstore.Store, complaintID int64, status domain.ComplaintStatus, at time.Time) *domain.SyncTask {
	t.Helper()
	task := domain.NewSyncTask(complaintID, status, nil, at)
	require.NoError(t, store.SyncOutbox().Enqueue(context.Background(), task))
	return task
}

func newTestSynchronizer(store *memstore.Store, client StatusUpdater, maxAttempts int) *StatusSynchronizer {
	s := NewStatusSynchronizer(store, client, nil, observability.NewMetrics(), maxAttempts)
	clock := &stepClock{cur: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	s.now = clock.Now
	return s
}

func TestRetryPendingDoesNotStarveHealthyComplaints(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	client := &brokenComplaints{broken: map[int64]bool{1: true, 2: true}}
	s := newTestSynchronizer(store, client, 100)

	at := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	for _, id := range []int64{1, 2, 3} {
		enqueue(t, store, id, domain.ComplaintStatusAssigned, at)
	}

	total := 0
	for tick := 0; tick < 2; tick++ {
		flushed, err := s.RetryPending(ctx, 2)
		require.NoError(t, err)
		total += flushed
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, []int64{3}, client.syncedIDs())

	for id, attempts := range map[int64]int{1: 2, 2: 1} {
		pending, err := s.PendingTasks(ctx, id)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, attempts, pending[0].Attempts, "complaint %d", id)
	}
}

func TestFlushParksTaskAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	client := &brokenComplaints{broken: map[int64]bool{7: true}}
	s := newTestSynchronizer(store, client, 2)
	at := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	enqueue(t, store, 7, domain.ComplaintStatusAssigned, at)

	err := s.Flush(ctx, 7)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSyncFailed))
	pending, err := s.PendingTasks(ctx, 7)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.Error(t, s.Flush(ctx, 7))
	pending, err = s.PendingTasks(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, pending, "task is parked once its attempts run out")

	flushed, err := s.RetryPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, flushed)
	assert.Empty(t, client.syncedIDs())

	// A fresh transition for the same complaint is not blocked by the parked task.
	client.mu.Lock()
	client.broken[7] = false
	client.mu.Unlock()
	enqueue(t, store, 7, domain.ComplaintStatusInProgress, at)
	require.NoError(t, s.Flush(ctx, 7))
	assert.Equal(t, []int64{7}, client.syncedIDs())
}

func TestFlushFollowsEnqueueOrderNotTimestamps(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	client := &brokenComplaints{broken: map[int64]bool{}}
	s := newTestSynchronizer(store, client, 0)

	// A clock step backwards between enqueues must not reorder the pushes.
	at := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	enqueue(t, store, 4, domain.ComplaintStatusAssigned, at)
	enqueue(t, store, 4, domain.ComplaintStatusInProgress, at.Add(-time.Hour))
	enqueue(t, store, 4, domain.ComplaintStatusCompleted, at.Add(-time.Hour))

	require.NoError(t, s.Flush(ctx, 4))
	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.synced, 3)
	assert.Equal(t, domain.ComplaintStatusAssigned, client.synced[0].Update.Estado)
	assert.Equal(t, domain.ComplaintStatusInProgress, client.synced[1].Update.Estado)
	assert.Equal(t, domain.ComplaintStatusCompleted, client.synced[2].Update.Estado)
}

func TestFlushRecordsFailureWhenCallerCancels(t *testing.T) {
	store := memstore.New()
	s := newTestSynchronizer(store, updaterFunc(func(ctx context.Context, _ int64, _ reclamos.StatusUpdate) error {
		return ctx.Err()
	}), 0)
	enqueue(t, store, 8, domain.ComplaintStatusAssigned, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Flush(ctx, 8)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSyncFailed))

	pending, err := s.PendingTasks(context.Background(), 8)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
}

type updaterFunc func(ctx context.Context, complaintID int64, update reclamos.StatusUpdate) error

func (f updaterFunc) UpdateStatus(ctx context.Context, complaintID int64, update reclamos.StatusUpdate) error {
	return f(ctx, complaintID, update)
}
