package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
	"github.com/spec-kit/cuadrilla-dispatch/internal/queue"
)

type fakeSource struct {
	mu       sync.Mutex
	batches  [][]queue.NotificationJob
	stale    []queue.NotificationJob
	claims   int
	acked    []string
	requeued []queue.NotificationJob
	dead     []queue.NotificationJob
}

func (s *fakeSource) Read(ctx context.Context) ([]queue.NotificationJob, error) {
	s.mu.Lock()
	if len(s.batches) > 0 {
		batch := s.batches[0]
		s.batches = s.batches[1:]
		s.mu.Unlock()
		return batch, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *fakeSource) Claim(context.Context) ([]queue.NotificationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
	jobs := s.stale
	s.stale = nil
	return jobs, nil
}

func (s *fakeSource) Ack(_ context.Context, job queue.NotificationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, job.ID)
	return nil
}

func (s *fakeSource) Requeue(_ context.Context, job queue.NotificationJob, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requeued = append(s.requeued, job)
	return nil
}

func (s *fakeSource) DeadLetter(_ context.Context, job queue.NotificationJob, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = append(s.dead, job)
	return nil
}

type fakeDeliverer struct {
	failFor map[int64]bool
}

func (d fakeDeliverer) Deliver(_ context.Context, complaintID int64, _ domain.AssignmentStatus) error {
	if d.failFor[complaintID] {
		return errors.New("provider 500")
	}
	return nil
}

func TestNotificationWorkerRoutesOutcomes(t *testing.T) {
	source := &fakeSource{batches: [][]queue.NotificationJob{{
		{ID: "1-0", ComplaintID: 1, Status: domain.AssignmentStatusAssigned, Attempt: 1},
		{ID: "2-0", ComplaintID: 2, Status: domain.AssignmentStatusAssigned, Attempt: 1},
		{ID: "3-0", ComplaintID: 3, Status: domain.AssignmentStatusAssigned, Attempt: 3},
	}}}
	w := NewNotificationWorker(source, fakeDeliverer{failFor: map[int64]bool{2: true, 3: true}}, nil, 3, time.Second, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return len(source.acked)+len(source.requeued)+len(source.dead) == 3
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"1-0"}, source.acked)
	require.Len(t, source.requeued, 1)
	assert.Equal(t, int64(2), source.requeued[0].ComplaintID)
	require.Len(t, source.dead, 1)
	assert.Equal(t, int64(3), source.dead[0].ComplaintID)
}

type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []int64
}

func (d *recordingDeliverer) Deliver(_ context.Context, complaintID int64, _ domain.AssignmentStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, complaintID)
	return nil
}

func TestNotificationWorkerDeliversReclaimedJobs(t *testing.T) {
	source := &fakeSource{stale: []queue.NotificationJob{
		{ID: "7-0", ComplaintID: 7, Status: domain.AssignmentStatusCompleted, Attempt: 2},
		{ID: "8-0", ComplaintID: 8, Status: domain.AssignmentStatusCompleted, Attempt: 4},
	}}
	deliverer := &recordingDeliverer{}
	w := NewNotificationWorker(source, deliverer, nil, 3, time.Second, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return len(source.acked)+len(source.dead) == 2
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []string{"7-0"}, source.acked)
	require.Len(t, source.dead, 1)
	assert.Equal(t, "8-0", source.dead[0].ID)
	deliverer.mu.Lock()
	defer deliverer.mu.Unlock()
	assert.Equal(t, []int64{7}, deliverer.delivered, "jobs past the limit are parked undelivered")
}

func TestNotificationWorkerReclaimsPeriodically(t *testing.T) {
	source := &fakeSource{batches: [][]queue.NotificationJob{{}, {}, {}}}
	w := NewNotificationWorker(source, &recordingDeliverer{}, nil, 3, time.Second, time.Nanosecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return source.claims >= 3
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

type fakeSyncer struct {
	mu    sync.Mutex
	calls int
	limit int
}

func (s *fakeSyncer) RetryPending(_ context.Context, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.limit = limit
	return 1, nil
}

func TestSyncRetryWorkerTicks(t *testing.T) {
	syncer := &fakeSyncer{}
	w := NewSyncRetryWorker(syncer, nil, 5*time.Millisecond, 25)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		syncer.mu.Lock()
		defer syncer.mu.Unlock()
		return syncer.calls >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	assert.Equal(t, 25, syncer.limit)
}
