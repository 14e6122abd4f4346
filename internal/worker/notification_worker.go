package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
	"github.com/spec-kit/cuadrilla-dispatch/internal/queue"
)

// JobSource is the consumer side of the notification stream.
type JobSource interface {
	Read(ctx context.Context) ([]queue.NotificationJob, error)
	// Claim takes over jobs another consumer read but never settled.
	Claim(ctx context.Context) ([]queue.NotificationJob, error)
	Ack(ctx context.Context, job queue.NotificationJob) error
	Requeue(ctx context.Context, job queue.NotificationJob, errMsg string) error
	DeadLetter(ctx context.Context, job queue.NotificationJob, errMsg string) error
}

// Deliverer sends one complainant notification.
type Deliverer interface {
	Deliver(ctx context.Context, complaintID int64, status domain.AssignmentStatus) error
}

// NotificationWorker drains queued notification jobs.
type NotificationWorker struct {
	source      JobSource
	deliverer   Deliverer
	logger      *zap.Logger
	maxAttempts  int
	timeout      time.Duration
	reclaimEvery time.Duration
}

// NewNotificationWorker builds the worker. Every reclaimEvery it also claims
// stale jobs left unacked by a crashed consumer; zero means every 30s.
func NewNotificationWorker(source JobSource, deliverer Deliverer, logger *zap.Logger, maxAttempts int, timeout, reclaimEvery time.Duration) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if reclaimEvery <= 0 {
		reclaimEvery = 30 * time.Second
	}
	return &NotificationWorker{
		source:       source,
		deliverer:    deliverer,
		logger:       logger,
		maxAttempts:  maxAttempts,
		timeout:      timeout,
		reclaimEvery: reclaimEvery,
	}
}

// Run reads and delivers until ctx is cancelled.
func (w *NotificationWorker) Run(ctx context.Context) {
	w.logger.Info("notification worker started")
	defer w.logger.Info("notification worker stopped")
	var lastReclaim time.Time
	for {
		if ctx.Err() != nil {
			return
		}
		if time.Since(lastReclaim) >= w.reclaimEvery {
			w.reclaim(ctx)
			lastReclaim = time.Now()
		}
		jobs, err := w.source.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("reading notification jobs", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}
		for _, job := range jobs {
			w.handle(ctx, job)
		}
	}
}

func (w *NotificationWorker) reclaim(ctx context.Context) {
	jobs, err := w.source.Claim(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("reclaiming stale notification jobs", zap.Error(err))
		}
		return
	}
	for _, job := range jobs {
		w.handle(ctx, job)
	}
}

func (w *NotificationWorker) handle(ctx context.Context, job queue.NotificationJob) {
	logger := w.logger.With(
		zap.String("job_id", job.ID),
		zap.Int64("complaint_id", job.ComplaintID),
		zap.Int("attempt", job.Attempt))

	// Reclaimed jobs whose earlier deliveries never settled can arrive past
	// the limit.
	if job.Attempt > w.maxAttempts {
		logger.Error("notification job exceeded attempts before delivery")
		if dlqErr := w.source.DeadLetter(ctx, job, "delivery never settled"); dlqErr != nil {
			logger.Error("dead-lettering notification job", zap.Error(dlqErr))
		}
		return
	}

	deliverCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		deliverCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	err := w.deliverer.Deliver(deliverCtx, job.ComplaintID, job.Status)
	switch {
	case err == nil:
		if ackErr := w.source.Ack(ctx, job); ackErr != nil {
			logger.Error("acking notification job", zap.Error(ackErr))
		}
	case job.Attempt < w.maxAttempts:
		if reqErr := w.source.Requeue(ctx, job, err.Error()); reqErr != nil {
			logger.Error("requeueing notification job", zap.Error(reqErr))
		}
	default:
		logger.Error("notification job exhausted retries", zap.Error(err))
		if dlqErr := w.source.DeadLetter(ctx, job, err.Error()); dlqErr != nil {
			logger.Error("dead-lettering notification job", zap.Error(dlqErr))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
