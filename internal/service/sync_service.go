package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
	"github.com/spec-kit/cuadrilla-dispatch/internal/integration/reclamos"
	"github.com/spec-kit/cuadrilla-dispatch/internal/observability"
	"github.com/spec-kit/cuadrilla-dispatch/internal/repository"
	apperrors "github.com/spec-kit/cuadrilla-dispatch/pkg/util"
)

// StatusUpdater pushes a status change to the Reclamos API.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, complaintID int64, update reclamos.StatusUpdate) error
}

const defaultSyncMaxAttempts = 10

// StatusSynchronizer drains the sync outbox into the Reclamos API.
type StatusSynchronizer struct {
	store       repository.Store
	client      StatusUpdater
	logger      *zap.Logger
	metrics     *observability.Metrics
	maxAttempts int
	now         func() time.Time
}

// NewStatusSynchronizer creates the synchronizer. A task that fails
// maxAttempts times is parked as FAILED.
func NewStatusSynchronizer(store repository.Store, client StatusUpdater, logger *zap.Logger, metrics *observability.Metrics, maxAttempts int) *StatusSynchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultSyncMaxAttempts
	}
	return &StatusSynchronizer{
		store:       store,
		client:      client,
		logger:      logger,
		metrics:     metrics,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Flush sends every pending task for the complaint in enqueue order. It stops
// at the first failure and returns a SYNC_FAILED error; unsent tasks stay
// pending. The flush holds a per-complaint lock in the store, so replicas
// never interleave updates for one complaint.
func (s *StatusSynchronizer) Flush(ctx context.Context, complaintID int64) error {
	// Bookkeeping must land even when the caller goes away mid-flush.
	storeCtx := context.WithoutCancel(ctx)

	var sendErr error
	err := s.store.WithTx(storeCtx, func(tx repository.Repositories) error {
		outbox := tx.SyncOutbox()
		if err := outbox.LockComplaint(storeCtx, complaintID); err != nil {
			return err
		}
		tasks, err := outbox.ListPendingByComplaint(storeCtx, complaintID)
		if err != nil {
			return err
		}

		for _, task := range tasks {
			update := reclamos.StatusUpdate{Estado: task.Status, CuadrillaID: task.CrewID}
			if err := s.client.UpdateStatus(ctx, complaintID, update); err != nil {
				sendErr = err
				return s.recordFailure(storeCtx, outbox, task, err)
			}
			if err := outbox.MarkDone(storeCtx, task.ID, s.now()); err != nil {
				// The remote update went through; a later flush resends it, which
				// the PATCH endpoint tolerates.
				return err
			}
			s.logger.Debug("complaint status synced",
				zap.Int64("complaint_id", complaintID),
				zap.String("status", string(task.Status)))
		}
		return nil
	})
	if err != nil {
		s.logger.Error("flushing sync outbox", zap.Int64("complaint_id", complaintID), zap.Error(err))
		return apperrors.NewSyncFailed(complaintID, err)
	}
	if sendErr != nil {
		return apperrors.NewSyncFailed(complaintID, sendErr)
	}
	return nil
}

func (s *StatusSynchronizer) recordFailure(ctx context.Context, outbox repository.SyncOutboxRepository, task domain.SyncTask, cause error) error {
	attempt := task.Attempts + 1
	park := attempt >= s.maxAttempts
	s.metrics.RecordSyncFailure()

	fields := []zap.Field{
		zap.Int64("complaint_id", task.ComplaintID),
		zap.String("task_id", task.ID.String()),
		zap.String("status", string(task.Status)),
		zap.Int("attempt", attempt),
		zap.Error(cause),
	}
	if park {
		s.logger.Error("complaint status sync gave up; task parked", fields...)
	} else {
		s.logger.Warn("complaint status sync failed", fields...)
	}
	return outbox.MarkFailed(ctx, task.ID, cause.Error(), s.now(), park)
}

// RetryPending flushes up to limit complaints that still have pending tasks
// and returns how many were fully synchronized.
func (s *StatusSynchronizer) RetryPending(ctx context.Context, limit int) (int, error) {
	ids, err := s.store.SyncOutbox().ListPendingComplaints(ctx, limit)
	if err != nil {
		return 0, err
	}
	flushed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return flushed, err
		}
		if err := s.Flush(ctx, id); err != nil {
			continue
		}
		flushed++
	}
	return flushed, nil
}

// PendingTasks lists unsent tasks for a complaint.
func (s *StatusSynchronizer) PendingTasks(ctx context.Context, complaintID int64) ([]domain.SyncTask, error) {
	return s.store.SyncOutbox().ListPendingByComplaint(ctx, complaintID)
}
