package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PendingSyncer re-sends status pushes left in the outbox.
type PendingSyncer interface {
	RetryPending(ctx context.Context, limit int) (int, error)
}

// SyncRetryWorker periodically drains the sync outbox.
type SyncRetryWorker struct {
	syncer    PendingSyncer
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

func NewSyncRetryWorker(syncer PendingSyncer, logger *zap.Logger, interval time.Duration, batchSize int) *SyncRetryWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SyncRetryWorker{syncer: syncer, logger: logger, interval: interval, batchSize: batchSize}
}

// Run ticks until ctx is cancelled.
func (w *SyncRetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.Info("sync retry worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sync retry worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SyncRetryWorker) tick(ctx context.Context) {
	flushed, err := w.syncer.RetryPending(ctx, w.batchSize)
	if err != nil && ctx.Err() == nil {
		w.logger.Error("retrying pending status syncs", zap.Error(err))
		return
	}
	if flushed > 0 {
		w.logger.Info("pending status syncs delivered", zap.Int("complaints", flushed))
	}
}
