package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
)

// SyncOutboxRepository stores status pushes that still have to reach the
// Reclamos API.
type SyncOutboxRepository interface {
	Enqueue(ctx context.Context, task *domain.SyncTask) error
	// LockComplaint serializes flushes of one complaint until the surrounding
	// transaction ends. It must run inside WithTx.
	LockComplaint(ctx context.Context, complaintID int64) error
	// ListPendingByComplaint returns pending tasks in enqueue order.
	ListPendingByComplaint(ctx context.Context, complaintID int64) ([]domain.SyncTask, error)
	// ListPendingComplaints returns complaint ids with pending tasks. Never
	// attempted complaints come first, then the least recently attempted, so
	// complaints that keep failing cannot hold the head of every batch.
	ListPendingComplaints(ctx context.Context, limit int) ([]int64, error)
	MarkDone(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkFailed records a failed attempt. With park set the task moves to
	// FAILED and is not retried again.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, at time.Time, park bool) error
}

type syncOutboxRepository struct {
	q Querier
}

const syncTaskColumns = `id, seq, reclamo_id, estado, cuadrilla_id, state, attempts, last_error, last_attempt_at, created_at, synced_at`

func (r *syncOutboxRepository) Enqueue(ctx context.Context, task *domain.SyncTask) error {
	const query = `
        INSERT INTO reclamo_sync_outbox (id, reclamo_id, estado, cuadrilla_id, state, attempts, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING seq`
	return r.q.QueryRow(ctx, query,
		task.ID,
		task.ComplaintID,
		task.Status,
		task.CrewID,
		task.State,
		task.Attempts,
		task.CreatedAt,
	).Scan(&task.Seq)
}

func (r *syncOutboxRepository) LockComplaint(ctx context.Context, complaintID int64) error {
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, complaintID)
	return err
}

func (r *syncOutboxRepository) ListPendingByComplaint(ctx context.Context, complaintID int64) ([]domain.SyncTask, error) {
	const query = `
        SELECT ` + syncTaskColumns + `
        FROM reclamo_sync_outbox WHERE reclamo_id=$1 AND state=$2 ORDER BY seq ASC`
	rows, err := r.q.Query(ctx, query, complaintID, domain.SyncTaskPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SyncTask
	for rows.Next() {
		var task domain.SyncTask
		if err := rows.Scan(
			&task.ID,
			&task.Seq,
			&task.ComplaintID,
			&task.Status,
			&task.CrewID,
			&task.State,
			&task.Attempts,
			&task.LastError,
			&task.LastAttemptAt,
			&task.CreatedAt,
			&task.SyncedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	return result, rows.Err()
}

func (r *syncOutboxRepository) ListPendingComplaints(ctx context.Context, limit int) ([]int64, error) {
	limit, _ = page(limit, 0, 50)
	const query = `
        SELECT reclamo_id FROM reclamo_sync_outbox WHERE state=$1
        GROUP BY reclamo_id
        ORDER BY MAX(last_attempt_at) ASC NULLS FIRST, MIN(seq) ASC
        LIMIT $2`
	rows, err := r.q.Query(ctx, query, domain.SyncTaskPending, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *syncOutboxRepository) MarkDone(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `
        UPDATE reclamo_sync_outbox
        SET state=$1, synced_at=$2, last_attempt_at=$2, attempts=attempts+1, last_error=''
        WHERE id=$3`
	cmd, err := r.q.Exec(ctx, query, domain.SyncTaskDone, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *syncOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, at time.Time, park bool) error {
	state := domain.SyncTaskPending
	if park {
		state = domain.SyncTaskFailed
	}
	const query = `
        UPDATE reclamo_sync_outbox
        SET state=$1, attempts=attempts+1, last_error=$2, last_attempt_at=$3
        WHERE id=$4`
	cmd, err := r.q.Exec(ctx, query, state, errMsg, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
