package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
)

// AssignmentRepository persists assignment records.
type AssignmentRepository interface {
	Create(ctx context.Context, rec *domain.AssignmentRecord) error
	GetByID(ctx context.Context, id int64) (*domain.AssignmentRecord, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.AssignmentRecord, error)
	UpdateStatus(ctx context.Context, rec *domain.AssignmentRecord) error
	// CountOpenByCrew counts the crew's records whose status is not terminal.
	CountOpenByCrew(ctx context.Context, crewID int64) (int, error)
	ListByCrew(ctx context.Context, crewID int64, limit, offset int) ([]domain.AssignmentRecord, error)
}

type assignmentRepository struct {
	q Querier
}

const assignmentColumns = `id, reclamo_id, cuadrilla_id, estado, fecha_registro, fecha_asignacion,
               fecha_en_proceso, fecha_completado, tipo, fecha_reclamo, prioridad, detalle, direccion, barrio`

func (r *assignmentRepository) Create(ctx context.Context, rec *domain.AssignmentRecord) error {
	const query = `
        INSERT INTO registro_reclamos (reclamo_id, cuadrilla_id, estado, fecha_registro, fecha_asignacion,
            tipo, fecha_reclamo, prioridad, detalle, direccion, barrio)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id`
	return r.q.QueryRow(ctx, query,
		rec.ComplaintID,
		rec.CrewID,
		rec.Status,
		rec.RegisteredAt,
		rec.AssignedAt,
		rec.Snapshot.Type,
		rec.Snapshot.Date,
		rec.Snapshot.Priority,
		rec.Snapshot.Detail,
		rec.Snapshot.Address,
		rec.Snapshot.Neighborhood,
	).Scan(&rec.ID)
}

func (r *assignmentRepository) GetByID(ctx context.Context, id int64) (*domain.AssignmentRecord, error) {
	query := `SELECT ` + assignmentColumns + ` FROM registro_reclamos WHERE id=$1`
	return scanAssignment(r.q.QueryRow(ctx, query, id))
}

func (r *assignmentRepository) GetForUpdate(ctx context.Context, id int64) (*domain.AssignmentRecord, error) {
	query := `SELECT ` + assignmentColumns + ` FROM registro_reclamos WHERE id=$1 FOR UPDATE`
	return scanAssignment(r.q.QueryRow(ctx, query, id))
}

func (r *assignmentRepository) UpdateStatus(ctx context.Context, rec *domain.AssignmentRecord) error {
	const query = `
        UPDATE registro_reclamos SET estado=$1, fecha_en_proceso=$2, fecha_completado=$3
        WHERE id=$4`
	cmd, err := r.q.Exec(ctx, query, rec.Status, rec.InProgressAt, rec.CompletedAt, rec.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *assignmentRepository) CountOpenByCrew(ctx context.Context, crewID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM registro_reclamos WHERE cuadrilla_id=$1 AND NOT (estado = ANY($2))`
	var count int
	err := r.q.QueryRow(ctx, query, crewID, terminalStatuses()).Scan(&count)
	return count, err
}

func (r *assignmentRepository) ListByCrew(ctx context.Context, crewID int64, limit, offset int) ([]domain.AssignmentRecord, error) {
	limit, offset = page(limit, offset, 50)
	query := fmt.Sprintf(`SELECT %s FROM registro_reclamos WHERE cuadrilla_id=$1
        ORDER BY fecha_asignacion DESC, id DESC LIMIT %d OFFSET %d`, assignmentColumns, limit, offset)
	rows, err := r.q.Query(ctx, query, crewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AssignmentRecord
	for rows.Next() {
		rec, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

func scanAssignment(row pgx.Row) (*domain.AssignmentRecord, error) {
	var rec domain.AssignmentRecord
	if err := row.Scan(
		&rec.ID,
		&rec.ComplaintID,
		&rec.CrewID,
		&rec.Status,
		&rec.RegisteredAt,
		&rec.AssignedAt,
		&rec.InProgressAt,
		&rec.CompletedAt,
		&rec.Snapshot.Type,
		&rec.Snapshot.Date,
		&rec.Snapshot.Priority,
		&rec.Snapshot.Detail,
		&rec.Snapshot.Address,
		&rec.Snapshot.Neighborhood,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}

func terminalStatuses() []string {
	return []string{string(domain.AssignmentStatusCompleted)}
}
