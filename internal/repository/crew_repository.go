package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
)

// CrewRepository handles persistence for crews.
type CrewRepository interface {
	Create(ctx context.Context, crew *domain.Crew) error
	GetByID(ctx context.Context, id int64) (*domain.Crew, error)
	// GetForUpdate reads the crew and locks its row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*domain.Crew, error)
	UpdateLoad(ctx context.Context, crew *domain.Crew) error
	List(ctx context.Context, limit, offset int) ([]domain.Crew, error)
}

type crewRepository struct {
	q Querier
}

const crewColumns = `id, nombre, telefono, limite_simultaneo, disponible, ultima_asignacion,
               reclamos_asignados, created_at, updated_at`

func (r *crewRepository) Create(ctx context.Context, crew *domain.Crew) error {
	const query = `
        INSERT INTO cuadrillas (nombre, telefono, limite_simultaneo, disponible, reclamos_asignados)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	ids := crew.AssignedComplaintIDs
	if ids == nil {
		ids = []int64{}
	}
	return r.q.QueryRow(ctx, query,
		crew.Name,
		crew.Phone,
		crew.SimultaneousLimit,
		crew.Available,
		ids,
	).Scan(&crew.ID, &crew.CreatedAt, &crew.UpdatedAt)
}

func (r *crewRepository) GetByID(ctx context.Context, id int64) (*domain.Crew, error) {
	query := `SELECT ` + crewColumns + ` FROM cuadrillas WHERE id=$1`
	return scanCrew(r.q.QueryRow(ctx, query, id))
}

func (r *crewRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Crew, error) {
	query := `SELECT ` + crewColumns + ` FROM cuadrillas WHERE id=$1 FOR UPDATE`
	return scanCrew(r.q.QueryRow(ctx, query, id))
}

func (r *crewRepository) UpdateLoad(ctx context.Context, crew *domain.Crew) error {
	const query = `
        UPDATE cuadrillas SET disponible=$1, ultima_asignacion=$2, reclamos_asignados=$3, updated_at=NOW()
        WHERE id=$4
        RETURNING updated_at`
	if crew.AssignedComplaintIDs == nil {
		crew.AssignedComplaintIDs = []int64{}
	}
	return r.q.QueryRow(ctx, query,
		crew.Available,
		crew.LastAssignmentAt,
		crew.AssignedComplaintIDs,
		crew.ID,
	).Scan(&crew.UpdatedAt)
}

func (r *crewRepository) List(ctx context.Context, limit, offset int) ([]domain.Crew, error) {
	limit, offset = page(limit, offset, 50)
	query := fmt.Sprintf(`SELECT %s FROM cuadrillas ORDER BY nombre ASC LIMIT %d OFFSET %d`, crewColumns, limit, offset)
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Crew
	for rows.Next() {
		crew, err := scanCrew(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *crew)
	}
	return result, rows.Err()
}

func scanCrew(row pgx.Row) (*domain.Crew, error) {
	var crew domain.Crew
	if err := row.Scan(
		&crew.ID,
		&crew.Name,
		&crew.Phone,
		&crew.SimultaneousLimit,
		&crew.Available,
		&crew.LastAssignmentAt,
		&crew.AssignedComplaintIDs,
		&crew.CreatedAt,
		&crew.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &crew, nil
}

func page(limit, offset, def int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
