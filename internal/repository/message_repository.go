package repository

import (
	"context"
	"fmt"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
)

// MessageRepository appends crew audit messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByCrew(ctx context.Context, crewID int64, limit, offset int) ([]domain.Message, error)
}

type messageRepository struct {
	q Querier
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO mensajes (cuadrilla_id, reclamo_id, contenido)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.q.QueryRow(ctx, query,
		msg.CrewID,
		msg.ComplaintID,
		msg.Body,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *messageRepository) ListByCrew(ctx context.Context, crewID int64, limit, offset int) ([]domain.Message, error) {
	limit, offset = page(limit, offset, 100)
	query := fmt.Sprintf(`
        SELECT id, cuadrilla_id, reclamo_id, contenido, created_at
        FROM mensajes WHERE cuadrilla_id=$1 ORDER BY created_at ASC, id ASC LIMIT %d OFFSET %d`, limit, offset)
	rows, err := r.q.Query(ctx, query, crewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.CrewID,
			&msg.ComplaintID,
			&msg.Body,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
