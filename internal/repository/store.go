package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories groups the assignment store repositories bound to one
// connection or transaction.
type Repositories interface {
	Crews() CrewRepository
	Assignments() AssignmentRepository
	Messages() MessageRepository
	SyncOutbox() SyncOutboxRepository
}

// Store is the assignment store. Repositories returned directly operate
// outside any transaction; WithTx runs fn atomically and rolls back every
// write when fn returns an error.
type Store interface {
	Repositories
	WithTx(ctx context.Context, fn func(tx Repositories) error) error
}

type queryRepositories struct {
	q Querier
}

func (r queryRepositories) Crews() CrewRepository             { return &crewRepository{q: r.q} }
func (r queryRepositories) Assignments() AssignmentRepository { return &assignmentRepository{q: r.q} }
func (r queryRepositories) Messages() MessageRepository       { return &messageRepository{q: r.q} }
func (r queryRepositories) SyncOutbox() SyncOutboxRepository  { return &syncOutboxRepository{q: r.q} }

type postgresStore struct {
	queryRepositories
	pool *pgxpool.Pool
}

// NewPostgresStore builds the pgx-backed store.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{queryRepositories: queryRepositories{q: pool}, pool: pool}
}

func (s *postgresStore) WithTx(ctx context.Context, fn func(tx Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(queryRepositories{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
