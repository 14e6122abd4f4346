// Package memstore is an in-process assignment store. Transactions are
// serialized and work on a private copy that is swapped in only on success.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
	"github.com/spec-kit/cuadrilla-dispatch/internal/repository"
)

type state struct {
	crews       map[int64]domain.Crew
	assignments map[int64]domain.AssignmentRecord
	messages    []domain.Message
	outbox      []domain.SyncTask
	crewSeq     int64
	recordSeq   int64
	messageSeq  int64
	outboxSeq   int64
}

func newState() *state {
	return &state{
		crews:       map[int64]domain.Crew{},
		assignments: map[int64]domain.AssignmentRecord{},
	}
}

func (s *state) clone() *state {
	out := &state{
		crews:       make(map[int64]domain.Crew, len(s.crews)),
		assignments: make(map[int64]domain.AssignmentRecord, len(s.assignments)),
		messages:    append([]domain.Message(nil), s.messages...),
		outbox:      append([]domain.SyncTask(nil), s.outbox...),
		crewSeq:     s.crewSeq,
		recordSeq:   s.recordSeq,
		messageSeq:  s.messageSeq,
		outboxSeq:   s.outboxSeq,
	}
	for id, c := range s.crews {
		out.crews[id] = copyCrew(c)
	}
	for id, rec := range s.assignments {
		out.assignments[id] = rec
	}
	return out
}

// Store implements repository.Store in memory.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

func (s *Store) Crews() repository.CrewRepository             { return crews{s.view()} }
func (s *Store) Assignments() repository.AssignmentRepository { return assignments{s.view()} }
func (s *Store) Messages() repository.MessageRepository       { return messages{s.view()} }
func (s *Store) SyncOutbox() repository.SyncOutboxRepository  { return outbox{s.view()} }

// WithTx runs fn against a copy of the data and commits the copy only when
// fn succeeds. Transactions never overlap.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.st.clone()
	if err := fn(txRepositories{view{st: working, now: s.now}}); err != nil {
		return err
	}
	s.st = working
	return nil
}

func (s *Store) view() view {
	return view{store: s, now: s.now}
}

// view resolves the state a repository call operates on: the live state
// under the store lock, or a transaction's private copy.
type view struct {
	store *Store
	st    *state
	now   func() time.Time
}

func (v view) with(fn func(st *state) error) error {
	if v.store != nil {
		v.store.mu.Lock()
		defer v.store.mu.Unlock()
		return fn(v.store.st)
	}
	return fn(v.st)
}

type txRepositories struct {
	v view
}

func (t txRepositories) Crews() repository.CrewRepository             { return crews{t.v} }
func (t txRepositories) Assignments() repository.AssignmentRepository { return assignments{t.v} }
func (t txRepositories) Messages() repository.MessageRepository       { return messages{t.v} }
func (t txRepositories) SyncOutbox() repository.SyncOutboxRepository  { return outbox{t.v} }

type crews struct{ v view }

func (r crews) Create(_ context.Context, crew *domain.Crew) error {
	return r.v.with(func(st *state) error {
		st.crewSeq++
		now := r.v.now()
		crew.ID = st.crewSeq
		crew.CreatedAt = now
		crew.UpdatedAt = now
		if crew.AssignedComplaintIDs == nil {
			crew.AssignedComplaintIDs = []int64{}
		}
		st.crews[crew.ID] = copyCrew(*crew)
		return nil
	})
}

func (r crews) GetByID(_ context.Context, id int64) (*domain.Crew, error) {
	var out *domain.Crew
	err := r.v.with(func(st *state) error {
		crew, ok := st.crews[id]
		if !ok {
			return pgx.ErrNoRows
		}
		c := copyCrew(crew)
		out = &c
		return nil
	})
	return out, err
}

func (r crews) GetForUpdate(ctx context.Context, id int64) (*domain.Crew, error) {
	return r.GetByID(ctx, id)
}

func (r crews) UpdateLoad(_ context.Context, crew *domain.Crew) error {
	return r.v.with(func(st *state) error {
		existing, ok := st.crews[crew.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		existing.Available = crew.Available
		existing.LastAssignmentAt = crew.LastAssignmentAt
		existing.AssignedComplaintIDs = append([]int64{}, crew.AssignedComplaintIDs...)
		existing.UpdatedAt = r.v.now()
		crew.UpdatedAt = existing.UpdatedAt
		st.crews[crew.ID] = existing
		return nil
	})
}

func (r crews) List(_ context.Context, limit, offset int) ([]domain.Crew, error) {
	var out []domain.Crew
	err := r.v.with(func(st *state) error {
		for _, c := range st.crews {
			out = append(out, copyCrew(c))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return paginate(out, limit, offset, 50), err
}

type assignments struct{ v view }

func (r assignments) Create(_ context.Context, rec *domain.AssignmentRecord) error {
	return r.v.with(func(st *state) error {
		if _, ok := st.crews[rec.CrewID]; !ok {
			return pgx.ErrNoRows
		}
		st.recordSeq++
		rec.ID = st.recordSeq
		st.assignments[rec.ID] = *rec
		return nil
	})
}

func (r assignments) GetByID(_ context.Context, id int64) (*domain.AssignmentRecord, error) {
	var out *domain.AssignmentRecord
	err := r.v.with(func(st *state) error {
		rec, ok := st.assignments[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = &rec
		return nil
	})
	return out, err
}

func (r assignments) GetForUpdate(ctx context.Context, id int64) (*domain.AssignmentRecord, error) {
	return r.GetByID(ctx, id)
}

func (r assignments) UpdateStatus(_ context.Context, rec *domain.AssignmentRecord) error {
	return r.v.with(func(st *state) error {
		existing, ok := st.assignments[rec.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		existing.Status = rec.Status
		existing.InProgressAt = rec.InProgressAt
		existing.CompletedAt = rec.CompletedAt
		st.assignments[rec.ID] = existing
		return nil
	})
}

func (r assignments) CountOpenByCrew(_ context.Context, crewID int64) (int, error) {
	count := 0
	err := r.v.with(func(st *state) error {
		for _, rec := range st.assignments {
			if rec.CrewID == crewID && rec.Status.IsOpen() {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r assignments) ListByCrew(_ context.Context, crewID int64, limit, offset int) ([]domain.AssignmentRecord, error) {
	var out []domain.AssignmentRecord
	err := r.v.with(func(st *state) error {
		for _, rec := range st.assignments {
			if rec.CrewID == crewID {
				out = append(out, rec)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].AssignedAt.After(out[j].AssignedAt)
	})
	return paginate(out, limit, offset, 50), err
}

type messages struct{ v view }

func (r messages) Create(_ context.Context, msg *domain.Message) error {
	return r.v.with(func(st *state) error {
		st.messageSeq++
		msg.ID = st.messageSeq
		msg.CreatedAt = r.v.now()
		st.messages = append(st.messages, *msg)
		return nil
	})
}

func (r messages) ListByCrew(_ context.Context, crewID int64, limit, offset int) ([]domain.Message, error) {
	var out []domain.Message
	err := r.v.with(func(st *state) error {
		for _, msg := range st.messages {
			if msg.CrewID == crewID {
				out = append(out, msg)
			}
		}
		return nil
	})
	return paginate(out, limit, offset, 100), err
}

type outbox struct{ v view }

func (r outbox) Enqueue(_ context.Context, task *domain.SyncTask) error {
	return r.v.with(func(st *state) error {
		st.outboxSeq++
		task.Seq = st.outboxSeq
		st.outbox = append(st.outbox, *task)
		return nil
	})
}

// LockComplaint is a no-op: transactions never overlap.
func (r outbox) LockComplaint(context.Context, int64) error {
	return nil
}

func (r outbox) ListPendingByComplaint(_ context.Context, complaintID int64) ([]domain.SyncTask, error) {
	var out []domain.SyncTask
	err := r.v.with(func(st *state) error {
		for _, task := range st.outbox {
			if task.ComplaintID == complaintID && task.State == domain.SyncTaskPending {
				out = append(out, task)
			}
		}
		return nil
	})
	return out, err
}

type pendingComplaint struct {
	id          int64
	firstSeq    int64
	lastAttempt *time.Time
}

func (r outbox) ListPendingComplaints(_ context.Context, limit int) ([]int64, error) {
	var groups []*pendingComplaint
	err := r.v.with(func(st *state) error {
		byID := map[int64]*pendingComplaint{}
		for _, task := range st.outbox {
			if task.State != domain.SyncTaskPending {
				continue
			}
			g, ok := byID[task.ComplaintID]
			if !ok {
				g = &pendingComplaint{id: task.ComplaintID, firstSeq: task.Seq}
				byID[task.ComplaintID] = g
				groups = append(groups, g)
			}
			if task.LastAttemptAt != nil && (g.lastAttempt == nil || task.LastAttemptAt.After(*g.lastAttempt)) {
				at := *task.LastAttemptAt
				g.lastAttempt = &at
			}
		}
		return nil
	})
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].lastAttempt, groups[j].lastAttempt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return groups[i].firstSeq < groups[j].firstSeq
	})
	ids := make([]int64, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.id)
	}
	return paginate(ids, limit, 0, 50), err
}

func (r outbox) MarkDone(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.v.with(func(st *state) error {
		task := findTask(st, id)
		if task == nil {
			return pgx.ErrNoRows
		}
		task.State = domain.SyncTaskDone
		task.Attempts++
		task.LastError = ""
		task.LastAttemptAt = &at
		task.SyncedAt = &at
		return nil
	})
}

func (r outbox) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, at time.Time, park bool) error {
	return r.v.with(func(st *state) error {
		task := findTask(st, id)
		if task == nil {
			return pgx.ErrNoRows
		}
		task.Attempts++
		task.LastError = errMsg
		task.LastAttemptAt = &at
		if park {
			task.State = domain.SyncTaskFailed
		}
		return nil
	})
}

// findTask returns a pointer into the state's outbox, which is kept in
// insertion order.
func findTask(st *state, id uuid.UUID) *domain.SyncTask {
	for i := range st.outbox {
		if st.outbox[i].ID == id {
			return &st.outbox[i]
		}
	}
	return nil
}

func copyCrew(c domain.Crew) domain.Crew {
	c.AssignedComplaintIDs = append([]int64{}, c.AssignedComplaintIDs...)
	return c
}

func paginate[T any](items []T, limit, offset, def int) []T {
	if limit <= 0 {
		limit = def
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
