package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
	"github.com/spec-kit/cuadrilla-dispatch/internal/events"
	"github.com/spec-kit/cuadrilla-dispatch/internal/observability"
	"github.com/spec-kit/cuadrilla-dispatch/internal/repository"
	apperrors "github.com/spec-kit/cuadrilla-dispatch/pkg/util"
)

// Synchronizer flushes pending status pushes for one complaint.
type Synchronizer interface {
	Flush(ctx context.Context, complaintID int64) error
}

// AssignmentService runs the crew assignment lifecycle: it is the only writer
// of crews, assignment records and crew messages.
type AssignmentService struct {
	store      repository.Store
	sync       Synchronizer
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Store        repository.Store
	Synchronizer Synchronizer
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Clock        func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	svc := &AssignmentService{
		store:      deps.Store,
		sync:       deps.Synchronizer,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		now:        deps.Clock,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// AssignInput describes an assignment request.
type AssignInput struct {
	ComplaintID int64
	CrewID      int64
	Snapshot    domain.ComplaintSnapshot
	Notify      bool
}

// AssignResult is the updated crew and the new record.
type AssignResult struct {
	Crew   *domain.Crew
	Record *domain.AssignmentRecord
}

// CrewInput describes a new crew.
type CrewInput struct {
	Name              string
	Phone             string
	SimultaneousLimit int
}

// Assign admits the complaint onto the crew if the crew has a free slot. The
// open count is recomputed under the crew row lock, so concurrent assignments
// to one crew cannot both pass the capacity gate.
func (s *AssignmentService) Assign(ctx context.Context, input AssignInput) (*AssignResult, error) {
	if input.ComplaintID <= 0 || input.CrewID <= 0 {
		return nil, apperrors.NewValidationError("complaint_id and crew_id must be positive", map[string]any{
			"complaint_id": input.ComplaintID,
			"crew_id":      input.CrewID,
		})
	}

	var result AssignResult
	err := s.store.WithTx(ctx, func(tx repository.Repositories) error {
		crew, err := tx.Crews().GetForUpdate(ctx, input.CrewID)
		if err != nil {
			return notFound(err, "crew", "crew_id", input.CrewID)
		}
		open, err := tx.Assignments().CountOpenByCrew(ctx, crew.ID)
		if err != nil {
			return err
		}
		if !crew.CanAdmit(open) {
			return apperrors.NewCapacityExceeded(crew.Name, crew.SimultaneousLimit, map[string]any{
				"crew_id":    crew.ID,
				"open_count": open,
				"limit":      crew.SimultaneousLimit,
			})
		}

		now := s.now()
		record := domain.NewAssignmentRecord(input.ComplaintID, crew.ID, input.Snapshot, now)
		if err := tx.Assignments().Create(ctx, record); err != nil {
			return err
		}
		crew.RecordAssignment(input.ComplaintID, open, now)
		if err := tx.Crews().UpdateLoad(ctx, crew); err != nil {
			return err
		}
		if err := tx.Messages().Create(ctx, &domain.Message{
			CrewID:      crew.ID,
			ComplaintID: input.ComplaintID,
			Body:        domain.AssignedMessage(input.ComplaintID),
		}); err != nil {
			return err
		}
		crewID := crew.ID
		if err := tx.SyncOutbox().Enqueue(ctx, domain.NewSyncTask(input.ComplaintID, domain.ComplaintStatusAssigned, &crewID, now)); err != nil {
			return err
		}
		result = AssignResult{Crew: crew, Record: record}
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.metrics.RecordTransition(string(domain.AssignmentStatusAssigned))
	s.logger.Info("complaint assigned",
		zap.Int64("complaint_id", input.ComplaintID),
		zap.Int64("crew_id", result.Crew.ID),
		zap.Int64("record_id", result.Record.ID),
		zap.Bool("crew_available", result.Crew.Available))

	if err := s.sync.Flush(ctx, input.ComplaintID); err != nil {
		return nil, err
	}
	s.publishTransition(ctx, result.Record, input.Notify)
	return &result, nil
}

// MarkInProgress moves a record from ASIGNADO to EN_PROCESO. The crew already
// holds the slot, so capacity is not checked again.
func (s *AssignmentService) MarkInProgress(ctx context.Context, recordID int64, notify bool) (*domain.AssignmentRecord, error) {
	return s.advance(ctx, recordID, domain.AssignmentStatusInProgress, notify)
}

// MarkCompleted moves a record from EN_PROCESO to COMPLETADO and releases the
// crew slot right away.
func (s *AssignmentService) MarkCompleted(ctx context.Context, recordID int64, notify bool) (*domain.AssignmentRecord, error) {
	return s.advance(ctx, recordID, domain.AssignmentStatusCompleted, notify)
}

func (s *AssignmentService) advance(ctx context.Context, recordID int64, next domain.AssignmentStatus, notify bool) (*domain.AssignmentRecord, error) {
	if recordID <= 0 {
		return nil, apperrors.NewValidationError("record id must be positive", map[string]any{"record_id": recordID})
	}

	var record *domain.AssignmentRecord
	err := s.store.WithTx(ctx, func(tx repository.Repositories) error {
		rec, err := tx.Assignments().GetForUpdate(ctx, recordID)
		if err != nil {
			return notFound(err, "record", "record_id", recordID)
		}
		from := rec.Status
		now := s.now()
		if !rec.Advance(next, now) {
			return apperrors.NewInvalidTransition(string(from), string(next), map[string]any{
				"record_id": rec.ID,
				"status":    from,
			})
		}
		if err := tx.Assignments().UpdateStatus(ctx, rec); err != nil {
			return err
		}
		if next.IsTerminal() {
			if err := s.releaseSlot(ctx, tx, rec.CrewID); err != nil {
				return err
			}
		}
		if err := tx.Messages().Create(ctx, &domain.Message{
			CrewID:      rec.CrewID,
			ComplaintID: rec.ComplaintID,
			Body:        transitionMessage(next, rec.ComplaintID),
		}); err != nil {
			return err
		}
		if err := tx.SyncOutbox().Enqueue(ctx, domain.NewSyncTask(rec.ComplaintID, next.ComplaintStatus(), nil, now)); err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.metrics.RecordTransition(string(next))
	s.logger.Info("assignment record advanced",
		zap.Int64("record_id", record.ID),
		zap.Int64("complaint_id", record.ComplaintID),
		zap.Int64("crew_id", record.CrewID),
		zap.String("status", string(next)))

	if err := s.sync.Flush(ctx, record.ComplaintID); err != nil {
		return nil, err
	}
	s.publishTransition(ctx, record, notify)
	return record, nil
}

// releaseSlot recomputes crew availability from the open count, which already
// reflects the record just completed inside tx.
func (s *AssignmentService) releaseSlot(ctx context.Context, tx repository.Repositories, crewID int64) error {
	crew, err := tx.Crews().GetForUpdate(ctx, crewID)
	if err != nil {
		return err
	}
	open, err := tx.Assignments().CountOpenByCrew(ctx, crewID)
	if err != nil {
		return err
	}
	crew.ApplyLoad(open)
	return tx.Crews().UpdateLoad(ctx, crew)
}

func transitionMessage(status domain.AssignmentStatus, complaintID int64) string {
	if status == domain.AssignmentStatusCompleted {
		return domain.CompletedMessage(complaintID)
	}
	return domain.InProgressMessage(complaintID)
}

// CreateCrew registers a crew with no open jobs.
func (s *AssignmentService) CreateCrew(ctx context.Context, input CrewInput) (*domain.Crew, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("crew name is required", nil)
	}
	if input.SimultaneousLimit < 1 {
		return nil, apperrors.NewValidationError("simultaneous limit must be at least 1", map[string]any{
			"simultaneous_limit": input.SimultaneousLimit,
		})
	}
	crew := &domain.Crew{
		Name:                 name,
		Phone:                strings.TrimSpace(input.Phone),
		SimultaneousLimit:    input.SimultaneousLimit,
		AssignedComplaintIDs: []int64{},
	}
	crew.ApplyLoad(0)
	if err := s.store.Crews().Create(ctx, crew); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("crew created", zap.Int64("crew_id", crew.ID), zap.Int("limit", crew.SimultaneousLimit))
	return crew, nil
}

// GetCrew returns the crew with its current open job count.
func (s *AssignmentService) GetCrew(ctx context.Context, crewID int64) (*domain.CrewLoad, error) {
	crew, err := s.store.Crews().GetByID(ctx, crewID)
	if err != nil {
		return nil, apperrors.MapError(notFound(err, "crew", "crew_id", crewID))
	}
	open, err := s.store.Assignments().CountOpenByCrew(ctx, crewID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &domain.CrewLoad{Crew: crew, OpenCount: open}, nil
}

func (s *AssignmentService) ListCrews(ctx context.Context, limit, offset int) ([]domain.Crew, error) {
	crews, err := s.store.Crews().List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return crews, nil
}

// ListCrewRecords returns the crew's assignment records, newest first.
func (s *AssignmentService) ListCrewRecords(ctx context.Context, crewID int64, limit, offset int) ([]domain.AssignmentRecord, error) {
	if _, err := s.store.Crews().GetByID(ctx, crewID); err != nil {
		return nil, apperrors.MapError(notFound(err, "crew", "crew_id", crewID))
	}
	records, err := s.store.Assignments().ListByCrew(ctx, crewID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return records, nil
}

// ListCrewMessages returns the crew's audit messages, oldest first.
func (s *AssignmentService) ListCrewMessages(ctx context.Context, crewID int64, limit, offset int) ([]domain.Message, error) {
	if _, err := s.store.Crews().GetByID(ctx, crewID); err != nil {
		return nil, apperrors.MapError(notFound(err, "crew", "crew_id", crewID))
	}
	msgs, err := s.store.Messages().ListByCrew(ctx, crewID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return msgs, nil
}

func (s *AssignmentService) GetRecord(ctx context.Context, recordID int64) (*domain.AssignmentRecord, error) {
	rec, err := s.store.Assignments().GetByID(ctx, recordID)
	if err != nil {
		return nil, apperrors.MapError(notFound(err, "record", "record_id", recordID))
	}
	return rec, nil
}

func (s *AssignmentService) publishTransition(ctx context.Context, record *domain.AssignmentRecord, notify bool) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:          uuid.NewString(),
		Type:        events.EventForStatus(record.Status),
		ComplaintID: record.ComplaintID,
		Timestamp:   s.now(),
		Payload: events.TransitionPayload{
			RecordID: record.ID,
			CrewID:   record.CrewID,
			Status:   record.Status,
			Notify:   notify,
		},
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("transition event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("complaint_id", record.ComplaintID),
			zap.Error(err))
	}
}

func notFound(err error, resource, key string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, map[string]any{key: id})
	}
	return err
}
