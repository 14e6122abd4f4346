package dto

import (
	"time"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
)

// ComplaintSnapshotRequest carries the complaint fields frozen into the
// assignment record. Date accepts RFC 3339 or YYYY-MM-DD.
type ComplaintSnapshotRequest struct {
	Type         string `json:"type" validate:"max=120"`
	Date         string `json:"date" validate:"max=40"`
	Priority     string `json:"priority" validate:"max=40"`
	Detail       string `json:"detail" validate:"max=4000"`
	Address      string `json:"address" validate:"max=255"`
	Neighborhood string `json:"neighborhood" validate:"max=120"`
}

// AssignRequest is the POST /api/asignar-reclamo payload.
type AssignRequest struct {
	ComplaintID int64                    `json:"complaint_id" validate:"required,gt=0"`
	CrewID      int64                    `json:"crew_id" validate:"required,gt=0"`
	Complaint   ComplaintSnapshotRequest `json:"complaint"`
	Notify      bool                     `json:"notify"`
}

// TransitionRequest is the body for mark-in-progress and mark-completed.
type TransitionRequest struct {
	Notify bool `json:"notify"`
}

// CreateCrewRequest payload.
type CreateCrewRequest struct {
	Name              string `json:"name" validate:"required,max=120"`
	Phone             string `json:"phone" validate:"omitempty,max=40"`
	SimultaneousLimit int    `json:"simultaneous_limit" validate:"required,gte=1,lte=100"`
}

// CrewResponse represents a crew.
type CrewResponse struct {
	ID                   int64      `json:"id"`
	Name                 string     `json:"name"`
	Phone                string     `json:"phone"`
	SimultaneousLimit    int        `json:"simultaneous_limit"`
	Available            bool       `json:"available"`
	LastAssignmentAt     *time.Time `json:"last_assignment_at"`
	AssignedComplaintIDs []int64    `json:"assigned_complaint_ids"`
	OpenCount            *int       `json:"open_count,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// SnapshotResponse mirrors domain.ComplaintSnapshot.
type SnapshotResponse struct {
	Type         string     `json:"type"`
	Date         *time.Time `json:"date"`
	Priority     string     `json:"priority"`
	Detail       string     `json:"detail"`
	Address      string     `json:"address"`
	Neighborhood string     `json:"neighborhood"`
}

// RecordResponse represents an assignment record.
type RecordResponse struct {
	ID           int64                   `json:"id"`
	ComplaintID  int64                   `json:"complaint_id"`
	CrewID       int64                   `json:"crew_id"`
	Status       domain.AssignmentStatus `json:"status"`
	RegisteredAt time.Time               `json:"registered_at"`
	AssignedAt   time.Time               `json:"assigned_at"`
	InProgressAt *time.Time              `json:"in_progress_at"`
	CompletedAt  *time.Time              `json:"completed_at"`
	Complaint    SnapshotResponse        `json:"complaint"`
}

// MessageResponse represents a crew audit message.
type MessageResponse struct {
	ID          int64     `json:"id"`
	CrewID      int64     `json:"crew_id"`
	ComplaintID int64     `json:"complaint_id"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// SyncTaskResponse represents a pending status push.
type SyncTaskResponse struct {
	ID        string                 `json:"id"`
	Status    domain.ComplaintStatus `json:"status"`
	CrewID    *int64                 `json:"crew_id,omitempty"`
	Attempts  int                    `json:"attempts"`
	LastError string                 `json:"last_error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// AssignResponse is the assign result.
type AssignResponse struct {
	Crew   CrewResponse   `json:"crew"`
	Record RecordResponse `json:"record"`
}

func NewCrewResponse(crew *domain.Crew) CrewResponse {
	ids := crew.AssignedComplaintIDs
	if ids == nil {
		ids = []int64{}
	}
	return CrewResponse{
		ID:                   crew.ID,
		Name:                 crew.Name,
		Phone:                crew.Phone,
		SimultaneousLimit:    crew.SimultaneousLimit,
		Available:            crew.Available,
		LastAssignmentAt:     crew.LastAssignmentAt,
		AssignedComplaintIDs: ids,
		CreatedAt:            crew.CreatedAt,
		UpdatedAt:            crew.UpdatedAt,
	}
}

func NewCrewLoadResponse(load *domain.CrewLoad) CrewResponse {
	resp := NewCrewResponse(load.Crew)
	open := load.OpenCount
	resp.OpenCount = &open
	return resp
}

func NewRecordResponse(rec *domain.AssignmentRecord) RecordResponse {
	return RecordResponse{
		ID:           rec.ID,
		ComplaintID:  rec.ComplaintID,
		CrewID:       rec.CrewID,
		Status:       rec.Status,
		RegisteredAt: rec.RegisteredAt,
		AssignedAt:   rec.AssignedAt,
		InProgressAt: rec.InProgressAt,
		CompletedAt:  rec.CompletedAt,
		Complaint: SnapshotResponse{
			Type:         rec.Snapshot.Type,
			Date:         rec.Snapshot.Date,
			Priority:     rec.Snapshot.Priority,
			Detail:       rec.Snapshot.Detail,
			Address:      rec.Snapshot.Address,
			Neighborhood: rec.Snapshot.Neighborhood,
		},
	}
}

func NewMessageResponse(msg domain.Message) MessageResponse {
	return MessageResponse{
		ID:          msg.ID,
		CrewID:      msg.CrewID,
		ComplaintID: msg.ComplaintID,
		Body:        msg.Body,
		CreatedAt:   msg.CreatedAt,
	}
}

func NewSyncTaskResponse(task domain.SyncTask) SyncTaskResponse {
	return SyncTaskResponse{
		ID:        task.ID.String(),
		Status:    task.Status,
		CrewID:    task.CrewID,
		Attempts:  task.Attempts,
		LastError: task.LastError,
		CreatedAt: task.CreatedAt,
	}
}

// ParseSnapshot converts the request into the domain snapshot.
func (r ComplaintSnapshotRequest) ParseSnapshot() (domain.ComplaintSnapshot, error) {
	snapshot := domain.ComplaintSnapshot{
		Type:         r.Type,
		Priority:     r.Priority,
		Detail:       r.Detail,
		Address:      r.Address,
		Neighborhood: r.Neighborhood,
	}
	if r.Date == "" {
		return snapshot, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, r.Date); err == nil {
			snapshot.Date = &ts
			return snapshot, nil
		}
	}
	return snapshot, &time.ParseError{Layout: time.RFC3339, Value: r.Date, Message: ": expected RFC 3339 or YYYY-MM-DD"}
}
