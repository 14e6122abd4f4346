package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncTaskState tracks an outbox row.
type SyncTaskState string

const (
	SyncTaskPending SyncTaskState = "PENDING"
	SyncTaskDone    SyncTaskState = "DONE"
	// SyncTaskFailed parks a task that used up its attempts. It is no longer
	// retried and needs an operator.
	SyncTaskFailed SyncTaskState = "FAILED"
)

// SyncTask is a pending status push to the Reclamos API, written in the same
// transaction as the local state change it mirrors.
type SyncTask struct {
	ID            uuid.UUID
	Seq           int64
	ComplaintID   int64
	Status        ComplaintStatus
	CrewID        *int64
	State         SyncTaskState
	Attempts      int
	LastError     string
	LastAttemptAt *time.Time
	CreatedAt     time.Time
	SyncedAt      *time.Time
}

// NewSyncTask builds a pending task. crewID is only set for assignments.
func NewSyncTask(complaintID int64, status ComplaintStatus, crewID *int64, at time.Time) *SyncTask {
	return &SyncTask{
		ID:          uuid.New(),
		ComplaintID: complaintID,
		Status:      status,
		CrewID:      crewID,
		State:       SyncTaskPending,
		CreatedAt:   at,
	}
}
