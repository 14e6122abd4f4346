package domain

import "time"

// AssignmentStatus enumerates the lifecycle of an assignment record.
type AssignmentStatus string

const (
	AssignmentStatusAssigned   AssignmentStatus = "ASIGNADO"
	AssignmentStatusInProgress AssignmentStatus = "EN_PROCESO"
	AssignmentStatusCompleted  AssignmentStatus = "COMPLETADO"
)

var assignmentTransitions = map[AssignmentStatus]AssignmentStatus{
	AssignmentStatusAssigned:   AssignmentStatusInProgress,
	AssignmentStatusInProgress: AssignmentStatusCompleted,
}

// IsTerminal reports whether the status no longer counts against crew capacity.
func (s AssignmentStatus) IsTerminal() bool {
	return s == AssignmentStatusCompleted
}

// IsOpen is the complement of IsTerminal.
func (s AssignmentStatus) IsOpen() bool {
	return !s.IsTerminal()
}

// CanTransitionTo reports whether next is the single forward step from s.
func (s AssignmentStatus) CanTransitionTo(next AssignmentStatus) bool {
	allowed, ok := assignmentTransitions[s]
	return ok && allowed == next
}

// ComplaintStatus returns the status string the Reclamos API expects.
func (s AssignmentStatus) ComplaintStatus() ComplaintStatus {
	return ComplaintStatus(s)
}

// AssignmentRecord ("registro de reclamo") tracks one complaint assigned to
// one crew. Records are never deleted; only status and timestamps move.
type AssignmentRecord struct {
	ID           int64
	ComplaintID  int64
	CrewID       int64
	Status       AssignmentStatus
	RegisteredAt time.Time
	AssignedAt   time.Time
	InProgressAt *time.Time
	CompletedAt  *time.Time
	Snapshot     ComplaintSnapshot
}

// NewAssignmentRecord builds a record in ASIGNADO state.
func NewAssignmentRecord(complaintID, crewID int64, snapshot ComplaintSnapshot, at time.Time) *AssignmentRecord {
	return &AssignmentRecord{
		ComplaintID:  complaintID,
		CrewID:       crewID,
		Status:       AssignmentStatusAssigned,
		RegisteredAt: at,
		AssignedAt:   at,
		Snapshot:     snapshot,
	}
}

// Advance moves the record one step forward and stamps the matching
// timestamp. It returns false and leaves the record untouched when the
// transition is not allowed.
func (r *AssignmentRecord) Advance(next AssignmentStatus, at time.Time) bool {
	if !r.Status.CanTransitionTo(next) {
		return false
	}
	switch next {
	case AssignmentStatusInProgress:
		r.InProgressAt = &at
	case AssignmentStatusCompleted:
		r.CompletedAt = &at
	}
	r.Status = next
	return true
}

// CountOpen returns how many records still count against crew capacity.
func CountOpen(records []AssignmentRecord) int {
	open := 0
	for _, rec := range records {
		if rec.Status.IsOpen() {
			open++
		}
	}
	return open
}
