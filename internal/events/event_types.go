package events

import (
	"time"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventComplaintAssigned   EventType = "complaint_assigned"
	EventComplaintInProgress EventType = "complaint_in_progress"
	EventComplaintCompleted  EventType = "complaint_completed"
)

// TransitionEvents lists every event published after a synchronized transition.
var TransitionEvents = []EventType{
	EventComplaintAssigned,
	EventComplaintInProgress,
	EventComplaintCompleted,
}

// EventForStatus maps a record status to the event published when a record
// reaches it.
func EventForStatus(status domain.AssignmentStatus) EventType {
	switch status {
	case domain.AssignmentStatusInProgress:
		return EventComplaintInProgress
	case domain.AssignmentStatusCompleted:
		return EventComplaintCompleted
	default:
		return EventComplaintAssigned
	}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID          string      `json:"id"`
	Type        EventType   `json:"type"`
	ComplaintID int64       `json:"complaint_id"`
	Timestamp   time.Time   `json:"timestamp"`
	Payload     interface{} `json:"payload"`
}

// TransitionPayload describes a committed and synchronized status change.
// Notify carries the caller's opt-in for complainant notification.
type TransitionPayload struct {
	RecordID int64                   `json:"record_id"`
	CrewID   int64                   `json:"crew_id"`
	Status   domain.AssignmentStatus `json:"status"`
	Notify   bool                    `json:"notify"`
}
