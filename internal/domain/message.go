package domain

import (
	"fmt"
	"time"
)

// Message is a system-generated audit note attached to a crew.
type Message struct {
	ID          int64
	CrewID      int64
	ComplaintID int64
	Body        string
	CreatedAt   time.Time
}

func AssignedMessage(complaintID int64) string {
	return fmt.Sprintf("Complaint #%d has been assigned to the crew.", complaintID)
}

func InProgressMessage(complaintID int64) string {
	return fmt.Sprintf("Complaint #%d accepted and in progress.", complaintID)
}

func CompletedMessage(complaintID int64) string {
	return fmt.Sprintf("Complaint #%d has been completed.", complaintID)
}
