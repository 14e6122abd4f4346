package domain

import "time"

// ComplaintStatus mirrors the status values owned by the Reclamos API.
type ComplaintStatus string

const (
	ComplaintStatusPending    ComplaintStatus = "PENDIENTE"
	ComplaintStatusAssigned   ComplaintStatus = "ASIGNADO"
	ComplaintStatusInProgress ComplaintStatus = "EN_PROCESO"
	ComplaintStatusCompleted  ComplaintStatus = "COMPLETADO"
	ComplaintStatusCancelled  ComplaintStatus = "CANCELADO"
)

// Complaint is the external complaint record. This service never owns it;
// it only reads it for notification targets and pushes status changes.
type Complaint struct {
	ID           int64
	Type         string
	Status       ComplaintStatus
	Location     string
	Neighborhood string
	Priority     string
	Phone        string
	Name         string
	CreatedAt    time.Time
}

// ComplaintSnapshot is the copy of complaint details frozen into an
// assignment record when the complaint is assigned.
type ComplaintSnapshot struct {
	Type         string
	Date         *time.Time
	Priority     string
	Detail       string
	Address      string
	Neighborhood string
}
