package domain

import "time"

// Crew ("cuadrilla") is a field team that works complaints.
type Crew struct {
	ID                   int64
	Name                 string
	Phone                string
	SimultaneousLimit    int
	Available            bool
	LastAssignmentAt     *time.Time
	AssignedComplaintIDs []int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CanAdmit is the capacity gate: a crew takes another job only while its
// open job count is strictly below its simultaneous limit.
func CanAdmit(limit, openCount int) bool {
	return openCount < limit
}

// CanAdmit applies the capacity gate to the crew's configured limit.
func (c *Crew) CanAdmit(openCount int) bool {
	return CanAdmit(c.SimultaneousLimit, openCount)
}

// ApplyLoad sets the availability flag from the crew's current open count.
func (c *Crew) ApplyLoad(openCount int) {
	c.Available = CanAdmit(c.SimultaneousLimit, openCount)
}

// RecordAssignment updates the crew after a new job has been admitted.
// openBefore is the open count observed before the new record was written.
func (c *Crew) RecordAssignment(complaintID int64, openBefore int, at time.Time) {
	c.ApplyLoad(openBefore + 1)
	c.LastAssignmentAt = &at
	c.AssignedComplaintIDs = append(c.AssignedComplaintIDs, complaintID)
}

// CrewLoad pairs a crew with its derived open job count.
type CrewLoad struct {
	Crew      *Crew
	OpenCount int
}
