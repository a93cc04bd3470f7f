package models

import "time"

// DeliverableStatus values written by the approval engine. The owning CRM
// module uses other values for its own lifecycle.
type DeliverableStatus string

const (
	DeliverableStatusApproved          DeliverableStatus = "approved"
	DeliverableStatusRejected          DeliverableStatus = "rejected"
	DeliverableStatusRevisionRequested DeliverableStatus = "revision_requested"
)

// Deliverable is the slice of the CRM deliverable record the engine reads
// and writes.
type Deliverable struct {
	ID                      string     `json:"id" db:"id"`
	Title                   string     `json:"title" db:"title"`
	Status                  string     `json:"status" db:"status"`
	ApprovalWorkflowEnabled bool       `json:"approval_workflow_enabled" db:"approval_workflow_enabled"`
	ApprovedAt              *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy              *string    `json:"approved_by,omitempty" db:"approved_by"`
	RevisionFeedback        *string    `json:"revision_feedback,omitempty" db:"revision_feedback"`
	UpdatedAt               time.Time  `json:"updated_at" db:"updated_at"`
}

// DeliverableUpdate is the status propagation emitted by a terminal or
// revision transition.
type DeliverableUpdate struct {
	Status     DeliverableStatus
	ApprovedAt *time.Time
	ApprovedBy *string
	Feedback   *string
}
