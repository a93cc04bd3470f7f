package models

import "time"

// ApproverType identifies who is expected to act on a step.
type ApproverType string

const (
	ApproverTypeClient       ApproverType = "client"
	ApproverTypeEmployee     ApproverType = "employee"
	ApproverTypeSpecificUser ApproverType = "specific_user"
)

// Valid reports whether t is a known approver type.
func (t ApproverType) Valid() bool {
	switch t {
	case ApproverTypeClient, ApproverTypeEmployee, ApproverTypeSpecificUser:
		return true
	}
	return false
}

// StepStatus is the status of a single approval step.
type StepStatus string

const (
	StepStatusPending  StepStatus = "pending"
	StepStatusApproved StepStatus = "approved"
	StepStatusRejected StepStatus = "rejected"
)

// Step is one ordered unit of approval within a workflow.
type Step struct {
	ID           string       `json:"id" db:"id"`
	WorkflowID   string       `json:"workflow_id" db:"workflow_id"`
	StepNumber   int          `json:"step_number" db:"step_number"`
	Name         string       `json:"name" db:"name"`
	Description  *string      `json:"description,omitempty" db:"description"`
	ApproverType ApproverType `json:"approver_type" db:"approver_type"`
	ApproverID   *string      `json:"approver_id,omitempty" db:"approver_id"`
	ApproverName *string      `json:"approver_name,omitempty" db:"approver_name"`
	IsRequired   bool         `json:"is_required" db:"is_required"`
	Status       StepStatus   `json:"status" db:"status"`
	Comments     *string      `json:"comments,omitempty" db:"comments"`
	ApprovedAt   *time.Time   `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy   *string      `json:"approved_by,omitempty" db:"approved_by"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// StepDefinition is the caller-supplied shape of a step when a workflow is
// created or redefined.
type StepDefinition struct {
	StepNumber   int          `json:"step_number"`
	Name         string       `json:"name"`
	Description  *string      `json:"description,omitempty"`
	ApproverType ApproverType `json:"approver_type"`
	ApproverID   *string      `json:"approver_id,omitempty"`
	ApproverName *string      `json:"approver_name,omitempty"`
	IsRequired   *bool        `json:"is_required,omitempty"`
}

// Required reports whether the step must be approved for the workflow to
// complete. Steps are required unless explicitly marked otherwise.
func (d StepDefinition) Required() bool {
	return d.IsRequired == nil || *d.IsRequired
}
