package models

import (
	"time"
)

// WorkflowType selects the step topology of a workflow.
type WorkflowType string

const (
	WorkflowTypeSimple    WorkflowType = "simple"
	WorkflowTypeMultiStep WorkflowType = "multi_step"
	WorkflowTypeParallel  WorkflowType = "parallel"
)

// Valid reports whether t is one of the declared workflow types.
func (t WorkflowType) Valid() bool {
	switch t {
	case WorkflowTypeSimple, WorkflowTypeMultiStep, WorkflowTypeParallel:
		return true
	}
	return false
}

// Workflow is the approval process attached to a single deliverable.
type Workflow struct {
	ID            string       `json:"id" db:"id"`
	DeliverableID string       `json:"deliverable_id" db:"deliverable_id"`
	Type          WorkflowType `json:"workflow_type" db:"workflow_type"`
	State         State        `json:"-"`
	CreatedBy     string       `json:"created_by" db:"created_by"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}

// WorkflowView is the hydrated workflow returned by every engine operation.
type WorkflowView struct {
	ID            string          `json:"id"`
	DeliverableID string          `json:"deliverable_id"`
	WorkflowType  WorkflowType    `json:"workflow_type"`
	Status        WorkflowStatus  `json:"status"`
	CurrentStep   *int            `json:"current_step"`
	Steps         []*Step         `json:"steps"`
	Signatures    []*Signature    `json:"signatures"`
	History       []*HistoryEntry `json:"history"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewWorkflowView assembles the hydrated view. Nil slices are normalised so
// that JSON clients always see arrays.
func NewWorkflowView(wf *Workflow, steps []*Step, signatures []*Signature, history []*HistoryEntry) *WorkflowView {
	status, current := wf.State.Columns()
	if steps == nil {
		steps = []*Step{}
	}
	if signatures == nil {
		signatures = []*Signature{}
	}
	if history == nil {
		history = []*HistoryEntry{}
	}
	return &WorkflowView{
		ID:            wf.ID,
		DeliverableID: wf.DeliverableID,
		WorkflowType:  wf.Type,
		Status:        status,
		CurrentStep:   current,
		Steps:         steps,
		Signatures:    signatures,
		History:       history,
		CreatedAt:     wf.CreatedAt,
		UpdatedAt:     wf.UpdatedAt,
	}
}
