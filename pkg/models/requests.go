package models

// StepAction is an action an approver can take on the current step.
type StepAction string

const (
	ActionApprove         StepAction = "approve"
	ActionReject          StepAction = "reject"
	ActionRequestRevision StepAction = "request_revision"
)

// Valid reports whether a is a known step action.
func (a StepAction) Valid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionRequestRevision:
		return true
	}
	return false
}

// CreateWorkflowRequest creates or redefines the workflow of a deliverable.
// Force is required to discard approved progress.
type CreateWorkflowRequest struct {
	WorkflowType WorkflowType     `json:"workflow_type"`
	Steps        []StepDefinition `json:"steps,omitempty"`
	Force        bool             `json:"force,omitempty"`
}

// StepActionRequest acts on the current step of a workflow.
type StepActionRequest struct {
	StepID   string     `json:"step_id"`
	Action   StepAction `json:"action"`
	Comments *string    `json:"comments,omitempty"`
}

// SignatureRequest attaches a signature to a workflow, optionally to a step.
type SignatureRequest struct {
	StepID          *string         `json:"step_id,omitempty"`
	SignatureData   string          `json:"signature_data"`
	SignatureMethod SignatureMethod `json:"signature_method"`
}
