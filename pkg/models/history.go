package models

import "time"

// HistoryAction tags a ledger entry.
type HistoryAction string

const (
	HistoryWorkflowCreated HistoryAction = "workflow_created"
	HistoryWorkflowUpdated HistoryAction = "workflow_updated"
	HistoryApprove         HistoryAction = "approve"
	HistoryReject          HistoryAction = "reject"
	HistoryRequestRevision HistoryAction = "request_revision"
	HistorySignatureAdded  HistoryAction = "signature_added"
)

// HistoryEntry is an immutable audit record. Seq is assigned by the store and
// gives the total order of entries.
type HistoryEntry struct {
	ID         string         `json:"id" db:"id"`
	Seq        int64          `json:"seq" db:"seq"`
	WorkflowID string         `json:"workflow_id" db:"workflow_id"`
	StepID     *string        `json:"step_id,omitempty" db:"step_id"`
	Action     HistoryAction  `json:"action" db:"action"`
	ActorType  ActorType      `json:"actor_type" db:"actor_type"`
	ActorName  string         `json:"actor_name" db:"actor_name"`
	Comments   *string        `json:"comments,omitempty" db:"comments"`
	Metadata   map[string]any `json:"metadata,omitempty" db:"metadata"` // JSONB
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}
