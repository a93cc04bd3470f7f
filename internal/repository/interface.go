package repository

import (
	"context"
	"errors"

	"signoff/pkg/models"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("record conflicts with an existing one")

// Store is the persistence boundary of the approval engine.
type Store interface {
	// WithinTx runs fn inside a single transaction. fn's writes are committed
	// only if it returns nil.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// Tx is the set of operations available inside a transaction. Signatures and
// history entries can only be appended and read: there is no update or
// delete for either.
type Tx interface {
	// LockDeliverable loads the deliverable and holds a row lock on it until
	// the transaction ends.
	LockDeliverable(ctx context.Context, deliverableID string) (*models.Deliverable, error)
	// EnableApprovalWorkflow flags the deliverable as governed by a workflow.
	EnableApprovalWorkflow(ctx context.Context, deliverableID string) error
	// UpdateDeliverableStatus propagates a workflow outcome to the deliverable.
	UpdateDeliverableStatus(ctx context.Context, deliverableID string, update models.DeliverableUpdate) error

	// GetWorkflow reads a workflow without locking.
	GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error)
	// GetWorkflowByDeliverable reads the workflow of a deliverable without locking.
	GetWorkflowByDeliverable(ctx context.Context, deliverableID string) (*models.Workflow, error)
	// LockWorkflow loads a workflow and holds a row lock on it until the
	// transaction ends. Concurrent mutators of the same workflow serialize here.
	LockWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error)
	// InsertWorkflow creates a workflow. ErrConflict if the deliverable already has one.
	InsertWorkflow(ctx context.Context, wf *models.Workflow) error
	// UpdateWorkflow persists type, state and updated_at.
	UpdateWorkflow(ctx context.Context, wf *models.Workflow) error

	// ListSteps returns the steps of a workflow ordered by step number.
	ListSteps(ctx context.Context, workflowID string) ([]*models.Step, error)
	// ReplaceSteps discards every step of the workflow and inserts steps.
	ReplaceSteps(ctx context.Context, workflowID string, steps []*models.Step) error
	// UpdateStep persists the mutable fields of a step.
	UpdateStep(ctx context.Context, step *models.Step) error

	// AppendSignature stores a new signature.
	AppendSignature(ctx context.Context, sig *models.Signature) error
	// ListSignatures returns the signatures of a workflow oldest first.
	ListSignatures(ctx context.Context, workflowID string) ([]*models.Signature, error)

	// AppendHistory stores a new ledger entry and assigns its Seq.
	AppendHistory(ctx context.Context, entry *models.HistoryEntry) error
	// RecentHistory returns up to limit entries of a workflow, newest first.
	RecentHistory(ctx context.Context, workflowID string, limit int) ([]*models.HistoryEntry, error)
}
