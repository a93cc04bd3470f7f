package repository

import (
	"context"
	"errors"
	"fmt"

	"signoff/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// PostgresStore is a PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger Logger
}

// NewPostgresStore creates a new PostgresStore. logger may be nil.
func NewPostgresStore(db *pgxpool.Pool, logger Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// WithinTx runs fn in a READ COMMITTED transaction. Mutual exclusion between
// concurrent mutators comes from the row locks taken by LockWorkflow and
// LockDeliverable.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&postgresTx{tx: tx})
	})
	if err != nil && s.logger != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Debug("transaction rolled back", "error", err)
	}
	return err
}

type postgresTx struct {
	tx pgx.Tx
}

func notFound(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("load %s %s: %w", what, id, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (t *postgresTx) LockDeliverable(ctx context.Context, deliverableID string) (*models.Deliverable, error) {
	var d models.Deliverable
	err := t.tx.QueryRow(ctx, `
		SELECT id, title, status, approval_workflow_enabled, approved_at, approved_by, revision_feedback, updated_at
		FROM deliverables WHERE id = $1 FOR UPDATE`, deliverableID).
		Scan(&d.ID, &d.Title, &d.Status, &d.ApprovalWorkflowEnabled, &d.ApprovedAt, &d.ApprovedBy, &d.RevisionFeedback, &d.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "deliverable", deliverableID)
	}
	return &d, nil
}

func (t *postgresTx) EnableApprovalWorkflow(ctx context.Context, deliverableID string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE deliverables SET approval_workflow_enabled = TRUE, updated_at = now() WHERE id = $1`, deliverableID)
	if err != nil {
		return fmt.Errorf("enable approval workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deliverable %s: %w", deliverableID, ErrNotFound)
	}
	return nil
}

func (t *postgresTx) UpdateDeliverableStatus(ctx context.Context, deliverableID string, u models.DeliverableUpdate) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE deliverables
		SET status = $2,
		    approved_at = COALESCE($3, approved_at),
		    approved_by = COALESCE($4, approved_by),
		    revision_feedback = $5,
		    updated_at = now()
		WHERE id = $1`,
		deliverableID, string(u.Status), u.ApprovedAt, u.ApprovedBy, u.Feedback)
	if err != nil {
		return fmt.Errorf("update deliverable status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deliverable %s: %w", deliverableID, ErrNotFound)
	}
	return nil
}

const workflowColumns = `id, deliverable_id, workflow_type, status, current_step, created_by, created_at, updated_at`

func scanWorkflow(row pgx.Row) (*models.Workflow, error) {
	var (
		wf      models.Workflow
		status  string
		current *int
	)
	if err := row.Scan(&wf.ID, &wf.DeliverableID, &wf.Type, &status, &current, &wf.CreatedBy, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	state, err := models.StateFromColumns(status, current)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", wf.ID, err)
	}
	wf.State = state
	return &wf, nil
}

func (t *postgresTx) loadWorkflow(ctx context.Context, query, id string) (*models.Workflow, error) {
	wf, err := scanWorkflow(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "workflow", id)
	}
	return wf, nil
}

func (t *postgresTx) GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	return t.loadWorkflow(ctx, `SELECT `+workflowColumns+` FROM approval_workflows WHERE id = $1`, workflowID)
}

func (t *postgresTx) GetWorkflowByDeliverable(ctx context.Context, deliverableID string) (*models.Workflow, error) {
	return t.loadWorkflow(ctx, `SELECT `+workflowColumns+` FROM approval_workflows WHERE deliverable_id = $1`, deliverableID)
}

func (t *postgresTx) LockWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	return t.loadWorkflow(ctx, `SELECT `+workflowColumns+` FROM approval_workflows WHERE id = $1 FOR UPDATE`, workflowID)
}

func (t *postgresTx) InsertWorkflow(ctx context.Context, wf *models.Workflow) error {
	status, current := wf.State.Columns()
	_, err := t.tx.Exec(ctx, `
		INSERT INTO approval_workflows (`+workflowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		wf.ID, wf.DeliverableID, string(wf.Type), string(status), current, wf.CreatedBy, wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("workflow for deliverable %s: %w", wf.DeliverableID, ErrConflict)
		}
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateWorkflow(ctx context.Context, wf *models.Workflow) error {
	status, current := wf.State.Columns()
	tag, err := t.tx.Exec(ctx, `
		UPDATE approval_workflows
		SET workflow_type = $2, status = $3, current_step = $4, updated_at = $5
		WHERE id = $1`,
		wf.ID, string(wf.Type), string(status), current, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s: %w", wf.ID, ErrNotFound)
	}
	return nil
}

func (t *postgresTx) ListSteps(ctx context.Context, workflowID string) ([]*models.Step, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, workflow_id, step_number, name, description, approver_type, approver_id, approver_name,
		       is_required, status, comments, approved_at, approved_by, created_at, updated_at
		FROM approval_steps WHERE workflow_id = $1 ORDER BY step_number`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []*models.Step
	for rows.Next() {
		var s models.Step
		err := rows.Scan(&s.ID, &s.WorkflowID, &s.StepNumber, &s.Name, &s.Description, &s.ApproverType,
			&s.ApproverID, &s.ApproverName, &s.IsRequired, &s.Status, &s.Comments, &s.ApprovedAt,
			&s.ApprovedBy, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, &s)
	}
	return steps, rows.Err()
}

func (t *postgresTx) ReplaceSteps(ctx context.Context, workflowID string, steps []*models.Step) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM approval_steps WHERE workflow_id = $1`, workflowID); err != nil {
		return fmt.Errorf("discard steps: %w", err)
	}

	batch := &pgx.Batch{}
	for _, s := range steps {
		batch.Queue(`
			INSERT INTO approval_steps (id, workflow_id, step_number, name, description, approver_type, approver_id,
			                            approver_name, is_required, status, comments, approved_at, approved_by,
			                            created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			s.ID, workflowID, s.StepNumber, s.Name, s.Description, string(s.ApproverType), s.ApproverID,
			s.ApproverName, s.IsRequired, string(s.Status), s.Comments, s.ApprovedAt, s.ApprovedBy,
			s.CreatedAt, s.UpdatedAt)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert steps: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateStep(ctx context.Context, s *models.Step) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE approval_steps
		SET status = $2, comments = $3, approved_at = $4, approved_by = $5, updated_at = $6
		WHERE id = $1`,
		s.ID, string(s.Status), s.Comments, s.ApprovedAt, s.ApprovedBy, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("step %s: %w", s.ID, ErrNotFound)
	}
	return nil
}

func (t *postgresTx) AppendSignature(ctx context.Context, sig *models.Signature) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO approval_signatures (id, workflow_id, step_id, signer_type, signer_name, signer_email,
		                                 signature_data, signature_method, ip_address, user_agent, signed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sig.ID, sig.WorkflowID, sig.StepID, string(sig.SignerType), sig.SignerName, sig.SignerEmail,
		sig.SignatureData, string(sig.SignatureMethod), sig.IPAddress, sig.UserAgent, sig.SignedAt)
	if err != nil {
		return fmt.Errorf("insert signature: %w", err)
	}
	return nil
}

func (t *postgresTx) ListSignatures(ctx context.Context, workflowID string) ([]*models.Signature, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, workflow_id, step_id, signer_type, signer_name, signer_email, signature_data,
		       signature_method, ip_address, user_agent, signed_at
		FROM approval_signatures WHERE workflow_id = $1 ORDER BY signed_at, id`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()

	var sigs []*models.Signature
	for rows.Next() {
		var s models.Signature
		err := rows.Scan(&s.ID, &s.WorkflowID, &s.StepID, &s.SignerType, &s.SignerName, &s.SignerEmail,
			&s.SignatureData, &s.SignatureMethod, &s.IPAddress, &s.UserAgent, &s.SignedAt)
		if err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		sigs = append(sigs, &s)
	}
	return sigs, rows.Err()
}

func (t *postgresTx) AppendHistory(ctx context.Context, e *models.HistoryEntry) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO approval_history (id, workflow_id, step_id, action, actor_type, actor_name, comments, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq`,
		e.ID, e.WorkflowID, e.StepID, string(e.Action), string(e.ActorType), e.ActorName, e.Comments, metadata, e.CreatedAt).
		Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (t *postgresTx) RecentHistory(ctx context.Context, workflowID string, limit int) ([]*models.HistoryEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT seq, id, workflow_id, step_id, action, actor_type, actor_name, comments, metadata, created_at
		FROM approval_history WHERE workflow_id = $1 ORDER BY seq DESC LIMIT $2`, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		err := rows.Scan(&e.Seq, &e.ID, &e.WorkflowID, &e.StepID, &e.Action, &e.ActorType, &e.ActorName,
			&e.Comments, &e.Metadata, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
