package services

import (
	"context"
	"errors"
	"time"

	"signoff/internal/repository"
	"signoff/internal/workflow"
	"signoff/pkg/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Options tunes the controller.
type Options struct {
	// HistoryLimit is the number of ledger entries returned in a view.
	HistoryLimit int
	// MaxSignatureBytes bounds signature payloads.
	MaxSignatureBytes int
	// AllowForcedRedefine lets employees discard approved progress with force.
	AllowForcedRedefine bool
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		HistoryLimit:        20,
		MaxSignatureBytes:   DefaultMaxSignatureBytes,
		AllowForcedRedefine: true,
	}
}

// ApprovalService is the workflow controller. Every operation runs in a
// single store transaction, and every state change writes its ledger entry
// in that same transaction before the call returns.
type ApprovalService struct {
	store      repository.Store
	ledger     *Ledger
	signatures *SignatureStore
	opts       Options
	logger     Logger
	inst       *instruments
	now        func() time.Time
}

// NewApprovalService creates an ApprovalService. logger may be nil.
func NewApprovalService(store repository.Store, opts Options, logger Logger) (*ApprovalService, error) {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultOptions().HistoryLimit
	}
	if logger == nil {
		logger = nopLogger{}
	}
	ledger, err := NewLedger(opts.HistoryLimit)
	if err != nil {
		return nil, err
	}
	inst, err := newInstruments()
	if err != nil {
		return nil, err
	}
	return &ApprovalService{
		store:      store,
		ledger:     ledger,
		signatures: NewSignatureStore(opts.MaxSignatureBytes),
		opts:       opts,
		logger:     logger,
		inst:       inst,
		now:        time.Now,
	}, nil
}

// storeErr maps repository failures onto the engine taxonomy.
func storeErr(op string, err error) error {
	var e *workflow.Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return workflow.NewErrorf(workflow.CodeNotFound, "%s: not found", op).WithCause(err)
	}
	return workflow.Internal(op, err)
}

func notFoundID(kind, id string) error {
	return workflow.NewErrorf(workflow.CodeNotFound, "%s %s not found", kind, id).
		WithDetails(map[string]any{kind + "_id": id})
}

func checkActor(actor models.Actor) error {
	if !actor.Type.Valid() || actor.Name == "" {
		return workflow.NewError(workflow.CodeInvalidRequest, "caller identity is incomplete")
	}
	return nil
}

func (s *ApprovalService) logFailure(msg string, err error, args ...any) {
	args = append(args, "error", err)
	if workflow.CodeOf(err) == workflow.CodeInternal {
		s.logger.Error(msg, args...)
		return
	}
	s.logger.Debug(msg, args...)
}

// CreateOrReplaceWorkflow creates the workflow of a deliverable, or redefines
// the existing one: its steps are regenerated and it restarts at step 1.
// Redefining a workflow with approved progress requires req.Force from an
// employee.
func (s *ApprovalService) CreateOrReplaceWorkflow(ctx context.Context, actor models.Actor, deliverableID string, req models.CreateWorkflowRequest) (view *models.WorkflowView, err error) {
	ctx, span := s.inst.start(ctx, "ApprovalService.CreateOrReplaceWorkflow",
		attribute.String("deliverable_id", deliverableID),
		attribute.String("workflow_type", string(req.WorkflowType)))
	defer func() {
		s.inst.recordTransition(ctx, "define", err)
		end(span, err)
	}()

	if err := checkActor(actor); err != nil {
		return nil, err
	}
	switch {
	case req.WorkflowType == models.WorkflowTypeParallel:
		return nil, workflow.NewError(workflow.CodeUnsupportedWorkflowType, "parallel workflows are not supported").
			WithDetails(map[string]any{"workflow_type": string(req.WorkflowType)})
	case !req.WorkflowType.Valid():
		return nil, workflow.NewErrorf(workflow.CodeInvalidRequest, "unknown workflow type %q", req.WorkflowType).
			WithDetails(map[string]any{"workflow_type": string(req.WorkflowType)})
	}
	if _, perr := uuid.Parse(deliverableID); perr != nil {
		return nil, notFoundID("deliverable", deliverableID)
	}

	defs := req.Steps
	if len(defs) == 0 {
		defs = workflow.DefaultSteps(req.WorkflowType)
	}
	if err := workflow.ValidateDefinitions(defs); err != nil {
		return nil, err
	}

	var (
		action models.HistoryAction
		forced bool
	)
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockDeliverable(ctx, deliverableID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundID("deliverable", deliverableID)
			}
			return storeErr("lock deliverable", err)
		}

		now := s.now().UTC()
		metadata := map[string]any{
			"workflow_type": string(req.WorkflowType),
			"step_count":    len(defs),
		}

		wf, err := tx.GetWorkflowByDeliverable(ctx, deliverableID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			action = models.HistoryWorkflowCreated
			wf = &models.Workflow{
				ID:            uuid.NewString(),
				DeliverableID: deliverableID,
				Type:          req.WorkflowType,
				State:         models.Pending(1),
				CreatedBy:     actor.Name,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.InsertWorkflow(ctx, wf); err != nil {
				return storeErr("insert workflow", err)
			}

		case err != nil:
			return storeErr("load workflow", err)

		default:
			action = models.HistoryWorkflowUpdated
			if wf, err = tx.LockWorkflow(ctx, wf.ID); err != nil {
				return storeErr("lock workflow", err)
			}
			steps, err := tx.ListSteps(ctx, wf.ID)
			if err != nil {
				return storeErr("list steps", err)
			}
			seq, err := workflow.NewSequencer(wf.State, steps)
			if err != nil {
				return err
			}
			if seq.HasApprovedProgress() {
				if !req.Force || actor.Type != models.ActorTypeEmployee || !s.opts.AllowForcedRedefine {
					return workflow.NewError(workflow.CodeRedefineNotAllowed,
						"workflow has approved steps; an employee must force the redefinition").
						WithDetails(map[string]any{"workflow_id": wf.ID, "status": string(wf.State.Status())})
				}
				forced = true
			}

			prevStatus, prevCurrent := wf.State.Columns()
			metadata["previous_status"] = string(prevStatus)
			metadata["previous_current_step"] = prevCurrent
			metadata["forced"] = forced

			wf.Type = req.WorkflowType
			wf.State = models.Pending(1)
			wf.UpdatedAt = now
			if err := tx.UpdateWorkflow(ctx, wf); err != nil {
				return storeErr("update workflow", err)
			}
		}

		if err := tx.ReplaceSteps(ctx, wf.ID, newSteps(wf.ID, defs, now)); err != nil {
			return storeErr("replace steps", err)
		}
		if err := tx.EnableApprovalWorkflow(ctx, deliverableID); err != nil {
			return storeErr("enable approval workflow", err)
		}
		err = s.ledger.Append(ctx, tx, &models.HistoryEntry{
			WorkflowID: wf.ID,
			Action:     action,
			ActorType:  actor.Type,
			ActorName:  actor.Name,
			Metadata:   metadata,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}

		view, err = s.hydrate(ctx, tx, wf)
		return err
	})
	if err != nil {
		s.logFailure("workflow definition failed", err, "deliverable_id", deliverableID)
		return nil, err
	}

	if forced {
		s.logger.Warn("approved workflow progress discarded by forced redefinition",
			"workflow_id", view.ID, "deliverable_id", deliverableID, "actor", actor.Name)
	}
	s.logger.Info("workflow defined", "workflow_id", view.ID, "deliverable_id", deliverableID,
		"action", string(action), "workflow_type", string(req.WorkflowType), "steps", len(defs))
	return view, nil
}

func newSteps(workflowID string, defs []models.StepDefinition, now time.Time) []*models.Step {
	steps := make([]*models.Step, 0, len(defs))
	for _, d := range defs {
		steps = append(steps, &models.Step{
			ID:           uuid.NewString(),
			WorkflowID:   workflowID,
			StepNumber:   d.StepNumber,
			Name:         d.Name,
			Description:  d.Description,
			ApproverType: d.ApproverType,
			ApproverID:   d.ApproverID,
			ApproverName: d.ApproverName,
			IsRequired:   d.Required(),
			Status:       models.StepStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return steps
}

// ActOnStep applies approve, reject or request_revision to the current step.
// Concurrent calls on the same workflow serialize on the workflow row, so
// the loser of a race observes the advanced state and gets StepOutOfOrder.
func (s *ApprovalService) ActOnStep(ctx context.Context, actor models.Actor, workflowID string, req models.StepActionRequest) (view *models.WorkflowView, err error) {
	ctx, span := s.inst.start(ctx, "ApprovalService.ActOnStep",
		attribute.String("workflow_id", workflowID),
		attribute.String("step_id", req.StepID),
		attribute.String("action", string(req.Action)))
	defer func() {
		s.inst.recordTransition(ctx, string(req.Action), err)
		end(span, err)
	}()

	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if _, perr := uuid.Parse(workflowID); perr != nil {
		return nil, notFoundID("workflow", workflowID)
	}

	var out *workflow.Outcome
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		wf, err := tx.LockWorkflow(ctx, workflowID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundID("workflow", workflowID)
			}
			return storeErr("lock workflow", err)
		}
		steps, err := tx.ListSteps(ctx, wf.ID)
		if err != nil {
			return storeErr("list steps", err)
		}
		seq, err := workflow.NewSequencer(wf.State, steps)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		out, err = workflow.Transition(seq, workflow.Decision{
			StepID:   req.StepID,
			Action:   req.Action,
			Comments: req.Comments,
			Actor:    actor.Name,
			At:       now,
		})
		if err != nil {
			return err
		}

		if err := tx.UpdateStep(ctx, out.Step); err != nil {
			return storeErr("update step", err)
		}
		wf.State = out.State
		wf.UpdatedAt = now
		if err := tx.UpdateWorkflow(ctx, wf); err != nil {
			return storeErr("update workflow", err)
		}
		if out.Deliverable != nil {
			if err := tx.UpdateDeliverableStatus(ctx, wf.DeliverableID, *out.Deliverable); err != nil {
				return storeErr("update deliverable", err)
			}
		}

		stepID := out.Step.ID
		err = s.ledger.Append(ctx, tx, &models.HistoryEntry{
			WorkflowID: wf.ID,
			StepID:     &stepID,
			Action:     models.HistoryAction(req.Action),
			ActorType:  actor.Type,
			ActorName:  actor.Name,
			Comments:   req.Comments,
			Metadata:   transitionMetadata(req.Action, out),
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}

		view, err = s.hydrate(ctx, tx, wf)
		return err
	})
	if err != nil {
		s.logFailure("step action failed", err, "workflow_id", workflowID, "step_id", req.StepID, "action", string(req.Action))
		return nil, err
	}

	s.logger.Info("step action applied", "workflow_id", workflowID, "step_id", req.StepID,
		"action", string(req.Action), "state", out.State.String())
	return view, nil
}

func transitionMetadata(action models.StepAction, out *workflow.Outcome) map[string]any {
	md := map[string]any{"step_number": out.Step.StepNumber}
	switch action {
	case models.ActionApprove:
		var next *int
		if out.Next != nil {
			n := out.Next.StepNumber
			next = &n
		}
		md["next_step"] = next
		md["workflow_status"] = string(out.State.Status())
	case models.ActionReject:
		md["workflow_status"] = string(out.State.Status())
	case models.ActionRequestRevision:
		md["feedback"] = out.Step.Comments
	}
	return md
}

// AttachSignature records a signature by actor on the workflow, optionally
// bound to one of its steps. Audit fields come only from rc. Workflow and
// step status are left untouched, and terminal workflows still accept
// signatures.
func (s *ApprovalService) AttachSignature(ctx context.Context, actor models.Actor, workflowID string, req models.SignatureRequest, rc models.RequestContext) (view *models.WorkflowView, err error) {
	ctx, span := s.inst.start(ctx, "ApprovalService.AttachSignature",
		attribute.String("workflow_id", workflowID),
		attribute.String("signature_method", string(req.SignatureMethod)))
	defer func() {
		s.inst.recordTransition(ctx, string(models.HistorySignatureAdded), err)
		end(span, err)
	}()

	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if err := s.signatures.Validate(req.SignatureMethod, req.SignatureData); err != nil {
		return nil, err
	}
	if _, perr := uuid.Parse(workflowID); perr != nil {
		return nil, notFoundID("workflow", workflowID)
	}

	var sigID string
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		wf, err := tx.LockWorkflow(ctx, workflowID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundID("workflow", workflowID)
			}
			return storeErr("lock workflow", err)
		}

		if req.StepID != nil {
			steps, err := tx.ListSteps(ctx, wf.ID)
			if err != nil {
				return storeErr("list steps", err)
			}
			found := false
			for _, st := range steps {
				if st.ID == *req.StepID {
					found = true
					break
				}
			}
			if !found {
				return notFoundID("step", *req.StepID)
			}
		}

		now := s.now().UTC()
		sig := &models.Signature{
			WorkflowID:      wf.ID,
			StepID:          req.StepID,
			SignerType:      actor.Type,
			SignerName:      actor.Name,
			SignerEmail:     actor.Email,
			SignatureData:   req.SignatureData,
			SignatureMethod: req.SignatureMethod,
			IPAddress:       rc.IPAddress,
			UserAgent:       rc.UserAgent,
			SignedAt:        now,
		}
		if sigID, err = s.signatures.Append(ctx, tx, sig); err != nil {
			return err
		}

		var stepRef any
		if req.StepID != nil {
			stepRef = *req.StepID
		}
		err = s.ledger.Append(ctx, tx, &models.HistoryEntry{
			WorkflowID: wf.ID,
			StepID:     req.StepID,
			Action:     models.HistorySignatureAdded,
			ActorType:  actor.Type,
			ActorName:  actor.Name,
			Metadata: map[string]any{
				"signature_id":     sigID,
				"signature_method": string(req.SignatureMethod),
				"step_id":          stepRef,
			},
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		view, err = s.hydrate(ctx, tx, wf)
		return err
	})
	if err != nil {
		s.logFailure("signature failed", err, "workflow_id", workflowID)
		return nil, err
	}

	s.inst.recordSignature(ctx, string(req.SignatureMethod))
	s.logger.Info("signature attached", "workflow_id", workflowID, "signature_id", sigID,
		"signature_method", string(req.SignatureMethod), "signer", actor.Name)
	return view, nil
}

// GetWorkflow returns the hydrated workflow.
func (s *ApprovalService) GetWorkflow(ctx context.Context, workflowID string) (*models.WorkflowView, error) {
	if _, err := uuid.Parse(workflowID); err != nil {
		return nil, notFoundID("workflow", workflowID)
	}
	var view *models.WorkflowView
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		wf, err := tx.GetWorkflow(ctx, workflowID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundID("workflow", workflowID)
			}
			return storeErr("load workflow", err)
		}
		view, err = s.hydrate(ctx, tx, wf)
		return err
	})
	return view, err
}

// GetWorkflowForDeliverable returns the hydrated workflow of a deliverable.
func (s *ApprovalService) GetWorkflowForDeliverable(ctx context.Context, deliverableID string) (*models.WorkflowView, error) {
	if _, err := uuid.Parse(deliverableID); err != nil {
		return nil, notFoundID("deliverable", deliverableID)
	}
	var view *models.WorkflowView
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		wf, err := tx.GetWorkflowByDeliverable(ctx, deliverableID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return workflow.NewErrorf(workflow.CodeNotFound, "deliverable %s has no approval workflow", deliverableID).
					WithDetails(map[string]any{"deliverable_id": deliverableID})
			}
			return storeErr("load workflow", err)
		}
		view, err = s.hydrate(ctx, tx, wf)
		return err
	})
	return view, err
}

// RecentHistory returns up to limit ledger entries of a workflow, newest
// first. A non-positive limit selects the configured default.
func (s *ApprovalService) RecentHistory(ctx context.Context, workflowID string, limit int) ([]*models.HistoryEntry, error) {
	if _, err := uuid.Parse(workflowID); err != nil {
		return nil, notFoundID("workflow", workflowID)
	}
	var entries []*models.HistoryEntry
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetWorkflow(ctx, workflowID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFoundID("workflow", workflowID)
			}
			return storeErr("load workflow", err)
		}
		var err error
		entries, err = s.ledger.RecentFor(ctx, tx, workflowID, limit)
		return err
	})
	if entries == nil && err == nil {
		entries = []*models.HistoryEntry{}
	}
	return entries, err
}

// Ping checks the store.
func (s *ApprovalService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *ApprovalService) hydrate(ctx context.Context, tx repository.Tx, wf *models.Workflow) (*models.WorkflowView, error) {
	steps, err := tx.ListSteps(ctx, wf.ID)
	if err != nil {
		return nil, storeErr("list steps", err)
	}
	sigs, err := tx.ListSignatures(ctx, wf.ID)
	if err != nil {
		return nil, storeErr("list signatures", err)
	}
	history, err := s.ledger.RecentFor(ctx, tx, wf.ID, s.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}
	return models.NewWorkflowView(wf, steps, sigs, history), nil
}
