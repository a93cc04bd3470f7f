package services

import (
	"context"
	"sync"
	"testing"

	"signoff/internal/repository"
	"signoff/internal/workflow"
	"signoff/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	client   = models.Actor{Type: models.ActorTypeClient, ID: "c-1", Name: "Casey Client", Email: "casey@example.com"}
	employee = models.Actor{Type: models.ActorTypeEmployee, ID: "e-1", Name: "Erin Employee", Email: "erin@agency.test"}
)

func ptr[T any](v T) *T { return &v }

type fixture struct {
	svc   *ApprovalService
	store *repository.MemoryStore
	deliv string
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	deliv := uuid.NewString()
	store.AddDeliverable(models.Deliverable{ID: deliv, Title: "Spring campaign", Status: "in_review"})

	svc, err := NewApprovalService(store, opts, nil)
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, deliv: deliv}
}

func twoSteps() models.CreateWorkflowRequest {
	return models.CreateWorkflowRequest{
		WorkflowType: models.WorkflowTypeMultiStep,
		Steps: []models.StepDefinition{
			{StepNumber: 1, Name: "Design review", ApproverType: models.ApproverTypeEmployee},
			{StepNumber: 2, Name: "Final sign-off", ApproverType: models.ApproverTypeClient},
		},
	}
}

func (f *fixture) define(t *testing.T, req models.CreateWorkflowRequest) *models.WorkflowView {
	t.Helper()
	view, err := f.svc.CreateOrReplaceWorkflow(context.Background(), employee, f.deliv, req)
	require.NoError(t, err)
	return view
}

func (f *fixture) act(view *models.WorkflowView, step int, action models.StepAction, comments *string) (*models.WorkflowView, error) {
	return f.svc.ActOnStep(context.Background(), client, view.ID, models.StepActionRequest{
		StepID:   view.Steps[step-1].ID,
		Action:   action,
		Comments: comments,
	})
}

func TestCreateWorkflow(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	view := f.define(t, twoSteps())

	assert.Equal(t, f.deliv, view.DeliverableID)
	assert.Equal(t, models.WorkflowStatusPending, view.Status)
	require.NotNil(t, view.CurrentStep)
	assert.Equal(t, 1, *view.CurrentStep)
	require.Len(t, view.Steps, 2)
	assert.Equal(t, "Design review", view.Steps[0].Name)
	assert.True(t, view.Steps[1].IsRequired)
	assert.Empty(t, view.Signatures)
	require.Len(t, view.History, 1)
	assert.Equal(t, models.HistoryWorkflowCreated, view.History[0].Action)
	assert.Equal(t, employee.Name, view.History[0].ActorName)

	d, _ := f.store.Deliverable(f.deliv)
	assert.True(t, d.ApprovalWorkflowEnabled)
	assert.Equal(t, "in_review", d.Status)
}

func TestMultiStepApprovalCompletes(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	view := f.define(t, twoSteps())

	view, err := f.act(view, 1, models.ActionApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusInProgress, view.Status)
	assert.Equal(t, 2, *view.CurrentStep)
	assert.Equal(t, models.StepStatusApproved, view.Steps[0].Status)
	require.NotNil(t, view.Steps[0].ApprovedBy)
	assert.Equal(t, client.Name, *view.Steps[0].ApprovedBy)

	view, err = f.act(view, 2, models.ActionApprove, ptr("Ship it"))
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusApproved, view.Status)
	assert.Nil(t, view.CurrentStep)
	assert.Equal(t, models.HistoryApprove, view.History[0].Action)
	assert.Nil(t, view.History[0].Metadata["next_step"])

	d, _ := f.store.Deliverable(f.deliv)
	assert.Equal(t, "approved", d.Status)
	require.NotNil(t, d.ApprovedAt)
	require.NotNil(t, d.ApprovedBy)
	assert.Equal(t, client.Name, *d.ApprovedBy)
}

func TestSimpleWorkflowRejectIsTerminal(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	view := f.define(t, models.CreateWorkflowRequest{WorkflowType: models.WorkflowTypeSimple})

	require.Len(t, view.Steps, 1)
	assert.Equal(t, workflow.DefaultStepName, view.Steps[0].Name)
	assert.Equal(t, models.ApproverTypeClient, view.Steps[0].ApproverType)

	view, err := f.act(view, 1, models.ActionReject, ptr("Budget too high"))
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusRejected, view.Status)
	assert.Equal(t, models.StepStatusRejected, view.Steps[0].Status)
	assert.Equal(t, "Budget too high", *view.Steps[0].Comments)

	d, _ := f.store.Deliverable(f.deliv)
	assert.Equal(t, "rejected", d.Status)

	entries := f.store.HistoryLen(view.ID)
	_, err = f.act(view, 1, models.ActionApprove, nil)
	assert.ErrorIs(t, err, workflow.ErrWorkflowTerminal)
	assert.Equal(t, entries, f.store.HistoryLen(view.ID))

	after, err := f.svc.GetWorkflow(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusRejected, after.Status)
	assert.Equal(t, models.StepStatusRejected, after.Steps[0].Status)
}

func TestRequestRevisionKeepsStep(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	view := f.define(t, twoSteps())

	view, err := f.act(view, 1, models.ActionRequestRevision, ptr("Please redo the hero image"))
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPending, view.Status)
	assert.Equal(t, 1, *view.CurrentStep)
	assert.Equal(t, models.StepStatusPending, view.Steps[0].Status)
	assert.Equal(t, "Please redo the hero image", view.History[0].Metadata["feedback"])

	d, _ := f.store.Deliverable(f.deliv)
	assert.Equal(t, "revision_requested", d.Status)
	require.NotNil(t, d.RevisionFeedback)
	assert.Equal(t, "Please redo the hero image", *d.RevisionFeedback)

	// The same step stays actionable.
	view, err = f.act(view, 1, models.ActionApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusInProgress, view.Status)
}

func TestAttachSignature(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	view := f.define(t, twoSteps())
	view, err := f.act(view, 1, models.ActionApprove, nil)
	require.NoError(t, err)

	rc := models.RequestContext{IPAddress: "203.0.113.7", UserAgent: "portal/1.0"}
	stepID := view.Steps[0].ID
	signed, err := f.svc.AttachSignature(context.Background(), client, view.ID, models.SignatureRequest{
		StepID:          &stepID,
		SignatureData:   "data:image/png;base64,iVBORw0KGgo=",
		SignatureMethod: models.SignatureMethodDraw,
	}, rc)
	require.NoError(t, err)

	require.Len(t, signed.Signatures, 1)
	sig := signed.Signatures[0]
	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, client.Email, sig.SignerEmail)
	assert.Equal(t, models.ActorTypeClient, sig.SignerType)
	assert.Equal(t, rc.IPAddress, sig.IPAddress)
	assert.Equal(t, rc.UserAgent, sig.UserAgent)
	assert.Equal(t, models.HistorySignatureAdded, signed.History[0].Action)
	assert.Equal(t, sig.ID, signed.History[0].Metadata["signature_id"])

	assert.Equal(t, view.Status, signed.Status)
	assert.Equal(t, *view.CurrentStep, *signed.CurrentStep)
}

func TestAttachSignatureErrors(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	view := f.define(t, twoSteps())
	ctx := context.Background()

	_, err := f.svc.AttachSignature(ctx, client, view.ID, models.SignatureRequest{
		StepID: ptr(uuid.NewString()), SignatureData: "Casey", SignatureMethod: models.SignatureMethodType,
	}, models.RequestContext{})
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = f.svc.AttachSignature(ctx, client, view.ID, models.SignatureRequest{
		SignatureData: "not-a-data-url", SignatureMethod: models.SignatureMethodDraw,
	}, models.RequestContext{})
	assert.ErrorIs(t, err, workflow.ErrInvalidSignaturePayload)

	_, err = f.svc.AttachSignature(ctx, client, uuid.NewString(), models.SignatureRequest{
		SignatureData: "Casey", SignatureMethod: models.SignatureMethodType,
	}, models.RequestContext{})
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	assert.Equal(t, 1, f.store.HistoryLen(view.ID))
}

func TestTerminalWorkflowAcceptsCountersignature(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	view := f.define(t, models.CreateWorkflowRequest{WorkflowType: models.WorkflowTypeSimple})
	view, err := f.act(view, 1, models.ActionApprove, nil)
	require.NoError(t, err)

	signed, err := f.svc.AttachSignature(context.Background(), employee, view.ID, models.SignatureRequest{
		SignatureData: "Erin Employee", SignatureMethod: models.SignatureMethodType,
	}, models.RequestContext{})
	require.NoError(t, err)
	assert.Len(t, signed.Signatures, 1)
	assert.Nil(t, signed.Signatures[0].StepID)
	assert.Equal(t, models.WorkflowStatusApproved, signed.Status)
}

func TestActOnStepOutOfOrder(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	view := f.define(t, twoSteps())

	_, err := f.act(view, 2, models.ActionApprove, nil)
	assert.ErrorIs(t, err, workflow.ErrStepOutOfOrder)
	var werr *workflow.Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, 1, werr.Details["current_step"])

	_, err = f.svc.ActOnStep(context.Background(), client, view.ID, models.StepActionRequest{
		StepID: uuid.NewString(), Action: models.ActionApprove,
	})
	assert.ErrorIs(t, err, workflow.ErrStepOutOfOrder)

	_, err = f.svc.ActOnStep(context.Background(), client, view.ID, models.StepActionRequest{
		StepID: view.Steps[0].ID, Action: "escalate",
	})
	assert.ErrorIs(t, err, workflow.ErrInvalidRequest)

	assert.Equal(t, 1, f.store.HistoryLen(view.ID))
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()

	_, err := f.svc.GetWorkflow(ctx, uuid.NewString())
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = f.svc.GetWorkflow(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = f.svc.GetWorkflowForDeliverable(ctx, f.deliv)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = f.svc.CreateOrReplaceWorkflow(ctx, employee, uuid.NewString(), twoSteps())
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = f.svc.ActOnStep(ctx, client, uuid.NewString(), models.StepActionRequest{
		StepID: uuid.NewString(), Action: models.ActionApprove,
	})
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestCreateWorkflowValidation(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()

	gap := twoSteps()
	gap.Steps[1].StepNumber = 3
	_, err := f.svc.CreateOrReplaceWorkflow(ctx, employee, f.deliv, gap)
	assert.ErrorIs(t, err, workflow.ErrInvalidStepSequence)

	_, err = f.svc.CreateOrReplaceWorkflow(ctx, employee, f.deliv, models.CreateWorkflowRequest{WorkflowType: models.WorkflowTypeMultiStep})
	assert.ErrorIs(t, err, workflow.ErrInvalidStepSequence)

	parallel := twoSteps()
	parallel.WorkflowType = models.WorkflowTypeParallel
	_, err = f.svc.CreateOrReplaceWorkflow(ctx, employee, f.deliv, parallel)
	assert.ErrorIs(t, err, workflow.ErrUnsupportedWorkflowType)

	_, err = f.svc.CreateOrReplaceWorkflow(ctx, models.Actor{}, f.deliv, twoSteps())
	assert.ErrorIs(t, err, workflow.ErrInvalidRequest)

	d, _ := f.store.Deliverable(f.deliv)
	assert.False(t, d.ApprovalWorkflowEnabled)
}

func TestRedefineWithoutProgress(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	first := f.define(t, twoSteps())
	_, err := f.act(first, 1, models.ActionRequestRevision, ptr("tweak"))
	require.NoError(t, err)

	second, err := f.svc.CreateOrReplaceWorkflow(context.Background(), client, f.deliv,
		models.CreateWorkflowRequest{WorkflowType: models.WorkflowTypeSimple})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.WorkflowTypeSimple, second.WorkflowType)
	require.Len(t, second.Steps, 1)
	assert.NotEqual(t, first.Steps[0].ID, second.Steps[0].ID)
	assert.Equal(t, models.HistoryWorkflowUpdated, second.History[0].Action)
	assert.Equal(t, false, second.History[0].Metadata["forced"])
	assert.Len(t, second.History, 3)
}

func TestRedefineWithApprovedProgressIsGuarded(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	view := f.define(t, twoSteps())
	_, err := f.act(view, 1, models.ActionApprove, nil)
	require.NoError(t, err)

	_, err = f.svc.CreateOrReplaceWorkflow(ctx, employee, f.deliv, twoSteps())
	assert.ErrorIs(t, err, workflow.ErrRedefineNotAllowed)

	forced := twoSteps()
	forced.Force = true
	_, err = f.svc.CreateOrReplaceWorkflow(ctx, client, f.deliv, forced)
	assert.ErrorIs(t, err, workflow.ErrRedefineNotAllowed)

	reset, err := f.svc.CreateOrReplaceWorkflow(ctx, employee, f.deliv, forced)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPending, reset.Status)
	assert.Equal(t, 1, *reset.CurrentStep)
	for _, st := range reset.Steps {
		assert.Equal(t, models.StepStatusPending, st.Status)
	}
	md := reset.History[0].Metadata
	assert.Equal(t, true, md["forced"])
	assert.Equal(t, "in_progress", md["previous_status"])
	assert.Equal(t, float64(2), md["previous_current_step"])
}

func TestForcedRedefineCanBeDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.AllowForcedRedefine = false
	f := newFixture(t, opts)
	view := f.define(t, models.CreateWorkflowRequest{WorkflowType: models.WorkflowTypeSimple})
	_, err := f.act(view, 1, models.ActionApprove, nil)
	require.NoError(t, err)

	req := twoSteps()
	req.Force = true
	_, err = f.svc.CreateOrReplaceWorkflow(context.Background(), employee, f.deliv, req)
	assert.ErrorIs(t, err, workflow.ErrRedefineNotAllowed)
}

func TestTrailingOptionalStepDoesNotBlockApproval(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	req := twoSteps()
	req.Steps[1].IsRequired = ptr(false)
	view := f.define(t, req)

	view, err := f.act(view, 1, models.ActionApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusApproved, view.Status)
	assert.Equal(t, models.StepStatusPending, view.Steps[1].Status)
}

func TestHistoryLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.HistoryLimit = 2
	f := newFixture(t, opts)
	view := f.define(t, twoSteps())

	for i := 0; i < 3; i++ {
		var err error
		view, err = f.act(view, 1, models.ActionRequestRevision, ptr("again"))
		require.NoError(t, err)
	}
	require.Len(t, view.History, 2)
	assert.Greater(t, view.History[0].Seq, view.History[1].Seq)

	all, err := f.svc.RecentHistory(context.Background(), view.ID, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, models.HistoryWorkflowCreated, all[3].Action)
}

func TestConcurrentApprovalsExactlyOneWins(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	view := f.define(t, twoSteps())

	const callers = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.act(view, 1, models.ActionApprove, nil)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, workflow.ErrStepOutOfOrder)
	}
	assert.Equal(t, 1, wins)

	after, err := f.svc.GetWorkflow(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, *after.CurrentStep)
	assert.Equal(t, 2, f.store.HistoryLen(view.ID))
}
