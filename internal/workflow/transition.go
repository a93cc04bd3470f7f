package workflow

import (
	"time"

	"signoff/pkg/models"
)

// Decision is an approver's action on a step, stamped by the caller.
type Decision struct {
	StepID   string
	Action   models.StepAction
	Comments *string
	Actor    string
	At       time.Time
}

// Outcome is the result of applying a Decision. Step is a modified copy of
// the targeted step; nothing the sequencer holds is mutated.
type Outcome struct {
	State       models.State
	Step        *models.Step
	Next        *models.Step
	Deliverable *models.DeliverableUpdate
}

// Transition applies d to the workflow described by seq.
//
//	approve          -> step approved; advance, or approve the workflow when
//	                    no required step remains
//	reject           -> step and workflow rejected (terminal)
//	request_revision -> step stays pending, workflow back to pending on the
//	                    same step
func Transition(seq *Sequencer, d Decision) (*Outcome, error) {
	if !d.Action.Valid() {
		return nil, NewErrorf(CodeInvalidRequest, "unknown action %q", d.Action).
			WithDetails(map[string]any{"action": string(d.Action)})
	}

	state := seq.State()
	if state.IsTerminal() {
		return nil, NewErrorf(CodeWorkflowTerminal, "workflow is %s", state.Status()).
			WithDetails(map[string]any{"status": string(state.Status())})
	}

	target, ok := seq.ByID(d.StepID)
	if !ok {
		return nil, NewErrorf(CodeStepOutOfOrder, "step %s does not belong to this workflow", d.StepID).
			WithDetails(map[string]any{"step_id": d.StepID})
	}
	if !seq.IsCurrent(target) {
		current, _ := state.CurrentStep()
		return nil, NewErrorf(CodeStepOutOfOrder, "step %d is not the current step %d", target.StepNumber, current).
			WithDetails(map[string]any{"step_id": d.StepID, "step_number": target.StepNumber, "current_step": current})
	}

	step := *target
	step.Comments = d.Comments
	step.UpdatedAt = d.At
	out := &Outcome{Step: &step}

	switch d.Action {
	case models.ActionApprove:
		at, by := d.At, d.Actor
		step.Status = models.StepStatusApproved
		step.ApprovedAt = &at
		step.ApprovedBy = &by

		next, hasNext := seq.Next(target)
		if hasNext && seq.RequiredAfter(target) {
			out.State = models.InProgress(next.StepNumber)
			out.Next = next
			return out, nil
		}
		out.State = models.Approved()
		out.Deliverable = &models.DeliverableUpdate{
			Status:     models.DeliverableStatusApproved,
			ApprovedAt: &at,
			ApprovedBy: &by,
		}

	case models.ActionReject:
		step.Status = models.StepStatusRejected
		out.State = models.Rejected()
		out.Deliverable = &models.DeliverableUpdate{Status: models.DeliverableStatusRejected}

	case models.ActionRequestRevision:
		step.Status = models.StepStatusPending
		out.State = models.Pending(target.StepNumber)
		out.Deliverable = &models.DeliverableUpdate{
			Status:   models.DeliverableStatusRevisionRequested,
			Feedback: d.Comments,
		}
	}

	return out, nil
}
