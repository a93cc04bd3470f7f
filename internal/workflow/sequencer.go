package workflow

import (
	"sort"
	"strings"

	"signoff/pkg/models"
)

// DefaultStepName is the name of the step synthesized for simple workflows
// created without an explicit step list.
const DefaultStepName = "Approbation"

// DefaultSteps returns the steps synthesized when a workflow is created
// without an explicit list. Only simple workflows have a default.
func DefaultSteps(t models.WorkflowType) []models.StepDefinition {
	if t != models.WorkflowTypeSimple {
		return nil
	}
	return []models.StepDefinition{{
		StepNumber:   1,
		Name:         DefaultStepName,
		ApproverType: models.ApproverTypeClient,
	}}
}

// ValidateDefinitions checks a caller-supplied step list before anything is
// written. Steps must be numbered 1..N in the order given.
func ValidateDefinitions(defs []models.StepDefinition) error {
	if len(defs) == 0 {
		return NewError(CodeInvalidStepSequence, "workflow requires at least one step")
	}

	required := 0
	for i, d := range defs {
		want := i + 1
		if d.StepNumber != want {
			return NewErrorf(CodeInvalidStepSequence,
				"step at position %d has number %d, expected %d", want, d.StepNumber, want).
				WithDetails(map[string]any{"position": want, "step_number": d.StepNumber})
		}
		if strings.TrimSpace(d.Name) == "" {
			return NewErrorf(CodeInvalidStepSequence, "step %d has an empty name", want).
				WithDetails(map[string]any{"step_number": want})
		}
		if !d.ApproverType.Valid() {
			return NewErrorf(CodeInvalidStepSequence, "step %d has unknown approver type %q", want, d.ApproverType).
				WithDetails(map[string]any{"step_number": want})
		}
		if d.ApproverType == models.ApproverTypeSpecificUser && (d.ApproverID == nil || *d.ApproverID == "") {
			return NewErrorf(CodeInvalidStepSequence, "step %d targets a specific user but has no approver_id", want).
				WithDetails(map[string]any{"step_number": want})
		}
		if d.Required() {
			required++
		}
	}
	if required == 0 {
		return NewError(CodeInvalidStepSequence, "workflow requires at least one required step")
	}
	return nil
}

// Sequencer answers ordering questions about a workflow's hydrated steps.
// It owns no state beyond what it is constructed with.
type Sequencer struct {
	state models.State
	steps []*models.Step // steps[i].StepNumber == i+1
}

// NewSequencer builds a sequencer over persisted steps. A persisted sequence
// that is not dense, or a non-terminal state whose current step is missing or
// already decided, is reported as an internal error.
func NewSequencer(state models.State, steps []*models.Step) (*Sequencer, error) {
	sorted := make([]*models.Step, len(steps))
	copy(sorted, steps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StepNumber < sorted[j].StepNumber })

	for i, s := range sorted {
		if s.StepNumber != i+1 {
			return nil, NewErrorf(CodeInternal, "persisted steps are not dense: position %d has number %d", i+1, s.StepNumber)
		}
	}

	if n, ok := state.CurrentStep(); ok {
		if n > len(sorted) {
			return nil, NewErrorf(CodeInternal, "current step %d outside 1..%d", n, len(sorted))
		}
		if sorted[n-1].Status != models.StepStatusPending {
			return nil, NewErrorf(CodeInternal, "current step %d is %s, expected pending", n, sorted[n-1].Status)
		}
	}

	return &Sequencer{state: state, steps: sorted}, nil
}

// State returns the workflow state the sequencer was built with.
func (s *Sequencer) State() models.State { return s.state }

// Steps returns the steps in order.
func (s *Sequencer) Steps() []*models.Step { return s.steps }

// Len returns the number of steps.
func (s *Sequencer) Len() int { return len(s.steps) }

// ByID finds a step by id.
func (s *Sequencer) ByID(id string) (*models.Step, bool) {
	for _, st := range s.steps {
		if st.ID == id {
			return st, true
		}
	}
	return nil, false
}

// ByNumber finds a step by its step number.
func (s *Sequencer) ByNumber(n int) (*models.Step, bool) {
	if n < 1 || n > len(s.steps) {
		return nil, false
	}
	return s.steps[n-1], true
}

// Current returns the actionable step, if the workflow is not terminal.
func (s *Sequencer) Current() (*models.Step, bool) {
	n, ok := s.state.CurrentStep()
	if !ok {
		return nil, false
	}
	return s.ByNumber(n)
}

// IsCurrent reports whether step is the one step eligible for action.
func (s *Sequencer) IsCurrent(step *models.Step) bool {
	cur, ok := s.Current()
	return ok && step != nil && cur.ID == step.ID && cur.StepNumber == step.StepNumber
}

// Next returns the step that follows step, if any.
func (s *Sequencer) Next(step *models.Step) (*models.Step, bool) {
	return s.ByNumber(step.StepNumber + 1)
}

// RequiredAfter reports whether any required step follows step.
func (s *Sequencer) RequiredAfter(step *models.Step) bool {
	for _, st := range s.steps[step.StepNumber:] {
		if st.IsRequired {
			return true
		}
	}
	return false
}

// HasApprovedProgress reports whether approvals would be lost by redefining
// the workflow.
func (s *Sequencer) HasApprovedProgress() bool {
	if s.state.Status() == models.WorkflowStatusRejected {
		return false
	}
	for _, st := range s.steps {
		if st.Status == models.StepStatusApproved {
			return true
		}
	}
	return false
}
