package models

import "fmt"

// WorkflowStatus is the externally visible status of an approval workflow.
type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "pending"
	WorkflowStatusInProgress WorkflowStatus = "in_progress"
	WorkflowStatusApproved   WorkflowStatus = "approved"
	WorkflowStatusRejected   WorkflowStatus = "rejected"
)

type stateKind uint8

const (
	statePending stateKind = iota + 1
	stateInProgress
	stateApproved
	stateRejected
)

// State is the lifecycle state of a workflow. Non-terminal states carry the
// current step number; terminal states carry none. The zero value is invalid.
type State struct {
	kind    stateKind
	current int
}

// Pending returns the state of a workflow waiting on step n.
func Pending(n int) State { return State{kind: statePending, current: n} }

// InProgress returns the state of a workflow that has approved at least one
// step and is now waiting on step n.
func InProgress(n int) State { return State{kind: stateInProgress, current: n} }

// Approved returns the terminal approved state.
func Approved() State { return State{kind: stateApproved} }

// Rejected returns the terminal rejected state.
func Rejected() State { return State{kind: stateRejected} }

// Status reports the status tag of the state.
func (s State) Status() WorkflowStatus {
	switch s.kind {
	case statePending:
		return WorkflowStatusPending
	case stateInProgress:
		return WorkflowStatusInProgress
	case stateApproved:
		return WorkflowStatusApproved
	case stateRejected:
		return WorkflowStatusRejected
	}
	return ""
}

// CurrentStep returns the step the workflow is waiting on. ok is false for
// terminal states.
func (s State) CurrentStep() (n int, ok bool) {
	if s.IsTerminal() || s.kind == 0 {
		return 0, false
	}
	return s.current, true
}

// IsTerminal reports whether the state is approved or rejected.
func (s State) IsTerminal() bool {
	return s.kind == stateApproved || s.kind == stateRejected
}

// IsValid reports whether the state was built through one of the constructors
// with a positive step number where one is required.
func (s State) IsValid() bool {
	switch s.kind {
	case statePending, stateInProgress:
		return s.current >= 1
	case stateApproved, stateRejected:
		return true
	}
	return false
}

func (s State) String() string {
	if n, ok := s.CurrentStep(); ok {
		return fmt.Sprintf("%s(%d)", s.Status(), n)
	}
	return string(s.Status())
}

// Columns flattens the state into its persisted (status, current_step) pair.
// current is nil for terminal states.
func (s State) Columns() (status WorkflowStatus, current *int) {
	if n, ok := s.CurrentStep(); ok {
		return s.Status(), &n
	}
	return s.Status(), nil
}

// StateFromColumns rebuilds a State from its persisted columns and rejects
// combinations that cannot be represented.
func StateFromColumns(status string, current *int) (State, error) {
	switch WorkflowStatus(status) {
	case WorkflowStatusPending, WorkflowStatusInProgress:
		if current == nil || *current < 1 {
			return State{}, fmt.Errorf("workflow status %q requires a current step", status)
		}
		if WorkflowStatus(status) == WorkflowStatusPending {
			return Pending(*current), nil
		}
		return InProgress(*current), nil
	case WorkflowStatusApproved, WorkflowStatusRejected:
		if current != nil {
			return State{}, fmt.Errorf("terminal workflow status %q cannot carry current step %d", status, *current)
		}
		if WorkflowStatus(status) == WorkflowStatusApproved {
			return Approved(), nil
		}
		return Rejected(), nil
	}
	return State{}, fmt.Errorf("unknown workflow status %q", status)
}
