package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateColumnsRoundTrip(t *testing.T) {
	for _, s := range []State{Pending(1), InProgress(3), Approved(), Rejected()} {
		status, current := s.Columns()
		back, err := StateFromColumns(string(status), current)
		require.NoError(t, err)
		assert.Equal(t, s, back)
	}
}

func TestStateFromColumnsRejectsIllegalCombinations(t *testing.T) {
	two := 2
	zero := 0

	_, err := StateFromColumns("approved", &two)
	assert.Error(t, err)

	_, err = StateFromColumns("pending", nil)
	assert.Error(t, err)

	_, err = StateFromColumns("in_progress", &zero)
	assert.Error(t, err)

	_, err = StateFromColumns("archived", nil)
	assert.Error(t, err)
}

func TestStateAccessors(t *testing.T) {
	n, ok := InProgress(2).CurrentStep()
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	assert.False(t, InProgress(2).IsTerminal())
	assert.Equal(t, "in_progress(2)", InProgress(2).String())

	_, ok = Approved().CurrentStep()
	assert.False(t, ok)
	assert.True(t, Rejected().IsTerminal())
	assert.Equal(t, "rejected", Rejected().String())

	assert.False(t, State{}.IsValid())
	assert.False(t, Pending(0).IsValid())
	assert.True(t, Approved().IsValid())
}

func TestNewWorkflowViewNormalisesSlices(t *testing.T) {
	v := NewWorkflowView(&Workflow{ID: "wf", Type: WorkflowTypeSimple, State: Approved()}, nil, nil, nil)
	assert.Equal(t, WorkflowStatusApproved, v.Status)
	assert.Nil(t, v.CurrentStep)
	assert.NotNil(t, v.Steps)
	assert.NotNil(t, v.Signatures)
	assert.NotNil(t, v.History)
}
