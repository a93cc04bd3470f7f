package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"signoff/pkg/models"
)

// MemoryStore is a goroutine-safe, map-backed Store used by tests and the
// dev server. A transaction holds the store lock for its whole duration and
// works on a copy of the data, which replaces the live data only when the
// transaction function succeeds.
type MemoryStore struct {
	mu   sync.Mutex
	data *memoryData
}

type memoryData struct {
	deliverables map[string]models.Deliverable
	workflows    map[string]models.Workflow
	byDeliv      map[string]string
	steps        map[string][]models.Step
	signatures   map[string][]models.Signature
	history      map[string][]models.HistoryEntry
	seq          int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memoryData{
		deliverables: make(map[string]models.Deliverable),
		workflows:    make(map[string]models.Workflow),
		byDeliv:      make(map[string]string),
		steps:        make(map[string][]models.Step),
		signatures:   make(map[string][]models.Signature),
		history:      make(map[string][]models.HistoryEntry),
	}}
}

var _ Store = (*MemoryStore)(nil)

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		deliverables: make(map[string]models.Deliverable, len(d.deliverables)),
		workflows:    make(map[string]models.Workflow, len(d.workflows)),
		byDeliv:      make(map[string]string, len(d.byDeliv)),
		steps:        make(map[string][]models.Step, len(d.steps)),
		signatures:   make(map[string][]models.Signature, len(d.signatures)),
		history:      make(map[string][]models.HistoryEntry, len(d.history)),
		seq:          d.seq,
	}
	for k, v := range d.deliverables {
		c.deliverables[k] = v
	}
	for k, v := range d.workflows {
		c.workflows[k] = v
	}
	for k, v := range d.byDeliv {
		c.byDeliv[k] = v
	}
	for k, v := range d.steps {
		c.steps[k] = append([]models.Step(nil), v...)
	}
	for k, v := range d.signatures {
		c.signatures[k] = append([]models.Signature(nil), v...)
	}
	for k, v := range d.history {
		c.history[k] = append([]models.HistoryEntry(nil), v...)
	}
	return c
}

// WithinTx runs fn with exclusive access to the store.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.data.clone()
	if err := fn(&memoryTx{data: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// AddDeliverable seeds a deliverable record.
func (s *MemoryStore) AddDeliverable(d models.Deliverable) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	s.data.deliverables[d.ID] = d
}

// Deliverable returns the committed state of a deliverable.
func (s *MemoryStore) Deliverable(id string) (models.Deliverable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.data.deliverables[id]
	return d, ok
}

// HistoryLen returns the number of committed ledger entries of a workflow.
func (s *MemoryStore) HistoryLen(workflowID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.data.history[workflowID])
}

type memoryTx struct {
	data *memoryData
}

func (t *memoryTx) LockDeliverable(_ context.Context, deliverableID string) (*models.Deliverable, error) {
	d, ok := t.data.deliverables[deliverableID]
	if !ok {
		return nil, fmt.Errorf("deliverable %s: %w", deliverableID, ErrNotFound)
	}
	return &d, nil
}

func (t *memoryTx) EnableApprovalWorkflow(_ context.Context, deliverableID string) error {
	d, ok := t.data.deliverables[deliverableID]
	if !ok {
		return fmt.Errorf("deliverable %s: %w", deliverableID, ErrNotFound)
	}
	d.ApprovalWorkflowEnabled = true
	d.UpdatedAt = time.Now().UTC()
	t.data.deliverables[deliverableID] = d
	return nil
}

func (t *memoryTx) UpdateDeliverableStatus(_ context.Context, deliverableID string, u models.DeliverableUpdate) error {
	d, ok := t.data.deliverables[deliverableID]
	if !ok {
		return fmt.Errorf("deliverable %s: %w", deliverableID, ErrNotFound)
	}
	d.Status = string(u.Status)
	if u.ApprovedAt != nil {
		d.ApprovedAt = u.ApprovedAt
	}
	if u.ApprovedBy != nil {
		d.ApprovedBy = u.ApprovedBy
	}
	d.RevisionFeedback = u.Feedback
	d.UpdatedAt = time.Now().UTC()
	t.data.deliverables[deliverableID] = d
	return nil
}

func (t *memoryTx) GetWorkflow(_ context.Context, workflowID string) (*models.Workflow, error) {
	wf, ok := t.data.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	return &wf, nil
}

func (t *memoryTx) GetWorkflowByDeliverable(ctx context.Context, deliverableID string) (*models.Workflow, error) {
	id, ok := t.data.byDeliv[deliverableID]
	if !ok {
		return nil, fmt.Errorf("workflow for deliverable %s: %w", deliverableID, ErrNotFound)
	}
	return t.GetWorkflow(ctx, id)
}

func (t *memoryTx) LockWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	return t.GetWorkflow(ctx, workflowID)
}

func (t *memoryTx) InsertWorkflow(_ context.Context, wf *models.Workflow) error {
	if _, ok := t.data.deliverables[wf.DeliverableID]; !ok {
		return fmt.Errorf("deliverable %s: %w", wf.DeliverableID, ErrNotFound)
	}
	if _, ok := t.data.byDeliv[wf.DeliverableID]; ok {
		return fmt.Errorf("workflow for deliverable %s: %w", wf.DeliverableID, ErrConflict)
	}
	if _, ok := t.data.workflows[wf.ID]; ok {
		return fmt.Errorf("workflow %s: %w", wf.ID, ErrConflict)
	}
	t.data.workflows[wf.ID] = *wf
	t.data.byDeliv[wf.DeliverableID] = wf.ID
	return nil
}

func (t *memoryTx) UpdateWorkflow(_ context.Context, wf *models.Workflow) error {
	cur, ok := t.data.workflows[wf.ID]
	if !ok {
		return fmt.Errorf("workflow %s: %w", wf.ID, ErrNotFound)
	}
	cur.Type = wf.Type
	cur.State = wf.State
	cur.UpdatedAt = wf.UpdatedAt
	t.data.workflows[wf.ID] = cur
	return nil
}

func (t *memoryTx) ListSteps(_ context.Context, workflowID string) ([]*models.Step, error) {
	stored := t.data.steps[workflowID]
	steps := make([]*models.Step, 0, len(stored))
	for i := range stored {
		s := stored[i]
		steps = append(steps, &s)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })
	return steps, nil
}

func (t *memoryTx) ReplaceSteps(_ context.Context, workflowID string, steps []*models.Step) error {
	if _, ok := t.data.workflows[workflowID]; !ok {
		return fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	seen := make(map[int]bool, len(steps))
	replaced := make([]models.Step, 0, len(steps))
	for _, s := range steps {
		if seen[s.StepNumber] {
			return fmt.Errorf("step number %d of workflow %s: %w", s.StepNumber, workflowID, ErrConflict)
		}
		seen[s.StepNumber] = true
		cp := *s
		cp.WorkflowID = workflowID
		replaced = append(replaced, cp)
	}
	t.data.steps[workflowID] = replaced
	return nil
}

func (t *memoryTx) UpdateStep(_ context.Context, step *models.Step) error {
	stored := t.data.steps[step.WorkflowID]
	for i := range stored {
		if stored[i].ID != step.ID {
			continue
		}
		stored[i].Status = step.Status
		stored[i].Comments = step.Comments
		stored[i].ApprovedAt = step.ApprovedAt
		stored[i].ApprovedBy = step.ApprovedBy
		stored[i].UpdatedAt = step.UpdatedAt
		return nil
	}
	return fmt.Errorf("step %s: %w", step.ID, ErrNotFound)
}

func (t *memoryTx) AppendSignature(_ context.Context, sig *models.Signature) error {
	if _, ok := t.data.workflows[sig.WorkflowID]; !ok {
		return fmt.Errorf("workflow %s: %w", sig.WorkflowID, ErrNotFound)
	}
	t.data.signatures[sig.WorkflowID] = append(t.data.signatures[sig.WorkflowID], *sig)
	return nil
}

func (t *memoryTx) ListSignatures(_ context.Context, workflowID string) ([]*models.Signature, error) {
	stored := t.data.signatures[workflowID]
	sigs := make([]*models.Signature, 0, len(stored))
	for i := range stored {
		s := stored[i]
		sigs = append(sigs, &s)
	}
	return sigs, nil
}

func (t *memoryTx) AppendHistory(_ context.Context, e *models.HistoryEntry) error {
	if _, ok := t.data.workflows[e.WorkflowID]; !ok {
		return fmt.Errorf("workflow %s: %w", e.WorkflowID, ErrNotFound)
	}
	t.data.seq++
	e.Seq = t.data.seq
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	t.data.history[e.WorkflowID] = append(t.data.history[e.WorkflowID], *e)
	return nil
}

func (t *memoryTx) RecentHistory(_ context.Context, workflowID string, limit int) ([]*models.HistoryEntry, error) {
	stored := t.data.history[workflowID]
	entries := make([]*models.HistoryEntry, 0, min(limit, len(stored)))
	for i := len(stored) - 1; i >= 0 && len(entries) < limit; i-- {
		e := stored[i]
		entries = append(entries, &e)
	}
	return entries, nil
}
