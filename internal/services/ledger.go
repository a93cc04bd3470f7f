package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"signoff/internal/repository"
	"signoff/internal/workflow"
	"signoff/pkg/models"

	"github.com/google/uuid"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// metadataSchemas documents the metadata carried by each ledger action.
var metadataSchemas = map[models.HistoryAction]string{
	models.HistoryWorkflowCreated: `{
  "type": "object",
  "required": ["workflow_type", "step_count"],
  "properties": {
    "workflow_type": {"enum": ["simple", "multi_step", "parallel"]},
    "step_count": {"type": "integer", "minimum": 1}
  },
  "additionalProperties": false
}`,
	models.HistoryWorkflowUpdated: `{
  "type": "object",
  "required": ["workflow_type", "step_count", "previous_status", "previous_current_step", "forced"],
  "properties": {
    "workflow_type": {"enum": ["simple", "multi_step", "parallel"]},
    "step_count": {"type": "integer", "minimum": 1},
    "previous_status": {"enum": ["pending", "in_progress", "approved", "rejected"]},
    "previous_current_step": {"type": ["integer", "null"], "minimum": 1},
    "forced": {"type": "boolean"}
  },
  "additionalProperties": false
}`,
	models.HistoryApprove: `{
  "type": "object",
  "required": ["step_number", "next_step", "workflow_status"],
  "properties": {
    "step_number": {"type": "integer", "minimum": 1},
    "next_step": {"type": ["integer", "null"], "minimum": 1},
    "workflow_status": {"enum": ["in_progress", "approved"]}
  },
  "additionalProperties": false
}`,
	models.HistoryReject: `{
  "type": "object",
  "required": ["step_number", "workflow_status"],
  "properties": {
    "step_number": {"type": "integer", "minimum": 1},
    "workflow_status": {"const": "rejected"}
  },
  "additionalProperties": false
}`,
	models.HistoryRequestRevision: `{
  "type": "object",
  "required": ["step_number", "feedback"],
  "properties": {
    "step_number": {"type": "integer", "minimum": 1},
    "feedback": {"type": ["string", "null"]}
  },
  "additionalProperties": false
}`,
	models.HistorySignatureAdded: `{
  "type": "object",
  "required": ["signature_id", "signature_method", "step_id"],
  "properties": {
    "signature_id": {"type": "string", "minLength": 1},
    "signature_method": {"enum": ["draw", "type", "upload"]},
    "step_id": {"type": ["string", "null"]}
  },
  "additionalProperties": false
}`,
}

// Ledger is the append-only audit log of a workflow. Every entry's metadata
// is checked against the schema of its action before it is stored.
type Ledger struct {
	schemas      map[models.HistoryAction]*jsonschema.Schema
	defaultLimit int
	now          func() time.Time
}

// NewLedger compiles the metadata schemas. defaultLimit is used by RecentFor
// when the caller passes a non-positive limit.
func NewLedger(defaultLimit int) (*Ledger, error) {
	c := jsonschema.NewCompiler()
	urls := make(map[models.HistoryAction]string, len(metadataSchemas))
	for action, raw := range metadataSchemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s schema: %w", action, err)
		}
		url := "https://signoff.local/schemas/history/" + string(action) + ".json"
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", action, err)
		}
		urls[action] = url
	}

	schemas := make(map[models.HistoryAction]*jsonschema.Schema, len(urls))
	for action, url := range urls {
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", action, err)
		}
		schemas[action] = s
	}

	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	return &Ledger{schemas: schemas, defaultLimit: defaultLimit, now: time.Now}, nil
}

// ValidateMetadata checks metadata against the schema of action.
func (l *Ledger) ValidateMetadata(action models.HistoryAction, metadata map[string]any) error {
	_, err := l.normalise(action, metadata)
	return err
}

// normalise validates metadata and returns it in its JSON form, the form in
// which it is read back from storage.
func (l *Ledger) normalise(action models.HistoryAction, metadata map[string]any) (map[string]any, error) {
	schema, ok := l.schemas[action]
	if !ok {
		return nil, workflow.NewErrorf(workflow.CodeInternal, "no metadata schema for history action %q", action)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, workflow.NewError(workflow.CodeInternal, "history metadata is not serializable").WithCause(err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, workflow.NewError(workflow.CodeInternal, "history metadata is not serializable").WithCause(err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, workflow.NewErrorf(workflow.CodeInternal, "history metadata for %s does not match its schema", action).
			WithCause(err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, workflow.NewError(workflow.CodeInternal, "history metadata is not serializable").WithCause(err)
	}
	return out, nil
}

// Append validates and stores entry inside tx, filling in ID and CreatedAt
// when unset. The store assigns Seq.
func (l *Ledger) Append(ctx context.Context, tx repository.Tx, entry *models.HistoryEntry) error {
	metadata, err := l.normalise(entry.Action, entry.Metadata)
	if err != nil {
		return err
	}
	entry.Metadata = metadata
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC()
	}
	if err := tx.AppendHistory(ctx, entry); err != nil {
		return workflow.Internal("append history", err)
	}
	return nil
}

// RecentFor returns up to limit entries of a workflow, newest first.
func (l *Ledger) RecentFor(ctx context.Context, tx repository.Tx, workflowID string, limit int) ([]*models.HistoryEntry, error) {
	if limit <= 0 {
		limit = l.defaultLimit
	}
	entries, err := tx.RecentHistory(ctx, workflowID, limit)
	if err != nil {
		return nil, workflow.Internal("read history", err)
	}
	return entries, nil
}
