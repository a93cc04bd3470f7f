package models

import "time"

// SignatureMethod is how the signature payload was produced.
type SignatureMethod string

const (
	SignatureMethodDraw   SignatureMethod = "draw"
	SignatureMethodType   SignatureMethod = "type"
	SignatureMethodUpload SignatureMethod = "upload"
)

// Valid reports whether m is a known signature method.
func (m SignatureMethod) Valid() bool {
	switch m {
	case SignatureMethodDraw, SignatureMethodType, SignatureMethodUpload:
		return true
	}
	return false
}

// Signature is an immutable, evidentiary record of a signing event. StepID is
// a weak reference: it may be nil for workflow-level signatures and may
// outlive the step it points at when the workflow is redefined.
type Signature struct {
	ID              string          `json:"id" db:"id"`
	WorkflowID      string          `json:"workflow_id" db:"workflow_id"`
	StepID          *string         `json:"step_id,omitempty" db:"step_id"`
	SignerType      ActorType       `json:"signer_type" db:"signer_type"`
	SignerName      string          `json:"signer_name" db:"signer_name"`
	SignerEmail     string          `json:"signer_email" db:"signer_email"`
	SignatureData   string          `json:"signature_data" db:"signature_data"`
	SignatureMethod SignatureMethod `json:"signature_method" db:"signature_method"`
	IPAddress       string          `json:"ip_address" db:"ip_address"`
	UserAgent       string          `json:"user_agent" db:"user_agent"`
	SignedAt        time.Time       `json:"signed_at" db:"signed_at"`
}
