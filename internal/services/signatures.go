package services

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"signoff/internal/repository"
	"signoff/internal/workflow"
	"signoff/pkg/models"

	"github.com/google/uuid"
)

const (
	// DefaultMaxSignatureBytes bounds every signature payload.
	DefaultMaxSignatureBytes = 2 << 20

	maxTypedSignatureRunes = 200
	maxUploadRefBytes      = 1024
)

var drawDataURL = regexp.MustCompile(`^data:image/(png|jpeg|svg\+xml);base64,([A-Za-z0-9+/=]+)$`)

// SignatureStore appends signing events. It has no update or delete.
type SignatureStore struct {
	maxBytes int
	now      func() time.Time
}

// NewSignatureStore creates a SignatureStore. A non-positive maxBytes selects
// DefaultMaxSignatureBytes.
func NewSignatureStore(maxBytes int) *SignatureStore {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxSignatureBytes
	}
	return &SignatureStore{maxBytes: maxBytes, now: time.Now}
}

func invalidPayload(method models.SignatureMethod, reason string) error {
	return workflow.NewErrorf(workflow.CodeInvalidSignaturePayload, "invalid %s signature: %s", method, reason).
		WithDetails(map[string]any{"signature_method": string(method), "reason": reason})
}

// Validate checks a payload against the rules of its method.
func (s *SignatureStore) Validate(method models.SignatureMethod, data string) error {
	if !method.Valid() {
		return workflow.NewErrorf(workflow.CodeInvalidSignaturePayload, "unknown signature method %q", method).
			WithDetails(map[string]any{"signature_method": string(method)})
	}
	if strings.TrimSpace(data) == "" {
		return invalidPayload(method, "payload is empty")
	}
	if len(data) > s.maxBytes {
		return invalidPayload(method, "payload is too large")
	}

	switch method {
	case models.SignatureMethodDraw:
		m := drawDataURL.FindStringSubmatch(data)
		if m == nil {
			return invalidPayload(method, "expected a base64 png, jpeg or svg data URL")
		}
		if _, err := base64.StdEncoding.DecodeString(m[2]); err != nil {
			return invalidPayload(method, "image data is not valid base64")
		}

	case models.SignatureMethodType:
		if !utf8.ValidString(data) {
			return invalidPayload(method, "text is not valid UTF-8")
		}
		if utf8.RuneCountInString(data) > maxTypedSignatureRunes {
			return invalidPayload(method, "text is too long")
		}
		for _, r := range data {
			if !unicode.IsPrint(r) {
				return invalidPayload(method, "text contains non-printable characters")
			}
		}

	case models.SignatureMethodUpload:
		if len(data) > maxUploadRefBytes {
			return invalidPayload(method, "file reference is too long")
		}
		if strings.IndexFunc(data, unicode.IsSpace) >= 0 {
			return invalidPayload(method, "file reference contains whitespace")
		}
	}
	return nil
}

// Append validates sig, assigns its ID and SignedAt and stores it inside tx.
func (s *SignatureStore) Append(ctx context.Context, tx repository.Tx, sig *models.Signature) (string, error) {
	if err := s.Validate(sig.SignatureMethod, sig.SignatureData); err != nil {
		return "", err
	}
	sig.ID = uuid.NewString()
	if sig.SignedAt.IsZero() {
		sig.SignedAt = s.now().UTC()
	}
	if err := tx.AppendSignature(ctx, sig); err != nil {
		return "", workflow.Internal("append signature", err)
	}
	return sig.ID, nil
}
