// Package workflow holds the approval engine's pure logic: the error
// taxonomy, the step sequencer and the step state machine. Nothing here
// performs I/O.
package workflow

import (
	"errors"
	"fmt"
)

// Code classifies an engine error.
type Code string

const (
	CodeNotFound                Code = "NOT_FOUND"
	CodeInvalidRequest          Code = "INVALID_REQUEST"
	CodeInvalidStepSequence     Code = "INVALID_STEP_SEQUENCE"
	CodeInvalidSignaturePayload Code = "INVALID_SIGNATURE_PAYLOAD"
	CodeUnsupportedWorkflowType Code = "UNSUPPORTED_WORKFLOW_TYPE"
	CodeStepOutOfOrder          Code = "STEP_OUT_OF_ORDER"
	CodeWorkflowTerminal        Code = "WORKFLOW_TERMINAL"
	CodeRedefineNotAllowed      Code = "REDEFINE_NOT_ALLOWED"
	CodeInternal                Code = "INTERNAL"
)

// Sentinels for errors.Is. They match any *Error with the same code.
var (
	ErrNotFound                = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidRequest          = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
	ErrInvalidStepSequence     = &Error{Code: CodeInvalidStepSequence, Message: "invalid step sequence"}
	ErrInvalidSignaturePayload = &Error{Code: CodeInvalidSignaturePayload, Message: "invalid signature payload"}
	ErrUnsupportedWorkflowType = &Error{Code: CodeUnsupportedWorkflowType, Message: "unsupported workflow type"}
	ErrStepOutOfOrder          = &Error{Code: CodeStepOutOfOrder, Message: "step is not the current step"}
	ErrWorkflowTerminal        = &Error{Code: CodeWorkflowTerminal, Message: "workflow is in a terminal state"}
	ErrRedefineNotAllowed      = &Error{Code: CodeRedefineNotAllowed, Message: "workflow redefinition not allowed"}
	ErrInternal                = &Error{Code: CodeInternal, Message: "internal error"}
)

// Error is the structured error returned by every engine operation.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on code so that errors.Is(err, ErrStepOutOfOrder) works for any
// step-out-of-order error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates an Error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates an Error with a formatted message.
func NewErrorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches key-value details.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// Internal wraps a storage or infrastructure failure. Engine errors pass
// through unchanged.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewErrorf(CodeInternal, "%s failed", op).WithCause(err)
}

// CodeOf returns the code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
