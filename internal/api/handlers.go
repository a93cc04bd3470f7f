// Package api contains the HTTP handlers for the approval service
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"signoff/internal/services"
	"signoff/internal/workflow"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// Handler contains HTTP handlers for the approval service REST API
type Handler struct {
	service *services.ApprovalService
	logger  Logger
}

var _ ServerInterface = (*Handler)(nil)

// NewHandler creates a new Handler with required dependencies
func NewHandler(service *services.ApprovalService, logger Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Database  string    `json:"database"`
}

// HandleHealth reports service health. It returns 503 when the store is
// unreachable.
func (h *Handler) HandleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Service:   "signoff",
		Version:   Version,
		Database:  "ok",
	}
	code := http.StatusOK
	if err := h.service.Ping(ctx); err != nil {
		h.logger.Error("health check failed", "error", err)
		status.Status = "degraded"
		status.Database = "unreachable"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// ProblemDetails represents an RFC 7807 Problem Details response, extended
// with the engine error code and details.
type ProblemDetails struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail"`
	Instance string         `json:"instance,omitempty"`
	Code     workflow.Code  `json:"code,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	TraceID  string         `json:"trace_id,omitempty"`
}

// StatusFor maps an engine error code to its HTTP status.
func StatusFor(code workflow.Code) int {
	switch code {
	case workflow.CodeNotFound:
		return http.StatusNotFound
	case workflow.CodeInvalidRequest:
		return http.StatusBadRequest
	case workflow.CodeInvalidStepSequence, workflow.CodeInvalidSignaturePayload, workflow.CodeUnsupportedWorkflowType:
		return http.StatusUnprocessableEntity
	case workflow.CodeStepOutOfOrder, workflow.CodeWorkflowTerminal:
		return http.StatusConflict
	case workflow.CodeRedefineNotAllowed:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// problemFor converts any handler error into a problem document.
func problemFor(err error) ProblemDetails {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		detail := http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok {
			detail = msg
		}
		p := ProblemDetails{Type: "about:blank", Title: http.StatusText(he.Code), Status: he.Code, Detail: detail}
		if he.Code == http.StatusBadRequest {
			p.Code = workflow.CodeInvalidRequest
		}
		return p
	}

	var we *workflow.Error
	if !errors.As(err, &we) {
		we = workflow.ErrInternal
	}
	status := StatusFor(we.Code)
	p := ProblemDetails{
		Type:    "about:blank",
		Title:   http.StatusText(status),
		Status:  status,
		Detail:  we.Message,
		Code:    we.Code,
		Details: we.Details,
	}
	if status == http.StatusInternalServerError {
		p.Detail = "internal error"
		p.Details = nil
	}
	return p
}

// ErrorHandler returns an echo.HTTPErrorHandler that writes RFC 7807
// responses for engine errors and echo errors alike.
func ErrorHandler(logger Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		p := problemFor(err)
		p.Instance = c.Request().URL.Path
		if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
			p.TraceID = sc.TraceID().String()
		}
		if p.Status >= http.StatusInternalServerError {
			logger.Error("request failed", "path", p.Instance, "error", err)
		} else {
			logger.Debug("request rejected", "path", p.Instance, "status", p.Status, "error", err)
		}

		c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(p.Status)
		} else {
			err = c.JSON(p.Status, p)
		}
		if err != nil {
			logger.Error("failed to write error response", "error", err)
		}
	}
}
