package api

import (
	"net/http"

	"signoff/pkg/models"

	"github.com/labstack/echo/v4"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// actor returns the caller stored by the auth middleware.
func actor(c echo.Context) (models.Actor, error) {
	a, ok := models.ActorFromContext(c.Request().Context())
	if !ok {
		return models.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "no authenticated caller")
	}
	return a, nil
}

func bindBody(c echo.Context, dst any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	return nil
}

// GetDeliverableWorkflow returns the workflow of a deliverable
// (GET /api/v1/deliverables/{deliverableId}/workflow)
func (h *Handler) GetDeliverableWorkflow(c echo.Context, deliverableId openapi_types.UUID) error {
	view, err := h.service.GetWorkflowForDeliverable(c.Request().Context(), deliverableId.String())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// PutDeliverableWorkflow creates or redefines the workflow of a deliverable
// (PUT /api/v1/deliverables/{deliverableId}/workflow)
func (h *Handler) PutDeliverableWorkflow(c echo.Context, deliverableId openapi_types.UUID) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	var req models.CreateWorkflowRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	view, err := h.service.CreateOrReplaceWorkflow(c.Request().Context(), caller, deliverableId.String(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// GetWorkflow returns a workflow by id
// (GET /api/v1/workflows/{workflowId})
func (h *Handler) GetWorkflow(c echo.Context, workflowId openapi_types.UUID) error {
	view, err := h.service.GetWorkflow(c.Request().Context(), workflowId.String())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// PostWorkflowAction approves, rejects or requests revision of the current step
// (POST /api/v1/workflows/{workflowId}/actions)
func (h *Handler) PostWorkflowAction(c echo.Context, workflowId openapi_types.UUID) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	var req models.StepActionRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	view, err := h.service.ActOnStep(c.Request().Context(), caller, workflowId.String(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// GetWorkflowHistory returns recent ledger entries, newest first
// (GET /api/v1/workflows/{workflowId}/history)
func (h *Handler) GetWorkflowHistory(c echo.Context, workflowId openapi_types.UUID, params GetWorkflowHistoryParams) error {
	limit := 0
	if params.Limit != nil {
		if *params.Limit < 1 || *params.Limit > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500")
		}
		limit = *params.Limit
	}

	entries, err := h.service.RecentHistory(c.Request().Context(), workflowId.String(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

// PostWorkflowSignature attaches a signature to the workflow
// (POST /api/v1/workflows/{workflowId}/signatures)
func (h *Handler) PostWorkflowSignature(c echo.Context, workflowId openapi_types.UUID) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	var req models.SignatureRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	rc := models.RequestContext{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
	view, err := h.service.AttachSignature(c.Request().Context(), caller, workflowId.String(), req, rc)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}
