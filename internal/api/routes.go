package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// GetWorkflowHistoryParams defines parameters for GetWorkflowHistory.
type GetWorkflowHistoryParams struct {
	// Limit is the maximum number of entries to return.
	Limit *int `form:"limit,omitempty" json:"limit,omitempty"`
}

// ServerInterface represents all server handlers described in openapi.yaml.
type ServerInterface interface {
	// (GET /deliverables/{deliverableId}/workflow)
	GetDeliverableWorkflow(ctx echo.Context, deliverableId openapi_types.UUID) error
	// (PUT /deliverables/{deliverableId}/workflow)
	PutDeliverableWorkflow(ctx echo.Context, deliverableId openapi_types.UUID) error
	// (GET /workflows/{workflowId})
	GetWorkflow(ctx echo.Context, workflowId openapi_types.UUID) error
	// (POST /workflows/{workflowId}/actions)
	PostWorkflowAction(ctx echo.Context, workflowId openapi_types.UUID) error
	// (GET /workflows/{workflowId}/history)
	GetWorkflowHistory(ctx echo.Context, workflowId openapi_types.UUID, params GetWorkflowHistoryParams) error
	// (POST /workflows/{workflowId}/signatures)
	PostWorkflowSignature(ctx echo.Context, workflowId openapi_types.UUID) error
}

// ServerInterfaceWrapper converts echo contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func bindUUID(ctx echo.Context, name string) (openapi_types.UUID, error) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, ctx.Param(name), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return id, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter %s: %s", name, err))
	}
	return id, nil
}

// GetDeliverableWorkflow converts echo context to params.
func (w *ServerInterfaceWrapper) GetDeliverableWorkflow(ctx echo.Context) error {
	deliverableId, err := bindUUID(ctx, "deliverableId")
	if err != nil {
		return err
	}
	return w.Handler.GetDeliverableWorkflow(ctx, deliverableId)
}

// PutDeliverableWorkflow converts echo context to params.
func (w *ServerInterfaceWrapper) PutDeliverableWorkflow(ctx echo.Context) error {
	deliverableId, err := bindUUID(ctx, "deliverableId")
	if err != nil {
		return err
	}
	return w.Handler.PutDeliverableWorkflow(ctx, deliverableId)
}

// GetWorkflow converts echo context to params.
func (w *ServerInterfaceWrapper) GetWorkflow(ctx echo.Context) error {
	workflowId, err := bindUUID(ctx, "workflowId")
	if err != nil {
		return err
	}
	return w.Handler.GetWorkflow(ctx, workflowId)
}

// PostWorkflowAction converts echo context to params.
func (w *ServerInterfaceWrapper) PostWorkflowAction(ctx echo.Context) error {
	workflowId, err := bindUUID(ctx, "workflowId")
	if err != nil {
		return err
	}
	return w.Handler.PostWorkflowAction(ctx, workflowId)
}

// GetWorkflowHistory converts echo context to params.
func (w *ServerInterfaceWrapper) GetWorkflowHistory(ctx echo.Context) error {
	workflowId, err := bindUUID(ctx, "workflowId")
	if err != nil {
		return err
	}

	var params GetWorkflowHistoryParams
	err = runtime.BindQueryParameter("form", true, false, "limit", ctx.QueryParams(), &params.Limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter limit: %s", err))
	}
	return w.Handler.GetWorkflowHistory(ctx, workflowId, params)
}

// PostWorkflowSignature converts echo context to params.
func (w *ServerInterfaceWrapper) PostWorkflowSignature(ctx echo.Context) error {
	workflowId, err := bindUUID(ctx, "workflowId")
	if err != nil {
		return err
	}
	return w.Handler.PostWorkflowSignature(ctx, workflowId)
}

// EchoRouter is the subset of echo.Echo and echo.Group used for routing.
type EchoRouter interface {
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	PUT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// RegisterHandlers adds each server route to the EchoRouter.
func RegisterHandlers(router EchoRouter, si ServerInterface) {
	RegisterHandlersWithBaseURL(router, si, "")
}

// RegisterHandlersWithBaseURL registers the handlers under baseURL.
func RegisterHandlersWithBaseURL(router EchoRouter, si ServerInterface, baseURL string) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	router.GET(baseURL+"/deliverables/:deliverableId/workflow", wrapper.GetDeliverableWorkflow)
	router.PUT(baseURL+"/deliverables/:deliverableId/workflow", wrapper.PutDeliverableWorkflow)
	router.POST(baseURL+"/deliverables/:deliverableId/workflow", wrapper.PutDeliverableWorkflow)
	router.GET(baseURL+"/workflows/:workflowId", wrapper.GetWorkflow)
	router.POST(baseURL+"/workflows/:workflowId/actions", wrapper.PostWorkflowAction)
	router.GET(baseURL+"/workflows/:workflowId/history", wrapper.GetWorkflowHistory)
	router.POST(baseURL+"/workflows/:workflowId/signatures", wrapper.PostWorkflowSignature)
}
