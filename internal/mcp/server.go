package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"signoff/internal/services"
	"signoff/internal/workflow"
	"signoff/pkg/models"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// WorkflowReader is the read side of the approval service exposed to agents.
type WorkflowReader interface {
	GetWorkflow(ctx context.Context, workflowID string) (*models.WorkflowView, error)
	GetWorkflowForDeliverable(ctx context.Context, deliverableID string) (*models.WorkflowView, error)
	RecentHistory(ctx context.Context, workflowID string, limit int) ([]*models.HistoryEntry, error)
}

var _ WorkflowReader = (*services.ApprovalService)(nil)

type Server struct {
	mcpServer *server.MCPServer
	reader    WorkflowReader
}

func NewServer(reader WorkflowReader) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Signoff Approvals",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		reader: reader,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_workflow",
			mcp.WithDescription("Get an approval workflow with its steps, signatures and recent history"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
		),
		s.handleGetWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_deliverable_workflow",
			mcp.WithDescription("Get the approval workflow attached to a deliverable"),
			mcp.WithString("deliverable_id", mcp.Required(), mcp.Description("The ID of the deliverable")),
		),
		s.handleGetDeliverableWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"recent_history",
			mcp.WithDescription("List the most recent history entries of a workflow, newest first"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 20)")),
		),
		s.handleRecentHistory,
	)
}

func toolError(action string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s [%s]: %v", action, workflow.CodeOf(err), err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func stringArg(request mcp.CallToolRequest, name string) (string, bool) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", false
	}
	v, ok := args[name].(string)
	return v, ok && v != ""
}

func (s *Server) handleGetWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := stringArg(request, "workflow_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}

	view, err := s.reader.GetWorkflow(ctx, id)
	if err != nil {
		return toolError("get workflow", err), nil
	}
	return jsonResult(view)
}

func (s *Server) handleGetDeliverableWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := stringArg(request, "deliverable_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: deliverable_id"), nil
	}

	view, err := s.reader.GetWorkflowForDeliverable(ctx, id)
	if err != nil {
		return toolError("get deliverable workflow", err), nil
	}
	return jsonResult(view)
}

func (s *Server) handleRecentHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := stringArg(request, "workflow_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}

	limit := 0
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		if l, ok := args["limit"].(float64); ok {
			if l < 1 {
				return mcp.NewToolResultError("limit must be positive"), nil
			}
			limit = int(l)
		}
	}

	entries, err := s.reader.RecentHistory(ctx, id, limit)
	if err != nil {
		return toolError("read history", err), nil
	}
	return jsonResult(entries)
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
