package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"signoff/internal/logging"
	"signoff/internal/repository"
	"signoff/internal/services"
	"signoff/internal/workflow"
	"signoff/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testActorHeader = "X-Test-Actor"

// withTestActor stands in for auth.RequireAuth.
func withTestActor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		var actor models.Actor
		switch c.Request().Header.Get(testActorHeader) {
		case "none":
			return next(c)
		case "client":
			actor = models.Actor{Type: models.ActorTypeClient, ID: "c-1", Name: "Casey Client", Email: "casey@example.com"}
		default:
			actor = models.Actor{Type: models.ActorTypeEmployee, ID: "e-1", Name: "Erin Employee", Email: "erin@agency.test"}
		}
		ctx := models.WithActor(c.Request().Context(), actor)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

type testServer struct {
	e     *echo.Echo
	deliv string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	deliv := uuid.NewString()
	store.AddDeliverable(models.Deliverable{ID: deliv, Title: "Brand refresh", Status: "in_review"})

	svc, err := services.NewApprovalService(store, services.DefaultOptions(), nil)
	require.NoError(t, err)

	logger := logging.NewNop()
	h := NewHandler(svc, logger)
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger)
	e.GET("/health", h.HandleHealth)
	RegisterHandlers(e.Group("/api/v1", withTestActor), h)
	return &testServer{e: e, deliv: deliv}
}

func (s *testServer) do(method, path, actor, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(testActorHeader, actor)
	req.Header.Set("User-Agent", "signoff-test/1.0")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const twoStepBody = `{
  "workflow_type": "multi_step",
  "steps": [
    {"step_number": 1, "name": "Design review", "approver_type": "employee"},
    {"step_number": 2, "name": "Client sign-off", "approver_type": "client"}
  ]
}`

func TestWorkflowLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPut, "/api/v1/deliverables/"+s.deliv+"/workflow", "employee", twoStepBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[models.WorkflowView](t, rec)
	assert.Equal(t, models.WorkflowStatus("pending"), view.Status)
	require.Len(t, view.Steps, 2)

	rec = s.do(http.MethodGet, "/api/v1/deliverables/"+s.deliv+"/workflow", "client", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, view.ID, decode[models.WorkflowView](t, rec).ID)

	rec = s.do(http.MethodPost, "/api/v1/workflows/"+view.ID+"/actions", "client",
		`{"step_id":"`+view.Steps[0].ID+`","action":"approve","comments":"looks good"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = decode[models.WorkflowView](t, rec)
	assert.Equal(t, models.WorkflowStatus("in_progress"), view.Status)
	require.NotNil(t, view.CurrentStep)
	assert.Equal(t, 2, *view.CurrentStep)

	rec = s.do(http.MethodPost, "/api/v1/workflows/"+view.ID+"/signatures", "client",
		`{"step_id":"`+view.Steps[1].ID+`","signature_method":"type","signature_data":"Casey Client"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view = decode[models.WorkflowView](t, rec)
	require.Len(t, view.Signatures, 1)
	sig := view.Signatures[0]
	assert.Equal(t, "Casey Client", sig.SignerName)
	assert.Equal(t, "192.0.2.1", sig.IPAddress)
	assert.Equal(t, "signoff-test/1.0", sig.UserAgent)

	rec = s.do(http.MethodPost, "/api/v1/workflows/"+view.ID+"/actions", "client",
		`{"step_id":"`+view.Steps[1].ID+`","action":"approve"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = decode[models.WorkflowView](t, rec)
	assert.Equal(t, models.WorkflowStatus("approved"), view.Status)
	assert.Nil(t, view.CurrentStep)

	rec = s.do(http.MethodGet, "/api/v1/workflows/"+view.ID+"/history?limit=2", "employee", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]models.HistoryEntry](t, rec)
	require.Len(t, history, 2)
	assert.Equal(t, models.HistoryApprove, history[0].Action)
	assert.Equal(t, models.HistorySignatureAdded, history[1].Action)
}

func TestProblemResponses(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPut, "/api/v1/deliverables/"+s.deliv+"/workflow", "employee", twoStepBody)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[models.WorkflowView](t, rec)

	cases := []struct {
		name   string
		method string
		path   string
		actor  string
		body   string
		status int
		code   workflow.Code
	}{
		{"malformed id", http.MethodGet, "/api/v1/workflows/not-a-uuid", "employee", "", http.StatusBadRequest, workflow.CodeInvalidRequest},
		{"unknown workflow", http.MethodGet, "/api/v1/workflows/" + uuid.NewString(), "employee", "", http.StatusNotFound, workflow.CodeNotFound},
		{"deliverable without workflow", http.MethodGet, "/api/v1/deliverables/" + uuid.NewString() + "/workflow", "employee", "", http.StatusNotFound, workflow.CodeNotFound},
		{"out of order", http.MethodPost, "/api/v1/workflows/" + view.ID + "/actions", "client",
			`{"step_id":"` + view.Steps[1].ID + `","action":"approve"}`, http.StatusConflict, workflow.CodeStepOutOfOrder},
		{"unknown action", http.MethodPost, "/api/v1/workflows/" + view.ID + "/actions", "client",
			`{"step_id":"` + view.Steps[0].ID + `","action":"escalate"}`, http.StatusBadRequest, workflow.CodeInvalidRequest},
		{"parallel", http.MethodPut, "/api/v1/deliverables/" + s.deliv + "/workflow", "employee",
			`{"workflow_type":"parallel"}`, http.StatusUnprocessableEntity, workflow.CodeUnsupportedWorkflowType},
		{"bad signature", http.MethodPost, "/api/v1/workflows/" + view.ID + "/signatures", "client",
			`{"signature_method":"draw","signature_data":"not a data url"}`, http.StatusUnprocessableEntity, workflow.CodeInvalidSignaturePayload},
		{"malformed body", http.MethodPost, "/api/v1/workflows/" + view.ID + "/actions", "client",
			`{"step_id":`, http.StatusBadRequest, workflow.CodeInvalidRequest},
		{"history limit", http.MethodGet, "/api/v1/workflows/" + view.ID + "/history?limit=0", "employee", "", http.StatusBadRequest, workflow.CodeInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(tc.method, tc.path, tc.actor, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, "application/problem+json", rec.Header().Get(echo.HeaderContentType))
			p := decode[ProblemDetails](t, rec)
			assert.Equal(t, tc.status, p.Status)
			assert.Equal(t, tc.code, p.Code)
			assert.NotEmpty(t, p.Instance)
		})
	}
}

func TestMissingActorIsUnauthorized(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPut, "/api/v1/deliverables/"+s.deliv+"/workflow", "none", twoStepBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusFor(workflow.CodeNotFound))
	assert.Equal(t, http.StatusBadRequest, StatusFor(workflow.CodeInvalidRequest))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(workflow.CodeInvalidStepSequence))
	assert.Equal(t, http.StatusConflict, StatusFor(workflow.CodeWorkflowTerminal))
	assert.Equal(t, http.StatusForbidden, StatusFor(workflow.CodeRedefineNotAllowed))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(workflow.CodeInternal))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[HealthStatus](t, rec)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "signoff", status.Service)
}

func TestSpecHandlerSubstitutesIssuer(t *testing.T) {
	rec := httptest.NewRecorder()
	SpecHandler("https://example.okta.com/oauth2/default")(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://example.okta.com/oauth2/default/v1/authorize")
	assert.NotContains(t, rec.Body.String(), "{oktaIssuer}")
}
