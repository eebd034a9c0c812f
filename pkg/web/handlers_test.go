package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/beaconcrm/automation/pkg/actions"
	"github.com/beaconcrm/automation/pkg/checkpoint"
	"github.com/beaconcrm/automation/pkg/conditions"
	"github.com/beaconcrm/automation/pkg/engine"
	"github.com/beaconcrm/automation/pkg/models"
	"github.com/beaconcrm/automation/pkg/persistence/file"
	"github.com/beaconcrm/automation/pkg/ratelimit"
	"github.com/beaconcrm/automation/pkg/services"
	"github.com/beaconcrm/automation/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *engine.Executor) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	persist := file.NewPersistence(t.TempDir())
	checkpoints := checkpoint.NewMemoryStore()

	dispatcher := actions.NewDispatcher(logger)
	noop := actions.HandlerFunc(func(context.Context, map[string]any, actions.ExecutionContext, *slog.Logger) error {
		return nil
	})
	require.NoError(t, dispatcher.Register(models.ActionAddTag, noop))
	require.NoError(t, dispatcher.Register(models.ActionSendEmail, noop))

	executor := engine.NewExecutor(logger, persist.WorkflowRepository(), persist.ExecutionRepository(), checkpoints, dispatcher, nil)
	router := engine.NewTriggerRouter(logger, persist.WorkflowRepository(), conditions.NewEvaluator(logger), ratelimit.NewMemoryGovernor(), executor)

	workflowService := services.NewWorkflowService(persist)
	automationService := services.NewAutomationService(logger, router, executor, checkpoints)

	handlers := web.NewAPIHandlers(workflowService, automationService, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	w := app.Group("/workflows")
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Get("/:id/executions", handlers.ListWorkflowExecutions)

	app.Post("/triggers", handlers.ProcessTrigger)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Get("/:id/checkpoints", handlers.ListExecutionCheckpoints)

	app.Post("/checkpoints/cleanup", handlers.CleanupCheckpoints)
	app.Get("/health", handlers.HealthCheck)

	return app, executor
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, payload
}

func createActiveWorkflow(t *testing.T, app *fiber.App) models.Workflow {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/", web.CreateWorkflowRequest{
		OrganizationID: "org-1",
		Name:           "Welcome flow",
		TriggerType:    models.TriggerPlatformEvent,
		Actions: []models.Action{
			{Type: models.ActionSendEmail, Critical: true},
			{Type: models.ActionAddTag},
		},
		Status: models.WorkflowStatusActive,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))

	return workflow
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    web.CreateWorkflowRequest
		expectedStatus int
	}{
		{
			name: "successful creation",
			requestBody: web.CreateWorkflowRequest{
				OrganizationID: "org-1",
				Name:           "Lead scoring",
				TriggerType:    models.TriggerPlatformEvent,
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "missing organization",
			requestBody: web.CreateWorkflowRequest{
				Name:        "Lead scoring",
				TriggerType: models.TriggerPlatformEvent,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "name too short",
			requestBody: web.CreateWorkflowRequest{
				OrganizationID: "org-1",
				Name:           "Ls",
				TriggerType:    models.TriggerPlatformEvent,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing trigger type",
			requestBody: web.CreateWorkflowRequest{
				OrganizationID: "org-1",
				Name:           "Lead scoring",
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := setupTestApp(t)

			resp, body := doJSON(t, app, http.MethodPost, "/workflows/", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusCreated {
				var workflow models.Workflow
				require.NoError(t, json.Unmarshal(body, &workflow))
				assert.NotEmpty(t, workflow.ID)
				assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
			}
		})
	}
}

func TestAPIHandlers_GetWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)
	created := createActiveWorkflow(t, app)

	resp, body := doJSON(t, app, http.MethodGet, "/workflows/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))
	assert.Equal(t, created.Name, workflow.Name)

	resp, _ = doJSON(t, app, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_UpdateWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)
	created := createActiveWorkflow(t, app)

	paused := models.WorkflowStatusPaused
	name := "Welcome flow v2"

	resp, body := doJSON(t, app, http.MethodPatch, "/workflows/"+created.ID, web.UpdateWorkflowRequest{
		Name:   &name,
		Status: &paused,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))
	assert.Equal(t, "Welcome flow v2", workflow.Name)
	assert.Equal(t, models.WorkflowStatusPaused, workflow.Status)

	resp, _ = doJSON(t, app, http.MethodPatch, "/workflows/missing", web.UpdateWorkflowRequest{Name: &name})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_DeleteWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)
	created := createActiveWorkflow(t, app)

	resp, _ := doJSON(t, app, http.MethodDelete, "/workflows/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_ProcessTrigger(t *testing.T) {
	app, executor := setupTestApp(t)
	created := createActiveWorkflow(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/triggers", web.TriggerRequest{
		OrganizationID: "org-1",
		TriggerType:    models.TriggerPlatformEvent,
		Payload:        map[string]any{"contact_id": "c-1"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result struct {
		Started    int                `json:"started"`
		Executions []models.Execution `json:"executions"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	require.Equal(t, 1, result.Started)

	// The response carries the pending records; the workers run on.
	execution := result.Executions[0]
	assert.Equal(t, created.ID, execution.WorkflowID)

	executor.Wait()

	resp, body = doJSON(t, app, http.MethodGet, "/executions/"+execution.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.Execution
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, models.ExecutionStatusCompleted, fetched.Status)
	assert.Equal(t, 2, fetched.StepsCompleted)
	assert.True(t, fetched.Success)

	resp, body = doJSON(t, app, http.MethodGet, "/executions/"+execution.ID+"/checkpoints", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var checkpoints struct {
		Checkpoints []models.Checkpoint `json:"checkpoints"`
	}
	require.NoError(t, json.Unmarshal(body, &checkpoints))
	assert.Len(t, checkpoints.Checkpoints, 2)
}

func TestAPIHandlers_ProcessTriggerUnknownType(t *testing.T) {
	app, _ := setupTestApp(t)
	createActiveWorkflow(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/triggers", web.TriggerRequest{
		OrganizationID: "org-1",
		TriggerType:    "carrier_pigeon",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result struct {
		Started int `json:"started"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 0, result.Started)
}

func TestAPIHandlers_CancelFinishedExecution(t *testing.T) {
	app, executor := setupTestApp(t)
	createActiveWorkflow(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/triggers", web.TriggerRequest{
		OrganizationID: "org-1",
		TriggerType:    models.TriggerPlatformEvent,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result struct {
		Executions []models.Execution `json:"executions"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	require.Len(t, result.Executions, 1)

	executor.Wait()

	resp, _ = doJSON(t, app, http.MethodPost, "/executions/"+result.Executions[0].ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPIHandlers_GetExecutionMissing(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/executions/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_CleanupCheckpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/checkpoints/cleanup", web.CleanupCheckpointsRequest{RetentionHours: 24})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Removed int `json:"removed"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 0, result.Removed)

	resp, _ = doJSON(t, app, http.MethodPost, "/checkpoints/cleanup", web.CleanupCheckpointsRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health.Status)
}
