package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/engine"
	"github.com/CurvatureX/trigger-engine/executor"
	"github.com/CurvatureX/trigger-engine/repository"
	"github.com/CurvatureX/trigger-engine/state"
)

type fakeWorkflowRepo struct {
	workflows map[uuid.UUID]*models.Workflow
}

func (f *fakeWorkflowRepo) GetWorkflow(ctx context.Context, workflowID uuid.UUID) (*models.Workflow, error) {
	w, ok := f.workflows[workflowID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return w, nil
}

func (f *fakeWorkflowRepo) GetTrigger(ctx context.Context, triggerID uuid.UUID) (*models.TriggerDefinition, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeWorkflowRepo) ListEnabledTriggersByType(ctx context.Context, triggerType string) ([]*models.TriggerDefinition, error) {
	return nil, nil
}

func (f *fakeWorkflowRepo) ListTriggersByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.TriggerDefinition, error) {
	return nil, nil
}

func (f *fakeWorkflowRepo) CreateTrigger(ctx context.Context, t *models.TriggerDefinition) error {
	return nil
}

func (f *fakeWorkflowRepo) DeleteTrigger(ctx context.Context, triggerID uuid.UUID) error {
	return nil
}

var _ repository.WorkflowRepository = (*fakeWorkflowRepo)(nil)

func newTestExecutionHandler(t *testing.T) (*ExecutionHandler, *fakeWorkflowRepo, repository.ExecutionRepository) {
	t.Helper()
	log := logger.New("error", "text")
	execRepo := repository.NewMemoryExecutionRepository()
	workflowRepo := &fakeWorkflowRepo{workflows: map[uuid.UUID]*models.Workflow{}}

	execRegistry := executor.NewRegistry()
	execRegistry.Register("noop", "", executor.PassthroughExecutor{})
	eng := engine.New(execRegistry, log)
	manager := state.NewManager(execRepo, log)
	orch := engine.NewOrchestrator(&engine.OrchestratorOpts{
		Workflows:  workflowRepo,
		Executions: execRepo,
		Manager:    manager,
		Engine:     eng,
		Logger:     log,
	})

	h := NewExecutionHandler(newTestComponents(t), orch, execRepo, manager)
	return h, workflowRepo, execRepo
}

func TestExecuteAcceptsAndRunsInBackground(t *testing.T) {
	h, workflowRepo, execRepo := newTestExecutionHandler(t)
	workflowID := uuid.New()
	workflowRepo.workflows[workflowID] = &models.Workflow{
		WorkflowID:  workflowID,
		Active:      true,
		Nodes:       []models.Node{{ID: "n1", Type: "noop"}},
		Connections: models.ConnectionsMap{},
	}

	executionID := uuid.New()
	e := echo.New()
	payload := `{"execution_id":"` + executionID.String() + `","trigger_id":"` + uuid.New().String() + `","trigger_type":"manual"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/workflows/"+workflowID.String()+"/execute", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("workflow_id")
	c.SetParamValues(workflowID.String())

	require.NoError(t, h.Execute(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		exec, err := execRepo.GetByID(context.Background(), executionID)
		return err == nil && exec.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGetExecutionReturnsRecord(t *testing.T) {
	h, _, execRepo := newTestExecutionHandler(t)
	executionID := uuid.New()
	require.NoError(t, execRepo.Create(context.Background(), &models.Execution{
		ExecutionID:   executionID,
		Status:        models.ExecutionRunning,
		StartedAt:     time.Now(),
		LastHeartbeat: time.Now(),
	}))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/executions/"+executionID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("execution_id")
	c.SetParamValues(executionID.String())

	require.NoError(t, h.GetExecution(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), executionID.String())
}

func TestGetExecutionNotFound(t *testing.T) {
	h, _, _ := newTestExecutionHandler(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/executions/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("execution_id")
	c.SetParamValues(uuid.New().String())

	err := h.GetExecution(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestCancelExecutionTransitionsStatus(t *testing.T) {
	h, _, execRepo := newTestExecutionHandler(t)
	executionID := uuid.New()
	require.NoError(t, execRepo.Create(context.Background(), &models.Execution{
		ExecutionID:   executionID,
		Status:        models.ExecutionRunning,
		StartedAt:     time.Now(),
		LastHeartbeat: time.Now(),
	}))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/executions/"+executionID.String()+"/cancel", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("execution_id")
	c.SetParamValues(executionID.String())

	require.NoError(t, h.CancelExecution(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	exec, err := execRepo.GetByID(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCancelled, exec.Status)
}
