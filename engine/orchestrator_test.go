package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/executor"
	"github.com/CurvatureX/trigger-engine/repository"
	"github.com/CurvatureX/trigger-engine/state"
)

// fakeWorkflowRepository is a minimal in-memory WorkflowRepository stand-in,
// holding exactly the workflows a test seeds.
type fakeWorkflowRepository struct {
	workflows map[uuid.UUID]*models.Workflow
}

func newFakeWorkflowRepository() *fakeWorkflowRepository {
	return &fakeWorkflowRepository{workflows: map[uuid.UUID]*models.Workflow{}}
}

func (f *fakeWorkflowRepository) GetWorkflow(ctx context.Context, workflowID uuid.UUID) (*models.Workflow, error) {
	w, ok := f.workflows[workflowID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return w, nil
}

func (f *fakeWorkflowRepository) GetTrigger(ctx context.Context, triggerID uuid.UUID) (*models.TriggerDefinition, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeWorkflowRepository) ListEnabledTriggersByType(ctx context.Context, triggerType string) ([]*models.TriggerDefinition, error) {
	return nil, nil
}

func (f *fakeWorkflowRepository) ListTriggersByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.TriggerDefinition, error) {
	return nil, nil
}

func (f *fakeWorkflowRepository) CreateTrigger(ctx context.Context, t *models.TriggerDefinition) error {
	return nil
}

func (f *fakeWorkflowRepository) DeleteTrigger(ctx context.Context, triggerID uuid.UUID) error {
	return nil
}

var _ repository.WorkflowRepository = (*fakeWorkflowRepository)(nil)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeWorkflowRepository, repository.ExecutionRepository) {
	t.Helper()
	log := logger.New("error", "text")
	execRepo := repository.NewMemoryExecutionRepository()
	workflowRepo := newFakeWorkflowRepository()

	execRegistry := executor.NewRegistry()
	execRegistry.Register("noop", "", executor.PassthroughExecutor{})

	eng := New(execRegistry, log)
	manager := state.NewManager(execRepo, log)

	orch := NewOrchestrator(&OrchestratorOpts{
		Workflows:  workflowRepo,
		Executions: execRepo,
		Manager:    manager,
		Engine:     eng,
		Logger:     log,
	})
	return orch, workflowRepo, execRepo
}

func singleNodeWorkflow(workflowID uuid.UUID, nodeType string, config map[string]interface{}) *models.Workflow {
	return &models.Workflow{
		WorkflowID: workflowID,
		Name:       "test-workflow",
		Active:     true,
		Nodes: []models.Node{
			{ID: "n1", Type: nodeType, Config: config},
		},
		Connections: models.ConnectionsMap{},
	}
}

func TestOrchestratorExecuteCompletes(t *testing.T) {
	orch, workflowRepo, execRepo := newTestOrchestrator(t)
	workflowID := uuid.New()
	workflowRepo.workflows[workflowID] = singleNodeWorkflow(workflowID, "noop", nil)

	ctx := context.Background()
	executionID := uuid.New()
	result, err := orch.Execute(ctx, ExecuteRequest{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		TriggerID:   uuid.New(),
		TriggerType: "manual",
		TriggerData: map[string]interface{}{"foo": "bar"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, result.Status)

	exec, err := execRepo.GetByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, exec.Status)
}

func TestOrchestratorExecuteFailsOnUnknownWorkflow(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	_, err := orch.Execute(context.Background(), ExecuteRequest{
		ExecutionID: uuid.New(),
		WorkflowID:  uuid.New(),
		TriggerID:   uuid.New(),
	})
	assert.Error(t, err)
}

func TestOrchestratorExecuteFailsOnUnregisteredNodeType(t *testing.T) {
	orch, workflowRepo, execRepo := newTestOrchestrator(t)
	workflowID := uuid.New()
	workflowRepo.workflows[workflowID] = singleNodeWorkflow(workflowID, "no_such_type", nil)

	ctx := context.Background()
	executionID := uuid.New()
	result, err := orch.Execute(ctx, ExecuteRequest{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		TriggerID:   uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionFailed, result.Status)

	exec, err := execRepo.GetByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionFailed, exec.Status)
}

func pauseExecutor(resumeConditions map[string]interface{}) executor.ExecutorFunc {
	return func(ctx context.Context, node models.Node, input map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{
			"__pause__": map[string]interface{}{
				"resume_conditions": resumeConditions,
			},
		}, nil
	}
}

func TestOrchestratorExecuteThenResume(t *testing.T) {
	orch, workflowRepo, execRepo := newTestOrchestrator(t)
	workflowID := uuid.New()
	workflowRepo.workflows[workflowID] = singleNodeWorkflow(workflowID, "wait", nil)

	execRegistry := executor.NewRegistry()
	execRegistry.Register("wait", "", pauseExecutor(map[string]interface{}{"approved": true}))
	log := logger.New("error", "text")
	orch.engine = New(execRegistry, log)

	ctx := context.Background()
	executionID := uuid.New()
	result, err := orch.Execute(ctx, ExecuteRequest{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		TriggerID:   uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionPaused, result.Status)

	exec, err := execRepo.GetByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionPaused, exec.Status)

	// Resuming with data that doesn't satisfy the pause's resume conditions
	// must fail, and leave the execution paused.
	_, err = orch.Resume(ctx, executionID, state.ResumeHumanResponse, map[string]interface{}{"approved": false})
	assert.ErrorIs(t, err, state.ErrConditionsNotMet)

	// The paused node's output was persisted before the pause, so the
	// resumed run finds it already completed and never re-executes it.
	resumed, err := orch.Resume(ctx, executionID, state.ResumeHumanResponse, map[string]interface{}{"approved": true})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, resumed.Status)

	exec, err = execRepo.GetByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, exec.Status)
}
