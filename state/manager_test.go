package state

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/repository"
)

func newTestManager(t *testing.T) (*Manager, repository.ExecutionRepository) {
	t.Helper()
	repo := repository.NewMemoryExecutionRepository()
	return NewManager(repo, logger.New("error", "text")), repo
}

func seedRunning(t *testing.T, repo repository.ExecutionRepository) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, repo.Create(context.Background(), &models.Execution{
		ExecutionID:   id,
		Status:        models.ExecutionRunning,
		StartedAt:     time.Now(),
		LastHeartbeat: time.Now(),
	}))
	return id
}

func TestPauseThenResumeSucceeds(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()
	execID := seedRunning(t, repo)

	pause, err := m.PauseExecution(ctx, execID, "wait_node", map[string]interface{}{"approved": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "wait_node", pause.PausedAtNode)

	exec, err := repo.GetByID(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionPaused, exec.Status)

	resolved, err := m.ResumeExecution(ctx, execID, ResumeHumanResponse, map[string]interface{}{"approved": true})
	require.NoError(t, err)
	assert.Equal(t, pause.PauseID, resolved.PauseID)

	exec, err = repo.GetByID(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionRunning, exec.Status)
}

func TestPauseExecutionRejectsSecondActivePause(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()
	execID := seedRunning(t, repo)

	_, err := m.PauseExecution(ctx, execID, "first", nil, nil)
	require.NoError(t, err)

	_, err = m.PauseExecution(ctx, execID, "second", nil, nil)
	assert.Error(t, err)
}

func TestResumeExecutionRejectsUnmetConditions(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()
	execID := seedRunning(t, repo)

	_, err := m.PauseExecution(ctx, execID, "wait_node", map[string]interface{}{"approved": true}, nil)
	require.NoError(t, err)

	_, err = m.ResumeExecution(ctx, execID, ResumeHumanResponse, map[string]interface{}{"approved": false})
	assert.ErrorIs(t, err, ErrConditionsNotMet)

	_, err = m.ResumeExecution(ctx, execID, ResumeHumanResponse, map[string]interface{}{})
	assert.ErrorIs(t, err, ErrConditionsNotMet)
}

func TestResumeExecutionWithNoActivePauseFails(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()
	execID := seedRunning(t, repo)

	_, err := m.ResumeExecution(ctx, execID, ResumeHumanResponse, nil)
	assert.Error(t, err)
}

func TestCompleteExecutionPersistsNodeOutputs(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()
	execID := seedRunning(t, repo)

	require.NoError(t, m.CompleteExecution(ctx, execID, map[string]interface{}{"last": "ok"}))

	exec, err := repo.GetByID(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, exec.Status)
	assert.Equal(t, "ok", exec.NodeOutputs["last"])
}
