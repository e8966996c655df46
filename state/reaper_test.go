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

func TestReaperFailsHangingExecution(t *testing.T) {
	repo := repository.NewMemoryExecutionRepository()
	manager := NewManager(repo, logger.New("error", "text"))
	reaper := NewReaper(repo, manager, time.Second, 5*time.Minute, logger.New("error", "text"))

	ctx := context.Background()
	execID := uuid.New()
	require.NoError(t, repo.Create(ctx, &models.Execution{
		ExecutionID:   execID,
		Status:        models.ExecutionRunning,
		StartedAt:     time.Now().Add(-10 * time.Minute),
		LastHeartbeat: time.Now().Add(-10 * time.Minute),
	}))

	require.NoError(t, reaper.sweep(ctx))

	exec, err := repo.GetByID(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionFailed, exec.Status)
}

func TestReaperResumesExpiredPauseWithTimeoutAction(t *testing.T) {
	repo := repository.NewMemoryExecutionRepository()
	manager := NewManager(repo, logger.New("error", "text"))
	reaper := NewReaper(repo, manager, time.Second, time.Hour, logger.New("error", "text"))

	ctx := context.Background()
	execID := uuid.New()
	require.NoError(t, repo.Create(ctx, &models.Execution{
		ExecutionID:   execID,
		Status:        models.ExecutionPaused,
		StartedAt:     time.Now(),
		LastHeartbeat: time.Now(),
	}))

	past := time.Now().Add(-time.Minute)
	pause := &models.PauseRecord{
		PauseID:      uuid.New(),
		ExecutionID:  execID,
		PausedAtNode: "wait",
		ResumeConditions: map[string]interface{}{
			"timeout_action":        "resume",
			"timeout_default_data":  map[string]interface{}{"approved": true},
		},
		Timeout:   &past,
		CreatedAt: time.Now().Add(-2 * time.Minute),
	}
	require.NoError(t, repo.CreatePause(ctx, pause))

	require.NoError(t, reaper.sweep(ctx))

	exec, err := repo.GetByID(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionRunning, exec.Status)
}

func TestReaperCancelsExpiredPauseWithTimeoutAction(t *testing.T) {
	repo := repository.NewMemoryExecutionRepository()
	manager := NewManager(repo, logger.New("error", "text"))
	reaper := NewReaper(repo, manager, time.Second, time.Hour, logger.New("error", "text"))

	ctx := context.Background()
	execID := uuid.New()
	require.NoError(t, repo.Create(ctx, &models.Execution{
		ExecutionID:   execID,
		Status:        models.ExecutionPaused,
		StartedAt:     time.Now(),
		LastHeartbeat: time.Now(),
	}))

	past := time.Now().Add(-time.Minute)
	pause := &models.PauseRecord{
		PauseID:      uuid.New(),
		ExecutionID:  execID,
		PausedAtNode: "wait",
		ResumeConditions: map[string]interface{}{
			"timeout_action": "cancel",
		},
		Timeout:   &past,
		CreatedAt: time.Now().Add(-2 * time.Minute),
	}
	require.NoError(t, repo.CreatePause(ctx, pause))

	require.NoError(t, reaper.sweep(ctx))

	exec, err := repo.GetByID(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCancelled, exec.Status)
}

func TestReaperFailsExpiredPauseByDefault(t *testing.T) {
	repo := repository.NewMemoryExecutionRepository()
	manager := NewManager(repo, logger.New("error", "text"))
	reaper := NewReaper(repo, manager, time.Second, time.Hour, logger.New("error", "text"))

	ctx := context.Background()
	execID := uuid.New()
	require.NoError(t, repo.Create(ctx, &models.Execution{
		ExecutionID:   execID,
		Status:        models.ExecutionPaused,
		StartedAt:     time.Now(),
		LastHeartbeat: time.Now(),
	}))

	past := time.Now().Add(-time.Minute)
	pause := &models.PauseRecord{
		PauseID:      uuid.New(),
		ExecutionID:  execID,
		PausedAtNode: "wait",
		Timeout:      &past,
		CreatedAt:    time.Now().Add(-2 * time.Minute),
	}
	require.NoError(t, repo.CreatePause(ctx, pause))

	require.NoError(t, reaper.sweep(ctx))

	exec, err := repo.GetByID(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionFailed, exec.Status)
}
