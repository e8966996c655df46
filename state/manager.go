// Package state manages workflow execution status transitions and the
// pause/resume lifecycle Human-in-the-Loop nodes rely on.
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/condition"
	"github.com/CurvatureX/trigger-engine/repository"
)

// ResumeReason records why a paused execution resumed, surfaced in logs
// and in the resume record for operator visibility.
type ResumeReason string

const (
	ResumeHumanResponse ResumeReason = "human_response"
	ResumeTimeoutReached ResumeReason = "timeout_reached"
	ResumeManual        ResumeReason = "manual_resume"
)

// ErrConditionsNotMet is returned by Resume when the caller-supplied data
// does not satisfy every key the pause's resume_conditions requires.
var ErrConditionsNotMet = fmt.Errorf("resume conditions not met")

// Manager owns the execution status state machine and the at-most-one-
// active-pause invariant: an execution may have at most one unresolved
// PauseRecord at a time.
type Manager struct {
	repo      repository.ExecutionRepository
	log       *logger.Logger
	evaluator *condition.Evaluator
}

// NewManager creates a state Manager backed by repo.
func NewManager(repo repository.ExecutionRepository, log *logger.Logger) *Manager {
	return &Manager{repo: repo, log: log, evaluator: condition.NewEvaluator()}
}

// StartExecution transitions a created execution from PENDING to RUNNING.
func (m *Manager) StartExecution(ctx context.Context, executionID uuid.UUID) error {
	return m.transition(ctx, executionID, models.ExecutionRunning)
}

// CompleteExecution transitions a running execution to COMPLETED, recording
// the final node outputs.
func (m *Manager) CompleteExecution(ctx context.Context, executionID uuid.UUID, nodeOutputs map[string]interface{}) error {
	if err := m.repo.UpdateNodeOutputs(ctx, executionID, nodeOutputs); err != nil {
		return fmt.Errorf("update node outputs: %w", err)
	}
	return m.transition(ctx, executionID, models.ExecutionCompleted)
}

// FailExecution transitions a running or paused execution to FAILED.
func (m *Manager) FailExecution(ctx context.Context, executionID uuid.UUID, errMsg string) error {
	if err := m.repo.UpdateStatus(ctx, executionID, models.ExecutionFailed, errMsg); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// CancelExecution transitions a pending, running, or paused execution to
// CANCELLED.
func (m *Manager) CancelExecution(ctx context.Context, executionID uuid.UUID) error {
	return m.transition(ctx, executionID, models.ExecutionCancelled)
}

// PauseExecution records a new pause and transitions the execution to
// PAUSED. It enforces the at-most-one-active-pause invariant: if an active
// pause already exists for this execution, the call fails rather than
// silently creating a second one.
func (m *Manager) PauseExecution(ctx context.Context, executionID uuid.UUID, nodeID string, resumeConditions map[string]interface{}, timeout *time.Time) (*models.PauseRecord, error) {
	existing, err := m.repo.GetActivePauseByExecution(ctx, executionID)
	if err != nil && err != repository.ErrNotFound {
		return nil, fmt.Errorf("check existing pause: %w", err)
	}
	if existing != nil && existing.Active() {
		return nil, fmt.Errorf("execution %s already has an active pause (%s)", executionID, existing.PauseID)
	}

	pause := &models.PauseRecord{
		PauseID:          uuid.New(),
		ExecutionID:      executionID,
		PausedAtNode:     nodeID,
		ResumeConditions: resumeConditions,
		Timeout:          timeout,
		CreatedAt:        time.Now().UTC(),
	}

	if err := m.repo.CreatePause(ctx, pause); err != nil {
		return nil, fmt.Errorf("create pause record: %w", err)
	}

	if err := m.repo.UpdateStatus(ctx, executionID, models.ExecutionPaused, ""); err != nil {
		return nil, fmt.Errorf("update status to paused: %w", err)
	}

	m.log.Info("execution paused", "execution_id", executionID, "node_id", nodeID)
	return pause, nil
}

// ResumeExecution resolves the active pause for executionID and transitions
// the execution back to RUNNING. If the pause specifies resume_conditions,
// resumeData must satisfy every key (non-nil required values must match
// exactly) or ErrConditionsNotMet is returned.
func (m *Manager) ResumeExecution(ctx context.Context, executionID uuid.UUID, reason ResumeReason, resumeData map[string]interface{}) (*models.PauseRecord, error) {
	pause, err := m.repo.GetActivePauseByExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("get active pause: %w", err)
	}
	if pause == nil || !pause.Active() {
		return nil, fmt.Errorf("no active pause found for execution %s", executionID)
	}

	matched, err := condition.MatchResumeConditions(pause.ResumeConditions, resumeData, m.evaluator)
	if err != nil {
		return nil, fmt.Errorf("evaluate resume conditions: %w", err)
	}
	if !matched {
		return nil, fmt.Errorf("%w", ErrConditionsNotMet)
	}

	if err := m.repo.ResolvePause(ctx, pause.PauseID); err != nil {
		return nil, fmt.Errorf("resolve pause: %w", err)
	}

	if err := m.repo.UpdateStatus(ctx, executionID, models.ExecutionRunning, ""); err != nil {
		return nil, fmt.Errorf("update status to running: %w", err)
	}

	m.log.Info("execution resumed", "execution_id", executionID, "reason", reason)
	return pause, nil
}

// transition applies a status update through the repository, which rejects
// a status not reachable from the current one with
// ErrInvalidStateTransition.
func (m *Manager) transition(ctx context.Context, executionID uuid.UUID, next models.ExecutionStatus) error {
	if err := m.repo.UpdateStatus(ctx, executionID, next, ""); err != nil {
		return fmt.Errorf("transition execution %s to %s: %w", executionID, next, err)
	}
	return nil
}
