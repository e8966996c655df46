package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CurvatureX/trigger-engine/common/models"
)

// MemoryExecutionRepository is an in-memory ExecutionRepository used in
// tests, avoiding a live Postgres dependency for engine/state package tests.
type MemoryExecutionRepository struct {
	mu         sync.Mutex
	executions map[uuid.UUID]*models.Execution
	pauses     map[uuid.UUID]*models.PauseRecord
}

// NewMemoryExecutionRepository creates an empty in-memory repository.
func NewMemoryExecutionRepository() *MemoryExecutionRepository {
	return &MemoryExecutionRepository{
		executions: make(map[uuid.UUID]*models.Execution),
		pauses:     make(map[uuid.UUID]*models.PauseRecord),
	}
}

func (m *MemoryExecutionRepository) Create(ctx context.Context, exec *models.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *exec
	m.executions[exec.ExecutionID] = &cp
	return nil
}

func (m *MemoryExecutionRepository) GetByID(ctx context.Context, executionID uuid.UUID) (*models.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryExecutionRepository) UpdateStatus(ctx context.Context, executionID uuid.UUID, status models.ExecutionStatus, execErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[executionID]
	if !ok {
		return ErrNotFound
	}
	if e.Status != status && !e.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, e.Status, status)
	}
	e.Status = status
	e.Error = execErr
	if status.IsTerminal() {
		now := time.Now()
		e.CompletedAt = &now
	}
	return nil
}

func (m *MemoryExecutionRepository) UpdateNodeOutputs(ctx context.Context, executionID uuid.UUID, nodeOutputs map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[executionID]
	if !ok {
		return ErrNotFound
	}
	e.NodeOutputs = nodeOutputs
	return nil
}

func (m *MemoryExecutionRepository) Heartbeat(ctx context.Context, executionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[executionID]
	if !ok {
		return ErrNotFound
	}
	e.LastHeartbeat = time.Now()
	return nil
}

func (m *MemoryExecutionRepository) ListRunningOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Execution
	for _, e := range m.executions {
		if e.Status == models.ExecutionRunning && e.LastHeartbeat.Before(cutoff) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryExecutionRepository) CreatePause(ctx context.Context, pause *models.PauseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pause
	m.pauses[pause.PauseID] = &cp
	return nil
}

func (m *MemoryExecutionRepository) GetActivePauseByExecution(ctx context.Context, executionID uuid.UUID) (*models.PauseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.PauseRecord
	for _, p := range m.pauses {
		if p.ExecutionID != executionID || !p.Active() {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryExecutionRepository) ResolvePause(ctx context.Context, pauseID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pauses[pauseID]
	if !ok || !p.Active() {
		return nil
	}
	now := time.Now()
	p.ResolvedAt = &now
	return nil
}

func (m *MemoryExecutionRepository) ListExpiredPauses(ctx context.Context, cutoff time.Time) ([]*models.PauseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PauseRecord
	for _, p := range m.pauses {
		if p.Active() && p.Timeout != nil && p.Timeout.Before(cutoff) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ ExecutionRepository = (*MemoryExecutionRepository)(nil)
