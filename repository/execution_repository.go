// Package repository persists executions, pause records, and workflow
// definitions to Postgres, following the same pgx query/Scan idiom as the
// platform's other repositories.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/CurvatureX/trigger-engine/common/db"
	"github.com/CurvatureX/trigger-engine/common/models"
)

// ErrNotFound is returned when a lookup by ID finds no matching row.
var ErrNotFound = errors.New("not found")

// ErrInvalidStateTransition is returned by UpdateStatus when the requested
// status is not reachable from the execution's current status per the
// state machine in models.ExecutionStatus.CanTransition (§4.5).
var ErrInvalidStateTransition = errors.New("invalid execution state transition")

// ExecutionRepository persists Execution and PauseRecord rows.
type ExecutionRepository interface {
	Create(ctx context.Context, exec *models.Execution) error
	GetByID(ctx context.Context, executionID uuid.UUID) (*models.Execution, error)
	UpdateStatus(ctx context.Context, executionID uuid.UUID, status models.ExecutionStatus, execErr string) error
	UpdateNodeOutputs(ctx context.Context, executionID uuid.UUID, nodeOutputs map[string]interface{}) error
	Heartbeat(ctx context.Context, executionID uuid.UUID) error
	ListRunningOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Execution, error)

	CreatePause(ctx context.Context, pause *models.PauseRecord) error
	GetActivePauseByExecution(ctx context.Context, executionID uuid.UUID) (*models.PauseRecord, error)
	ResolvePause(ctx context.Context, pauseID uuid.UUID) error
	ListExpiredPauses(ctx context.Context, cutoff time.Time) ([]*models.PauseRecord, error)
}

// PostgresExecutionRepository is the pgx-backed ExecutionRepository.
type PostgresExecutionRepository struct {
	db *db.DB
}

// NewPostgresExecutionRepository creates a Postgres-backed repository.
func NewPostgresExecutionRepository(database *db.DB) *PostgresExecutionRepository {
	return &PostgresExecutionRepository{db: database}
}

// Create inserts a new execution row.
func (r *PostgresExecutionRepository) Create(ctx context.Context, exec *models.Execution) error {
	triggerData, err := json.Marshal(exec.TriggerData)
	if err != nil {
		return fmt.Errorf("marshal trigger_data: %w", err)
	}

	query := `
		INSERT INTO execution (execution_id, workflow_id, trigger_id, status, trigger_data, started_at, last_heartbeat)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.Exec(ctx, query,
		exec.ExecutionID, exec.WorkflowID, exec.TriggerID, exec.Status,
		triggerData, exec.StartedAt, exec.LastHeartbeat,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

// GetByID retrieves an execution by its ID.
func (r *PostgresExecutionRepository) GetByID(ctx context.Context, executionID uuid.UUID) (*models.Execution, error) {
	query := `
		SELECT execution_id, workflow_id, trigger_id, status, trigger_data, node_outputs,
		       error, started_at, completed_at, last_heartbeat
		FROM execution
		WHERE execution_id = $1
	`
	var triggerData, nodeOutputs []byte
	exec := &models.Execution{}
	err := r.db.QueryRow(ctx, query, executionID).Scan(
		&exec.ExecutionID, &exec.WorkflowID, &exec.TriggerID, &exec.Status,
		&triggerData, &nodeOutputs, &exec.Error, &exec.StartedAt, &exec.CompletedAt, &exec.LastHeartbeat,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	if len(triggerData) > 0 {
		if err := json.Unmarshal(triggerData, &exec.TriggerData); err != nil {
			return nil, fmt.Errorf("unmarshal trigger_data: %w", err)
		}
	}
	if len(nodeOutputs) > 0 {
		if err := json.Unmarshal(nodeOutputs, &exec.NodeOutputs); err != nil {
			return nil, fmt.Errorf("unmarshal node_outputs: %w", err)
		}
	}
	return exec, nil
}

// UpdateStatus transitions an execution's status, optionally recording a
// terminal error message. Stamps completed_at when the new status is
// terminal. The current status is read and checked under a row lock before
// the write so concurrent callers can't race an invalid transition past the
// check; a status not reachable from the current one per
// models.ExecutionStatus.CanTransition yields ErrInvalidStateTransition and
// the row is left untouched (§4.5).
func (r *PostgresExecutionRepository) UpdateStatus(ctx context.Context, executionID uuid.UUID, status models.ExecutionStatus, execErr string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update status transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current models.ExecutionStatus
	err = tx.QueryRow(ctx, `SELECT status FROM execution WHERE execution_id = $1 FOR UPDATE`, executionID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read current execution status: %w", err)
	}
	if current != status && !current.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, current, status)
	}

	query := `
		UPDATE execution
		SET status = $2, error = $3, completed_at = CASE WHEN $4 THEN now() ELSE completed_at END
		WHERE execution_id = $1
	`
	tag, err := tx.Exec(ctx, query, executionID, status, execErr, status.IsTerminal())
	if err != nil {
		return fmt.Errorf("failed to update execution status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update status transaction: %w", err)
	}
	return nil
}

// UpdateNodeOutputs persists the accumulated per-node outputs for an
// execution. It is written when an execution pauses and when it completes,
// so a resumed execution can read prior node output.
func (r *PostgresExecutionRepository) UpdateNodeOutputs(ctx context.Context, executionID uuid.UUID, nodeOutputs map[string]interface{}) error {
	data, err := json.Marshal(nodeOutputs)
	if err != nil {
		return fmt.Errorf("marshal node_outputs: %w", err)
	}
	query := `UPDATE execution SET node_outputs = $2 WHERE execution_id = $1`
	_, err = r.db.Exec(ctx, query, executionID, data)
	if err != nil {
		return fmt.Errorf("failed to update node outputs: %w", err)
	}
	return nil
}

// Heartbeat refreshes last_heartbeat, used by the engine's execution loop so
// the reaper (§4.5) can tell a slow-but-alive execution from a stuck one.
func (r *PostgresExecutionRepository) Heartbeat(ctx context.Context, executionID uuid.UUID) error {
	query := `UPDATE execution SET last_heartbeat = now() WHERE execution_id = $1`
	_, err := r.db.Exec(ctx, query, executionID)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	return nil
}

// ListRunningOlderThan returns RUNNING executions whose last heartbeat is
// older than cutoff, candidates for the reaper to fail.
func (r *PostgresExecutionRepository) ListRunningOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Execution, error) {
	query := `
		SELECT execution_id, workflow_id, trigger_id, status, started_at, last_heartbeat
		FROM execution
		WHERE status = $1 AND last_heartbeat < $2
	`
	rows, err := r.db.Query(ctx, query, models.ExecutionRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale running executions: %w", err)
	}
	defer rows.Close()

	var out []*models.Execution
	for rows.Next() {
		e := &models.Execution{}
		if err := rows.Scan(&e.ExecutionID, &e.WorkflowID, &e.TriggerID, &e.Status, &e.StartedAt, &e.LastHeartbeat); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreatePause inserts a new pause record.
func (r *PostgresExecutionRepository) CreatePause(ctx context.Context, pause *models.PauseRecord) error {
	conditions, err := json.Marshal(pause.ResumeConditions)
	if err != nil {
		return fmt.Errorf("marshal resume_conditions: %w", err)
	}
	query := `
		INSERT INTO pause_record (pause_id, execution_id, paused_at_node, resume_conditions, timeout, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.Exec(ctx, query,
		pause.PauseID, pause.ExecutionID, pause.PausedAtNode, conditions, pause.Timeout, pause.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create pause record: %w", err)
	}
	return nil
}

// GetActivePauseByExecution returns the unresolved pause for an execution,
// if one exists.
func (r *PostgresExecutionRepository) GetActivePauseByExecution(ctx context.Context, executionID uuid.UUID) (*models.PauseRecord, error) {
	query := `
		SELECT pause_id, execution_id, paused_at_node, resume_conditions, timeout, created_at, resolved_at
		FROM pause_record
		WHERE execution_id = $1 AND resolved_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	var conditions []byte
	pause := &models.PauseRecord{}
	err := r.db.QueryRow(ctx, query, executionID).Scan(
		&pause.PauseID, &pause.ExecutionID, &pause.PausedAtNode, &conditions,
		&pause.Timeout, &pause.CreatedAt, &pause.ResolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active pause: %w", err)
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &pause.ResumeConditions); err != nil {
			return nil, fmt.Errorf("unmarshal resume_conditions: %w", err)
		}
	}
	return pause, nil
}

// ResolvePause marks a pause record resolved (by resume or by timeout).
// The resolved_at IS NULL guard makes resolving an already-resolved pause a
// safe no-op rather than an error.
func (r *PostgresExecutionRepository) ResolvePause(ctx context.Context, pauseID uuid.UUID) error {
	query := `UPDATE pause_record SET resolved_at = now() WHERE pause_id = $1 AND resolved_at IS NULL`
	_, err := r.db.Exec(ctx, query, pauseID)
	if err != nil {
		return fmt.Errorf("failed to resolve pause: %w", err)
	}
	return nil
}

// ListExpiredPauses returns active pause records whose timeout has elapsed.
func (r *PostgresExecutionRepository) ListExpiredPauses(ctx context.Context, cutoff time.Time) ([]*models.PauseRecord, error) {
	query := `
		SELECT pause_id, execution_id, paused_at_node, resume_conditions, timeout, created_at
		FROM pause_record
		WHERE resolved_at IS NULL AND timeout IS NOT NULL AND timeout < $1
	`
	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired pauses: %w", err)
	}
	defer rows.Close()

	var out []*models.PauseRecord
	for rows.Next() {
		p := &models.PauseRecord{}
		var conditions []byte
		if err := rows.Scan(&p.PauseID, &p.ExecutionID, &p.PausedAtNode, &conditions, &p.Timeout, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pause record: %w", err)
		}
		if len(conditions) > 0 {
			if err := json.Unmarshal(conditions, &p.ResumeConditions); err != nil {
				return nil, fmt.Errorf("unmarshal resume_conditions: %w", err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
