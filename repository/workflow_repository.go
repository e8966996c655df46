package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/CurvatureX/trigger-engine/common/db"
	"github.com/CurvatureX/trigger-engine/common/models"
)

// WorkflowRepository loads workflow and trigger definitions.
type WorkflowRepository interface {
	GetWorkflow(ctx context.Context, workflowID uuid.UUID) (*models.Workflow, error)
	GetTrigger(ctx context.Context, triggerID uuid.UUID) (*models.TriggerDefinition, error)
	ListEnabledTriggersByType(ctx context.Context, triggerType string) ([]*models.TriggerDefinition, error)
	ListTriggersByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.TriggerDefinition, error)
	CreateTrigger(ctx context.Context, t *models.TriggerDefinition) error
	DeleteTrigger(ctx context.Context, triggerID uuid.UUID) error
}

// PostgresWorkflowRepository is the pgx-backed WorkflowRepository.
type PostgresWorkflowRepository struct {
	db *db.DB
}

// NewPostgresWorkflowRepository creates a Postgres-backed repository.
func NewPostgresWorkflowRepository(database *db.DB) *PostgresWorkflowRepository {
	return &PostgresWorkflowRepository{db: database}
}

func (r *PostgresWorkflowRepository) GetWorkflow(ctx context.Context, workflowID uuid.UUID) (*models.Workflow, error) {
	query := `
		SELECT workflow_id, name, description, nodes, connections, active, metadata, created_at, updated_at
		FROM workflow
		WHERE workflow_id = $1
	`
	var nodesRaw, connectionsRaw, metadataRaw []byte
	w := &models.Workflow{}
	err := r.db.QueryRow(ctx, query, workflowID).Scan(
		&w.WorkflowID, &w.Name, &w.Description, &nodesRaw, &connectionsRaw, &w.Active, &metadataRaw,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	if err := json.Unmarshal(nodesRaw, &w.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(connectionsRaw, &w.Connections); err != nil {
		return nil, fmt.Errorf("unmarshal connections: %w", err)
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &w.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return w, nil
}

func (r *PostgresWorkflowRepository) GetTrigger(ctx context.Context, triggerID uuid.UUID) (*models.TriggerDefinition, error) {
	query := `
		SELECT trigger_id, workflow_id, trigger_type, config, enabled, created_at, updated_at
		FROM trigger_definition
		WHERE trigger_id = $1
	`
	var configRaw []byte
	t := &models.TriggerDefinition{}
	err := r.db.QueryRow(ctx, query, triggerID).Scan(
		&t.TriggerID, &t.WorkflowID, &t.TriggerType, &configRaw, &t.Enabled, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trigger: %w", err)
	}
	if err := json.Unmarshal(configRaw, &t.Config); err != nil {
		return nil, fmt.Errorf("unmarshal trigger config: %w", err)
	}
	return t, nil
}

func (r *PostgresWorkflowRepository) ListEnabledTriggersByType(ctx context.Context, triggerType string) ([]*models.TriggerDefinition, error) {
	query := `
		SELECT trigger_id, workflow_id, trigger_type, config, enabled, created_at, updated_at
		FROM trigger_definition
		WHERE trigger_type = $1 AND enabled = true
	`
	rows, err := r.db.Query(ctx, query, triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer rows.Close()

	var out []*models.TriggerDefinition
	for rows.Next() {
		t := &models.TriggerDefinition{}
		var configRaw []byte
		if err := rows.Scan(&t.TriggerID, &t.WorkflowID, &t.TriggerType, &configRaw, &t.Enabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		if err := json.Unmarshal(configRaw, &t.Config); err != nil {
			return nil, fmt.Errorf("unmarshal trigger config: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTriggersByWorkflow lists every trigger definition (enabled or not)
// registered for workflowID, used by the trigger CRUD API.
func (r *PostgresWorkflowRepository) ListTriggersByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.TriggerDefinition, error) {
	query := `
		SELECT trigger_id, workflow_id, trigger_type, config, enabled, created_at, updated_at
		FROM trigger_definition
		WHERE workflow_id = $1
	`
	rows, err := r.db.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers for workflow: %w", err)
	}
	defer rows.Close()

	var out []*models.TriggerDefinition
	for rows.Next() {
		t := &models.TriggerDefinition{}
		var configRaw []byte
		if err := rows.Scan(&t.TriggerID, &t.WorkflowID, &t.TriggerType, &configRaw, &t.Enabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		if err := json.Unmarshal(configRaw, &t.Config); err != nil {
			return nil, fmt.Errorf("unmarshal trigger config: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateTrigger inserts a new trigger definition. t.TriggerID is populated
// by the caller (so the registry can be updated with the same ID).
func (r *PostgresWorkflowRepository) CreateTrigger(ctx context.Context, t *models.TriggerDefinition) error {
	configRaw, err := json.Marshal(t.Config)
	if err != nil {
		return fmt.Errorf("marshal trigger config: %w", err)
	}
	query := `
		INSERT INTO trigger_definition (trigger_id, workflow_id, trigger_type, config, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`
	if _, err := r.db.Exec(ctx, query, t.TriggerID, t.WorkflowID, t.TriggerType, configRaw, t.Enabled); err != nil {
		return fmt.Errorf("failed to create trigger: %w", err)
	}
	return nil
}

// DeleteTrigger removes a trigger definition. Deleting an ID that doesn't
// exist is not an error: DELETE is idempotent from the caller's view.
func (r *PostgresWorkflowRepository) DeleteTrigger(ctx context.Context, triggerID uuid.UUID) error {
	query := `DELETE FROM trigger_definition WHERE trigger_id = $1`
	if _, err := r.db.Exec(ctx, query, triggerID); err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}
	return nil
}
