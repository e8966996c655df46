package trigger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/dispatch"
)

// ManualTrigger fires a workflow on demand from an authenticated user
// action. It has no background activity: Start/Stop only flip a status
// flag that TriggerManual checks before dispatching.
type ManualTrigger struct {
	base
	active bool
}

// NewManualTrigger creates a manual trigger from a TriggerDefinition.
func NewManualTrigger(def *models.TriggerDefinition, dispatcher *dispatch.Dispatcher, log *logger.Logger) *ManualTrigger {
	return &ManualTrigger{base: newBase(def, dispatcher, log)}
}

// Type implements Trigger.
func (m *ManualTrigger) Type() string { return "manual" }

// WorkflowID implements Trigger.
func (m *ManualTrigger) WorkflowID() uuid.UUID { return m.base.workflowID }

// Start marks the trigger active, allowing TriggerManual calls to succeed.
func (m *ManualTrigger) Start() error {
	m.active = true
	m.log.Info("manual trigger started", "workflow_id", m.workflowID)
	return nil
}

// Stop marks the trigger inactive; subsequent TriggerManual calls are rejected.
func (m *ManualTrigger) Stop() error {
	m.active = false
	m.log.Info("manual trigger stopped", "workflow_id", m.workflowID)
	return nil
}

// TriggerManual fires the workflow on behalf of userID. accessToken is
// carried through into trigger_data for downstream nodes that need to act
// with the triggering user's credentials; it is never logged. The error
// return is reserved for the pre-dispatch "not active" rejection; the
// dispatch outcome itself is carried in the *dispatch.ExecutionResult.
func (m *ManualTrigger) TriggerManual(userID string, accessToken string) (*dispatch.ExecutionResult, error) {
	if !m.active {
		return nil, fmt.Errorf("manual trigger %s for workflow %s is not active", m.triggerID, m.workflowID)
	}

	triggerData := map[string]interface{}{
		"trigger_type":  "manual",
		"user_id":       userID,
		"triggered_at":  time.Now().UTC().Format(time.RFC3339),
		"execution_id":  uuid.New().String(),
	}
	if accessToken != "" {
		triggerData["access_token"] = accessToken
	}

	return m.fire("manual", triggerData), nil
}
