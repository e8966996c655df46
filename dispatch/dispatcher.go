// Package dispatch turns a trigger firing into an HTTP call against the
// workflow engine's execute endpoint, and best-effort notifies configured
// sinks about the firing.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/CurvatureX/trigger-engine/common/logger"
)

// executionPayload is the body posted to the workflow engine's execute
// endpoint, matching the platform's existing execute-request contract.
type executionPayload struct {
	ExecutionID string                 `json:"execution_id"`
	WorkflowID  string                 `json:"workflow_id"`
	TriggerID   string                 `json:"trigger_id"`
	TriggerType string                 `json:"trigger_type"`
	TriggerData map[string]interface{} `json:"trigger_data"`
	TriggeredAt string                 `json:"triggered_at"`
}

// Dispatcher posts execution requests to the workflow engine over HTTP.
// engineURL is operator-configured internal service config, not
// attacker-influenced input, so it is not run through the outbound SSRF
// guard the way a trigger-supplied URL (e.g. the HTTP action executor's
// target) would be.
type Dispatcher struct {
	client    *http.Client
	engineURL string
	notifier  *Notifier
	log       *logger.Logger
}

// NewDispatcher creates a Dispatcher pointed at engineURL (e.g.
// http://workflow-engine:8080).
func NewDispatcher(engineURL string, timeout time.Duration, notifier *Notifier, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		client:    &http.Client{Timeout: timeout},
		engineURL: engineURL,
		notifier:  notifier,
		log:       log,
	}
}

// Dispatch fires a workflow execution and, on success, best-effort notifies
// configured sinks. The outcome is reported through an *ExecutionResult
// rather than a bare error so callers can distinguish a rejected execution
// (failed) from a broken dispatch attempt (error) (§4.2).
func (d *Dispatcher) Dispatch(workflowID, triggerID uuid.UUID, triggerType string, triggerData map[string]interface{}) *ExecutionResult {
	executionID := uuid.New()

	url := fmt.Sprintf("%s/v1/workflows/%s/execute", d.engineURL, workflowID)

	payload := executionPayload{
		ExecutionID: executionID.String(),
		WorkflowID:  workflowID.String(),
		TriggerID:   triggerID.String(),
		TriggerType: triggerType,
		TriggerData: triggerData,
		TriggeredAt: time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.log.Error("marshal execution payload failed", "workflow_id", workflowID, "error", err)
		return &ExecutionResult{Status: ResultError, Message: fmt.Sprintf("marshal execution payload: %v", err)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.log.Error("build execute request failed", "workflow_id", workflowID, "error", err)
		return &ExecutionResult{Status: ResultError, Message: fmt.Sprintf("build execute request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	d.log.Info("dispatching workflow execution", "workflow_id", workflowID, "trigger_type", triggerType, "execution_id", executionID)

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Error("execute request failed", "workflow_id", workflowID, "error", err)
		return &ExecutionResult{Status: ResultError, Message: fmt.Sprintf("execute request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		d.log.Error("workflow engine rejected execution", "workflow_id", workflowID, "status", resp.StatusCode)
		return &ExecutionResult{Status: ResultFailed, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	d.log.Info("workflow execution started", "workflow_id", workflowID, "execution_id", executionID)

	if d.notifier != nil {
		d.notifier.NotifyTriggered(workflowID, triggerType, triggerData)
	}

	return &ExecutionResult{Status: ResultStarted, ExecutionID: executionID.String()}
}
