// Package trigger implements the six trigger variants (manual, webhook,
// cron, github_app, slack, email) that fire workflow executions, plus the
// registry that holds one live instance per configured TriggerDefinition.
package trigger

import (
	"crypto/md5"
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/dispatch"
)

// Trigger is the contract every trigger variant implements: Start begins
// whatever background activity the variant needs (a cron schedule, an IMAP
// poll loop, nothing for webhook/manual), Stop tears it down.
type Trigger interface {
	Type() string
	WorkflowID() uuid.UUID
	Start() error
	Stop() error
}

// base holds the fields and jitter/dispatch logic shared by every trigger
// variant, mirroring the shared "_trigger_workflow"/"_calculate_jitter"
// contract every concrete trigger in the platform's trigger layer inherits
// from.
type base struct {
	workflowID uuid.UUID
	triggerID  uuid.UUID
	config     map[string]interface{}
	enabled    bool
	dispatcher *dispatch.Dispatcher
	log        *logger.Logger
}

func newBase(def *models.TriggerDefinition, dispatcher *dispatch.Dispatcher, log *logger.Logger) base {
	return base{
		workflowID: def.WorkflowID,
		triggerID:  def.TriggerID,
		config:     def.Config,
		enabled:    def.Enabled,
		dispatcher: dispatcher,
		log:        log,
	}
}

// fire dispatches a workflow execution with trigger_data, unless the
// trigger is disabled, in which case it returns a skipped result without
// calling the dispatcher (§4.2 "If the trigger is disabled, returns
// {status: skipped}").
func (b *base) fire(triggerType string, triggerData map[string]interface{}) *dispatch.ExecutionResult {
	if !b.enabled {
		b.log.Warn("trigger disabled, skipping dispatch", "trigger_type", triggerType, "workflow_id", b.workflowID)
		return &dispatch.ExecutionResult{Status: dispatch.ResultSkipped}
	}
	result := b.dispatcher.Dispatch(b.workflowID, b.triggerID, triggerType, triggerData)
	if result.Status == dispatch.ResultFailed || result.Status == dispatch.ResultError {
		b.log.Error("trigger dispatch failed", "trigger_type", triggerType, "workflow_id", b.workflowID, "status", result.Status, "message", result.Message)
	}
	return result
}

// jitter computes a deterministic 0-30s delay from the workflow ID so that
// many workflows scheduled for the same instant don't all fire the same
// millisecond (thundering herd on cron wake-up).
func jitter(workflowID uuid.UUID) time.Duration {
	sum := md5.Sum([]byte(workflowID.String()))
	hashPrefix := binary.BigEndian.Uint32(sum[:4])
	millis := hashPrefix % 30000
	return time.Duration(millis) * time.Millisecond
}
