package dispatch

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/queue"
)

// Notifier fans trigger-fired events out to the in-process queue on a
// best-effort basis; a notification failure never fails the trigger itself.
type Notifier struct {
	q   queue.Queue
	log *logger.Logger
}

// NewNotifier creates a Notifier publishing to topic "trigger.fired".
func NewNotifier(q queue.Queue, log *logger.Logger) *Notifier {
	return &Notifier{q: q, log: log}
}

const firedTopic = "trigger.fired"

// NotifyTriggered publishes a best-effort event describing a trigger firing.
func (n *Notifier) NotifyTriggered(workflowID uuid.UUID, triggerType string, triggerData map[string]interface{}) {
	event := map[string]interface{}{
		"workflow_id":  workflowID.String(),
		"trigger_type": triggerType,
		"trigger_data": triggerData,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		n.log.Warn("failed to marshal trigger notification", "error", err)
		return
	}
	if err := n.q.Publish(context.Background(), firedTopic, workflowID.String(), payload); err != nil {
		n.log.Warn("trigger notification publish failed", "workflow_id", workflowID, "error", err)
	}
}
