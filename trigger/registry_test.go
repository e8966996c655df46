package trigger

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
)

func TestRegistryAddGetRemove(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	workflowID := uuid.New()
	triggerID := uuid.New()
	def := &models.TriggerDefinition{TriggerID: triggerID, WorkflowID: workflowID, Enabled: true, Config: map[string]interface{}{}}
	mt := NewManualTrigger(def, d, logger.New("error", "text"))

	reg := NewRegistry(logger.New("error", "text"))
	require.NoError(t, reg.Add(triggerID, mt))

	got, ok := reg.Get(triggerID)
	require.True(t, ok)
	assert.Equal(t, "manual", got.Type())

	triggers := reg.ForWorkflow(workflowID)
	assert.Len(t, triggers, 1)

	require.NoError(t, reg.Remove(triggerID))
	_, ok = reg.Get(triggerID)
	assert.False(t, ok)
	assert.Empty(t, reg.ForWorkflow(workflowID))
}

func TestRegistryWebhookLookupByPath(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	triggerID := uuid.New()
	def := &models.TriggerDefinition{
		TriggerID:  triggerID,
		WorkflowID: uuid.New(),
		Enabled:    true,
		Config:     map[string]interface{}{"webhook_path": "/hooks/custom"},
	}
	wt := NewWebhookTrigger(def, d, logger.New("error", "text"))

	reg := NewRegistry(logger.New("error", "text"))
	require.NoError(t, reg.Add(triggerID, wt))

	found, ok := reg.WebhookTrigger("/hooks/custom")
	require.True(t, ok)
	assert.Equal(t, wt, found)

	_, ok = reg.WebhookTrigger("/nope")
	assert.False(t, ok)
}
