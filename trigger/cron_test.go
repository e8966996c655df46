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

func TestNewCronTriggerRequiresExpression(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	def := &models.TriggerDefinition{TriggerID: uuid.New(), WorkflowID: uuid.New(), Enabled: true, Config: map[string]interface{}{}}
	_, err := NewCronTrigger(def, d, nil, logger.New("error", "text"))
	assert.Error(t, err)
}

func TestNewCronTriggerRejectsInvalidExpression(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	def := &models.TriggerDefinition{
		TriggerID:  uuid.New(),
		WorkflowID: uuid.New(),
		Enabled:    true,
		Config:     map[string]interface{}{"cron_expression": "not a cron expression"},
	}
	_, err := NewCronTrigger(def, d, nil, logger.New("error", "text"))
	assert.Error(t, err)
}

func TestCronTriggerFiresWithoutRedis(t *testing.T) {
	fired := 0
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		fired++
		w.WriteHeader(http.StatusAccepted)
	})
	def := &models.TriggerDefinition{
		TriggerID:  uuid.New(),
		WorkflowID: uuid.New(),
		Enabled:    true,
		Config:     map[string]interface{}{"cron_expression": "0 0 * * *"},
	}
	ct, err := NewCronTrigger(def, d, nil, logger.New("error", "text"))
	require.NoError(t, err)

	ct.fireCron()
	assert.Equal(t, 1, fired)
}

func TestCronTriggerSkipsFireWhenDisabled(t *testing.T) {
	fired := 0
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		fired++
		w.WriteHeader(http.StatusAccepted)
	})
	def := &models.TriggerDefinition{
		TriggerID:  uuid.New(),
		WorkflowID: uuid.New(),
		Enabled:    false,
		Config:     map[string]interface{}{"cron_expression": "0 0 * * *"},
	}
	ct, err := NewCronTrigger(def, d, nil, logger.New("error", "text"))
	require.NoError(t, err)

	ct.fireCron()
	assert.Equal(t, 0, fired)
}
