package trigger

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/dispatch"
)

func TestManualTriggerRequiresStart(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not dispatch before start")
	})

	def := &models.TriggerDefinition{TriggerID: uuid.New(), WorkflowID: uuid.New(), Enabled: true, Config: map[string]interface{}{}}
	mt := NewManualTrigger(def, d, logger.New("error", "text"))

	_, err := mt.TriggerManual("user-1", "")
	assert.Error(t, err)
}

func TestManualTriggerFiresAfterStart(t *testing.T) {
	var fired bool
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		fired = true
		w.WriteHeader(http.StatusAccepted)
	})

	def := &models.TriggerDefinition{TriggerID: uuid.New(), WorkflowID: uuid.New(), Enabled: true, Config: map[string]interface{}{}}
	mt := NewManualTrigger(def, d, logger.New("error", "text"))
	require.NoError(t, mt.Start())

	result, err := mt.TriggerManual("user-1", "tok")
	require.NoError(t, err)
	assert.Equal(t, dispatch.ResultStarted, result.Status)
	assert.True(t, fired)

	require.NoError(t, mt.Stop())
	_, err = mt.TriggerManual("user-1", "")
	assert.Error(t, err)
}

func TestManualTriggerDisabledSkipsDispatch(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("disabled trigger must not dispatch")
	})

	def := &models.TriggerDefinition{TriggerID: uuid.New(), WorkflowID: uuid.New(), Enabled: false, Config: map[string]interface{}{}}
	mt := NewManualTrigger(def, d, logger.New("error", "text"))
	require.NoError(t, mt.Start())

	result, err := mt.TriggerManual("user-1", "")
	require.NoError(t, err)
	assert.Equal(t, dispatch.ResultSkipped, result.Status)
}

func TestManualTriggerStartIsIdempotent(t *testing.T) {
	var fired int
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		fired++
		w.WriteHeader(http.StatusAccepted)
	})

	def := &models.TriggerDefinition{TriggerID: uuid.New(), WorkflowID: uuid.New(), Enabled: true, Config: map[string]interface{}{}}
	mt := NewManualTrigger(def, d, logger.New("error", "text"))

	require.NoError(t, mt.Start())
	require.NoError(t, mt.Start())

	_, err := mt.TriggerManual("user-1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	require.NoError(t, mt.Stop())
	require.NoError(t, mt.Start())
	_, err = mt.TriggerManual("user-1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, fired)
}
