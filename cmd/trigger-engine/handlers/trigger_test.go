package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CurvatureX/trigger-engine/common/bootstrap"
	"github.com/CurvatureX/trigger-engine/common/config"
	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/common/queue"
	"github.com/CurvatureX/trigger-engine/dispatch"
	"github.com/CurvatureX/trigger-engine/trigger"
)

func newTestComponents(t *testing.T) *bootstrap.Components {
	t.Helper()
	return &bootstrap.Components{Logger: logger.New("error", "text"), Config: &config.Config{}}
}

func newTestDispatcherForHandlers(t *testing.T, handler http.HandlerFunc) *dispatch.Dispatcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := logger.New("error", "text")
	notifier := dispatch.NewNotifier(queue.NewMemoryQueue(log), log)
	return dispatch.NewDispatcher(srv.URL, 2*time.Second, notifier, log)
}

func TestHandleWebhookFiresRegisteredTrigger(t *testing.T) {
	fired := make(chan struct{}, 1)
	d := newTestDispatcherForHandlers(t, func(w http.ResponseWriter, r *http.Request) {
		fired <- struct{}{}
		w.WriteHeader(http.StatusAccepted)
	})

	workflowID := uuid.New()
	def := &models.TriggerDefinition{
		TriggerID:  uuid.New(),
		WorkflowID: workflowID,
		Enabled:    true,
		Config:     map[string]interface{}{"webhook_path": "/hooks/demo"},
	}
	wt := trigger.NewWebhookTrigger(def, d, logger.New("error", "text"))
	registry := trigger.NewRegistry(logger.New("error", "text"))
	require.NoError(t, registry.Add(def.TriggerID, wt))

	h := NewTriggerHandler(newTestComponents(t), registry)

	e := echo.New()
	body := bytes.NewBufferString(`{"hello":"world"}`)
	req := httptest.NewRequest(http.MethodPost, "/hooks/demo", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.HandleWebhook(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected webhook to dispatch the workflow")
	}
}

func TestHandleWebhookUnknownPathReturns404(t *testing.T) {
	registry := trigger.NewRegistry(logger.New("error", "text"))
	h := NewTriggerHandler(newTestComponents(t), registry)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/hooks/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HandleWebhook(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestHandleManualTriggerFiresActiveTrigger(t *testing.T) {
	fired := make(chan struct{}, 1)
	d := newTestDispatcherForHandlers(t, func(w http.ResponseWriter, r *http.Request) {
		fired <- struct{}{}
		w.WriteHeader(http.StatusAccepted)
	})

	workflowID := uuid.New()
	def := &models.TriggerDefinition{
		TriggerID:  uuid.New(),
		WorkflowID: workflowID,
		Enabled:    true,
		Config:     map[string]interface{}{},
	}
	mt := trigger.NewManualTrigger(def, d, logger.New("error", "text"))
	registry := trigger.NewRegistry(logger.New("error", "text"))
	require.NoError(t, registry.Add(def.TriggerID, mt))

	h := NewTriggerHandler(newTestComponents(t), registry)

	e := echo.New()
	body := bytes.NewBufferString(`{"user_id":"u1"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/triggers/manual/"+def.TriggerID.String(), body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("trigger_id")
	c.SetParamValues(def.TriggerID.String())

	require.NoError(t, h.HandleManualTrigger(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected manual trigger to dispatch the workflow")
	}
}

func TestHandleManualTriggerRejectsWrongTriggerType(t *testing.T) {
	workflowID := uuid.New()
	def := &models.TriggerDefinition{
		TriggerID:  uuid.New(),
		WorkflowID: workflowID,
		Enabled:    true,
		Config:     map[string]interface{}{"webhook_path": "/hooks/demo"},
	}
	d := newTestDispatcherForHandlers(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	wt := trigger.NewWebhookTrigger(def, d, logger.New("error", "text"))
	registry := trigger.NewRegistry(logger.New("error", "text"))
	require.NoError(t, registry.Add(def.TriggerID, wt))

	h := NewTriggerHandler(newTestComponents(t), registry)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/triggers/manual/"+def.TriggerID.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("trigger_id")
	c.SetParamValues(def.TriggerID.String())

	err := h.HandleManualTrigger(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}
