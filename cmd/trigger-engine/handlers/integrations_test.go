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

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/trigger"
)

func TestHandleGitHubWebhookNoMatchingRepository(t *testing.T) {
	// No trigger is registered for this repository, so the handler should
	// accept the event and report zero matches rather than erroring.
	registry := trigger.NewRegistry(logger.New("error", "text"))
	h := NewIntegrationHandler(newTestComponents(t), registry)

	e := echo.New()
	body := bytes.NewBufferString(`{"repository":{"full_name":"acme/widgets"},"sender":{"login":"alice"}}`)
	req := httptest.NewRequest(http.MethodPost, "/github/webhook", body)
	req.Header.Set("X-GitHub-Event", "push")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.HandleGitHubWebhook(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"processed":0`)
}

func TestHandleGitHubWebhookMissingEventHeader(t *testing.T) {
	registry := trigger.NewRegistry(logger.New("error", "text"))
	h := NewIntegrationHandler(newTestComponents(t), registry)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/github/webhook", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HandleGitHubWebhook(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestHandleSlackEventAnswersURLVerification(t *testing.T) {
	registry := trigger.NewRegistry(logger.New("error", "text"))
	h := NewIntegrationHandler(newTestComponents(t), registry)

	e := echo.New()
	body := bytes.NewBufferString(`{"type":"url_verification","challenge":"abc123"}`)
	req := httptest.NewRequest(http.MethodPost, "/slack/events", body)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.HandleSlackEvent(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "abc123")
}

func TestHandleSlackEventFansOutToWorkspaceTrigger(t *testing.T) {
	fired := make(chan struct{}, 1)
	d := newTestDispatcherForHandlers(t, func(w http.ResponseWriter, r *http.Request) {
		fired <- struct{}{}
		w.WriteHeader(http.StatusAccepted)
	})

	def := &models.TriggerDefinition{
		TriggerID:  uuid.New(),
		WorkflowID: uuid.New(),
		Enabled:    true,
		Config: map[string]interface{}{
			"workspace_id": "T12345",
		},
	}
	st := trigger.NewSlackTrigger(def, d, logger.New("error", "text"))
	registry := trigger.NewRegistry(logger.New("error", "text"))
	require.NoError(t, registry.Add(def.TriggerID, st))

	h := NewIntegrationHandler(newTestComponents(t), registry)

	e := echo.New()
	body := bytes.NewBufferString(`{"type":"event_callback","team_id":"T12345","event":{"type":"message","text":"!hi"}}`)
	req := httptest.NewRequest(http.MethodPost, "/slack/events", body)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.HandleSlackEvent(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected matching slack trigger to dispatch the workflow")
	}
}
