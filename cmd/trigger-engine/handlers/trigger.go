// Package handlers implements the HTTP handlers for the trigger-engine
// binary's inbound surface: generic webhook intake, manual firing, GitHub
// App/Slack event delivery, and the execution/pause/resume operator API.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/CurvatureX/trigger-engine/common/bootstrap"
	"github.com/CurvatureX/trigger-engine/dispatch"
	"github.com/CurvatureX/trigger-engine/trigger"
)

// TriggerHandler serves the generic webhook and manual-fire trigger routes.
type TriggerHandler struct {
	components *bootstrap.Components
	registry   *trigger.Registry
}

// NewTriggerHandler creates a TriggerHandler backed by the given trigger
// registry, used to look up the trigger for an inbound webhook/manual-fire
// request.
func NewTriggerHandler(components *bootstrap.Components, registry *trigger.Registry) *TriggerHandler {
	return &TriggerHandler{components: components, registry: registry}
}

// HandleWebhook serves POST <webhook_path> for a registered WebhookTrigger.
func (h *TriggerHandler) HandleWebhook(c echo.Context) error {
	path := c.Request().URL.Path
	wt, ok := h.registry.WebhookTrigger(path)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no webhook trigger registered for this path")
	}

	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	body := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object")
		}
	}

	headers := map[string]string{}
	for k := range c.Request().Header {
		headers[k] = c.Request().Header.Get(k)
	}
	query := map[string]string{}
	for k := range c.Request().URL.Query() {
		query[k] = c.Request().URL.Query().Get(k)
	}

	req := trigger.WebhookRequest{
		Method:      c.Request().Method,
		Headers:     headers,
		QueryParams: query,
		Body:        body,
		RemoteAddr:  c.Request().RemoteAddr,
	}

	result, err := wt.ProcessWebhook(req)
	if err != nil {
		h.components.Logger.Warn("webhook rejected", "path", path, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return dispatchResultResponse(c, result)
}

// dispatchResultResponse maps a *dispatch.ExecutionResult to the HTTP
// response a trigger entry point returns: started executions are accepted,
// a skipped (disabled) trigger still reports 202 so callers don't treat it
// as an error, and a dispatch failure surfaces as 502 since the trigger
// itself accepted the request but the engine could not be reached.
func dispatchResultResponse(c echo.Context, result *dispatch.ExecutionResult) error {
	if result == nil {
		return c.JSON(http.StatusAccepted, map[string]string{"status": "triggered"})
	}

	body := map[string]string{"status": string(result.Status)}
	if result.ExecutionID != "" {
		body["execution_id"] = result.ExecutionID
	}
	if result.Message != "" {
		body["message"] = result.Message
	}

	switch result.Status {
	case dispatch.ResultStarted, dispatch.ResultSkipped:
		return c.JSON(http.StatusAccepted, body)
	default:
		return c.JSON(http.StatusBadGateway, body)
	}
}

// HandleManualTrigger serves POST /v1/triggers/manual/:trigger_id.
func (h *TriggerHandler) HandleManualTrigger(c echo.Context) error {
	triggerIDStr := c.Param("trigger_id")
	triggerID, err := uuid.Parse(triggerIDStr)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid trigger_id")
	}

	t, ok := h.registry.Get(triggerID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "trigger not found")
	}
	mt, ok := t.(*trigger.ManualTrigger)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("trigger %s is not a manual trigger", triggerID))
	}

	var req struct {
		UserID      string `json:"user_id"`
		AccessToken string `json:"access_token"`
	}
	_ = c.Bind(&req)

	result, err := mt.TriggerManual(req.UserID, req.AccessToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return dispatchResultResponse(c, result)
}
