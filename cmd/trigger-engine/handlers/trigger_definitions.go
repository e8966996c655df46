package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/container"
)

// TriggerDefinitionHandler serves the trigger CRUD surface scoped to a
// workflow: list/create/delete the trigger definitions that fire it. A
// created trigger is built and registered immediately, so it takes effect
// without a service restart.
type TriggerDefinitionHandler struct {
	container *container.Container
}

// NewTriggerDefinitionHandler creates a TriggerDefinitionHandler.
func NewTriggerDefinitionHandler(c *container.Container) *TriggerDefinitionHandler {
	return &TriggerDefinitionHandler{container: c}
}

// ListTriggers serves GET /v1/triggers/:workflow_id.
func (h *TriggerDefinitionHandler) ListTriggers(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("workflow_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow_id")
	}

	defs, err := h.container.WorkflowRepo.ListTriggersByWorkflow(c.Request().Context(), workflowID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, defs)
}

type createTriggerRequestBody struct {
	TriggerType string                 `json:"trigger_type"`
	Config      map[string]interface{} `json:"config"`
	Enabled     bool                   `json:"enabled"`
}

// CreateTrigger serves POST /v1/triggers/:workflow_id. The new trigger is
// persisted, then built and registered so it starts firing immediately.
func (h *TriggerDefinitionHandler) CreateTrigger(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("workflow_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow_id")
	}

	var body createTriggerRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.TriggerType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "trigger_type is required")
	}

	def := &models.TriggerDefinition{
		TriggerID:   uuid.New(),
		WorkflowID:  workflowID,
		TriggerType: body.TriggerType,
		Config:      body.Config,
		Enabled:     body.Enabled,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	if err := h.container.WorkflowRepo.CreateTrigger(c.Request().Context(), def); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if def.Enabled {
		t, err := h.container.BuildTrigger(def.TriggerType, def, h.container.Redis)
		if err != nil {
			h.container.Components.Logger.Error("failed to build newly created trigger", "trigger_id", def.TriggerID, "error", err)
			return c.JSON(http.StatusCreated, def)
		}
		if t != nil {
			if err := h.container.Registry.Add(def.TriggerID, t); err != nil {
				h.container.Components.Logger.Error("failed to register newly created trigger", "trigger_id", def.TriggerID, "error", err)
			}
		}
	}

	return c.JSON(http.StatusCreated, def)
}

// DeleteTrigger serves DELETE /v1/triggers/:workflow_id/:trigger_id. It
// stops and unregisters the live trigger before deleting its definition.
func (h *TriggerDefinitionHandler) DeleteTrigger(c echo.Context) error {
	triggerID, err := uuid.Parse(c.Param("trigger_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid trigger_id")
	}

	if err := h.container.Registry.Remove(triggerID); err != nil {
		h.container.Components.Logger.Warn("failed to stop trigger before delete", "trigger_id", triggerID, "error", err)
	}

	if err := h.container.WorkflowRepo.DeleteTrigger(c.Request().Context(), triggerID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]string{"trigger_id": triggerID.String(), "status": "deleted"})
}
