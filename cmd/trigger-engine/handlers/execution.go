package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/CurvatureX/trigger-engine/common/bootstrap"
	"github.com/CurvatureX/trigger-engine/engine"
	"github.com/CurvatureX/trigger-engine/repository"
	"github.com/CurvatureX/trigger-engine/state"
)

// ExecutionHandler serves the execution lifecycle surface: the execute
// endpoint the Dispatcher posts to, and the pause/resume/get operator API.
type ExecutionHandler struct {
	components   *bootstrap.Components
	orchestrator *engine.Orchestrator
	executions   repository.ExecutionRepository
	manager      *state.Manager
}

// NewExecutionHandler creates an ExecutionHandler.
func NewExecutionHandler(components *bootstrap.Components, orchestrator *engine.Orchestrator, executions repository.ExecutionRepository, manager *state.Manager) *ExecutionHandler {
	return &ExecutionHandler{components: components, orchestrator: orchestrator, executions: executions, manager: manager}
}

type executeRequestBody struct {
	ExecutionID string                 `json:"execution_id"`
	TriggerID   string                 `json:"trigger_id"`
	TriggerType string                 `json:"trigger_type"`
	TriggerData map[string]interface{} `json:"trigger_data"`
}

// Execute serves POST /v1/workflows/:workflow_id/execute, the endpoint the
// Dispatcher posts every trigger firing to.
func (h *ExecutionHandler) Execute(c echo.Context) error {
	workflowID, err := uuid.Parse(c.Param("workflow_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid workflow_id")
	}

	var body executeRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	executionID, err := uuid.Parse(body.ExecutionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid execution_id")
	}
	triggerID, err := uuid.Parse(body.TriggerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid trigger_id")
	}

	// Acknowledge immediately; the run proceeds in the background so a slow
	// workflow doesn't hold the Dispatcher's HTTP call open.
	go func() {
		ctx := context.WithoutCancel(c.Request().Context())
		req := engine.ExecuteRequest{
			ExecutionID: executionID,
			WorkflowID:  workflowID,
			TriggerID:   triggerID,
			TriggerType: body.TriggerType,
			TriggerData: body.TriggerData,
		}
		if _, err := h.orchestrator.Execute(ctx, req); err != nil {
			h.components.Logger.Error("execution failed", "execution_id", executionID, "error", err)
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]string{
		"execution_id": executionID.String(),
		"status":       "accepted",
	})
}

// GetExecution serves GET /v1/executions/:execution_id.
func (h *ExecutionHandler) GetExecution(c echo.Context) error {
	executionID, err := uuid.Parse(c.Param("execution_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid execution_id")
	}

	exec, err := h.executions.GetByID(c.Request().Context(), executionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "execution not found")
	}

	return c.JSON(http.StatusOK, exec)
}

type resumeRequestBody struct {
	ResumeData map[string]interface{} `json:"resume_data"`
}

// ResumeExecution serves POST /v1/executions/:execution_id/resume.
func (h *ExecutionHandler) ResumeExecution(c echo.Context) error {
	executionID, err := uuid.Parse(c.Param("execution_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid execution_id")
	}

	var body resumeRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.orchestrator.Resume(c.Request().Context(), executionID, state.ResumeHumanResponse, body.ResumeData)
	if err != nil {
		if errors.Is(err, state.ErrConditionsNotMet) {
			return echo.NewHTTPError(http.StatusConflict, "resume conditions not met")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"execution_id": executionID.String(),
		"status":       result.Status,
	})
}

type pauseRequestBody struct {
	NodeID           string                 `json:"node_id"`
	ResumeConditions map[string]interface{} `json:"resume_conditions"`
	TimeoutSeconds   int                    `json:"timeout_seconds"`
}

// PauseExecution serves POST /v1/executions/:execution_id/pause, used by a
// running node (e.g. a human-approval step) to suspend the execution until
// ResumeExecution is called or the pause's timeout elapses.
func (h *ExecutionHandler) PauseExecution(c echo.Context) error {
	executionID, err := uuid.Parse(c.Param("execution_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid execution_id")
	}

	var body pauseRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var timeout *time.Time
	if body.TimeoutSeconds > 0 {
		t := time.Now().UTC().Add(time.Duration(body.TimeoutSeconds) * time.Second)
		timeout = &t
	}

	record, err := h.manager.PauseExecution(c.Request().Context(), executionID, body.NodeID, body.ResumeConditions, timeout)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, record)
}

// CancelExecution serves POST /v1/executions/:execution_id/cancel.
func (h *ExecutionHandler) CancelExecution(c echo.Context) error {
	executionID, err := uuid.Parse(c.Param("execution_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid execution_id")
	}

	if err := h.manager.CancelExecution(c.Request().Context(), executionID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]string{"execution_id": executionID.String(), "status": "cancelled"})
}
