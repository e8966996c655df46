// Package routes registers the trigger-engine binary's Echo route groups
// against handlers built from the service container.
package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/CurvatureX/trigger-engine/cmd/trigger-engine/handlers"
	"github.com/CurvatureX/trigger-engine/cmd/trigger-engine/middleware"
	"github.com/CurvatureX/trigger-engine/container"
	commonmiddleware "github.com/CurvatureX/trigger-engine/common/middleware"
)

// Register wires every route group: webhook/manual trigger intake, GitHub
// App/Slack event delivery, and the execution lifecycle operator API.
func Register(e *echo.Echo, c *container.Container) {
	triggerHandler := handlers.NewTriggerHandler(c.Components, c.Registry)
	integrationHandler := handlers.NewIntegrationHandler(c.Components, c.Registry)
	executionHandler := handlers.NewExecutionHandler(c.Components, c.Orchestrator, c.ExecutionRepo, c.StateManager)
	triggerDefHandler := handlers.NewTriggerDefinitionHandler(c)

	// Generic webhook intake: path is per-trigger, looked up from the
	// registry at request time, so a single catch-all route covers every
	// webhook trigger whose path lies under /webhook/ (the default). A
	// trigger configured with a webhook_path outside /webhook/ is not routed.
	webhooks := e.Group("/webhook")
	webhooks.Use(commonmiddleware.WorkflowRateLimitMiddleware(c.RateLimiter, "webhook"))
	webhooks.Any("/*", triggerHandler.HandleWebhook)

	manual := e.Group("/v1/triggers/manual")
	manual.Use(middleware.ExtractUsername())
	manual.Use(commonmiddleware.WorkflowRateLimitMiddleware(c.RateLimiter, "manual"))
	manual.POST("/:trigger_id", triggerHandler.HandleManualTrigger)

	triggers := e.Group("/v1/triggers")
	triggers.GET("/:workflow_id", triggerDefHandler.ListTriggers)
	triggers.POST("/:workflow_id", triggerDefHandler.CreateTrigger)
	triggers.DELETE("/:workflow_id/:trigger_id", triggerDefHandler.DeleteTrigger)

	github := e.Group("/github")
	github.Use(commonmiddleware.WorkflowRateLimitMiddleware(c.RateLimiter, "github_app"))
	github.POST("/webhook", integrationHandler.HandleGitHubWebhook)

	slack := e.Group("/slack")
	slack.Use(commonmiddleware.WorkflowRateLimitMiddleware(c.RateLimiter, "slack"))
	slack.POST("/events", integrationHandler.HandleSlackEvent)

	workflows := e.Group("/v1/workflows")
	workflows.POST("/:workflow_id/execute", executionHandler.Execute)

	executions := e.Group("/v1/executions")
	executions.GET("/:execution_id", executionHandler.GetExecution)
	executions.POST("/:execution_id/pause", executionHandler.PauseExecution)
	executions.POST("/:execution_id/resume", executionHandler.ResumeExecution)
	executions.POST("/:execution_id/cancel", executionHandler.CancelExecution)
}
