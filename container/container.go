// Package container wires the trigger-engine binary's dependencies once at
// startup (singleton pattern): repositories, the dispatcher, the executor
// registry, the execution engine, the state manager/reaper, and the trigger
// registry preloaded with every enabled trigger definition.
package container

import (
	"context"
	"fmt"
	"os"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/CurvatureX/trigger-engine/common/bootstrap"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/common/ratelimit"
	rediscommon "github.com/CurvatureX/trigger-engine/common/redis"
	"github.com/CurvatureX/trigger-engine/dispatch"
	"github.com/CurvatureX/trigger-engine/engine"
	"github.com/CurvatureX/trigger-engine/executor"
	"github.com/CurvatureX/trigger-engine/repository"
	"github.com/CurvatureX/trigger-engine/state"
	"github.com/CurvatureX/trigger-engine/trigger"
)

// Container holds all initialized services and repositories.
type Container struct {
	Components *bootstrap.Components
	Redis      *rediscommon.Client

	ExecutionRepo repository.ExecutionRepository
	WorkflowRepo  repository.WorkflowRepository

	Dispatcher *dispatch.Dispatcher
	Registry   *trigger.Registry

	ExecutorRegistry *executor.Registry
	Engine           *engine.Engine
	Orchestrator     *engine.Orchestrator

	StateManager *state.Manager
	Reaper       *state.Reaper
	RateLimiter  *ratelimit.RateLimiter
}

// NewContainer initializes all services and repositories once, then
// preloads every enabled cron/github_app/slack/email/webhook/manual trigger
// into the registry and starts it.
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	redisClient, err := createRedisClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	redisWrapped := rediscommon.NewClient(redisClient, components.Logger)

	executionRepo := repository.NewPostgresExecutionRepository(components.DB)
	workflowRepo := repository.NewPostgresWorkflowRepository(components.DB)

	notifier := dispatch.NewNotifier(components.Queue, components.Logger)
	dispatcher := dispatch.NewDispatcher(
		components.Config.Trigger.WorkflowEngineURL,
		components.Config.Trigger.DispatchTimeout,
		notifier,
		components.Logger,
	)

	execRegistry := executor.NewRegistry()
	execRegistry.Register("http_request", "", executor.NewHTTPActionExecutor())
	execRegistry.Register("noop", "", executor.PassthroughExecutor{})

	eng := engine.New(execRegistry, components.Logger)

	stateManager := state.NewManager(executionRepo, components.Logger)
	reaper := state.NewReaper(
		executionRepo,
		stateManager,
		components.Config.Reaper.CheckInterval,
		components.Config.Reaper.ExpiryWarnWindow,
		components.Logger,
	)

	orchestrator := engine.NewOrchestrator(&engine.OrchestratorOpts{
		Workflows:  workflowRepo,
		Executions: executionRepo,
		Manager:    stateManager,
		Engine:     eng,
		Logger:     components.Logger,
	})

	rateLimiter := ratelimit.NewRateLimiter(redisClient, components.Logger)

	triggerRegistry := trigger.NewRegistry(components.Logger)

	c := &Container{
		Components:       components,
		Redis:            redisWrapped,
		ExecutionRepo:    executionRepo,
		WorkflowRepo:     workflowRepo,
		Dispatcher:       dispatcher,
		Registry:         triggerRegistry,
		ExecutorRegistry: execRegistry,
		Engine:           eng,
		Orchestrator:     orchestrator,
		StateManager:     stateManager,
		Reaper:           reaper,
		RateLimiter:      rateLimiter,
	}

	if err := c.loadScheduledTriggers(ctx, redisWrapped); err != nil {
		return nil, fmt.Errorf("failed to load scheduled triggers: %w", err)
	}

	return c, nil
}

// loadScheduledTriggers preloads every enabled trigger definition into the
// registry. Cron/github_app/slack/email triggers also start their background
// activity (ticker, polling loop); webhook/manual triggers just need to be
// reachable by path/ID when a request comes in.
func (c *Container) loadScheduledTriggers(ctx context.Context, redisClient *rediscommon.Client) error {
	for _, triggerType := range []string{"cron", "github_app", "slack", "email", "webhook", "manual"} {
		defs, err := c.WorkflowRepo.ListEnabledTriggersByType(ctx, triggerType)
		if err != nil {
			return fmt.Errorf("list %s triggers: %w", triggerType, err)
		}
		for _, def := range defs {
			t, err := c.BuildTrigger(triggerType, def, redisClient)
			if err != nil {
				c.Components.Logger.Error("failed to build trigger", "trigger_id", def.TriggerID, "type", triggerType, "error", err)
				continue
			}
			if t == nil {
				continue
			}
			if err := c.Registry.Add(def.TriggerID, t); err != nil {
				c.Components.Logger.Error("failed to start trigger", "trigger_id", def.TriggerID, "type", triggerType, "error", err)
			}
		}
	}
	return nil
}

// BuildTrigger constructs (but does not register) the live Trigger for a
// trigger definition, dispatching on its trigger_type. Exported so the
// trigger CRUD API can build and register a trigger the moment it is
// created, without waiting for a service restart.
func (c *Container) BuildTrigger(triggerType string, def *models.TriggerDefinition, redisClient *rediscommon.Client) (trigger.Trigger, error) {
	switch triggerType {
	case "cron":
		return trigger.NewCronTrigger(def, c.Dispatcher, redisClient, c.Components.Logger)
	case "github_app":
		appID, err := strconv.ParseInt(c.Components.Config.GitHub.AppID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
		}
		return trigger.NewGitHubTrigger(def, c.Dispatcher, appID, c.Components.Config.GitHub.PrivateKeyPEM, c.Components.Cache, c.Components.Logger)
	case "slack":
		return trigger.NewSlackTrigger(def, c.Dispatcher, c.Components.Logger), nil
	case "email":
		return trigger.NewEmailTrigger(
			def, c.Dispatcher,
			c.Components.Config.Email.Server,
			c.Components.Config.Email.User,
			c.Components.Config.Email.Password,
			c.Components.Config.Email.CheckInterval,
			c.Components.Logger,
		)
	case "webhook":
		return trigger.NewWebhookTrigger(def, c.Dispatcher, c.Components.Logger), nil
	case "manual":
		return trigger.NewManualTrigger(def, c.Dispatcher, c.Components.Logger), nil
	default:
		return nil, fmt.Errorf("unknown scheduled trigger type %q", triggerType)
	}
}

// createRedisClient creates a go-redis client from environment variables,
// following the same getEnv-with-default idiom the rest of the platform's
// config loading uses.
func createRedisClient() (*goredis.Client, error) {
	host := getEnv("REDIS_HOST", "localhost")
	port := getEnv("REDIS_PORT", "6379")
	password := getEnv("REDIS_PASSWORD", "")

	client := goredis.NewClient(&goredis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})
	return client, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
