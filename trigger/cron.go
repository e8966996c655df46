package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/common/redis"
	"github.com/CurvatureX/trigger-engine/dispatch"
)

// lockTTL bounds how long a cron single-flight lock is held; it must exceed
// the slowest expected dispatch round-trip so a legitimately-running fire
// doesn't get stepped on by the next tick's lock attempt.
const lockTTL = 25 * time.Second

// CronTrigger fires a workflow on a cron schedule, jittered per workflow ID
// and single-flighted across replicas through a distributed lock so the
// same scheduled tick never dispatches the workflow twice.
type CronTrigger struct {
	base
	expression string
	redis      *redis.Client
	cron       *cron.Cron
	entryID    cron.EntryID
}

// NewCronTrigger creates a cron trigger from a TriggerDefinition whose
// config must contain "cron_expression" (5- or 6-field, robfig/cron/v3
// syntax; standard 5-field expressions are accepted via
// cron.WithSeconds()-less parsing, matching the platform's existing
// 5-or-6-field cron_trigger.py acceptance).
func NewCronTrigger(def *models.TriggerDefinition, dispatcher *dispatch.Dispatcher, redisClient *redis.Client, log *logger.Logger) (*CronTrigger, error) {
	expr, _ := def.Config["cron_expression"].(string)
	if expr == "" {
		return nil, fmt.Errorf("cron trigger %s: cron_expression is required", def.TriggerID)
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return nil, fmt.Errorf("cron trigger %s: invalid cron_expression %q: %w", def.TriggerID, expr, err)
	}

	return &CronTrigger{
		base:       newBase(def, dispatcher, log),
		expression: expr,
		redis:      redisClient,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.SkipIfStillRunning(cronLogAdapter{log})),
		),
	}, nil
}

// cronLogAdapter adapts the platform's structured *logger.Logger to
// robfig/cron/v3's cron.Logger interface, which SkipIfStillRunning requires
// to report a skipped overlapping run.
type cronLogAdapter struct {
	log *logger.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.log.Info(msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.log.Error(msg, append(keysAndValues, "error", err)...)
}

// Type implements Trigger.
func (c *CronTrigger) Type() string { return "cron" }

// WorkflowID implements Trigger.
func (c *CronTrigger) WorkflowID() uuid.UUID { return c.base.workflowID }

// Start schedules the cron job. Disabled triggers are scheduled inert (the
// job registers but fire() is a no-op per tick) so re-enabling a trigger
// later doesn't require restarting the service.
func (c *CronTrigger) Start() error {
	_, err := c.cron.AddFunc(c.expression, c.tick)
	if err != nil {
		return fmt.Errorf("cron trigger %s: schedule: %w", c.triggerID, err)
	}
	c.cron.Start()
	c.log.Info("cron trigger started", "workflow_id", c.workflowID, "expression", c.expression)
	return nil
}

// Stop halts the scheduler and waits for an in-flight tick to finish.
func (c *CronTrigger) Stop() error {
	ctx := c.cron.Stop()
	<-ctx.Done()
	c.log.Info("cron trigger stopped", "workflow_id", c.workflowID)
	return nil
}

// tick is the function the scheduler calls on each cron occurrence: it
// sleeps for the per-workflow jitter, then attempts the single-flight lock
// before dispatching.
func (c *CronTrigger) tick() {
	delay := jitter(c.workflowID)
	time.Sleep(delay)

	if c.redis == nil {
		c.fireCron()
		return
	}

	ctx := context.Background()
	lockKey := fmt.Sprintf("workflow_%s", c.workflowID)
	token, acquired, err := c.redis.Lock(ctx, lockKey, lockTTL)
	if err != nil {
		c.log.Error("cron lock acquisition failed, executing without lock", "workflow_id", c.workflowID, "error", err)
		c.fireCron()
		return
	}
	if !acquired {
		c.log.Info("cron lock held by another instance, skipping tick", "workflow_id", c.workflowID)
		return
	}
	defer c.redis.Unlock(ctx, lockKey, token)

	c.fireCron()
}

func (c *CronTrigger) fireCron() *dispatch.ExecutionResult {
	triggerData := map[string]interface{}{
		"trigger_type":    "cron",
		"cron_expression": c.expression,
		"scheduled_time":  time.Now().UTC().Format(time.RFC3339),
	}
	return c.fire("cron", triggerData)
}
