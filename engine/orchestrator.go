package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/repository"
	"github.com/CurvatureX/trigger-engine/state"
)

// Orchestrator drives one workflow execution from PENDING through to a
// terminal or paused status: create the execution row, run the graph, and
// persist whatever the run produced through the state Manager.
type Orchestrator struct {
	workflows  repository.WorkflowRepository
	executions repository.ExecutionRepository
	manager    *state.Manager
	engine     *Engine
	log        *logger.Logger
}

// OrchestratorOpts bundles Orchestrator's dependencies (options-struct
// construction mirrors the platform's other multi-dependency services).
type OrchestratorOpts struct {
	Workflows  repository.WorkflowRepository
	Executions repository.ExecutionRepository
	Manager    *state.Manager
	Engine     *Engine
	Logger     *logger.Logger
}

// NewOrchestrator creates an Orchestrator from its dependencies.
func NewOrchestrator(opts *OrchestratorOpts) *Orchestrator {
	return &Orchestrator{
		workflows:  opts.Workflows,
		executions: opts.Executions,
		manager:    opts.Manager,
		engine:     opts.Engine,
		log:        opts.Logger,
	}
}

// ExecuteRequest is the execute-endpoint's request body, matching the
// Dispatcher's executionPayload contract.
type ExecuteRequest struct {
	ExecutionID uuid.UUID
	WorkflowID  uuid.UUID
	TriggerID   uuid.UUID
	TriggerType string
	TriggerData map[string]interface{}
}

// Execute runs req's workflow to completion or its first pause point,
// persisting the execution's lifecycle through state.Manager as it goes.
func (o *Orchestrator) Execute(ctx context.Context, req ExecuteRequest) (*RunResult, error) {
	workflow, err := o.workflows.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", req.WorkflowID, err)
	}

	now := time.Now().UTC()
	exec := &models.Execution{
		ExecutionID:   req.ExecutionID,
		WorkflowID:    req.WorkflowID,
		TriggerID:     req.TriggerID,
		Status:        models.ExecutionPending,
		TriggerData:   req.TriggerData,
		StartedAt:     now,
		LastHeartbeat: now,
	}
	if err := o.executions.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution record: %w", err)
	}

	if err := o.manager.StartExecution(ctx, req.ExecutionID); err != nil {
		return nil, fmt.Errorf("start execution: %w", err)
	}

	result, _, err := o.engine.Run(ctx, workflow, req.TriggerData, nil)
	if err != nil {
		o.log.Error("engine run failed", "execution_id", req.ExecutionID, "error", err)
		_ = o.manager.FailExecution(ctx, req.ExecutionID, err.Error())
		return nil, err
	}

	switch result.Status {
	case models.ExecutionCompleted:
		if err := o.manager.CompleteExecution(ctx, req.ExecutionID, nodeOutputsOf(result)); err != nil {
			return nil, fmt.Errorf("complete execution: %w", err)
		}
	case models.ExecutionFailed:
		if err := o.manager.FailExecution(ctx, req.ExecutionID, result.Error); err != nil {
			return nil, fmt.Errorf("fail execution: %w", err)
		}
	case models.ExecutionPaused:
		if err := o.executions.UpdateNodeOutputs(ctx, req.ExecutionID, nodeOutputsOf(result)); err != nil {
			return nil, fmt.Errorf("persist paused node outputs: %w", err)
		}
		var timeout *time.Time
		if result.Pause != nil {
			timeout = result.Pause.Timeout
		}
		var resumeConditions map[string]interface{}
		if result.Pause != nil {
			resumeConditions = result.Pause.ResumeConditions
		}
		if _, err := o.manager.PauseExecution(ctx, req.ExecutionID, result.PausedAt, resumeConditions, timeout); err != nil {
			return nil, fmt.Errorf("pause execution: %w", err)
		}
	}

	o.log.Info("execution finished", "execution_id", req.ExecutionID, "status", result.Status)
	return result, nil
}

// Resume continues a paused execution once its conditions are satisfied:
// it resolves the pause through state.Manager, then re-runs the graph with
// the already-completed node results seeded so only the remaining nodes
// execute.
func (o *Orchestrator) Resume(ctx context.Context, executionID uuid.UUID, reason state.ResumeReason, resumeData map[string]interface{}) (*RunResult, error) {
	exec, err := o.executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load execution %s: %w", executionID, err)
	}
	if _, err := o.manager.ResumeExecution(ctx, executionID, reason, resumeData); err != nil {
		return nil, err
	}

	workflow, err := o.workflows.GetWorkflow(ctx, exec.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", exec.WorkflowID, err)
	}

	priorResults := priorResultsFrom(exec.NodeOutputs)
	result, _, err := o.engine.Run(ctx, workflow, exec.TriggerData, priorResults)
	if err != nil {
		_ = o.manager.FailExecution(ctx, executionID, err.Error())
		return nil, err
	}

	switch result.Status {
	case models.ExecutionCompleted:
		if err := o.manager.CompleteExecution(ctx, executionID, nodeOutputsOf(result)); err != nil {
			return nil, fmt.Errorf("complete execution: %w", err)
		}
	case models.ExecutionFailed:
		if err := o.manager.FailExecution(ctx, executionID, result.Error); err != nil {
			return nil, fmt.Errorf("fail execution: %w", err)
		}
	case models.ExecutionPaused:
		if err := o.executions.UpdateNodeOutputs(ctx, executionID, nodeOutputsOf(result)); err != nil {
			return nil, fmt.Errorf("persist paused node outputs: %w", err)
		}
		var timeout *time.Time
		var resumeConditions map[string]interface{}
		if result.Pause != nil {
			timeout = result.Pause.Timeout
			resumeConditions = result.Pause.ResumeConditions
		}
		if _, err := o.manager.PauseExecution(ctx, executionID, result.PausedAt, resumeConditions, timeout); err != nil {
			return nil, fmt.Errorf("pause execution: %w", err)
		}
	}

	return result, nil
}

func nodeOutputsOf(result *RunResult) map[string]interface{} {
	out := make(map[string]interface{}, len(result.NodeResults))
	for id, r := range result.NodeResults {
		out[id] = r.Output
	}
	return out
}

// priorResultsFrom rebuilds a resume's seed NodeResult set from the
// persisted node_outputs column: every key present is treated as already
// completed, since the engine only persists outputs for nodes that ran.
func priorResultsFrom(nodeOutputs map[string]interface{}) map[string]*NodeResult {
	if len(nodeOutputs) == 0 {
		return nil
	}
	out := make(map[string]*NodeResult, len(nodeOutputs))
	for id, output := range nodeOutputs {
		out[id] = &NodeResult{NodeID: id, Status: NodeStatusCompleted, Output: output}
	}
	return out
}
