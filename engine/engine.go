package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/executor"
)

// Engine schedules and drives a workflow's nodes to completion through a
// registered Executor, honoring HIL pause requests signaled by a node's
// output.
type Engine struct {
	registry *executor.Registry
	log      *logger.Logger
}

// New creates an Engine backed by the given executor registry.
func New(registry *executor.Registry, log *logger.Logger) *Engine {
	return &Engine{registry: registry, log: log}
}

// PauseRequest is returned by a node's output to signal the HIL pause
// protocol: a node wanting to pause the run embeds a "__pause__" key
// carrying this shape in its returned output.
type PauseRequest struct {
	ResumeConditions map[string]interface{}
	Timeout          *time.Time
}

// Run schedules w's nodes with topoSort and drives each in order,
// stopping at the first pause request or unhandled failure. triggerData is
// made available to every node under input["trigger"]. priorResults seeds
// already-completed node results for a resumed execution (empty for a fresh
// run).
func (e *Engine) Run(ctx context.Context, w *models.Workflow, triggerData map[string]interface{}, priorResults map[string]*NodeResult) (*RunResult, *Trace, error) {
	g, err := buildGraph(w)
	if err != nil {
		return nil, nil, fmt.Errorf("build graph: %w", err)
	}
	order, err := topoSort(g)
	if err != nil {
		e.log.Warn("workflow graph has a cycle, falling back to definition order", "workflow_id", w.WorkflowID, "error", err)
		order = definitionOrder(w)
	}
	parents := g.parents()

	results := make(map[string]*NodeResult, len(order))
	for id, r := range priorResults {
		results[id] = r
	}

	trace := &Trace{}
	nodesByID := make(map[string]models.Node, len(w.Nodes))
	for _, n := range w.Nodes {
		nodesByID[n.ID] = n
	}

	for _, nodeID := range order {
		if existing, done := results[nodeID]; done && existing.Status != NodeStatusPending {
			continue // already ran in a prior pass (resume)
		}

		if anyParentFailedOrSkipped(parents[nodeID], results) {
			results[nodeID] = &NodeResult{NodeID: nodeID, Status: NodeStatusSkipped}
			trace.Order = append(trace.Order, nodeID)
			continue
		}

		node, ok := nodesByID[nodeID]
		if !ok {
			return nil, trace, fmt.Errorf("internal error: scheduled unknown node %q", nodeID)
		}

		if node.Disabled {
			results[nodeID] = &NodeResult{NodeID: nodeID, Status: NodeStatusSkipped}
			trace.Order = append(trace.Order, nodeID)
			continue
		}

		exec, err := e.registry.Lookup(node)
		if err != nil {
			trace.Order = append(trace.Order, nodeID)
			results[nodeID] = &NodeResult{NodeID: nodeID, Status: NodeStatusFailed, Error: err.Error()}
			if failResult, shouldStop := e.handleNodeFailure(node, nodeID, err, results); shouldStop {
				return failResult, trace, nil
			}
			continue
		}

		input := assembleInput(nodeID, parents[nodeID], results, triggerData)

		start := time.Now()
		e.log.Debug("executing node", "node_id", nodeID, "type", node.Type)
		output, runErr := e.executeWithRetry(ctx, w, node, nodeID, exec, input)
		end := time.Now()
		trace.Order = append(trace.Order, nodeID)

		if runErr != nil {
			results[nodeID] = &NodeResult{
				NodeID: nodeID, Status: NodeStatusFailed, Error: runErr.Error(),
				StartedAt: start, EndedAt: end,
			}
			e.log.Error("node execution failed", "node_id", nodeID, "error", runErr)
			if failResult, shouldStop := e.handleNodeFailure(node, nodeID, runErr, results); shouldStop {
				return failResult, trace, nil
			}
			continue
		}

		if pauseOut, ok := outputAsMap(output); ok {
			if raw, has := pauseOut["__pause__"]; has {
				pause, perr := asPauseRequest(raw)
				if perr != nil {
					return nil, trace, fmt.Errorf("node %s: malformed pause request: %w", nodeID, perr)
				}
				results[nodeID] = &NodeResult{
					NodeID: nodeID, Status: NodeStatusCompleted, Output: output,
					StartedAt: start, EndedAt: end,
				}
				return &RunResult{
					Status:      models.ExecutionPaused,
					NodeResults: results,
					PausedAt:    nodeID,
					Pause:       pause,
				}, trace, nil
			}
		}

		results[nodeID] = &NodeResult{
			NodeID: nodeID, Status: NodeStatusCompleted, Output: output,
			StartedAt: start, EndedAt: end,
		}
	}

	return &RunResult{Status: models.ExecutionCompleted, NodeResults: results}, trace, nil
}

// executeWithRetry runs a node's executor once, or, when the node's
// OnError policy is RETRY, up to w's effective max retries with
// exponential backoff between attempts (§4.3 "Failure handling"). The last
// attempt's error is returned if every attempt fails.
func (e *Engine) executeWithRetry(ctx context.Context, w *models.Workflow, node models.Node, nodeID string, exec executor.Executor, input map[string]interface{}) (interface{}, error) {
	output, err := exec.Execute(ctx, node, input)
	if err == nil || node.OnError.Effective() != models.RetryOnError {
		return output, err
	}

	maxRetries := w.EffectiveMaxRetries()
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= maxRetries; attempt++ {
		e.log.Warn("retrying failed node", "node_id", nodeID, "attempt", attempt, "max_retries", maxRetries, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2

		output, err = exec.Execute(ctx, node, input)
		if err == nil {
			return output, nil
		}
	}
	return output, err
}

// handleNodeFailure applies node's OnError policy to a node-execution (or
// executor-lookup) failure already recorded in results. It returns a
// terminal *RunResult and true when the run must stop, or (nil, false) when
// the policy allows the run to continue scheduling remaining nodes.
func (e *Engine) handleNodeFailure(node models.Node, nodeID string, nodeErr error, results map[string]*NodeResult) (*RunResult, bool) {
	switch node.OnError.Effective() {
	case models.ContinueOnError:
		e.log.Warn("node failed, continuing per on_error policy", "node_id", nodeID, "error", nodeErr)
		return nil, false
	default: // STOP_WORKFLOW_ON_ERROR, or RETRY after exhausting its retries
		return &RunResult{
			Status:      models.ExecutionFailed,
			NodeResults: results,
			Error:       nodeErr.Error(),
			FailedNode:  nodeID,
		}, true
	}
}

func outputAsMap(output interface{}) (map[string]interface{}, bool) {
	m, ok := output.(map[string]interface{})
	return m, ok
}

func asPauseRequest(raw interface{}) (*PauseRequest, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("__pause__ must be an object")
	}
	req := &PauseRequest{}
	if rc, ok := m["resume_conditions"].(map[string]interface{}); ok {
		req.ResumeConditions = rc
	}
	if ts, ok := m["timeout"].(time.Time); ok {
		req.Timeout = &ts
	}
	return req, nil
}
