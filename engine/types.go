// Package engine implements the execution graph engine: it turns a
// workflow's nodes and connections into a deterministic execution order,
// assembles each node's input from its upstream outputs, and drives node
// execution through a registered Executor.
package engine

import (
	"time"

	"github.com/CurvatureX/trigger-engine/common/models"
)

// NodeStatus is the per-node execution outcome within one run of the graph.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "PENDING"
	NodeStatusRunning   NodeStatus = "RUNNING"
	NodeStatusCompleted NodeStatus = "COMPLETED"
	NodeStatusFailed    NodeStatus = "FAILED"
	NodeStatusSkipped   NodeStatus = "SKIPPED"
)

// NodeResult is the outcome of running a single node.
type NodeResult struct {
	NodeID    string
	Status    NodeStatus
	Output    interface{}
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
}

// RunResult is the outcome of driving a workflow's full graph to
// completion, pause, or failure.
type RunResult struct {
	Status      models.ExecutionStatus
	NodeResults map[string]*NodeResult
	PausedAt    string        // node ID, set only when Status == ExecutionPaused
	Pause       *PauseRequest // set only when Status == ExecutionPaused
	Error       string
	FailedNode  string // node ID that forced Status == ExecutionFailed, if any
}

// Trace records the order nodes actually ran in, for diagnostics and tests.
type Trace struct {
	Order []string
}
