package models

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the lifecycle state of a workflow execution (§3, §4.5).
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionPaused    ExecutionStatus = "PAUSED"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// IsTerminal reports whether status is one the state manager never
// transitions out of.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// validTransitions enumerates the state machine in §3/§4.5: keys are the
// "from" status, values are the allowed "to" statuses.
var validTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionPending: {ExecutionRunning, ExecutionCancelled},
	ExecutionRunning: {ExecutionPaused, ExecutionCompleted, ExecutionFailed, ExecutionCancelled},
	ExecutionPaused:  {ExecutionRunning, ExecutionCancelled, ExecutionFailed},
}

// CanTransition reports whether moving from s to next is a legal state
// transition.
func (s ExecutionStatus) CanTransition(next ExecutionStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Execution is one run of a workflow from trigger to terminal status.
type Execution struct {
	ExecutionID   uuid.UUID              `json:"execution_id"`
	WorkflowID    uuid.UUID              `json:"workflow_id"`
	TriggerID     uuid.UUID              `json:"trigger_id"`
	Status        ExecutionStatus        `json:"status"`
	TriggerData   map[string]interface{} `json:"trigger_data,omitempty"`
	NodeOutputs   map[string]interface{} `json:"node_outputs,omitempty"`
	Error         string                 `json:"error,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	LastHeartbeat time.Time              `json:"last_heartbeat"`
}

// PauseRecord captures a human-in-the-loop pause: the execution is stopped
// at PausedAtNode waiting for ResumeConditions to be satisfied or Timeout to
// elapse (§4.5).
type PauseRecord struct {
	PauseID         uuid.UUID              `json:"pause_id"`
	ExecutionID     uuid.UUID              `json:"execution_id"`
	PausedAtNode    string                 `json:"paused_at_node"`
	ResumeConditions map[string]interface{} `json:"resume_conditions"`
	Timeout         *time.Time             `json:"timeout,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	ResolvedAt      *time.Time             `json:"resolved_at,omitempty"`
}

// Active reports whether the pause is still waiting for resolution.
func (p *PauseRecord) Active() bool {
	return p.ResolvedAt == nil
}

// Expired reports whether the pause's timeout has elapsed as of now.
func (p *PauseRecord) Expired(now time.Time) bool {
	return p.Timeout != nil && p.Active() && now.After(*p.Timeout)
}
