// Package models holds the data-model types shared by the trigger, engine,
// and state-manager packages: workflows, nodes, executions, pause records,
// and trigger definitions.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Workflow is the authored unit the engine executes: a set of nodes and the
// typed connections between them.
type Workflow struct {
	WorkflowID  uuid.UUID              `json:"workflow_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Nodes       []Node                 `json:"nodes"`
	Connections ConnectionsMap         `json:"connections"`
	Active      bool                   `json:"active"`
	Settings    WorkflowSettings       `json:"settings,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// WorkflowSettings carries workflow-scoped execution defaults (§3): an
// overall execution timeout, the retry ceiling nodes with an OnError of
// RETRY fall back on, and workflow-scoped static data. The engine does not
// merge StaticData into node input or pass it to executors.
type WorkflowSettings struct {
	TimeoutSeconds int                    `json:"timeout_seconds,omitempty"`
	MaxRetries     int                    `json:"max_retries,omitempty"`
	StaticData     map[string]interface{} `json:"static_data,omitempty"`
}

// DefaultMaxRetries is used when a workflow's Settings.MaxRetries is unset
// and a node's OnError is RETRY (§4.3).
const DefaultMaxRetries = 3

// EffectiveMaxRetries returns Settings.MaxRetries, falling back to
// DefaultMaxRetries when unset.
func (w *Workflow) EffectiveMaxRetries() int {
	if w.Settings.MaxRetries > 0 {
		return w.Settings.MaxRetries
	}
	return DefaultMaxRetries
}

// NodeByID returns the node with the given ID, or false if not present.
func (w *Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Node is a single step in a workflow graph.
type Node struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Subtype     string                 `json:"subtype,omitempty"`
	Name        string                 `json:"name,omitempty"`
	Config      map[string]interface{} `json:"config,omitempty"`
	Credentials map[string]interface{} `json:"credentials,omitempty"`
	Disabled    bool                   `json:"disabled,omitempty"`
	OnError     OnErrorPolicy          `json:"on_error,omitempty"`
}

// OnErrorPolicy controls what the engine does when a node's executor
// returns an error (§4.3 "Failure handling").
type OnErrorPolicy string

const (
	// StopWorkflowOnError fails the whole execution. It is the default
	// when a node's OnError is empty.
	StopWorkflowOnError OnErrorPolicy = "STOP_WORKFLOW_ON_ERROR"
	// ContinueOnError records the node as failed but lets the engine carry
	// on scheduling the remaining nodes.
	ContinueOnError OnErrorPolicy = "CONTINUE_ON_ERROR"
	// RetryOnError re-executes the node with exponential backoff, up to
	// the workflow's effective max retries, before falling back to
	// StopWorkflowOnError semantics.
	RetryOnError OnErrorPolicy = "RETRY"
)

// Effective returns the policy to apply, defaulting empty to
// StopWorkflowOnError.
func (p OnErrorPolicy) Effective() OnErrorPolicy {
	if p == "" {
		return StopWorkflowOnError
	}
	return p
}

// ConnectionType distinguishes ordinary data-flow edges from memory edges,
// which the graph builder inverts when computing execution order (§4.3).
type ConnectionType string

const (
	ConnectionMain   ConnectionType = "main"
	ConnectionMemory ConnectionType = "memory"
)

// Connection describes one edge from a source node to a target node.
type Connection struct {
	TargetNodeID string         `json:"target_node_id"`
	Type         ConnectionType `json:"connection_type"`
	SourceOutput string         `json:"source_output,omitempty"` // named output port; the engine does not route by it
}

// ConnectionsMap maps a source node ID to its outbound connections.
type ConnectionsMap map[string][]Connection

// TriggerDefinition configures how and when a workflow is fired.
type TriggerDefinition struct {
	TriggerID   uuid.UUID              `json:"trigger_id"`
	WorkflowID  uuid.UUID              `json:"workflow_id"`
	TriggerType string                 `json:"trigger_type"` // manual, webhook, cron, github_app, slack, email
	Config      map[string]interface{} `json:"config"`
	Enabled     bool                   `json:"enabled"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Credential is an opaque, already-decrypted secret blob handed to triggers
// and executors that need outbound auth (webhook signing secrets, GitHub App
// keys, IMAP passwords). Encryption-at-rest is out of scope here (§1); this
// type only carries the shape triggers consume once a secret is resolved.
type Credential struct {
	CredentialID uuid.UUID              `json:"credential_id"`
	Name         string                 `json:"name"`
	Type         string                 `json:"type"`
	Data         map[string]interface{} `json:"data"`
}
