// Package executor defines the node executor contract and registry. Actual
// node-type implementations (agent calls, HTTP actions, data transforms) are
// out of scope; this package provides the registry and a couple of minimal
// built-in executors (an HTTP action and a no-op passthrough) so the engine
// has something real to drive in tests.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/CurvatureX/trigger-engine/common/models"
)

// Executor runs a single node given its assembled input, returning the
// node's output or an error.
type Executor interface {
	Execute(ctx context.Context, node models.Node, input map[string]interface{}) (interface{}, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, node models.Node, input map[string]interface{}) (interface{}, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, node models.Node, input map[string]interface{}) (interface{}, error) {
	return f(ctx, node, input)
}

// Registry maps a node's (type, subtype) to the Executor responsible for it.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register associates an Executor with a node type/subtype pair. subtype may
// be empty to match any subtype of that type when no more specific
// registration exists.
func (r *Registry) Register(nodeType, subtype string, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[key(nodeType, subtype)] = exec
}

// Lookup resolves the Executor for a node, preferring an exact
// (type, subtype) match and falling back to a type-only registration.
func (r *Registry) Lookup(node models.Node) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if exec, ok := r.executors[key(node.Type, node.Subtype)]; ok {
		return exec, nil
	}
	if exec, ok := r.executors[key(node.Type, "")]; ok {
		return exec, nil
	}
	return nil, fmt.Errorf("no executor registered for node type %q subtype %q", node.Type, node.Subtype)
}

func key(nodeType, subtype string) string {
	if subtype == "" {
		return nodeType
	}
	return nodeType + "/" + subtype
}
