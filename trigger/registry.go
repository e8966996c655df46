package trigger

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/CurvatureX/trigger-engine/common/logger"
)

// Registry holds the live Trigger instance for every configured
// TriggerDefinition and manages their start/stop lifecycle.
type Registry struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]Trigger
	byWorkflow map[uuid.UUID][]uuid.UUID
	log      *logger.Logger
}

// NewRegistry creates an empty trigger registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		byID:       map[uuid.UUID]Trigger{},
		byWorkflow: map[uuid.UUID][]uuid.UUID{},
		log:        log,
	}
}

// Add starts t and registers it under triggerID/workflowID. If a trigger
// is already registered under triggerID it is stopped and replaced.
func (r *Registry) Add(triggerID uuid.UUID, t Trigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[triggerID]; ok {
		if err := existing.Stop(); err != nil {
			r.log.Warn("failed to stop replaced trigger", "trigger_id", triggerID, "error", err)
		}
	}

	if err := t.Start(); err != nil {
		return fmt.Errorf("start trigger %s: %w", triggerID, err)
	}

	r.byID[triggerID] = t
	r.byWorkflow[t.WorkflowID()] = append(r.byWorkflow[t.WorkflowID()], triggerID)
	r.log.Info("trigger registered", "trigger_id", triggerID, "type", t.Type(), "workflow_id", t.WorkflowID())
	return nil
}

// Remove stops and unregisters the trigger for triggerID, if present.
func (r *Registry) Remove(triggerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[triggerID]
	if !ok {
		return nil
	}
	delete(r.byID, triggerID)

	workflowID := t.WorkflowID()
	ids := r.byWorkflow[workflowID]
	for i, id := range ids {
		if id == triggerID {
			r.byWorkflow[workflowID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	return t.Stop()
}

// Get returns the trigger registered for triggerID, if any.
func (r *Registry) Get(triggerID uuid.UUID) (Trigger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[triggerID]
	return t, ok
}

// ForWorkflow returns every trigger registered for workflowID.
func (r *Registry) ForWorkflow(workflowID uuid.UUID) []Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byWorkflow[workflowID]
	triggers := make([]Trigger, 0, len(ids))
	for _, id := range ids {
		if t, ok := r.byID[id]; ok {
			triggers = append(triggers, t)
		}
	}
	return triggers
}

// SlackTriggers returns every registered Slack trigger for workspaceID,
// used by the Slack event router to fan an incoming event out to every
// trigger interested in that workspace.
func (r *Registry) SlackTriggers(workspaceID string) []*SlackTrigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []*SlackTrigger
	for _, t := range r.byID {
		st, ok := t.(*SlackTrigger)
		if ok && st.WorkspaceID() == workspaceID {
			matches = append(matches, st)
		}
	}
	return matches
}

// GitHubTriggers returns every registered GitHub trigger for repository,
// used by the webhook intake route to fan an event out across triggers.
func (r *Registry) GitHubTriggers(repository string) []*GitHubTrigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []*GitHubTrigger
	for _, t := range r.byID {
		gt, ok := t.(*GitHubTrigger)
		if ok && gt.repository == repository {
			matches = append(matches, gt)
		}
	}
	return matches
}

// WebhookTrigger returns the webhook trigger registered at path, if any.
func (r *Registry) WebhookTrigger(path string) (*WebhookTrigger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.byID {
		wt, ok := t.(*WebhookTrigger)
		if ok && wt.Path() == path {
			return wt, true
		}
	}
	return nil, false
}

// StopAll stops every registered trigger, used on service shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.byID {
		if err := t.Stop(); err != nil {
			r.log.Warn("failed to stop trigger during shutdown", "trigger_id", id, "error", err)
		}
	}
}
