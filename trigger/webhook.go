package trigger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/dispatch"
)

// WebhookRequest carries the subset of an inbound HTTP request a
// WebhookTrigger needs, decoupled from any particular HTTP framework so
// the trigger package stays free of an echo/net-http dependency.
type WebhookRequest struct {
	Method      string
	Headers     map[string]string
	QueryParams map[string]string
	Body        map[string]interface{}
	RemoteAddr  string
}

// WebhookTrigger fires a workflow when an inbound HTTP request matches its
// configured method allow-list and (optionally) auth requirement.
type WebhookTrigger struct {
	base
	path        string
	methods     map[string]bool
	requireAuth bool
}

// NewWebhookTrigger creates a webhook trigger. config may set "webhook_path"
// (defaults to "/webhook/{workflow_id}"), "methods" (defaults to ["POST"]),
// and "require_auth" (defaults to false).
func NewWebhookTrigger(def *models.TriggerDefinition, dispatcher *dispatch.Dispatcher, log *logger.Logger) *WebhookTrigger {
	b := newBase(def, dispatcher, log)

	path, _ := def.Config["webhook_path"].(string)
	if path == "" {
		path = fmt.Sprintf("/webhook/%s", def.WorkflowID)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	methods := map[string]bool{}
	if raw, ok := def.Config["methods"].([]interface{}); ok && len(raw) > 0 {
		for _, m := range raw {
			if s, ok := m.(string); ok {
				methods[strings.ToUpper(s)] = true
			}
		}
	}
	if len(methods) == 0 {
		methods["POST"] = true
	}

	requireAuth, _ := def.Config["require_auth"].(bool)

	return &WebhookTrigger{
		base:        b,
		path:        path,
		methods:     methods,
		requireAuth: requireAuth,
	}
}

// Type implements Trigger.
func (w *WebhookTrigger) Type() string { return "webhook" }

// WorkflowID implements Trigger.
func (w *WebhookTrigger) WorkflowID() uuid.UUID { return w.base.workflowID }

// Start/Stop are no-ops: the webhook trigger has no background activity,
// it is invoked synchronously by the HTTP layer's intake route.
func (w *WebhookTrigger) Start() error { return nil }
func (w *WebhookTrigger) Stop() error  { return nil }

// Path returns the path this trigger is registered to receive requests on.
func (w *WebhookTrigger) Path() string { return w.path }

// ProcessWebhook validates req against the trigger's method allow-list and
// auth requirement, and on success fires the workflow with trigger_data
// assembled from the request. The first return value is nil when req is
// rejected before any dispatch attempt (bad method, missing auth); the
// error return is reserved for those pre-dispatch rejections, while the
// actual dispatch outcome is carried in the *dispatch.ExecutionResult.
func (w *WebhookTrigger) ProcessWebhook(req WebhookRequest) (*dispatch.ExecutionResult, error) {
	if !w.methods[strings.ToUpper(req.Method)] {
		return nil, fmt.Errorf("method %s not allowed for webhook %s", req.Method, w.path)
	}

	if w.requireAuth && !w.validateAuth(req.Headers) {
		return nil, fmt.Errorf("webhook %s: authentication required", w.path)
	}

	triggerData := map[string]interface{}{
		"trigger_type": "webhook",
		"method":       req.Method,
		"path":         w.path,
		"headers":      req.Headers,
		"query_params": req.QueryParams,
		"body":         req.Body,
		"remote_addr":  req.RemoteAddr,
		"triggered_at": time.Now().UTC().Format(time.RFC3339),
		"execution_id": uuid.New().String(),
		"webhook_path": w.path,
	}
	if ct, ok := req.Headers["Content-Type"]; ok {
		triggerData["content_type"] = ct
	}
	if ua, ok := req.Headers["User-Agent"]; ok {
		triggerData["user_agent"] = ua
	}

	return w.fire("webhook", triggerData), nil
}

// validateAuth checks for a non-empty Authorization: Bearer token or an
// X-API-Key header. It does not verify the token/key value against any
// stored secret, matching the permissive presence-only check the platform
// has always performed at this layer; stricter verification belongs to
// downstream nodes or an API gateway in front of this service.
func (w *WebhookTrigger) validateAuth(headers map[string]string) bool {
	auth := headerLookup(headers, "Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") != "" {
		return true
	}
	if headerLookup(headers, "X-API-Key") != "" {
		return true
	}
	return false
}

func headerLookup(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
