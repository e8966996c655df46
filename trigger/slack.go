package trigger

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/dispatch"
)

// SlackTrigger fires a workflow on Slack events (messages, mentions,
// reactions) routed to it by a shared event router keyed on workspace ID.
// Unlike webhook/cron, a Slack trigger has no single inbound HTTP path of
// its own: ProcessEvent is called by the router for every event delivered
// to the workspace, and the trigger decides whether it matches.
type SlackTrigger struct {
	base

	workspaceID     string
	channelFilter   string
	channelFilterRe *regexp.Regexp
	eventTypes      map[string]bool
	mentionRequired bool
	commandPrefix   string
	userFilter      string
	userFilterRe    *regexp.Regexp
	ignoreBots      bool
	requireThread   bool
}

// NewSlackTrigger creates a Slack trigger from a TriggerDefinition.
func NewSlackTrigger(def *models.TriggerDefinition, dispatcher *dispatch.Dispatcher, log *logger.Logger) *SlackTrigger {
	workspaceID, _ := def.Config["workspace_id"].(string)
	channelFilter, _ := def.Config["channel_filter"].(string)
	userFilter, _ := def.Config["user_filter"].(string)

	eventTypes := map[string]bool{}
	if raw, ok := def.Config["event_types"].([]interface{}); ok && len(raw) > 0 {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				eventTypes[s] = true
			}
		}
	}
	if len(eventTypes) == 0 {
		eventTypes["message"] = true
		eventTypes["app_mention"] = true
	}

	mentionRequired, _ := def.Config["mention_required"].(bool)

	commandPrefix := ""
	if v, ok := def.Config["command_prefix"].(string); ok {
		commandPrefix = v
	}

	ignoreBots := true
	if v, ok := def.Config["ignore_bots"].(bool); ok {
		ignoreBots = v
	}

	requireThread, _ := def.Config["require_thread"].(bool)

	t := &SlackTrigger{
		base:            newBase(def, dispatcher, log),
		workspaceID:     workspaceID,
		channelFilter:   channelFilter,
		eventTypes:      eventTypes,
		mentionRequired: mentionRequired,
		commandPrefix:   commandPrefix,
		userFilter:      userFilter,
		ignoreBots:      ignoreBots,
		requireThread:   requireThread,
	}

	// A filter not shaped like a Slack channel/user ID (C.../U...) is
	// treated as a regex pattern, matching the platform's existing
	// convention of overloading these config fields.
	if channelFilter != "" && !strings.HasPrefix(channelFilter, "C") {
		if re, err := regexp.Compile(channelFilter); err == nil {
			t.channelFilterRe = re
		}
	}
	if userFilter != "" && !strings.HasPrefix(userFilter, "U") {
		if re, err := regexp.Compile(userFilter); err == nil {
			t.userFilterRe = re
		}
	}

	return t
}

// Type implements Trigger.
func (s *SlackTrigger) Type() string { return "slack" }

// WorkflowID implements Trigger.
func (s *SlackTrigger) WorkflowID() uuid.UUID { return s.base.workflowID }

// WorkspaceID returns the Slack workspace this trigger is registered to,
// used by the router to fan events out to the right set of triggers.
func (s *SlackTrigger) WorkspaceID() string { return s.workspaceID }

// Start/Stop are no-ops: registration with the shared event router is
// handled by the trigger registry, not the trigger itself.
func (s *SlackTrigger) Start() error { return nil }
func (s *SlackTrigger) Stop() error  { return nil }

// ProcessEvent evaluates a Slack Events API payload (the event nested
// under "event", with "team_id" at the top level) against this trigger's
// filters, firing the workflow on a match. error is always nil: a
// non-matching event is a legitimate no-op, not a failure; the fire outcome
// is carried in the returned *dispatch.ExecutionResult (nil when nothing
// fired).
func (s *SlackTrigger) ProcessEvent(envelope map[string]interface{}) (*dispatch.ExecutionResult, error) {
	if !s.enabled {
		return nil, nil
	}

	event, _ := envelope["event"].(map[string]interface{})
	if event == nil {
		event = map[string]interface{}{}
	}

	eventType, _ := event["type"].(string)
	if !s.eventTypes[eventType] {
		return nil, nil
	}

	channelID, _ := event["channel"].(string)
	if !s.matchesChannelFilter(channelID) {
		return nil, nil
	}

	userID, _ := event["user"].(string)
	if !s.matchesUserFilter(userID) {
		return nil, nil
	}

	if s.ignoreBots {
		if botID, ok := event["bot_id"]; ok && botID != nil && botID != "" {
			return nil, nil
		}
	}

	if s.mentionRequired && !hasBotMention(event) {
		return nil, nil
	}

	if s.requireThread {
		if ts, ok := event["thread_ts"]; !ok || ts == nil || ts == "" {
			return nil, nil
		}
	}

	if eventType == "message" && s.commandPrefix != "" {
		text, _ := event["text"].(string)
		if !strings.HasPrefix(strings.TrimSpace(text), s.commandPrefix) {
			return nil, nil
		}
	}

	teamID, _ := envelope["team_id"].(string)
	triggerData := map[string]interface{}{
		"trigger_type": "slack",
		"event_type":   eventType,
		"message":      event["text"],
		"user_id":      userID,
		"channel_id":   channelID,
		"team_id":      teamID,
		"timestamp":    event["ts"],
		"thread_ts":    event["thread_ts"],
		"workspace_id": s.workspaceID,
		"event_data":   envelope,
		"triggered_at": time.Now().UTC().Format(time.RFC3339),
		"execution_id": uuid.New().String(),
	}

	return s.fire("slack", triggerData), nil
}

func (s *SlackTrigger) matchesChannelFilter(channelID string) bool {
	if s.channelFilter == "" {
		return true
	}
	if s.channelFilterRe != nil {
		return s.channelFilterRe.MatchString(channelID)
	}
	return channelID == s.channelFilter
}

func (s *SlackTrigger) matchesUserFilter(userID string) bool {
	if s.userFilter == "" {
		return true
	}
	if s.userFilterRe != nil {
		return s.userFilterRe.MatchString(userID)
	}
	return userID == s.userFilter
}

func hasBotMention(event map[string]interface{}) bool {
	if t, _ := event["type"].(string); t == "app_mention" {
		return true
	}
	if text, ok := event["text"].(string); ok && strings.Contains(text, "<@U") {
		return true
	}
	blocks, _ := event["blocks"].([]interface{})
	for _, b := range blocks {
		block, ok := b.(map[string]interface{})
		if !ok {
			continue
		}
		if blockContainsMention(block) {
			return true
		}
	}
	return false
}

func blockContainsMention(block map[string]interface{}) bool {
	if t, _ := block["type"].(string); t != "rich_text" {
		return false
	}
	elements, _ := block["elements"].([]interface{})
	for _, e := range elements {
		el, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		if t, _ := el["type"].(string); t != "rich_text_section" {
			continue
		}
		textElements, _ := el["elements"].([]interface{})
		for _, te := range textElements {
			text, ok := te.(map[string]interface{})
			if !ok {
				continue
			}
			if t, _ := text["type"].(string); t == "user" {
				if uid, ok := text["user_id"]; ok && uid != nil && uid != "" {
					return true
				}
			}
		}
	}
	return false
}
