package trigger

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/go-github/v60/github"
	"github.com/google/uuid"

	"github.com/CurvatureX/trigger-engine/common/cache"
	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/dispatch"
)

// eventFetchTimeout bounds the best-effort GitHub API calls ProcessEvent
// makes for path filtering and repository-context enrichment, so a slow or
// hanging API call can't stall event processing indefinitely.
const eventFetchTimeout = 10 * time.Second

// EventFilter is the set of optional filters a single GitHub event type can
// be configured with in a trigger's event_config map.
type EventFilter struct {
	Branches      []string
	Actions       []string
	Labels        []string
	Paths         []string
	Authors       []string
	DraftHandling string // "", "ignore", "only"
	States        []string // pull_request_review: review state (approved, changes_requested, commented)
	Workflows     []string // workflow_run/workflow_job: workflow name
	Conclusions   []string // workflow_run/workflow_job: conclusion (success, failure, ...)
	RefTypes      []string // create/delete: ref_type (branch, tag)
}

// GitHubTrigger fires a workflow on repository events delivered through a
// GitHub App webhook, after repository/event-type/author/bot/event-specific
// filtering.
type GitHubTrigger struct {
	base

	installationID int64
	repository     string
	eventConfig    map[string]EventFilter
	authorFilter   *regexp.Regexp
	ignoreBots     bool

	auth *githubAppAuthenticator
}

// NewGitHubTrigger creates a GitHub App trigger. config must contain
// "github_app_installation_id" and "repository" ("owner/name"); appID and
// privateKeyPEM come from service-level GitHub App configuration, not the
// per-trigger config, matching the platform's settings-backed app identity.
// tokenCache backs the installation access token cache shared across every
// GitHubTrigger for the same installation; it may be nil, in which case a
// fresh token is minted on every firing.
func NewGitHubTrigger(def *models.TriggerDefinition, dispatcher *dispatch.Dispatcher, appID int64, privateKeyPEM string, tokenCache cache.Cache, log *logger.Logger) (*GitHubTrigger, error) {
	installationID, _ := def.Config["github_app_installation_id"].(float64)
	repository, _ := def.Config["repository"].(string)
	if installationID == 0 || repository == "" {
		return nil, fmt.Errorf("github trigger %s: github_app_installation_id and repository are required", def.TriggerID)
	}

	eventConfig := parseEventConfig(def.Config["event_config"])

	var authorFilter *regexp.Regexp
	if raw, ok := def.Config["author_filter"].(string); ok && raw != "" {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("github trigger %s: invalid author_filter: %w", def.TriggerID, err)
		}
		authorFilter = re
	}

	ignoreBots := true
	if v, ok := def.Config["ignore_bots"].(bool); ok {
		ignoreBots = v
	}

	return &GitHubTrigger{
		base:            newBase(def, dispatcher, log),
		installationID:  int64(installationID),
		repository:      repository,
		eventConfig:     eventConfig,
		authorFilter:    authorFilter,
		ignoreBots:      ignoreBots,
		auth:            newGitHubAppAuthenticator(appID, int64(installationID), privateKeyPEM, tokenCache),
	}, nil
}

func parseEventConfig(raw interface{}) map[string]EventFilter {
	result := map[string]EventFilter{}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return result
	}
	for eventType, v := range m {
		fm, ok := v.(map[string]interface{})
		if !ok {
			result[eventType] = EventFilter{}
			continue
		}
		result[eventType] = EventFilter{
			Branches:      stringSlice(fm["branches"]),
			Actions:       stringSlice(fm["actions"]),
			Labels:        stringSlice(fm["labels"]),
			Paths:         stringSlice(fm["paths"]),
			Authors:       stringSlice(fm["authors"]),
			DraftHandling: stringOr(fm["draft_handling"]),
			States:        stringSlice(fm["states"]),
			Workflows:     stringSlice(fm["workflows"]),
			Conclusions:   stringSlice(fm["conclusions"]),
			RefTypes:      stringSlice(fm["ref_types"]),
		}
	}
	return result
}

func stringSlice(raw interface{}) []string {
	arr, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringOr(raw interface{}) string {
	s, _ := raw.(string)
	return s
}

// Type implements Trigger.
func (g *GitHubTrigger) Type() string { return "github_app" }

// WorkflowID implements Trigger.
func (g *GitHubTrigger) WorkflowID() uuid.UUID { return g.base.workflowID }

// Start verifies the GitHub App installation token can be minted.
func (g *GitHubTrigger) Start() error {
	if !g.enabled {
		g.log.Info("github trigger disabled, not starting", "workflow_id", g.workflowID)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := g.auth.accessToken(ctx); err != nil {
		return fmt.Errorf("github trigger %s: %w", g.triggerID, err)
	}
	g.log.Info("github trigger started", "workflow_id", g.workflowID, "repository", g.repository)
	return nil
}

// Stop is a no-op; the trigger has no background activity beyond the
// cached installation token, which simply expires unused.
func (g *GitHubTrigger) Stop() error { return nil }

// ProcessEvent evaluates a webhook event against repository, event-type,
// author, bot, and event-specific filters, firing the workflow on a match.
// error is always nil: an event that doesn't match any filter is a
// legitimate no-op, not a failure; the fire outcome itself is carried in
// the returned *dispatch.ExecutionResult (nil when nothing fired).
func (g *GitHubTrigger) ProcessEvent(eventType string, payload map[string]interface{}) (*dispatch.ExecutionResult, error) {
	if !g.enabled {
		return nil, nil
	}

	repo, _ := digString(payload, "repository", "full_name")
	if repo != g.repository {
		return nil, nil
	}

	if len(g.eventConfig) > 0 {
		if _, known := g.eventConfig[eventType]; !known {
			return nil, nil
		}
	}

	if g.ignoreBots {
		senderType, _ := digString(payload, "sender", "type")
		senderLogin, _ := digString(payload, "sender", "login")
		if senderType == "Bot" || strings.Contains(strings.ToLower(senderLogin), "[bot]") {
			return nil, nil
		}
	}

	if g.authorFilter != nil {
		author := eventAuthor(eventType, payload)
		if author != "" && !g.authorFilter.MatchString(author) {
			return nil, nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventFetchTimeout)
	defer cancel()

	if !g.matchesEventFilter(ctx, eventType, payload) {
		return nil, nil
	}

	triggerData := map[string]interface{}{
		"trigger_type":    "github_app",
		"event_type":      eventType,
		"action":          payload["action"],
		"repository":      payload["repository"],
		"sender":          payload["sender"],
		"payload":         payload,
		"installation_id": g.installationID,
		"triggered_at":    time.Now().UTC().Format(time.RFC3339),
		"execution_id":    uuid.New().String(),
	}

	switch eventType {
	case "pull_request":
		if prContext := g.buildPRContext(ctx, payload); prContext != nil {
			triggerData["pr_context"] = prContext
		}
	case "push":
		if commitContexts := g.buildCommitContexts(ctx, payload); len(commitContexts) > 0 {
			triggerData["commit_contexts"] = commitContexts
		}
	}

	return g.fire("github_app", triggerData), nil
}

func (g *GitHubTrigger) matchesEventFilter(ctx context.Context, eventType string, payload map[string]interface{}) bool {
	filter, ok := g.eventConfig[eventType]
	if !ok {
		return true
	}

	if len(filter.Branches) > 0 && (eventType == "push" || eventType == "pull_request") {
		branch := eventBranch(eventType, payload)
		if branch != "" && !containsString(filter.Branches, branch) {
			return false
		}
	}

	if len(filter.Actions) > 0 {
		action, _ := payload["action"].(string)
		if !containsString(filter.Actions, action) {
			return false
		}
	}

	if len(filter.Labels) > 0 && (eventType == "issues" || eventType == "pull_request") {
		labels := eventLabels(eventType, payload)
		if !anyLabelMatches(labels, filter.Labels) {
			return false
		}
	}

	if filter.DraftHandling != "" && eventType == "pull_request" {
		isDraft, _ := digBool(payload, "pull_request", "draft")
		if filter.DraftHandling == "ignore" && isDraft {
			return false
		}
		if filter.DraftHandling == "only" && !isDraft {
			return false
		}
	}

	if len(filter.Paths) > 0 && (eventType == "push" || eventType == "pull_request") {
		files := g.changedFiles(ctx, eventType, payload)
		if !filesMatchPatterns(files, filter.Paths) {
			return false
		}
	}

	if len(filter.Authors) > 0 {
		author := eventAuthor(eventType, payload)
		if author != "" && !containsString(filter.Authors, author) {
			return false
		}
	}

	if len(filter.States) > 0 && eventType == "pull_request_review" {
		state, _ := digString(payload, "review", "state")
		if !containsString(filter.States, state) {
			return false
		}
	}

	if (len(filter.Workflows) > 0 || len(filter.Conclusions) > 0) && (eventType == "workflow_run" || eventType == "workflow_job") {
		name, conclusion := workflowRunInfo(eventType, payload)
		if len(filter.Workflows) > 0 && !containsString(filter.Workflows, name) {
			return false
		}
		if len(filter.Conclusions) > 0 && !containsString(filter.Conclusions, conclusion) {
			return false
		}
	}

	if len(filter.RefTypes) > 0 && (eventType == "create" || eventType == "delete") {
		refType, _ := payload["ref_type"].(string)
		if !containsString(filter.RefTypes, refType) {
			return false
		}
	}

	return true
}

// workflowRunInfo extracts the workflow name and conclusion from a
// workflow_run or workflow_job event payload, the two shapes §4.1.4's
// workflows/conclusions filters apply to.
func workflowRunInfo(eventType string, payload map[string]interface{}) (name, conclusion string) {
	switch eventType {
	case "workflow_run":
		name, _ = digString(payload, "workflow_run", "name")
		conclusion, _ = digString(payload, "workflow_run", "conclusion")
	case "workflow_job":
		name, _ = digString(payload, "workflow_job", "workflow_name")
		conclusion, _ = digString(payload, "workflow_job", "conclusion")
	}
	return name, conclusion
}

func eventAuthor(eventType string, payload map[string]interface{}) string {
	switch eventType {
	case "push":
		commits, _ := payload["commits"].([]interface{})
		if len(commits) == 0 {
			return ""
		}
		c, ok := commits[0].(map[string]interface{})
		if !ok {
			return ""
		}
		author, ok := c["author"].(map[string]interface{})
		if !ok {
			return ""
		}
		name, _ := author["name"].(string)
		return name
	case "pull_request", "issues":
		login, _ := digString(payload, eventType, "user", "login")
		return login
	default:
		login, _ := digString(payload, "sender", "login")
		return login
	}
}

func eventBranch(eventType string, payload map[string]interface{}) string {
	switch eventType {
	case "push":
		ref, _ := payload["ref"].(string)
		if strings.HasPrefix(ref, "refs/heads/") {
			return strings.TrimPrefix(ref, "refs/heads/")
		}
		return ""
	case "pull_request":
		branch, _ := digString(payload, "pull_request", "base", "ref")
		return branch
	}
	return ""
}

func eventLabels(eventType string, payload map[string]interface{}) []string {
	var container map[string]interface{}
	switch eventType {
	case "issues":
		container, _ = payload["issue"].(map[string]interface{})
	case "pull_request":
		container, _ = payload["pull_request"].(map[string]interface{})
	}
	if container == nil {
		return nil
	}
	raw, _ := container["labels"].([]interface{})
	labels := make([]string, 0, len(raw))
	for _, l := range raw {
		if lm, ok := l.(map[string]interface{}); ok {
			if name, ok := lm["name"].(string); ok {
				labels = append(labels, name)
			}
		}
	}
	return labels
}

// changedFiles returns the set of paths touched by the event. For push
// events this is derived straight from the payload's per-commit
// added/modified/removed lists. For pull_request events it requires a
// GitHub API round-trip (the webhook payload carries no file list), fetched
// best-effort: an API failure yields no files rather than failing the event.
func (g *GitHubTrigger) changedFiles(ctx context.Context, eventType string, payload map[string]interface{}) []string {
	if eventType != "push" {
		return g.changedFilesFromAPI(ctx, eventType, payload)
	}
	seen := map[string]bool{}
	commits, _ := payload["commits"].([]interface{})
	for _, c := range commits {
		cm, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		for _, field := range []string{"added", "modified", "removed"} {
			if arr, ok := cm[field].([]interface{}); ok {
				for _, f := range arr {
					if s, ok := f.(string); ok {
						seen[s] = true
					}
				}
			}
		}
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	return files
}

// changedFilesFromAPI lists files changed by a pull_request event via the
// GitHub PR-files API. Only pull_request events carry enough information
// (a PR number) to identify which PR's files to list.
func (g *GitHubTrigger) changedFilesFromAPI(ctx context.Context, eventType string, payload map[string]interface{}) []string {
	if eventType != "pull_request" {
		return nil
	}
	number := prNumber(payload)
	if number == 0 {
		return nil
	}

	owner, name, ok := splitRepository(g.repository)
	if !ok {
		return nil
	}

	client, err := g.auth.authenticatedClient(ctx)
	if err != nil {
		g.log.Warn("github changed-files fetch: auth failed", "workflow_id", g.workflowID, "error", err)
		return nil
	}

	var files []string
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := client.PullRequests.ListFiles(ctx, owner, name, number, opts)
		if err != nil {
			g.log.Warn("github changed-files fetch failed", "workflow_id", g.workflowID, "pr", number, "error", err)
			return files
		}
		for _, f := range page {
			files = append(files, f.GetFilename())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return files
}

// splitRepository splits a "owner/name" repository slug into its parts.
func splitRepository(repository string) (owner, name string, ok bool) {
	parts := strings.SplitN(repository, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func prNumber(payload map[string]interface{}) int {
	n, ok := digFloat(payload, "pull_request", "number")
	if !ok {
		n, ok = digFloat(payload, "number")
		if !ok {
			return 0
		}
	}
	return int(n)
}

func digFloat(m map[string]interface{}, path ...string) (float64, bool) {
	cur := interface{}(m)
	for _, p := range path {
		asMap, ok := cur.(map[string]interface{})
		if !ok {
			return 0, false
		}
		cur, ok = asMap[p]
		if !ok {
			return 0, false
		}
	}
	f, ok := cur.(float64)
	return f, ok
}

// buildPRContext enriches a pull_request event with PR details, the full
// changed-file list, and the unified diff. Best-effort: any fetch failure
// is logged and the context built from whatever succeeded, never an error
// that would block dispatch.
func (g *GitHubTrigger) buildPRContext(ctx context.Context, payload map[string]interface{}) map[string]interface{} {
	number := prNumber(payload)
	if number == 0 {
		return nil
	}
	owner, name, ok := splitRepository(g.repository)
	if !ok {
		return nil
	}

	client, err := g.auth.authenticatedClient(ctx)
	if err != nil {
		g.log.Warn("github pr-context: auth failed", "workflow_id", g.workflowID, "error", err)
		return nil
	}

	prCtx := map[string]interface{}{
		"number": number,
	}

	pr, _, err := client.PullRequests.Get(ctx, owner, name, number)
	if err != nil {
		g.log.Warn("github pr-context: pr fetch failed", "workflow_id", g.workflowID, "pr", number, "error", err)
	} else {
		prCtx["title"] = pr.GetTitle()
		prCtx["body"] = pr.GetBody()
		prCtx["base_branch"] = pr.GetBase().GetRef()
		prCtx["head_branch"] = pr.GetHead().GetRef()
		prCtx["mergeable"] = pr.GetMergeable()
	}

	if files := g.changedFilesFromAPI(ctx, "pull_request", payload); files != nil {
		prCtx["changed_files"] = files
	}

	diff, _, err := client.PullRequests.GetRaw(ctx, owner, name, number, github.RawOptions{Type: github.Diff})
	if err != nil {
		g.log.Warn("github pr-context: diff fetch failed", "workflow_id", g.workflowID, "pr", number, "error", err)
	} else {
		prCtx["diff"] = diff
	}

	return prCtx
}

// buildCommitContexts enriches a push event with per-commit detail (author,
// stats, files) fetched from the GitHub API. Best-effort per commit: a
// failure on one commit doesn't drop the others.
func (g *GitHubTrigger) buildCommitContexts(ctx context.Context, payload map[string]interface{}) []map[string]interface{} {
	commits, _ := payload["commits"].([]interface{})
	if len(commits) == 0 {
		return nil
	}
	owner, name, ok := splitRepository(g.repository)
	if !ok {
		return nil
	}

	client, err := g.auth.authenticatedClient(ctx)
	if err != nil {
		g.log.Warn("github commit-contexts: auth failed", "workflow_id", g.workflowID, "error", err)
		return nil
	}

	contexts := make([]map[string]interface{}, 0, len(commits))
	for _, c := range commits {
		cm, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		sha, _ := cm["id"].(string)
		message, _ := cm["message"].(string)
		if sha == "" {
			continue
		}
		entry := map[string]interface{}{
			"sha":     sha,
			"message": message,
		}

		commit, _, err := client.Repositories.GetCommit(ctx, owner, name, sha, nil)
		if err != nil {
			g.log.Warn("github commit-contexts: fetch failed", "workflow_id", g.workflowID, "sha", sha, "error", err)
			contexts = append(contexts, entry)
			continue
		}
		entry["author"] = commit.GetCommit().GetAuthor().GetName()
		if stats := commit.GetStats(); stats != nil {
			entry["additions"] = stats.GetAdditions()
			entry["deletions"] = stats.GetDeletions()
		}
		files := make([]string, 0, len(commit.Files))
		for _, f := range commit.Files {
			files = append(files, f.GetFilename())
		}
		entry["files"] = files

		contexts = append(contexts, entry)
	}
	return contexts
}

func filesMatchPatterns(files []string, patterns []string) bool {
	for _, f := range files {
		for _, p := range patterns {
			if ok, _ := filepath.Match(p, f); ok {
				return true
			}
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func anyLabelMatches(labels []string, filter []string) bool {
	for _, f := range filter {
		if containsString(labels, f) {
			return true
		}
	}
	return false
}

func digString(m map[string]interface{}, path ...string) (string, bool) {
	cur := interface{}(m)
	for _, p := range path {
		asMap, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		cur, ok = asMap[p]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}

func digBool(m map[string]interface{}, path ...string) (bool, bool) {
	cur := interface{}(m)
	for _, p := range path {
		asMap, ok := cur.(map[string]interface{})
		if !ok {
			return false, false
		}
		cur, ok = asMap[p]
		if !ok {
			return false, false
		}
	}
	b, ok := cur.(bool)
	return b, ok
}
