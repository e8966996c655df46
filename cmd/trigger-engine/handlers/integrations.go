package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/slack-go/slack"

	"github.com/CurvatureX/trigger-engine/common/bootstrap"
	"github.com/CurvatureX/trigger-engine/trigger"
)

// IntegrationHandler serves the GitHub App and Slack event-delivery
// webhooks: each looks up every trigger configured for the event's
// repository/workspace and fans the event out to each one's ProcessEvent.
type IntegrationHandler struct {
	components *bootstrap.Components
	registry   *trigger.Registry
}

// NewIntegrationHandler creates an IntegrationHandler backed by registry.
func NewIntegrationHandler(components *bootstrap.Components, registry *trigger.Registry) *IntegrationHandler {
	return &IntegrationHandler{components: components, registry: registry}
}

// HandleGitHubWebhook serves POST /github/webhook. GitHub identifies the
// event type via the X-GitHub-Event header; the payload carries the
// repository the event concerns. The request body is HMAC-SHA256 verified
// against X-Hub-Signature-256 before it is trusted.
func (h *IntegrationHandler) HandleGitHubWebhook(c echo.Context) error {
	eventType := c.Request().Header.Get("X-GitHub-Event")
	if eventType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing X-GitHub-Event header")
	}

	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	if secret := h.components.Config.GitHub.WebhookSecret; secret != "" {
		if !verifyGitHubSignature(secret, raw, c.Request().Header.Get("X-Hub-Signature-256")) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook signature")
		}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}

	repository, _ := payload["repository"].(map[string]interface{})
	fullName, _ := repository["full_name"].(string)
	if fullName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payload missing repository.full_name")
	}

	matched := h.registry.GitHubTriggers(fullName)
	for _, gt := range matched {
		if _, err := gt.ProcessEvent(eventType, payload); err != nil {
			h.components.Logger.Warn("github event processing failed", "repository", fullName, "event", eventType, "error", err)
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"processed": len(matched)})
}

// verifyGitHubSignature checks the sha256= HMAC GitHub sends in
// X-Hub-Signature-256 against the raw request body, keyed on the app-level
// webhook secret (Config.GitHub.WebhookSecret).
func verifyGitHubSignature(secret string, body []byte, signatureHeader string) bool {
	const prefix = "sha256="
	if len(signatureHeader) <= len(prefix) || signatureHeader[:len(prefix)] != prefix {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signatureHeader[len(prefix):])
	if err != nil {
		return false
	}

	return hmac.Equal(expected, got)
}

// HandleSlackEvent serves POST /slack/events. Slack's URL verification
// handshake (event_callback vs. url_verification) is answered inline; the
// request is signing-secret verified first via slack-go's SecretsVerifier,
// and actual events are fanned out to every trigger configured for the
// event's workspace (team_id).
func (h *IntegrationHandler) HandleSlackEvent(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	if secret := h.components.Config.Slack.SigningSecret; secret != "" {
		sv, err := slack.NewSecretsVerifier(c.Request().Header, secret)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing slack signature headers")
		}
		if _, err := sv.Write(raw); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to verify signature")
		}
		if err := sv.Ensure(); err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid slack signature")
		}
	}

	var envelope map[string]interface{}
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&envelope); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}

	if envelope["type"] == "url_verification" {
		challenge, _ := envelope["challenge"].(string)
		return c.JSON(http.StatusOK, map[string]string{"challenge": challenge})
	}

	teamID, _ := envelope["team_id"].(string)
	if teamID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payload missing team_id")
	}

	matched := h.registry.SlackTriggers(teamID)
	for _, st := range matched {
		if _, err := st.ProcessEvent(envelope); err != nil {
			h.components.Logger.Warn("slack event processing failed", "workspace_id", teamID, "error", err)
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"processed": len(matched)})
}
