package trigger

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
)

func TestGitHubTriggerFiltersByRepository(t *testing.T) {
	fired := false
	def := &models.TriggerDefinition{
		TriggerID:  uuid.New(),
		WorkflowID: uuid.New(),
		Enabled:    true,
		Config: map[string]interface{}{
			"github_app_installation_id": float64(42),
			"repository":                 "acme/widgets",
		},
	}
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		fired = true
		w.WriteHeader(http.StatusAccepted)
	})
	gt, err := NewGitHubTrigger(def, d, 1, "unused-in-process-event-test", nil, logger.New("error", "text"))
	require.NoError(t, err)

	payload := map[string]interface{}{
		"repository": map[string]interface{}{"full_name": "someone/else"},
		"sender":     map[string]interface{}{"login": "alice"},
	}
	_, err = gt.ProcessEvent("push", payload)
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestGitHubTriggerIgnoresBots(t *testing.T) {
	fired := false
	def := &models.TriggerDefinition{
		TriggerID:  uuid.New(),
		WorkflowID: uuid.New(),
		Enabled:    true,
		Config: map[string]interface{}{
			"github_app_installation_id": float64(1),
			"repository":                 "acme/widgets",
			"ignore_bots":                true,
		},
	}
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		fired = true
		w.WriteHeader(http.StatusAccepted)
	})
	gt, err := NewGitHubTrigger(def, d, 1, "unused", nil, logger.New("error", "text"))
	require.NoError(t, err)

	payload := map[string]interface{}{
		"repository": map[string]interface{}{"full_name": "acme/widgets"},
		"sender":     map[string]interface{}{"type": "Bot", "login": "dependabot[bot]"},
	}
	_, err = gt.ProcessEvent("push", payload)
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestGitHubTriggerBranchFilter(t *testing.T) {
	fired := 0
	def := &models.TriggerDefinition{
		TriggerID:  uuid.New(),
		WorkflowID: uuid.New(),
		Enabled:    true,
		Config: map[string]interface{}{
			"github_app_installation_id": float64(1),
			"repository":                 "acme/widgets",
			"event_config": map[string]interface{}{
				"push": map[string]interface{}{
					"branches": []interface{}{"main"},
				},
			},
		},
	}
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		fired++
		w.WriteHeader(http.StatusAccepted)
	})
	gt, err := NewGitHubTrigger(def, d, 1, "unused", nil, logger.New("error", "text"))
	require.NoError(t, err)

	mainPush := map[string]interface{}{
		"repository": map[string]interface{}{"full_name": "acme/widgets"},
		"sender":     map[string]interface{}{"login": "alice"},
		"ref":        "refs/heads/main",
	}
	_, err = gt.ProcessEvent("push", mainPush)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	featurePush := map[string]interface{}{
		"repository": map[string]interface{}{"full_name": "acme/widgets"},
		"sender":     map[string]interface{}{"login": "alice"},
		"ref":        "refs/heads/feature-x",
	}
	_, err = gt.ProcessEvent("push", featurePush)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
}
