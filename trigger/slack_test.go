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

func newTestSlackTrigger(t *testing.T, config map[string]interface{}, onFire func()) *SlackTrigger {
	t.Helper()
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		if onFire != nil {
			onFire()
		}
		w.WriteHeader(http.StatusAccepted)
	})
	def := &models.TriggerDefinition{TriggerID: uuid.New(), WorkflowID: uuid.New(), Enabled: true, Config: config}
	return NewSlackTrigger(def, d, logger.New("error", "text"))
}

func TestSlackTriggerFiltersByEventType(t *testing.T) {
	fired := false
	st := newTestSlackTrigger(t, map[string]interface{}{
		"event_types": []interface{}{"app_mention"},
	}, func() { fired = true })

	_, err := st.ProcessEvent(map[string]interface{}{
		"team_id": "T1",
		"event":   map[string]interface{}{"type": "reaction_added", "user": "U1", "channel": "C1"},
	})
	require.NoError(t, err)
	assert.False(t, fired)

	_, err = st.ProcessEvent(map[string]interface{}{
		"team_id": "T1",
		"event":   map[string]interface{}{"type": "app_mention", "user": "U1", "channel": "C1", "text": "<@UBOT> hi"},
	})
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestSlackTriggerIgnoresBotMessages(t *testing.T) {
	fired := false
	st := newTestSlackTrigger(t, map[string]interface{}{
		"event_types": []interface{}{"message"},
	}, func() { fired = true })

	_, err := st.ProcessEvent(map[string]interface{}{
		"team_id": "T1",
		"event":   map[string]interface{}{"type": "message", "channel": "C1", "bot_id": "B123", "text": "hello"},
	})
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestSlackTriggerChannelFilterByExactID(t *testing.T) {
	fired := false
	st := newTestSlackTrigger(t, map[string]interface{}{
		"event_types":    []interface{}{"message"},
		"channel_filter": "C999",
	}, func() { fired = true })

	_, err := st.ProcessEvent(map[string]interface{}{
		"team_id": "T1",
		"event":   map[string]interface{}{"type": "message", "channel": "C111", "text": "hello"},
	})
	require.NoError(t, err)
	assert.False(t, fired)

	_, err = st.ProcessEvent(map[string]interface{}{
		"team_id": "T1",
		"event":   map[string]interface{}{"type": "message", "channel": "C999", "text": "hello"},
	})
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestSlackTriggerCommandPrefixFilter(t *testing.T) {
	fired := false
	st := newTestSlackTrigger(t, map[string]interface{}{
		"event_types":   []interface{}{"message"},
		"command_prefix": "!",
	}, func() { fired = true })

	_, err := st.ProcessEvent(map[string]interface{}{
		"team_id": "T1",
		"event":   map[string]interface{}{"type": "message", "channel": "C1", "text": "just chatting"},
	})
	require.NoError(t, err)
	assert.False(t, fired)

	_, err = st.ProcessEvent(map[string]interface{}{
		"team_id": "T1",
		"event":   map[string]interface{}{"type": "message", "channel": "C1", "text": "!deploy prod"},
	})
	require.NoError(t, err)
	assert.True(t, fired)
}
