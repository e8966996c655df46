package dispatch

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/queue"
)

func TestDispatchSucceedsOnAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	notifier := NewNotifier(queue.NewMemoryQueue(logger.New("error", "text")), logger.New("error", "text"))
	d := NewDispatcher(srv.URL, 2*time.Second, notifier, logger.New("error", "text"))

	result := d.Dispatch(uuid.New(), uuid.New(), "manual", map[string]interface{}{"foo": "bar"})
	require.Equal(t, ResultStarted, result.Status)
	assert.NotEmpty(t, result.ExecutionID)
}

func TestDispatchFailsOnNonAcceptedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	notifier := NewNotifier(queue.NewMemoryQueue(logger.New("error", "text")), logger.New("error", "text"))
	d := NewDispatcher(srv.URL, 2*time.Second, notifier, logger.New("error", "text"))

	result := d.Dispatch(uuid.New(), uuid.New(), "manual", nil)
	assert.Equal(t, ResultFailed, result.Status)
	assert.Equal(t, "HTTP 500", result.Message)
}
