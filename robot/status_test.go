package robot_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/neyho/eywa-go/robot"
	"github.com/neyho/eywa-go/shared/config"
	"github.com/neyho/eywa-go/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStatusHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o600))
	cfg, err := config.NewYamlConfig(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	client, orch, _ := start(t, robot.WithConfig(cfg))
	require.NoError(t, client.Task.Update(task.StatusProcessing))
	orch.next(t)

	rec := httptest.NewRecorder()
	client.StatusHandler()(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var status robot.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, client.Session.GetID(), status.SessionID)
	assert.Equal(t, "ok", status.Config)
	assert.Equal(t, "running", status.Session)
	assert.Equal(t, "PROCESSING", status.Task)
	assert.Zero(t, status.PendingRequests)

	require.NoError(t, os.Remove(path))
	rec = httptest.NewRecorder()
	client.StatusHandler()(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "error", status.Config)
}
