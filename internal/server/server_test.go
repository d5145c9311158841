package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/aristath/fundalloc/internal/config"
	"github.com/aristath/fundalloc/internal/di"
	"github.com/aristath/fundalloc/internal/events"
	"github.com/aristath/fundalloc/internal/scheduler"
	testutil "github.com/aristath/fundalloc/internal/testing"
)

type fixture struct {
	srv       *Server
	http      *httptest.Server
	container *di.Container
	backend   *testutil.FakeBackend
}

func setup(t *testing.T) *fixture {
	backend := testutil.NewFakeBackend(t)
	cfg := &config.Config{
		BackendAPI:             backend.URL(),
		BackendTimeoutSeconds:  5,
		DataDir:                filepath.Join(t.TempDir(), "data"),
		Port:                   0,
		CORSAllowedOrigins:     []string{"http://localhost:5173"},
		HistoryRetentionDays:   30,
		HistoryCleanupSchedule: "0 0 3 * * *",
		Backup:                 &config.BackupConfig{},
	}

	container, err := di.Wire(cfg, "test", zerolog.Nop())
	require.NoError(t, err)

	srv := New(Config{Log: zerolog.Nop(), Config: cfg, Container: container, Version: "test"})
	srv.systemHandlers.stats = func() (float64, float64) { return 12.5, 40 }

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		container.Close()
	})

	return &fixture{srv: srv, http: ts, container: container, backend: backend}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	f := setup(t)

	resp, body := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, "fundalloc", body["service"])

	resp, _ = f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	f := setup(t)

	req, err := http.NewRequest(http.MethodOptions, f.http.URL+"/api/allocate", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAllocateThroughServer(t *testing.T) {
	f := setup(t)

	body := `{
		"depositPlans": [{"type": "one-time", "isEnabled": true, "allocations": [{"portfolioName": "Growth", "amount": 1}]}],
		"deposits": [250]
	}`
	resp, out := f.do(t, http.MethodPost, "/api/allocate", body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out, "fundAllocation")
	assert.Len(t, f.backend.Requests(), 1)

	resp, out = f.do(t, http.MethodGet, "/api/allocations", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, out["count"])
}

func TestWorkspaceRoutesMounted(t *testing.T) {
	f := setup(t)

	resp, out := f.do(t, http.MethodPost, "/api/workspaces", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := out["id"].(string)
	require.NotEmpty(t, id)

	resp, _ = f.do(t, http.MethodGet, "/api/workspaces/"+id, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSystemStatus(t *testing.T) {
	f := setup(t)

	resp, out := f.do(t, http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, f.backend.URL(), out["backend_api"])
	assert.Equal(t, 12.5, out["cpu_percent"])
	assert.Equal(t, 40.0, out["memory_percent"])
	assert.Equal(t, false, out["backups_enabled"])

	dbs, ok := out["databases"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, dbs, "planner")
	assert.Contains(t, dbs, "history")
}

func TestSystemStats_Real(t *testing.T) {
	h := NewSystemHandlers(&di.Container{}, "", time.Now(), zerolog.Nop())
	cpuPercent, memPercent := h.getSystemStats()
	assert.GreaterOrEqual(t, cpuPercent, 0.0)
	assert.Greater(t, memPercent, 0.0)
}

func TestJobs(t *testing.T) {
	f := setup(t)

	resp, out := f.do(t, http.MethodGet, "/api/system/jobs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, out["count"])

	tests := []struct {
		name   string
		job    string
		status int
	}{
		{"unknown job", "does_not_exist", http.StatusNotFound},
		{"known job", "history_cleanup", http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.do(t, http.MethodPost, "/api/system/jobs/"+tt.job, "")
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	require.Eventually(t, func() bool {
		for _, j := range f.container.Scheduler.Jobs() {
			if j.Name == "history_cleanup" {
				return j.LastRun != nil && !j.Running
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

type blockingJob struct{ release chan struct{} }

func (blockingJob) Name() string  { return "blocking" }
func (j blockingJob) Run() error { <-j.release; return nil }

func TestTriggerJob_AlreadyRunning(t *testing.T) {
	f := setup(t)
	job := blockingJob{release: make(chan struct{})}
	require.NoError(t, f.container.Scheduler.AddJob("", job))
	defer close(job.release)

	require.NoError(t, f.container.Scheduler.Trigger("blocking"))

	resp, out := f.do(t, http.MethodPost, "/api/system/jobs/blocking", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, out["error"], "already running")
	assert.ErrorIs(t, f.container.Scheduler.Trigger("blocking"), scheduler.ErrJobRunning)
}

func TestBackups_NotConfigured(t *testing.T) {
	f := setup(t)

	resp, out := f.do(t, http.MethodGet, "/api/system/backups", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Backups are not configured", out["error"])
}

func TestEventStream_SSE(t *testing.T) {
	f := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.http.URL+"/api/events/stream?types=workspace_changed", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readData := func() map[string]interface{} {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				var msg map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg))
				return msg
			}
		}
	}

	assert.Equal(t, "connected", readData()["type"])

	// Filtered out
	f.container.EventBus.Publish(&events.JobCompletedData{Job: "x"})
	f.container.EventBus.Publish(&events.WorkspaceChangedData{WorkspaceID: "w1", Action: "created"})

	msg := readData()
	assert.Equal(t, "workspace_changed", msg["type"])
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "w1", data["workspace_id"])
}

func TestEventStream_WebSocket(t *testing.T) {
	f := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/api/events/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		return f.container.EventBus.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	f.container.EventBus.Publish(&events.JobCompletedData{Job: "history_cleanup", DurationMs: 3})

	msgType, payload, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, msgType)

	var evt map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &evt))
	assert.Equal(t, "job_completed", evt["type"])
	assert.NotEmpty(t, evt["id"])
}
