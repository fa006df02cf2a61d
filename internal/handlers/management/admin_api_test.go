package management

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"geminivoice-go/internal/config"
	"geminivoice-go/internal/credential"
	"geminivoice-go/internal/logging"
	"geminivoice-go/internal/runtime"
	"geminivoice-go/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource []*credential.Record

func (s fixedSource) Name() string { return "env" }

func (s fixedSource) Load(ctx context.Context) ([]*credential.Record, error) {
	out := make([]*credential.Record, len(s))
	for i, r := range s {
		out[i] = r.Clone()
	}
	return out, nil
}

type fakeController struct {
	status     session.Status
	rotateTo   string
	rotateErr  error
	reconnects int
}

func (f *fakeController) Status() session.Status { return f.status }

func (f *fakeController) ForceRotate(ctx context.Context) (string, error) {
	return f.rotateTo, f.rotateErr
}

func (f *fakeController) Reconnect(ctx context.Context) error {
	f.reconnects++
	return nil
}

type staticConfig struct {
	cfg     *config.Config
	reloads int
}

func (s *staticConfig) Get() *config.Config { return s.cfg }
func (s *staticConfig) Reload() error       { s.reloads++; return nil }

func newTestPool(t *testing.T, labels ...string) *credential.Pool {
	t.Helper()
	var src fixedSource
	for _, l := range labels {
		src = append(src, credential.NewRecord(l, "AIza-"+l+"-0123456789abcdef", credential.OriginEnv))
	}
	p := credential.NewPool(credential.Options{Sources: []credential.Source{src}})
	require.NoError(t, p.Load(context.Background()))
	return p
}

func newRouter(h *AdminAPIHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r.Group("/admin"))
	r.GET("/healthz", h.GetHealth)
	return r
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListCredentialsMasksSecrets(t *testing.T) {
	pool := newTestPool(t, "primary", "backup")
	r := newRouter(NewAdminAPIHandler(Dependencies{Pool: pool}))

	w := do(r, http.MethodGet, "/admin/credentials", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "0123456789abcdef")

	var st credential.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, "primary", st.CurrentLabel)
	require.Len(t, st.Keys, 2)
	assert.Equal(t, "backup", st.Keys[1].Label)
}

func TestGetCredentialNotFound(t *testing.T) {
	r := newRouter(NewAdminAPIHandler(Dependencies{Pool: newTestPool(t, "primary")}))
	w := do(r, http.MethodGet, "/admin/credentials/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"not_found"`)
}

func TestCredentialLifecycle(t *testing.T) {
	pool := newTestPool(t, "primary", "backup")
	r := newRouter(NewAdminAPIHandler(Dependencies{Pool: pool}))

	w := do(r, http.MethodPost, "/admin/credentials/backup/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"disabled"`)

	w = do(r, http.MethodPost, "/admin/credentials/backup/enable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"active"`)

	require.NoError(t, pool.MarkUsed("backup", false))
	w = do(r, http.MethodPost, "/admin/credentials/backup/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rec, err := pool.Get("backup")
	require.NoError(t, err)
	assert.Zero(t, rec.ErrorCount)

	w = do(r, http.MethodPost, "/admin/credentials/ghost/enable", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnableInvalidCredentialConflicts(t *testing.T) {
	pool := newTestPool(t, "primary")
	require.NoError(t, pool.HandleInvalid("primary"))
	r := newRouter(NewAdminAPIHandler(Dependencies{Pool: pool}))

	w := do(r, http.MethodPost, "/admin/credentials/primary/enable", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAddCredential(t *testing.T) {
	pool := newTestPool(t, "primary")
	r := newRouter(NewAdminAPIHandler(Dependencies{Pool: pool}))

	w := do(r, http.MethodPost, "/admin/credentials", gin.H{"name": "extra", "key": "AIza-extra-key-value-0001"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 2, pool.Len())

	w = do(r, http.MethodPost, "/admin/credentials", gin.H{"name": "extra", "key": "AIza-other-key-value-0002"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, "/admin/credentials", gin.H{"name": "nokey"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetRotation(t *testing.T) {
	pool := newTestPool(t, "primary")
	r := newRouter(NewAdminAPIHandler(Dependencies{Pool: pool}))

	w := do(r, http.MethodPut, "/admin/rotation", gin.H{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, pool.RotationEnabled())

	w = do(r, http.MethodPut, "/admin/rotation", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRotateAndReconnect(t *testing.T) {
	ctrl := &fakeController{rotateTo: "backup", status: session.Status{Connected: true, State: "connected", Healthy: true}}
	r := newRouter(NewAdminAPIHandler(Dependencies{Pool: newTestPool(t, "primary", "backup"), Controller: ctrl}))

	w := do(r, http.MethodPost, "/admin/session/rotate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"credential":"backup"`)

	ctrl.rotateTo, ctrl.rotateErr = "", credential.ErrNoAvailableCredential
	w = do(r, http.MethodPost, "/admin/session/rotate", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(r, http.MethodPost, "/admin/session/reconnect", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, ctrl.reconnects)
}

func TestRotateWithoutController(t *testing.T) {
	r := newRouter(NewAdminAPIHandler(Dependencies{Pool: newTestPool(t, "primary")}))
	w := do(r, http.MethodPost, "/admin/session/rotate", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthReflectsSession(t *testing.T) {
	ctrl := &fakeController{status: session.Status{State: "disconnected"}}
	r := newRouter(NewAdminAPIHandler(Dependencies{Pool: newTestPool(t, "primary"), Controller: ctrl}))

	w := do(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	ctrl.status = session.Status{Connected: true, State: "connected", Healthy: true}
	w = do(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestConfigExportIsRedacted(t *testing.T) {
	cfg := config.Defaults()
	cfg.Admin.Key = "super-secret-admin"
	src := &staticConfig{cfg: cfg}
	r := newRouter(NewAdminAPIHandler(Dependencies{Pool: newTestPool(t, "primary"), Config: src}))

	w := do(r, http.MethodGet, "/admin/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "super-secret-admin")
	assert.Contains(t, w.Body.String(), "<redacted>")

	w = do(r, http.MethodPost, "/admin/config/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, src.reloads)
}

func TestTasksListing(t *testing.T) {
	tm := runtime.NewTaskManager(context.Background(), 2)
	t.Cleanup(tm.StopAll)
	require.NoError(t, tm.Start("watchdog", "session watchdog", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	r := newRouter(NewAdminAPIHandler(Dependencies{Pool: newTestPool(t, "primary"), Tasks: tm}))

	w := do(r, http.MethodGet, "/admin/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"watchdog"`)
	assert.Contains(t, w.Body.String(), `"capacity":2`)
}

func TestLogsPollingAndStream(t *testing.T) {
	feed := logging.NewBroadcaster(50, 2)
	t.Cleanup(feed.Stop)
	feed.Publish(logging.Message{Kind: "log", Level: "info", Message: "first"})

	h := NewAdminAPIHandler(Dependencies{Pool: newTestPool(t, "primary"), Logs: feed})
	r := newRouter(h)

	w := do(r, http.MethodGet, "/admin/logs?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items  []logging.Message `json:"items"`
		Cursor uint64            `json:"cursor"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "first", page.Items[0].Message)

	srv := httptest.NewServer(r)
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/admin/logs/stream", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return feed.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	feed.Publish(logging.Message{Kind: "event", Topic: "credential.changed"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg logging.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "credential.changed", msg.Topic)
}
