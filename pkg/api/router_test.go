package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/pkg/config"
	"github.com/pulsewatch/pulsewatch/pkg/database"
	"github.com/pulsewatch/pulsewatch/pkg/notification"
	"github.com/pulsewatch/pulsewatch/pkg/recorder"
)

func newTestRouter(t *testing.T) (*gin.Engine, *database.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{Database: config.DatabaseConfig{Path: ":memory:", WALMode: true}}
	db, err := database.NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rec := recorder.New(db.HistoryRepository())
	notif := notification.New(db.MonitorRepository(), db.HistoryRepository(), db.NotificationRepository(), nil)
	return NewRouter(db.MonitorRepository(), rec, notif), db
}

func TestPushEndpoint_UnknownTokenReturnsNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/push/does-not-exist", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPushEndpoint_ValidTokenRecordsHeartbeat(t *testing.T) {
	r, db := newTestRouter(t)

	m := &database.Monitor{Name: "push-svc", Type: database.TypePush, Active: true, Interval: 60}
	require.NoError(t, m.SetConfig(map[string]any{"token": "abc123", "pushInterval": 60}))
	require.NoError(t, db.MonitorRepository().Create(m))

	req := httptest.NewRequest(http.MethodGet, "/api/push/abc123?msg=hello", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	rows, err := db.HistoryRepository().Recent(m.ID, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, database.StatusUp, rows[0].Status)
}

func TestTestChannelEndpoint_DispatchesAndReportsFailure(t *testing.T) {
	r, _ := newTestRouter(t)

	body := `{"type":"webhook","config":{}}`
	req := httptest.NewRequest(http.MethodPost, "/api/control/test-channel", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":false`)
}

func TestTestChannelEndpoint_UnknownType(t *testing.T) {
	r, _ := newTestRouter(t)

	body := `{"type":"bogus","config":{}}`
	req := httptest.NewRequest(http.MethodPost, "/api/control/test-channel", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":false`)
}
