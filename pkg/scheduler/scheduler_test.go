package scheduler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/pkg/config"
	"github.com/pulsewatch/pulsewatch/pkg/database"
	"github.com/pulsewatch/pulsewatch/pkg/notification"
	"github.com/pulsewatch/pulsewatch/pkg/probe"
	"github.com/pulsewatch/pulsewatch/pkg/recorder"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	cfg := &config.Config{Database: config.DatabaseConfig{Path: ":memory:", WALMode: true}}
	db, err := database.NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestScheduler(t *testing.T, db *database.DB) *Scheduler {
	t.Helper()
	rec := recorder.New(db.HistoryRepository())
	notif := notification.New(db.MonitorRepository(), db.HistoryRepository(), db.NotificationRepository(), nil)
	registry := probe.NewRegistry(2)
	s := New(db.MonitorRepository(), registry, rec, notif, nil)
	t.Cleanup(s.Stop)
	return s
}

func TestScheduler_AddOrReplaceRunsAtLeastOneProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	db := newTestDB(t)
	s := newTestScheduler(t, db)

	m := &database.Monitor{Name: "up-svc", Type: database.TypeHTTP, Active: true, Interval: 60, RetryInterval: 1}
	require.NoError(t, m.SetConfig(map[string]any{"url": srv.URL}))
	require.NoError(t, db.MonitorRepository().Create(m))

	s.AddOrReplace(m)

	assert.Eventually(t, func() bool {
		rows, err := db.HistoryRepository().Recent(m.ID, 1)
		return err == nil && len(rows) == 1
	}, 2*time.Second, 10*time.Millisecond)

	s.Remove(m.ID)
}

func TestScheduler_InactiveMonitorNeverStarts(t *testing.T) {
	db := newTestDB(t)
	s := newTestScheduler(t, db)

	m := &database.Monitor{Name: "off", Type: database.TypeHTTP, Active: false, Interval: 60}
	require.NoError(t, m.SetConfig(map[string]any{"url": "http://example.com"}))
	require.NoError(t, db.MonitorRepository().Create(m))

	s.AddOrReplace(m)
	assert.Equal(t, 0, s.taskCount())
}

func TestScheduler_ResetAllLoadsActiveMonitors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	db := newTestDB(t)
	s := newTestScheduler(t, db)

	active := &database.Monitor{Name: "a", Type: database.TypeHTTP, Active: true, Interval: 60}
	require.NoError(t, active.SetConfig(map[string]any{"url": srv.URL}))
	require.NoError(t, db.MonitorRepository().Create(active))

	inactive := &database.Monitor{Name: "b", Type: database.TypeHTTP, Active: false, Interval: 60}
	require.NoError(t, inactive.SetConfig(map[string]any{"url": srv.URL}))
	require.NoError(t, db.MonitorRepository().Create(inactive))

	require.NoError(t, s.ResetAll())
	assert.Equal(t, 1, s.taskCount())
}

func TestScheduler_RemoveStopsTask(t *testing.T) {
	db := newTestDB(t)
	s := newTestScheduler(t, db)

	m := &database.Monitor{Name: "x", Type: database.TypeHTTP, Active: true, Interval: 60}
	require.NoError(t, m.SetConfig(map[string]any{"url": "http://example.com"}))
	require.NoError(t, db.MonitorRepository().Create(m))

	s.AddOrReplace(m)
	assert.Equal(t, 1, s.taskCount())
	s.Remove(m.ID)
	assert.Equal(t, 0, s.taskCount())
}

func TestScheduler_UnknownMonitorTypeBecomesDownResult(t *testing.T) {
	db := newTestDB(t)
	s := newTestScheduler(t, db)

	m := &database.Monitor{Name: "bad-type", Type: "nonexistent-type", Active: true, Interval: 60}
	require.NoError(t, m.SetConfig(map[string]any{}))
	require.NoError(t, db.MonitorRepository().Create(m))

	task := newMonitorTask(s.ctx, m.ID, s)
	result := task.execute(m)
	assert.Equal(t, database.StatusDown, result.Status)
}
