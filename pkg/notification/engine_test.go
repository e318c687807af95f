package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/pkg/config"
	"github.com/pulsewatch/pulsewatch/pkg/database"
)

type recordingDispatcher struct {
	calls []Data
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, config map[string]any, data Data) error {
	d.calls = append(d.calls, data)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *database.DB, *recordingDispatcher) {
	t.Helper()
	cfg := &config.Config{Database: config.DatabaseConfig{Path: ":memory:", WALMode: true}}
	db, err := database.NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := New(db.MonitorRepository(), db.HistoryRepository(), db.NotificationRepository(), nil)
	rec := &recordingDispatcher{}
	e.dispatchers[database.ChannelTypeWebhook] = rec
	return e, db, rec
}

func newBoundMonitorWithChannel(t *testing.T, db *database.DB, resendInterval int) *database.Monitor {
	t.Helper()
	m := &database.Monitor{Name: "svc", Type: database.TypeHTTP, Active: true, Interval: 60, ResendInterval: resendInterval}
	require.NoError(t, m.SetConfig(map[string]any{"url": "http://example.com"}))
	require.NoError(t, db.MonitorRepository().Create(m))

	ch := &database.NotificationChannel{Name: "wh", Type: database.ChannelTypeWebhook, Enabled: true, ConfigJSON: "{}"}
	require.NoError(t, db.NotificationRepository().CreateChannel(ch))
	require.NoError(t, db.NotificationRepository().Bind(m.ID, ch.ID, true))
	return m
}

func insertHistory(t *testing.T, db *database.DB, monitorID string, status int, msg *string, at time.Time) {
	t.Helper()
	row := &database.MonitorStatus{
		ID:        "row-" + at.String(),
		MonitorID: monitorID,
		Status:    status,
		Message:   msg,
		Timestamp: at,
	}
	require.NoError(t, db.HistoryRepository().Insert(row, msg))
}

func TestEvaluate_NoChannelsBoundIsNoop(t *testing.T) {
	e, db, _ := newTestEngine(t)
	m := &database.Monitor{Name: "solo", Type: database.TypeHTTP, Active: true}
	require.NoError(t, m.SetConfig(map[string]any{"url": "http://x"}))
	require.NoError(t, db.MonitorRepository().Create(m))

	err := e.Evaluate(context.Background(), m.ID, database.StatusDown, "down", nil, time.Now())
	require.NoError(t, err)
}

func TestEvaluate_FirstUpOnNewMonitorNeverAlerts(t *testing.T) {
	e, db, rec := newTestEngine(t)
	m := newBoundMonitorWithChannel(t, db, 0)
	now := time.Now()
	insertHistory(t, db, m.ID, database.StatusUp, nil, now)

	err := e.Evaluate(context.Background(), m.ID, database.StatusUp, "ok", nil, now)
	require.NoError(t, err)
	assert.Empty(t, rec.calls)
}

func TestEvaluate_InitialDownAlerts(t *testing.T) {
	e, db, rec := newTestEngine(t)
	m := newBoundMonitorWithChannel(t, db, 0)
	msg := "connection refused"
	now := time.Now()
	insertHistory(t, db, m.ID, database.StatusDown, &msg, now)

	err := e.Evaluate(context.Background(), m.ID, database.StatusDown, msg, nil, now)
	require.NoError(t, err)
	require.Len(t, rec.calls, 1)
	assert.Contains(t, rec.calls[0].Message, "连续失败")
	assert.Contains(t, rec.calls[0].Message, "监控地址")
}

func TestEvaluate_SteadyUpIsNoop(t *testing.T) {
	e, db, rec := newTestEngine(t)
	m := newBoundMonitorWithChannel(t, db, 0)
	okMsg := "ok"
	insertHistory(t, db, m.ID, database.StatusUp, &okMsg, time.Now().Add(-time.Minute))
	now := time.Now()
	insertHistory(t, db, m.ID, database.StatusUp, &okMsg, now)

	prev := database.StatusUp
	err := e.Evaluate(context.Background(), m.ID, database.StatusUp, okMsg, &prev, now)
	require.NoError(t, err)
	assert.Empty(t, rec.calls)
}

// TestEvaluate_RepeatedDownWithoutResendIntervalDoesNotReAlert checks that
// once a DOWN alert has fired, a monitor with resendInterval=0 never
// re-alerts while it stays DOWN — the gate lives inside evaluateDown, not in
// the step 4 transition check.
func TestEvaluate_RepeatedDownWithoutResendIntervalDoesNotReAlert(t *testing.T) {
	e, db, rec := newTestEngine(t)
	m := newBoundMonitorWithChannel(t, db, 0)
	msg := "down"
	first := time.Now()
	insertHistory(t, db, m.ID, database.StatusDown, &msg, first)

	err := e.Evaluate(context.Background(), m.ID, database.StatusDown, msg, nil, first)
	require.NoError(t, err)
	require.Len(t, rec.calls, 1)

	prev := database.StatusDown
	second := first.Add(5 * time.Minute)
	insertHistory(t, db, m.ID, database.StatusDown, &msg, second)
	err = e.Evaluate(context.Background(), m.ID, database.StatusDown, "still down", &prev, second)
	require.NoError(t, err)
	assert.Len(t, rec.calls, 1)
}

func TestEvaluate_RecoveryAfterDownSendsRecoveryMessage(t *testing.T) {
	e, db, rec := newTestEngine(t)
	m := newBoundMonitorWithChannel(t, db, 0)
	msg := "timeout"
	downAt := time.Now().Add(-time.Minute)
	insertHistory(t, db, m.ID, database.StatusDown, &msg, downAt)

	prev := database.StatusDown
	err := e.Evaluate(context.Background(), m.ID, database.StatusDown, msg, &prev, downAt)
	require.NoError(t, err)
	require.Len(t, rec.calls, 1)

	okMsg := "ok"
	upAt := time.Now()
	insertHistory(t, db, m.ID, database.StatusUp, &okMsg, upAt)
	err = e.Evaluate(context.Background(), m.ID, database.StatusUp, okMsg, &prev, upAt)
	require.NoError(t, err)
	require.Len(t, rec.calls, 2)
	assert.Contains(t, rec.calls[1].Message, "监控已恢复正常")
}

// TestEvaluate_ResendIntervalGate checks that with resendInterval=2,
// consecutive DOWN probes at t=0,5,10,15,20 minutes notify on probes 1, 3
// and 5 only.
func TestEvaluate_ResendIntervalGate(t *testing.T) {
	e, db, rec := newTestEngine(t)
	m := newBoundMonitorWithChannel(t, db, 2)

	base := time.Now()
	msg := "down"
	prev := database.StatusUp
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i*5) * time.Minute)
		insertHistory(t, db, m.ID, database.StatusDown, &msg, at)
		err := e.Evaluate(context.Background(), m.ID, database.StatusDown, msg, &prev, at)
		require.NoError(t, err)
		prev = database.StatusDown
	}
	assert.Equal(t, 3, len(rec.calls))
}

func TestEngine_TestDispatchesCannedPayload(t *testing.T) {
	e, _, rec := newTestEngine(t)
	err := e.Test(context.Background(), database.ChannelTypeWebhook, map[string]any{})
	require.NoError(t, err)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, "测试监控", rec.calls[0].MonitorName)
}

func TestEngine_TestUnknownChannelType(t *testing.T) {
	e, _, _ := newTestEngine(t)
	err := e.Test(context.Background(), "bogus", map[string]any{})
	assert.Error(t, err)
}
