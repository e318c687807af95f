package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/pkg/config"
	"github.com/pulsewatch/pulsewatch/pkg/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	cfg := &config.Config{Database: config.DatabaseConfig{Path: ":memory:", WALMode: true}}
	db, err := database.NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestMonitor(t *testing.T, db *database.DB, typ string) *database.Monitor {
	t.Helper()
	m := &database.Monitor{Name: "m", Type: typ, Active: true, Interval: 60, RetryInterval: 60}
	require.NoError(t, m.SetConfig(map[string]any{"url": "http://x"}))
	require.NoError(t, db.MonitorRepository().Create(m))
	return m
}

func TestRecord_UpMessageIsNilForNonPush(t *testing.T) {
	db := newTestDB(t)
	r := New(db.HistoryRepository())
	m := newTestMonitor(t, db, database.TypeHTTP)

	row, err := r.Record(m.ID, database.StatusUp, "OK", nil, nil, database.TypeHTTP)
	require.NoError(t, err)
	assert.Nil(t, row.Message)

	reloaded, err := db.MonitorRepository().GetByID(m.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastStatus)
	assert.Equal(t, database.StatusUp, *reloaded.LastStatus)
	require.NotNil(t, reloaded.LastMessage)
	assert.Equal(t, "OK", *reloaded.LastMessage)
}

func TestRecord_UpMessageIsKeptForPush(t *testing.T) {
	db := newTestDB(t)
	r := New(db.HistoryRepository())
	m := newTestMonitor(t, db, database.TypePush)

	row, err := r.Record(m.ID, database.StatusUp, "心跳正常", nil, nil, database.TypePush)
	require.NoError(t, err)
	require.NotNil(t, row.Message)
	assert.Equal(t, "心跳正常", *row.Message)
}

func TestRecord_PendingCollapsesToCanonicalPhrase(t *testing.T) {
	db := newTestDB(t)
	r := New(db.HistoryRepository())
	m := newTestMonitor(t, db, database.TypePush)

	row, err := r.Record(m.ID, database.StatusPending, "anything", nil, nil, database.TypePush)
	require.NoError(t, err)
	require.NotNil(t, row.Message)
	assert.Equal(t, "等待中", *row.Message)
}

func TestRecord_DownMessageIsTrimmedAndKept(t *testing.T) {
	db := newTestDB(t)
	r := New(db.HistoryRepository())
	m := newTestMonitor(t, db, database.TypeHTTP)

	row, err := r.Record(m.ID, database.StatusDown, "连接失败   \n", nil, nil, database.TypeHTTP)
	require.NoError(t, err)
	require.NotNil(t, row.Message)
	assert.Equal(t, "连接失败", *row.Message)
}

func TestRecord_EveryCallInsertsOneRow(t *testing.T) {
	db := newTestDB(t)
	r := New(db.HistoryRepository())
	m := newTestMonitor(t, db, database.TypeHTTP)

	for i := 0; i < 5; i++ {
		_, err := r.Record(m.ID, database.StatusDown, "fail", nil, nil, database.TypeHTTP)
		require.NoError(t, err)
	}

	rows, err := db.HistoryRepository().Recent(m.ID, 100)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestRecord_DetailsAreMarshaled(t *testing.T) {
	db := newTestDB(t)
	r := New(db.HistoryRepository())
	m := newTestMonitor(t, db, database.TypeHTTP)

	ping := 42
	row, err := r.Record(m.ID, database.StatusDown, "fail", &ping, map[string]any{"code": 500}, database.TypeHTTP)
	require.NoError(t, err)
	require.NotNil(t, row.DetailsJSON)
	assert.Contains(t, *row.DetailsJSON, "500")
	require.NotNil(t, row.Ping)
	assert.Equal(t, 42, *row.Ping)
}
