package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/pkg/database"
)

func TestCleaner_RunOnceDeletesOldRows(t *testing.T) {
	db := newTestDB(t)

	m := &database.Monitor{Name: "svc", Type: database.TypeHTTP, Active: true, Interval: 60}
	require.NoError(t, m.SetConfig(map[string]any{"url": "http://x"}))
	require.NoError(t, db.MonitorRepository().Create(m))

	oldRow := &database.MonitorStatus{ID: "old", MonitorID: m.ID, Status: database.StatusUp, Timestamp: time.Now().AddDate(0, 0, -200)}
	require.NoError(t, db.HistoryRepository().Insert(oldRow, nil))

	newRow := &database.MonitorStatus{ID: "new", MonitorID: m.ID, Status: database.StatusUp, Timestamp: time.Now()}
	require.NoError(t, db.HistoryRepository().Insert(newRow, nil))

	c := NewCleaner(db.HistoryRepository(), 90, nil)
	c.RunOnce()

	rows, err := db.HistoryRepository().Recent(m.ID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "new", rows[0].ID)
}
