// Package recorder persists probe results into the status history store,
// the only component allowed to write monitor_status rows and the
// monitor's last-known fields.
package recorder

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/compactid"
	"github.com/pulsewatch/pulsewatch/pkg/database"
)

// Recorder turns a decided probe outcome into an immutable history row,
// atomically refreshing the monitor's last-known fields alongside it.
type Recorder struct {
	history *database.HistoryRepository
	ids     *compactid.Generator
}

// New builds a Recorder backed by the given history repository.
func New(history *database.HistoryRepository) *Recorder {
	return &Recorder{history: history, ids: compactid.New()}
}

// Record persists one probe attempt's final, decided outcome. message is the
// original (un-compacted) text produced by the executor/retry wrapper;
// compaction for the history row itself happens here. The insert and the
// monitor's last-known update happen in a single transaction inside
// HistoryRepository.Insert, keeping the monitor's lastStatus field in sync
// with its own most recent history row.
func (r *Recorder) Record(monitorID string, status int, message string, ping *int, details map[string]any, monitorType string) (*database.MonitorStatus, error) {
	now := time.Now()

	compacted := compactMessage(status, message, monitorType)

	row := &database.MonitorStatus{
		ID:        r.ids.Generate(now),
		MonitorID: monitorID,
		Status:    status,
		Message:   compacted,
		Ping:      ping,
		Timestamp: now,
	}

	if len(details) > 0 {
		row.DetailsJSON = marshalDetails(details)
	}

	var origMessage *string
	if message != "" {
		m := message
		origMessage = &m
	}

	if err := r.history.Insert(row, origMessage); err != nil {
		return nil, fmt.Errorf("failed to record probe result: %w", err)
	}

	return row, nil
}

// compactMessage returns nil iff status==UP and monitorType != push; PENDING
// always renders as "等待中" regardless of the executor's own text,
// normalizing transient states to a single canonical phrase.
func compactMessage(status int, message, monitorType string) *string {
	if status == database.StatusPending {
		s := "等待中"
		return &s
	}
	if status == database.StatusUp && monitorType != database.TypePush {
		return nil
	}
	trimmed := strings.TrimRight(message, " \t\n\r")
	return &trimmed
}

func marshalDetails(details map[string]any) *string {
	data, err := json.Marshal(details)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}
