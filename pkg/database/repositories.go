package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MonitorRepository manages the monitors table.
type MonitorRepository struct {
	db *DB
}

// NewMonitorRepository returns a new MonitorRepository.
func NewMonitorRepository(db *DB) *MonitorRepository {
	return &MonitorRepository{db: db}
}

// Create inserts a new monitor, assigning a UUID if the caller left ID blank.
func (r *MonitorRepository) Create(m *Monitor) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO monitors (
			id, name, type, active, interval, retries, retry_interval,
			resend_interval, upside_down, config, group_id, description, push_token
		) VALUES (
			:id, :name, :type, :active, :interval, :retries, :retry_interval,
			:resend_interval, :upside_down, :config, :group_id, :description, :push_token
		)`

	_, err := r.db.NamedExec(query, m)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	return nil
}

// GetByID loads a single monitor by its ID.
func (r *MonitorRepository) GetByID(id string) (*Monitor, error) {
	var m Monitor
	err := r.db.Get(&m, "SELECT * FROM monitors WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor %s: %w", id, err)
	}
	return &m, nil
}

// ListActive returns every monitor with active=true, the set the scheduler
// loads on resetAll.
func (r *MonitorRepository) ListActive() ([]*Monitor, error) {
	var monitors []*Monitor
	err := r.db.Select(&monitors, "SELECT * FROM monitors WHERE active = TRUE ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list active monitors: %w", err)
	}
	return monitors, nil
}

// List returns every monitor regardless of active state.
func (r *MonitorRepository) List() ([]*Monitor, error) {
	var monitors []*Monitor
	err := r.db.Select(&monitors, "SELECT * FROM monitors ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list monitors: %w", err)
	}
	return monitors, nil
}

// Update persists the monitor's editable fields; it never touches the
// derived last-known columns, which only the recorder writes.
func (r *MonitorRepository) Update(m *Monitor) error {
	query := `
		UPDATE monitors SET
			name = :name, type = :type, active = :active, interval = :interval,
			retries = :retries, retry_interval = :retry_interval,
			resend_interval = :resend_interval, upside_down = :upside_down,
			config = :config, group_id = :group_id, description = :description,
			push_token = :push_token
		WHERE id = :id`

	_, err := r.db.NamedExec(query, m)
	if err != nil {
		return fmt.Errorf("failed to update monitor %s: %w", m.ID, err)
	}
	return nil
}

// Delete removes a monitor; its status history cascades via FOREIGN KEY.
func (r *MonitorRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM monitors WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete monitor %s: %w", id, err)
	}
	return nil
}

// FindByPushToken resolves a push monitor from the token carried on its
// ingestion URL.
func (r *MonitorRepository) FindByPushToken(token string) (*Monitor, error) {
	var m Monitor
	err := r.db.Get(&m, "SELECT * FROM monitors WHERE push_token = ?", token)
	if err != nil {
		return nil, fmt.Errorf("failed to find monitor by push token: %w", err)
	}
	return &m, nil
}

// UpdateLastKnown applies the derived last-known columns a completed probe
// attempt produces. Callers that also insert the corresponding history row
// should do so in the same transaction (see HistoryRepository.Insert);
// this method itself runs standalone, outside any transaction.
func (r *MonitorRepository) UpdateLastKnown(id string, checkAt time.Time, status int, message *string, ping *int) error {
	_, err := r.db.Exec(
		`UPDATE monitors SET last_check_at = ?, last_status = ?, last_message = ?, last_ping = ? WHERE id = ?`,
		checkAt, status, message, ping, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update monitor last-known state: %w", err)
	}
	return nil
}

// HistoryRepository manages the append-only monitor_status table.
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository returns a new HistoryRepository.
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Insert writes one history row and updates the owning monitor's last-known
// state in the same transaction, satisfying the "lastStatus always equals
// the most recent row" invariant atomically. lastMessage overrides what gets
// written to monitors.last_message; pass nil to reuse row.Message (the
// history row's own, possibly-compacted, text). The recorder package uses
// the override to persist the original un-compacted message, while the
// history row itself carries the compacted one.
func (r *HistoryRepository) Insert(row *MonitorStatus, lastMessage *string) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`
		INSERT INTO monitor_status (id, monitor_id, status, message, ping, details, timestamp)
		VALUES (:id, :monitor_id, :status, :message, :ping, :details, :timestamp)`,
		row)
	if err != nil {
		return fmt.Errorf("failed to insert history row: %w", err)
	}

	if lastMessage == nil {
		lastMessage = row.Message
	}

	_, err = tx.Exec(
		`UPDATE monitors SET last_check_at = ?, last_status = ?, last_message = ?, last_ping = ? WHERE id = ?`,
		row.Timestamp, row.Status, lastMessage, row.Ping, row.MonitorID,
	)
	if err != nil {
		return fmt.Errorf("failed to update monitor last-known state: %w", err)
	}

	return tx.Commit()
}

// Recent returns the monitor's most recent history rows, most recent first.
func (r *HistoryRepository) Recent(monitorID string, limit int) ([]*MonitorStatus, error) {
	var rows []*MonitorStatus
	err := r.db.Select(&rows,
		"SELECT * FROM monitor_status WHERE monitor_id = ? ORDER BY timestamp DESC LIMIT ?",
		monitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent history for %s: %w", monitorID, err)
	}
	return rows, nil
}

// CountSince counts rows of the given status recorded strictly after after,
// used by the notification engine's resend-interval gate.
func (r *HistoryRepository) CountSince(monitorID string, status int, after time.Time) (int, error) {
	var count int
	err := r.db.Get(&count,
		"SELECT COUNT(*) FROM monitor_status WHERE monitor_id = ? AND status = ? AND timestamp > ?",
		monitorID, status, after)
	if err != nil {
		return 0, fmt.Errorf("failed to count history since %v: %w", after, err)
	}
	return count, nil
}

// MostRecentWithStatus returns the most recent row with the given status, or
// nil if none exists. The notification engine uses this to find the start
// of a continuous failure run (the most recent UP row).
func (r *HistoryRepository) MostRecentWithStatus(monitorID string, status int) (*MonitorStatus, error) {
	var row MonitorStatus
	err := r.db.Get(&row,
		"SELECT * FROM monitor_status WHERE monitor_id = ? AND status = ? ORDER BY timestamp DESC LIMIT 1",
		monitorID, status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find most recent %d row: %w", status, err)
	}
	return &row, nil
}

// FirstAfter returns the earliest row recorded strictly after after, or nil
// if none exists. Used to find the first-failure timestamp of a failure run.
func (r *HistoryRepository) FirstAfter(monitorID string, status int, after time.Time) (*MonitorStatus, error) {
	var row MonitorStatus
	err := r.db.Get(&row,
		"SELECT * FROM monitor_status WHERE monitor_id = ? AND status = ? AND timestamp > ? ORDER BY timestamp ASC LIMIT 1",
		monitorID, status, after)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find first row after %v: %w", after, err)
	}
	return &row, nil
}

// DeleteOlderThan removes history rows older than cutoff, the data cleaner's
// retention sweep. It returns the number of rows removed.
func (r *HistoryRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM monitor_status WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete history older than %v: %w", cutoff, err)
	}
	return result.RowsAffected()
}

// UptimeSince returns the fraction (0.0-1.0) of rows recorded since since
// that were UP, for the simple uptime-percentage view the status history
// directly supports.
func (r *HistoryRepository) UptimeSince(monitorID string, since time.Time) (float64, error) {
	var total, up int
	if err := r.db.Get(&total,
		"SELECT COUNT(*) FROM monitor_status WHERE monitor_id = ? AND timestamp >= ?",
		monitorID, since); err != nil {
		return 0, fmt.Errorf("failed to count total history: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	if err := r.db.Get(&up,
		"SELECT COUNT(*) FROM monitor_status WHERE monitor_id = ? AND timestamp >= ? AND status = ?",
		monitorID, since, StatusUp); err != nil {
		return 0, fmt.Errorf("failed to count up history: %w", err)
	}
	return float64(up) / float64(total), nil
}

// NotificationRepository manages notification channels and their bindings.
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository returns a new NotificationRepository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// ListEnabledBindingsWithChannels returns every enabled channel bound to
// monitorID through an enabled binding, the exact set the notification
// engine dispatches to.
func (r *NotificationRepository) ListEnabledBindingsWithChannels(monitorID string) ([]*BoundChannel, error) {
	var channels []*BoundChannel
	err := r.db.Select(&channels, `
		SELECT nc.*, nb.enabled AS binding_enabled
		FROM notification_bindings nb
		JOIN notification_channels nc ON nc.id = nb.channel_id
		WHERE nb.monitor_id = ? AND nb.enabled = TRUE AND nc.enabled = TRUE`,
		monitorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bound channels for %s: %w", monitorID, err)
	}
	return channels, nil
}

// CreateChannel inserts a new notification channel.
func (r *NotificationRepository) CreateChannel(c *NotificationChannel) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.NamedExec(`
		INSERT INTO notification_channels (id, name, type, enabled, config, default_for_new_monitors)
		VALUES (:id, :name, :type, :enabled, :config, :default_for_new_monitors)`,
		c)
	if err != nil {
		return fmt.Errorf("failed to create notification channel: %w", err)
	}
	return nil
}

// GetChannel loads a single notification channel by ID.
func (r *NotificationRepository) GetChannel(id string) (*NotificationChannel, error) {
	var c NotificationChannel
	err := r.db.Get(&c, "SELECT * FROM notification_channels WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification channel %s: %w", id, err)
	}
	return &c, nil
}

// ListChannels returns every configured notification channel.
func (r *NotificationRepository) ListChannels() ([]*NotificationChannel, error) {
	var channels []*NotificationChannel
	err := r.db.Select(&channels, "SELECT * FROM notification_channels ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list notification channels: %w", err)
	}
	return channels, nil
}

// UpdateChannel persists a notification channel's editable fields.
func (r *NotificationRepository) UpdateChannel(c *NotificationChannel) error {
	_, err := r.db.NamedExec(`
		UPDATE notification_channels SET
			name = :name, type = :type, enabled = :enabled, config = :config,
			default_for_new_monitors = :default_for_new_monitors
		WHERE id = :id`,
		c)
	if err != nil {
		return fmt.Errorf("failed to update notification channel %s: %w", c.ID, err)
	}
	return nil
}

// DeleteChannel removes a notification channel; its bindings cascade.
func (r *NotificationRepository) DeleteChannel(id string) error {
	_, err := r.db.Exec("DELETE FROM notification_channels WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete notification channel %s: %w", id, err)
	}
	return nil
}

// Bind creates or updates a monitor/channel binding.
func (r *NotificationRepository) Bind(monitorID, channelID string, enabled bool) error {
	_, err := r.db.Exec(`
		INSERT INTO notification_bindings (monitor_id, channel_id, enabled) VALUES (?, ?, ?)
		ON CONFLICT (monitor_id, channel_id) DO UPDATE SET enabled = excluded.enabled`,
		monitorID, channelID, enabled)
	if err != nil {
		return fmt.Errorf("failed to bind channel %s to monitor %s: %w", channelID, monitorID, err)
	}
	return nil
}

// Unbind removes a monitor/channel binding outright.
func (r *NotificationRepository) Unbind(monitorID, channelID string) error {
	_, err := r.db.Exec(
		"DELETE FROM notification_bindings WHERE monitor_id = ? AND channel_id = ?",
		monitorID, channelID)
	if err != nil {
		return fmt.Errorf("failed to unbind channel %s from monitor %s: %w", channelID, monitorID, err)
	}
	return nil
}

// GroupRepository manages monitor groups, a display-only grouping with no
// scheduling behavior of its own.
type GroupRepository struct {
	db *DB
}

// NewGroupRepository returns a new GroupRepository.
func NewGroupRepository(db *DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create inserts a new monitor group.
func (r *GroupRepository) Create(g *MonitorGroup) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	_, err := r.db.NamedExec(`
		INSERT INTO monitor_groups (id, name, description, color, display_order)
		VALUES (:id, :name, :description, :color, :display_order)`,
		g)
	if err != nil {
		return fmt.Errorf("failed to create monitor group: %w", err)
	}
	return nil
}

// GetByID loads a single monitor group.
func (r *GroupRepository) GetByID(id string) (*MonitorGroup, error) {
	var g MonitorGroup
	err := r.db.Get(&g, "SELECT * FROM monitor_groups WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor group %s: %w", id, err)
	}
	return &g, nil
}

// List returns every monitor group ordered for display.
func (r *GroupRepository) List() ([]*MonitorGroup, error) {
	var groups []*MonitorGroup
	err := r.db.Select(&groups, "SELECT * FROM monitor_groups ORDER BY display_order, name")
	if err != nil {
		return nil, fmt.Errorf("failed to list monitor groups: %w", err)
	}
	return groups, nil
}

// Delete removes a monitor group. Member monitors are not cascaded; the
// group_id foreign key's ON DELETE SET NULL clears their reference instead.
func (r *GroupRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM monitor_groups WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete monitor group %s: %w", id, err)
	}
	return nil
}
