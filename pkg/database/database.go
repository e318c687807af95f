package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pulsewatch/pulsewatch/pkg/config"
)

// DB represents the database connection.
type DB struct {
	*sqlx.DB
	config *config.Config
}

// NewDB creates a new database connection, initializing the schema on the
// way up. The ":memory:" path gets its own branch since modernc.org/sqlite
// gives every new connection in a pool a separate in-memory database unless
// handled specially.
func NewDB(cfg *config.Config) (*DB, error) {
	dbPath := cfg.Database.Path

	if dbPath == ":memory:" {
		db, err := sqlx.Connect("sqlite", ":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to connect to in-memory database: %w", err)
		}
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}

		database := &DB{DB: db, config: cfg}
		if err := database.InitSchema(); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		return database, nil
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	connStr := dbPath + "?_pragma=foreign_keys(1)"
	if cfg.Database.WALMode {
		connStr += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=cache_size(1000)"
	}

	db, err := sqlx.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dbWrapper := &DB{DB: db, config: cfg}
	if err := dbWrapper.InitSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return dbWrapper, nil
}

// InitSchema initializes the database schema.
func (db *DB) InitSchema() error {
	schema := `
	-- Monitors table
	CREATE TABLE IF NOT EXISTS monitors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL, -- http, https-cert, keyword, port, mysql, redis, icmp, push
		active BOOLEAN NOT NULL DEFAULT TRUE,
		interval INTEGER NOT NULL DEFAULT 60,
		retries INTEGER NOT NULL DEFAULT 0,
		retry_interval INTEGER NOT NULL DEFAULT 60,
		resend_interval INTEGER NOT NULL DEFAULT 0,
		upside_down BOOLEAN NOT NULL DEFAULT FALSE,
		config TEXT NOT NULL DEFAULT '{}', -- JSON, type-specific
		group_id TEXT,
		description TEXT,
		push_token TEXT,
		last_check_at DATETIME,
		last_status INTEGER,
		last_message TEXT,
		last_ping INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (group_id) REFERENCES monitor_groups(id) ON DELETE SET NULL
	);

	-- Monitor status history (append-only)
	CREATE TABLE IF NOT EXISTS monitor_status (
		id TEXT PRIMARY KEY, -- compact ID, see pkg/compactid
		monitor_id TEXT NOT NULL,
		status INTEGER NOT NULL, -- 0=down, 1=up, 2=pending
		message TEXT,
		ping INTEGER,
		details TEXT, -- JSON, optional
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
	);

	-- Notification channels
	CREATE TABLE IF NOT EXISTS notification_channels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL, -- email, webhook, wechat-push, dingtalk, wecom
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		config TEXT NOT NULL DEFAULT '{}',
		default_for_new_monitors BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Monitor <-> channel bindings
	CREATE TABLE IF NOT EXISTS notification_bindings (
		monitor_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (monitor_id, channel_id),
		FOREIGN KEY (monitor_id) REFERENCES monitors(id) ON DELETE CASCADE,
		FOREIGN KEY (channel_id) REFERENCES notification_channels(id) ON DELETE CASCADE
	);

	-- Monitor groups
	CREATE TABLE IF NOT EXISTS monitor_groups (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		description TEXT,
		color TEXT,
		display_order INTEGER NOT NULL DEFAULT 0
	);

	-- Status pages (out of engine scope; schema carried for the CRUD layer)
	CREATE TABLE IF NOT EXISTS status_pages (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT UNIQUE NOT NULL,
		description TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS status_page_monitors (
		status_page_id TEXT NOT NULL,
		monitor_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		"order" INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (status_page_id, monitor_id),
		FOREIGN KEY (status_page_id) REFERENCES status_pages(id) ON DELETE CASCADE,
		FOREIGN KEY (monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_monitors_active ON monitors(active);
	CREATE INDEX IF NOT EXISTS idx_monitors_push_token ON monitors(push_token);
	CREATE INDEX IF NOT EXISTS idx_monitors_group_id ON monitors(group_id);
	CREATE INDEX IF NOT EXISTS idx_monitor_status_monitor_timestamp ON monitor_status(monitor_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_monitor_status_monitor_status ON monitor_status(monitor_id, status);
	CREATE INDEX IF NOT EXISTS idx_notification_bindings_monitor ON notification_bindings(monitor_id);
	CREATE INDEX IF NOT EXISTS idx_notification_bindings_channel ON notification_bindings(channel_id);

	CREATE TRIGGER IF NOT EXISTS update_monitors_timestamp
		AFTER UPDATE ON monitors
		BEGIN
			UPDATE monitors SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END;

	CREATE TRIGGER IF NOT EXISTS update_notification_channels_timestamp
		AFTER UPDATE ON notification_channels
		BEGIN
			UPDATE notification_channels SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END;
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// HealthCheck performs a health check on the database.
func (db *DB) HealthCheck() error {
	var result int
	err := db.Get(&result, "SELECT 1")
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// GetStats returns database statistics.
func (db *DB) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	tables := []string{"monitors", "monitor_status", "notification_channels", "notification_bindings", "monitor_groups"}
	for _, table := range tables {
		var count int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
		if err := db.Get(&count, query); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table+"_count"] = count
	}

	var walMode string
	if err := db.Get(&walMode, "PRAGMA journal_mode"); err == nil {
		stats["journal_mode"] = walMode
	}

	return stats, nil
}

// MonitorRepository returns a new monitor repository.
func (db *DB) MonitorRepository() *MonitorRepository {
	return NewMonitorRepository(db)
}

// HistoryRepository returns a new status-history repository.
func (db *DB) HistoryRepository() *HistoryRepository {
	return NewHistoryRepository(db)
}

// NotificationRepository returns a new notification-channel/binding repository.
func (db *DB) NotificationRepository() *NotificationRepository {
	return NewNotificationRepository(db)
}

// GroupRepository returns a new monitor-group repository.
func (db *DB) GroupRepository() *GroupRepository {
	return NewGroupRepository(db)
}
