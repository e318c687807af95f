package database

import (
	"encoding/json"
	"time"
)

// Monitor statuses, per the engine's three-value status domain.
const (
	StatusDown    = 0
	StatusUp      = 1
	StatusPending = 2
)

// Monitor types the probe package knows how to execute.
const (
	TypeHTTP      = "http"
	TypeHTTPSCert = "https-cert"
	TypeKeyword   = "keyword"
	TypePort      = "port"
	TypeMySQL     = "mysql"
	TypeRedis     = "redis"
	TypeICMP      = "icmp"
	TypePush      = "push"
)

// Notification channel types the notification package knows how to
// dispatch. 邮件/Webhook/微信推送/钉钉推送/企业微信推送 are the UI-facing labels; the
// stored type tag uses the English identifier the way monitor types do
// above.
const (
	ChannelTypeEmail    = "email"
	ChannelTypeWebhook  = "webhook"
	ChannelTypeWeChat   = "wechat-push"
	ChannelTypeDingTalk = "dingtalk"
	ChannelTypeWeCom    = "wecom"
)

// Monitor represents a configured probe target.
type Monitor struct {
	ID             string     `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Type           string     `db:"type" json:"type"`
	Active         bool       `db:"active" json:"active"`
	Interval       int        `db:"interval" json:"interval"`
	Retries        int        `db:"retries" json:"retries"`
	RetryInterval  int        `db:"retry_interval" json:"retryInterval"`
	ResendInterval int        `db:"resend_interval" json:"resendInterval"`
	UpsideDown     bool       `db:"upside_down" json:"upsideDown"`
	ConfigJSON     string     `db:"config" json:"-"`
	GroupID        *string    `db:"group_id" json:"groupId"`
	Description    *string    `db:"description" json:"description"`
	PushToken      *string    `db:"push_token" json:"-"`

	LastCheckAt *time.Time `db:"last_check_at" json:"lastCheckAt"`
	LastStatus  *int       `db:"last_status" json:"lastStatus"`
	LastMessage *string    `db:"last_message" json:"lastMessage"`
	LastPing    *int       `db:"last_ping" json:"lastPing"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Config unmarshals the monitor's type-specific configuration map.
func (m *Monitor) Config() (map[string]any, error) {
	if m.ConfigJSON == "" {
		return map[string]any{}, nil
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(m.ConfigJSON), &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetConfig marshals cfg into ConfigJSON and, for push monitors, keeps
// PushToken in sync so the push-ingestion endpoint can resolve a monitor by
// token without scanning every push monitor's JSON blob.
func (m *Monitor) SetConfig(cfg map[string]any) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	m.ConfigJSON = string(data)

	if m.Type == TypePush {
		if token, ok := cfg["token"].(string); ok && token != "" {
			m.PushToken = &token
		}
	}
	return nil
}

// MonitorStatus is one immutable history row produced by a single probe
// attempt (including retries, which collapse into the single decided row).
type MonitorStatus struct {
	ID          string    `db:"id" json:"id"`
	MonitorID   string    `db:"monitor_id" json:"monitorId"`
	Status      int       `db:"status" json:"status"`
	Message     *string   `db:"message" json:"message"`
	Ping        *int      `db:"ping" json:"ping"`
	DetailsJSON *string   `db:"details" json:"-"`
	Timestamp   time.Time `db:"timestamp" json:"timestamp"`
}

// NotificationChannel is a configured delivery target for notifications.
type NotificationChannel struct {
	ID                    string    `db:"id" json:"id"`
	Name                  string    `db:"name" json:"name"`
	Type                  string    `db:"type" json:"type"`
	Enabled               bool      `db:"enabled" json:"enabled"`
	ConfigJSON            string    `db:"config" json:"-"`
	DefaultForNewMonitors bool      `db:"default_for_new_monitors" json:"defaultForNewMonitors"`
	CreatedAt             time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time `db:"updated_at" json:"updatedAt"`
}

// Config unmarshals the channel's type-specific configuration map.
func (c *NotificationChannel) Config() (map[string]any, error) {
	if c.ConfigJSON == "" {
		return map[string]any{}, nil
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(c.ConfigJSON), &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NotificationBinding links a monitor to one of its notification channels.
type NotificationBinding struct {
	MonitorID string `db:"monitor_id" json:"monitorId"`
	ChannelID string `db:"channel_id" json:"channelId"`
	Enabled   bool   `db:"enabled" json:"enabled"`
}

// BoundChannel is a notification channel joined through an enabled binding,
// the shape the notification engine actually needs to dispatch.
type BoundChannel struct {
	NotificationChannel
	BindingEnabled bool `db:"binding_enabled"`
}

// MonitorGroup organizes monitors for display purposes only; it carries no
// scheduling behavior of its own.
type MonitorGroup struct {
	ID           string  `db:"id" json:"id"`
	Name         string  `db:"name" json:"name"`
	Description  *string `db:"description" json:"description"`
	Color        *string `db:"color" json:"color"`
	DisplayOrder int     `db:"display_order" json:"displayOrder"`
}

// StatusPage is a public, read-only aggregation view; out of engine scope
// but its schema is carried so a CRUD layer built on top has somewhere to
// land.
type StatusPage struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Slug        string    `db:"slug" json:"slug"`
	Description *string   `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// StatusPageMonitor binds a monitor onto a status page with per-page display
// attributes.
type StatusPageMonitor struct {
	StatusPageID string `db:"status_page_id" json:"statusPageId"`
	MonitorID    string `db:"monitor_id" json:"monitorId"`
	DisplayName  string `db:"display_name" json:"displayName"`
	Order        int    `db:"order" json:"order"`
}
