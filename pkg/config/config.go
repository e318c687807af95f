package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the global configuration for the pulsewatch monitoring engine.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http" json:"http"`
	Logs     LogConfig      `yaml:"logs" json:"logs"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Monitor  MonitorConfig  `yaml:"monitor" json:"monitor"`
	Cleaner  CleanerConfig  `yaml:"cleaner" json:"cleaner"`
}

// HTTPConfig configures the thin push-ingestion / control HTTP surface.
type HTTPConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level   string `yaml:"level" json:"level"`
	Console bool   `yaml:"console" json:"console"`
	File    string `yaml:"file" json:"file"`
}

// DatabaseConfig configures the sqlite-backed persistence layer.
type DatabaseConfig struct {
	Path    string `yaml:"path" json:"path"`
	WALMode bool   `yaml:"wal_mode" json:"wal_mode"`
}

// MonitorConfig holds engine-wide defaults applied when a monitor doesn't
// override them in its own config map.
type MonitorConfig struct {
	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds" json:"default_timeout_seconds"`

	// CertExpiryWarningDays is the number of days before expiry at which an
	// http monitor's notifyCertExpiry check starts reporting DOWN. The
	// https-cert executor does not use it.
	CertExpiryWarningDays int `yaml:"cert_expiry_warning_days" json:"cert_expiry_warning_days"`

	// PushToleranceMultiplier is applied to a push monitor's pushInterval to
	// decide how much clock drift/jitter is tolerated before declaring a
	// missed heartbeat.
	PushToleranceMultiplier float64 `yaml:"push_tolerance_multiplier" json:"push_tolerance_multiplier"`
}

// CleanerConfig configures the daily history-retention sweep.
type CleanerConfig struct {
	IntervalCron  string `yaml:"interval_cron" json:"interval_cron"`
	RetentionDays int    `yaml:"retention_days" json:"retention_days"`
}

// globalConfig is the process-wide configuration instance, set by Load.
var globalConfig *Config

// Load loads configuration from a YAML file under ./configs/<env>.yaml and
// applies environment-variable overrides on top of it.
func Load() (*Config, error) {
	environment := os.Getenv("PULSEWATCH_ENV")
	if environment == "" {
		environment = "development"
	}

	configPath := fmt.Sprintf("./configs/%s.yaml", environment)

	config := defaults()

	if fileExists(configPath) {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	overrideWithEnv(config)

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration instance.
func Get() *Config {
	if globalConfig == nil {
		panic("configuration not loaded, call Load() first")
	}
	return globalConfig
}

// defaults returns a Config pre-populated with the engine's built-in defaults,
// so a missing configs/<env>.yaml still produces a runnable configuration.
func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 8089,
		},
		Logs: LogConfig{
			Level:   "info",
			Console: true,
		},
		Database: DatabaseConfig{
			Path:    "./data/pulsewatch.db",
			WALMode: true,
		},
		Monitor: MonitorConfig{
			DefaultTimeoutSeconds:   10,
			CertExpiryWarningDays:   14,
			PushToleranceMultiplier: 1.5,
		},
		Cleaner: CleanerConfig{
			IntervalCron:  "@daily",
			RetentionDays: 30,
		},
	}
}

// overrideWithEnv overrides configuration with environment variables.
func overrideWithEnv(config *Config) {
	if val := os.Getenv("PULSEWATCH_HTTP_HOST"); val != "" {
		config.HTTP.Host = val
	}
	if val := os.Getenv("PULSEWATCH_HTTP_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.HTTP.Port = port
		}
	}
	if val := os.Getenv("PULSEWATCH_LOG_LEVEL"); val != "" {
		config.Logs.Level = val
	}
	if val := os.Getenv("PULSEWATCH_DB_PATH"); val != "" {
		config.Database.Path = val
	}
	if val := os.Getenv("PULSEWATCH_DB_WAL_MODE"); val != "" {
		config.Database.WALMode = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("PULSEWATCH_CERT_EXPIRY_WARNING_DAYS"); val != "" {
		if days, err := strconv.Atoi(val); err == nil {
			config.Monitor.CertExpiryWarningDays = days
		}
	}
	if val := os.Getenv("PULSEWATCH_CLEANER_RETENTION_DAYS"); val != "" {
		if days, err := strconv.Atoi(val); err == nil {
			config.Cleaner.RetentionDays = days
		}
	}
}

// validate validates the configuration.
func validate(config *Config) error {
	if config.HTTP.Port <= 0 || config.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port: %d", config.HTTP.Port)
	}
	if config.Database.Path == "" {
		return fmt.Errorf("database.path cannot be empty")
	}
	if config.Monitor.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("monitor.default_timeout_seconds must be positive")
	}
	if config.Monitor.CertExpiryWarningDays <= 0 {
		return fmt.Errorf("monitor.cert_expiry_warning_days must be positive")
	}
	if config.Monitor.PushToleranceMultiplier <= 1.0 {
		return fmt.Errorf("monitor.push_tolerance_multiplier must be greater than 1.0")
	}
	if config.Cleaner.RetentionDays <= 0 {
		return fmt.Errorf("cleaner.retention_days must be positive")
	}
	return nil
}

// fileExists checks if a file exists.
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
