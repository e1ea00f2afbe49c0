// Package config loads the bridge configuration from a JSON or YAML file,
// layered under environment variable overrides and above built-in defaults
// (environment > file > default). The manager can watch the file and publish
// reloads.
package config

import (
	"strings"
)

type Config struct {
	// ListenAddr is the webhook ingress bind address. The PORT environment
	// variable overrides the port part.
	ListenAddr string `json:"listen_addr,omitempty"`

	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Matrix  MatrixConfig  `json:"matrix"`
	Grafana GrafanaConfig `json:"grafana,omitempty"`
	Summary SummaryConfig `json:"summary"`

	// MentionConfigPath points at the optional mention directive file
	// (JSON or YAML). Empty means mentions are disabled.
	MentionConfigPath string `json:"mention_config_path,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"` // nil defaults to true
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // default "sqlite"
	Path        string `json:"path,omitempty"`   // default "./alerts.db"; DB_FILE overrides
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type MatrixConfig struct {
	HomeserverURL string `json:"homeserver_url,omitempty"`
	AccessToken   string `json:"access_token,omitempty"`
	RoomID        string `json:"room_id,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
}

type GrafanaConfig struct {
	// URL and APIKey configure the reconciler that polls the alert source
	// for still-firing alerts. Empty URL disables reconciliation.
	URL    string `json:"url,omitempty"`
	APIKey string `json:"api_key,omitempty"`

	// ReconcileInterval is a Go duration string; default "5m".
	ReconcileInterval string `json:"reconcile_interval,omitempty"`
}

// SummaryConfig holds the minimum digest intervals per tier, as Go duration
// strings. An empty value disables digests for that tier.
type SummaryConfig struct {
	ScheduleCrit string `json:"schedule_crit,omitempty"`
	ScheduleWarn string `json:"schedule_warn,omitempty"`
}

// ConsoleEnabled resolves the tri-state console flag.
func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}

// Normalize fills defaults for zero-valued fields.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = ":3000"
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "sqlite"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = "./alerts.db"
	}
	if strings.TrimSpace(c.Matrix.HomeserverURL) == "" {
		c.Matrix.HomeserverURL = "https://matrix.org"
	}
	if strings.TrimSpace(c.Grafana.ReconcileInterval) == "" {
		c.Grafana.ReconcileInterval = "5m"
	}
}
