// Package config loads and persists the studio-analytics configuration.
package config

import "time"

// Config represents the studio-analytics configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Panel    PanelConfig    `mapstructure:"panel"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// PanelConfig configures access to the studio-management admin panel
type PanelConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	Username          string  `mapstructure:"username"`
	Password          string  `mapstructure:"password"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // rate limit against the panel (default: 2)
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`     // per-request timeout (default: 60)
}

// PipelineConfig configures the report pipeline body
type PipelineConfig struct {
	Categories       []string `mapstructure:"categories"`        // report categories to collect (default: attendance, sales, memberships, payroll)
	SpreadsheetID    string   `mapstructure:"spreadsheet_id"`    // destination spreadsheet for aggregated results
	SheetWebhookURL  string   `mapstructure:"sheet_webhook_url"` // web-app endpoint that writes rows into the spreadsheet
	DigestRecipients []string `mapstructure:"digest_recipients"` // email addresses for the run digest
	SMTPHost         string   `mapstructure:"smtp_host"`         // mail relay for the digest
	SMTPPort         int      `mapstructure:"smtp_port"`
	SMTPFrom         string   `mapstructure:"smtp_from"`
	ShopifyEnabled   bool     `mapstructure:"shopify_enabled"` // run the Shopify sync stage
}

// WorkerConfig configures the pipeline worker and queue self-healing
type WorkerConfig struct {
	PollIntervalSeconds   int `mapstructure:"poll_interval_seconds"`   // how often the worker checks for work (default: 2)
	StaleThresholdMinutes int `mapstructure:"stale_threshold_minutes"` // active jobs older than this are reaped (default: 30)
	MaxAttempts           int `mapstructure:"max_attempts"`            // pipeline attempts before a job fails for good (default: 2)
	RetryBackoffSeconds   int `mapstructure:"retry_backoff_seconds"`   // delay before a retry attempt (default: 30)
	OpTimeoutSeconds      int `mapstructure:"op_timeout_seconds"`      // bound on individual store operations (default: 5)
	SessionTimeoutMinutes int `mapstructure:"session_timeout_minutes"` // status stream hard wall-clock timeout (default: 30)
}

// ScheduleConfig holds the defaults used to seed the persisted schedule
// singleton on first start. The live values are owned by the scheduler store.
type ScheduleConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	CronPattern string `mapstructure:"cron_pattern"`
	Timezone    string `mapstructure:"timezone"`
}

// PollInterval returns the worker poll interval as a duration
func (w WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

// StaleThreshold returns the reaper staleness threshold as a duration
func (w WorkerConfig) StaleThreshold() time.Duration {
	return time.Duration(w.StaleThresholdMinutes) * time.Minute
}

// RetryBackoff returns the retry backoff as a duration
func (w WorkerConfig) RetryBackoff() time.Duration {
	return time.Duration(w.RetryBackoffSeconds) * time.Second
}

// OpTimeout returns the per-operation store timeout as a duration
func (w WorkerConfig) OpTimeout() time.Duration {
	return time.Duration(w.OpTimeoutSeconds) * time.Second
}

// SessionTimeout returns the status stream session timeout as a duration
func (w WorkerConfig) SessionTimeout() time.Duration {
	return time.Duration(w.SessionTimeoutMinutes) * time.Minute
}

// PanelTimeout returns the admin panel request timeout as a duration
func (p PanelConfig) PanelTimeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}
