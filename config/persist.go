package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/mrudoy/studio-analytics-sub004/errors"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before
// modifying a config file.
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete oldest backup")
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, 0644); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// tomlConfig mirrors Config with toml tags for serialization
type tomlConfig struct {
	Database struct {
		Path string `toml:"path"`
	} `toml:"database"`
	Server struct {
		Host string `toml:"host"`
		Port int    `toml:"port"`
	} `toml:"server"`
	Panel struct {
		BaseURL           string  `toml:"base_url"`
		Username          string  `toml:"username"`
		RequestsPerSecond float64 `toml:"requests_per_second"`
		TimeoutSeconds    int     `toml:"timeout_seconds"`
	} `toml:"panel"`
	Pipeline struct {
		Categories       []string `toml:"categories"`
		SpreadsheetID    string   `toml:"spreadsheet_id"`
		SheetWebhookURL  string   `toml:"sheet_webhook_url"`
		DigestRecipients []string `toml:"digest_recipients"`
		SMTPHost         string   `toml:"smtp_host"`
		SMTPPort         int      `toml:"smtp_port"`
		SMTPFrom         string   `toml:"smtp_from"`
		ShopifyEnabled   bool     `toml:"shopify_enabled"`
	} `toml:"pipeline"`
	Worker struct {
		PollIntervalSeconds   int `toml:"poll_interval_seconds"`
		StaleThresholdMinutes int `toml:"stale_threshold_minutes"`
		MaxAttempts           int `toml:"max_attempts"`
		RetryBackoffSeconds   int `toml:"retry_backoff_seconds"`
		OpTimeoutSeconds      int `toml:"op_timeout_seconds"`
		SessionTimeoutMinutes int `toml:"session_timeout_minutes"`
	} `toml:"worker"`
	Schedule struct {
		Enabled     bool   `toml:"enabled"`
		CronPattern string `toml:"cron_pattern"`
		Timezone    string `toml:"timezone"`
	} `toml:"schedule"`
}

// Save writes the configuration to the given path as TOML, rotating backups
// of any existing file first. The panel password is never written to disk;
// it is sourced from the STUDIO_PANEL_PASSWORD environment variable.
func Save(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	if err := createBackup(configPath); err != nil {
		return err
	}

	var out tomlConfig
	out.Database.Path = cfg.Database.Path
	out.Server.Host = cfg.Server.Host
	out.Server.Port = cfg.Server.Port
	out.Panel.BaseURL = cfg.Panel.BaseURL
	out.Panel.Username = cfg.Panel.Username
	out.Panel.RequestsPerSecond = cfg.Panel.RequestsPerSecond
	out.Panel.TimeoutSeconds = cfg.Panel.TimeoutSeconds
	out.Pipeline.Categories = cfg.Pipeline.Categories
	out.Pipeline.SpreadsheetID = cfg.Pipeline.SpreadsheetID
	out.Pipeline.SheetWebhookURL = cfg.Pipeline.SheetWebhookURL
	out.Pipeline.DigestRecipients = cfg.Pipeline.DigestRecipients
	out.Pipeline.SMTPHost = cfg.Pipeline.SMTPHost
	out.Pipeline.SMTPPort = cfg.Pipeline.SMTPPort
	out.Pipeline.SMTPFrom = cfg.Pipeline.SMTPFrom
	out.Pipeline.ShopifyEnabled = cfg.Pipeline.ShopifyEnabled
	out.Worker.PollIntervalSeconds = cfg.Worker.PollIntervalSeconds
	out.Worker.StaleThresholdMinutes = cfg.Worker.StaleThresholdMinutes
	out.Worker.MaxAttempts = cfg.Worker.MaxAttempts
	out.Worker.RetryBackoffSeconds = cfg.Worker.RetryBackoffSeconds
	out.Worker.OpTimeoutSeconds = cfg.Worker.OpTimeoutSeconds
	out.Worker.SessionTimeoutMinutes = cfg.Worker.SessionTimeoutMinutes
	out.Schedule.Enabled = cfg.Schedule.Enabled
	out.Schedule.CronPattern = cfg.Schedule.CronPattern
	out.Schedule.Timezone = cfg.Schedule.Timezone

	content, err := toml.Marshal(out)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return errors.Wrapf(err, "failed to write config to %s", configPath)
	}

	return nil
}

// Default returns the configuration populated entirely from defaults
func Default() *Config {
	v := newDefaultViper()
	var cfg Config
	// Defaults always unmarshal cleanly
	_ = v.Unmarshal(&cfg)
	return &cfg
}
