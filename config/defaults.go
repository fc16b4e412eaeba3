package config

import "github.com/spf13/viper"

// SetDefaults registers default values for all configuration keys
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "studio-analytics.db")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8077)

	v.SetDefault("panel.base_url", "")
	v.SetDefault("panel.username", "")
	v.SetDefault("panel.password", "")
	v.SetDefault("panel.requests_per_second", 2.0)
	v.SetDefault("panel.timeout_seconds", 60)

	v.SetDefault("pipeline.categories", []string{"attendance", "sales", "memberships", "payroll"})
	v.SetDefault("pipeline.spreadsheet_id", "")
	v.SetDefault("pipeline.sheet_webhook_url", "")
	v.SetDefault("pipeline.digest_recipients", []string{})
	v.SetDefault("pipeline.smtp_host", "")
	v.SetDefault("pipeline.smtp_port", 587)
	v.SetDefault("pipeline.smtp_from", "")
	v.SetDefault("pipeline.shopify_enabled", false)

	v.SetDefault("worker.poll_interval_seconds", 2)
	v.SetDefault("worker.stale_threshold_minutes", 30)
	v.SetDefault("worker.max_attempts", 2)
	v.SetDefault("worker.retry_backoff_seconds", 30)
	v.SetDefault("worker.op_timeout_seconds", 5)
	v.SetDefault("worker.session_timeout_minutes", 30)

	// Twice daily, morning and evening, studio local time
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.cron_pattern", "0 6,18 * * *")
	v.SetDefault("schedule.timezone", "America/New_York")
}
