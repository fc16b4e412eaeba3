package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "studio-analytics.db", cfg.Database.Path)
	assert.Equal(t, 8077, cfg.Server.Port)
	assert.Equal(t, []string{"attendance", "sales", "memberships", "payroll"}, cfg.Pipeline.Categories)
	assert.Equal(t, 30, cfg.Worker.StaleThresholdMinutes)
	assert.Equal(t, 2, cfg.Worker.MaxAttempts)
	assert.False(t, cfg.Schedule.Enabled)
	assert.Equal(t, "0 6,18 * * *", cfg.Schedule.CronPattern)
	assert.Equal(t, "America/New_York", cfg.Schedule.Timezone)
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval())
	assert.Equal(t, 30*time.Minute, cfg.Worker.StaleThreshold())
	assert.Equal(t, 30*time.Second, cfg.Worker.RetryBackoff())
	assert.Equal(t, 5*time.Second, cfg.Worker.OpTimeout())
	assert.Equal(t, 30*time.Minute, cfg.Worker.SessionTimeout())
	assert.Equal(t, 60*time.Second, cfg.Panel.PanelTimeout())
}

func TestLoadFromFile(t *testing.T) {
	t.Run("overrides defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		content := `
[database]
path = "/var/lib/studio/analytics.db"

[schedule]
enabled = true
cron_pattern = "30 7 * * 1-5"
timezone = "Europe/Berlin"
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)

		assert.Equal(t, "/var/lib/studio/analytics.db", cfg.Database.Path)
		assert.True(t, cfg.Schedule.Enabled)
		assert.Equal(t, "30 7 * * 1-5", cfg.Schedule.CronPattern)
		assert.Equal(t, "Europe/Berlin", cfg.Schedule.Timezone)
		// Untouched sections keep defaults
		assert.Equal(t, 8077, cfg.Server.Port)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := LoadFromFile("/nonexistent/config.toml")
		assert.Error(t, err)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	cfg.Server.Port = 9000
	cfg.Schedule.Enabled = true
	require.NoError(t, Save(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, loaded.Server.Port)
	assert.True(t, loaded.Schedule.Enabled)
}

func TestSaveRotatesBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	require.NoError(t, Save(cfg, path))
	require.NoError(t, Save(cfg, path))

	_, err := os.Stat(path + ".back1")
	assert.NoError(t, err, "second save should create .back1")
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, Save(Default(), path))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Stop()
	w.debouncePeriod = 50 * time.Millisecond

	reloaded := make(chan *Config, 1)
	w.OnReload(func(cfg *Config) error {
		select {
		case reloaded <- cfg:
		default:
		}
		return nil
	})
	w.Start()

	cfg := Default()
	cfg.Server.Port = 9999
	require.NoError(t, Save(cfg, path))

	select {
	case got := <-reloaded:
		assert.Equal(t, 9999, got.Server.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}
