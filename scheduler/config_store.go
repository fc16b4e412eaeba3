// Package scheduler installs and maintains the cron schedule that triggers
// pipeline runs. The schedule lives in the database as a single row so it
// survives restarts and can be edited over the API.
package scheduler

import (
	"context"
	"database/sql"
	"time"

	"github.com/mrudoy/studio-analytics-sub004/errors"
)

// ScheduleConfig is the persisted cron schedule
type ScheduleConfig struct {
	Enabled     bool      `json:"enabled"`
	CronPattern string    `json:"cron_pattern"`
	Timezone    string    `json:"timezone"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Defaults used when no row has ever been saved
const (
	DefaultCronPattern = "0 6,18 * * *"
	DefaultTimezone    = "America/New_York"
)

// ConfigStore persists the singleton schedule row
type ConfigStore struct {
	db *sql.DB
}

// NewConfigStore creates a store over the given connection
func NewConfigStore(db *sql.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

// Get returns the saved schedule, or the disabled default when none exists
func (s *ConfigStore) Get(ctx context.Context) (*ScheduleConfig, error) {
	var cfg ScheduleConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled, cron_pattern, timezone, updated_at FROM schedule_config WHERE id = 1`).
		Scan(&cfg.Enabled, &cfg.CronPattern, &cfg.Timezone, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &ScheduleConfig{
			Enabled:     false,
			CronPattern: DefaultCronPattern,
			Timezone:    DefaultTimezone,
		}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load schedule config")
	}
	return &cfg, nil
}

// Save upserts the singleton schedule row
func (s *ConfigStore) Save(ctx context.Context, cfg *ScheduleConfig) error {
	cfg.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_config (id, enabled, cron_pattern, timezone, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled = excluded.enabled,
			cron_pattern = excluded.cron_pattern,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at
	`, cfg.Enabled, cfg.CronPattern, cfg.Timezone, cfg.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to save schedule config")
	}
	return nil
}
