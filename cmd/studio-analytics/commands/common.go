// Package commands implements the studio-analytics CLI commands.
package commands

import (
	"database/sql"

	"github.com/mrudoy/studio-analytics-sub004/config"
	"github.com/mrudoy/studio-analytics-sub004/db"
	"github.com/mrudoy/studio-analytics-sub004/errors"
	"github.com/mrudoy/studio-analytics-sub004/logger"
	"github.com/mrudoy/studio-analytics-sub004/queue"
)

// openDatabase loads config and opens the migrated job database
func openDatabase() (*sql.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load configuration")
	}

	conn, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open database at %s", cfg.Database.Path)
	}

	if err := db.Migrate(conn, logger.Logger); err != nil {
		conn.Close()
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	return conn, cfg, nil
}

// newQueue builds the queue façade from loaded config
func newQueue(conn *sql.DB, cfg *config.Config) *queue.Queue {
	return queue.New(conn, queue.Options{
		StaleThreshold: cfg.Worker.StaleThreshold(),
		OpTimeout:      cfg.Worker.OpTimeout(),
	})
}
