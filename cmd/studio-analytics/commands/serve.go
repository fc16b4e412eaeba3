package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrudoy/studio-analytics-sub004/config"
	"github.com/mrudoy/studio-analytics-sub004/logger"
	"github.com/mrudoy/studio-analytics-sub004/pipeline"
	"github.com/mrudoy/studio-analytics-sub004/queue"
	"github.com/mrudoy/studio-analytics-sub004/scheduler"
	"github.com/mrudoy/studio-analytics-sub004/server"
)

// ServeCmd starts the orchestrator: database, queue, worker, scheduler,
// config watcher, and the HTTP API.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pipeline orchestrator",
	Long: `Start the orchestrator process: the job queue and worker, the cron
scheduler, and the HTTP API with the websocket status stream.

The process runs until interrupted (Ctrl+C or SIGTERM) and shuts down
gracefully, letting an in-flight pipeline run checkpoint its state.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	conn, cfg, err := openDatabase()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := newQueue(conn, cfg)

	panelClient, err := pipeline.NewPanelClient(pipeline.PanelConfig{
		BaseURL:           cfg.Panel.BaseURL,
		Username:          cfg.Panel.Username,
		Password:          cfg.Panel.Password,
		RequestsPerSecond: cfg.Panel.RequestsPerSecond,
		Timeout:           cfg.Panel.PanelTimeout(),
	})
	if err != nil {
		return err
	}

	body := pipeline.New(pipeline.Config{
		Categories:       cfg.Pipeline.Categories,
		SpreadsheetID:    cfg.Pipeline.SpreadsheetID,
		DigestRecipients: cfg.Pipeline.DigestRecipients,
		ShopifyEnabled:   cfg.Pipeline.ShopifyEnabled,
	},
		pipeline.NewPanelCollector(panelClient),
		pipeline.NewSheetPublisher(cfg.Pipeline.SheetWebhookURL),
		pipeline.NewSMTPDigestSender(cfg.Pipeline.SMTPHost, cfg.Pipeline.SMTPPort, cfg.Pipeline.SMTPFrom),
		nil)

	worker := queue.NewWorker(ctx, q.Store(), body, queue.WorkerConfig{
		PollInterval: cfg.Worker.PollInterval(),
		MaxAttempts:  cfg.Worker.MaxAttempts,
		RetryBackoff: cfg.Worker.RetryBackoff(),
	})
	worker.Start()
	defer worker.Stop()

	sched := scheduler.New(scheduler.NewConfigStore(conn), q)
	if err := sched.Sync(ctx); err != nil {
		logger.Warnw("Failed to install saved schedule", "error", err)
	}
	defer sched.Stop()

	// Re-sync the scheduler when the config file changes on disk
	if configPath := config.GetViper().ConfigFileUsed(); configPath != "" {
		watcher, err := config.NewWatcher(configPath)
		if err != nil {
			logger.Warnw("Config watcher unavailable", "error", err)
		} else {
			watcher.OnReload(func(*config.Config) error {
				return sched.Sync(ctx)
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	publisher := queue.NewPublisher(q.Store(), queue.PublisherConfig{
		SessionTimeout: cfg.Worker.SessionTimeout(),
	})
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, q, publisher, sched)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("HTTP shutdown did not complete cleanly", "error", err)
	}

	cancel()
	return nil
}
