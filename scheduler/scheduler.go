package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mrudoy/studio-analytics-sub004/errors"
	"github.com/mrudoy/studio-analytics-sub004/logger"
	"github.com/mrudoy/studio-analytics-sub004/queue"
)

// Enqueuer is the slice of the queue the scheduler needs
type Enqueuer interface {
	Enqueue(ctx context.Context, payload queue.Payload) (*queue.Job, error)
}

// Status describes the currently installed schedule
type Status struct {
	Installed   bool       `json:"installed"`
	CronPattern string     `json:"cron_pattern,omitempty"`
	Timezone    string     `json:"timezone,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
}

// Scheduler owns the cron instance that fires scheduled pipeline runs.
// Exactly one cron entry exists at a time; Sync tears down and reinstalls it
// from the persisted config, so edits and toggles take effect immediately.
type Scheduler struct {
	store    *ConfigStore
	enqueuer Enqueuer
	log      *zap.SugaredLogger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
}

// New creates a scheduler. Call Sync to install the persisted schedule.
func New(store *ConfigStore, enqueuer Enqueuer) *Scheduler {
	return &Scheduler{
		store:    store,
		enqueuer: enqueuer,
		log:      logger.Named("scheduler"),
	}
}

// Sync reconciles the running cron instance with the persisted config:
// stop whatever is installed, then reinstall if the schedule is enabled.
func (s *Scheduler) Sync(ctx context.Context) error {
	cfg, err := s.store.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load schedule for sync")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}

	if !cfg.Enabled {
		s.log.Infow("Schedule disabled, no cron installed")
		return nil
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return errors.Wrapf(err, "invalid schedule timezone %q", cfg.Timezone)
	}

	c := cron.New(cron.WithLocation(loc))
	entryID, err := c.AddFunc(cfg.CronPattern, s.fire)
	if err != nil {
		return errors.Wrapf(err, "invalid cron pattern %q", cfg.CronPattern)
	}

	c.Start()
	s.cron = c
	s.entryID = entryID

	s.log.Infow("Schedule installed",
		"cron_pattern", cfg.CronPattern,
		"timezone", cfg.Timezone,
		"next_run", c.Entry(entryID).Next)
	return nil
}

// fire enqueues a scheduled pipeline run. A busy queue is expected whenever
// the previous run overlaps the next slot; the trigger is logged and dropped,
// never queued behind the running job.
func (s *Scheduler) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := s.enqueuer.Enqueue(ctx, queue.Payload{TriggeredBy: queue.TriggeredBySchedule})
	if err != nil {
		if errors.IsAlreadyRunning(err) {
			s.log.Infow("Scheduled run skipped, pipeline busy", "error", err)
			return
		}
		s.log.Errorw("Scheduled run failed to enqueue", "error", err)
		return
	}

	s.log.Infow("Scheduled pipeline run enqueued", "job_id", job.ID)
}

// Stop halts the cron instance. Safe to call when nothing is installed.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

// Status reports whether a schedule is installed and when it fires next
func (s *Scheduler) Status(ctx context.Context) (*Status, error) {
	cfg, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status := &Status{
		CronPattern: cfg.CronPattern,
		Timezone:    cfg.Timezone,
	}
	if s.cron != nil {
		status.Installed = true
		next := s.cron.Entry(s.entryID).Next
		status.NextRun = &next
	}
	return status, nil
}

// UpdateConfig validates, persists, and applies a new schedule in one step
func (s *Scheduler) UpdateConfig(ctx context.Context, cfg *ScheduleConfig) error {
	if cfg.CronPattern == "" {
		cfg.CronPattern = DefaultCronPattern
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "invalid timezone %q", cfg.Timezone)
	}
	if _, err := cron.ParseStandard(cfg.CronPattern); err != nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "invalid cron pattern %q: %v", cfg.CronPattern, err)
	}

	if err := s.store.Save(ctx, cfg); err != nil {
		return err
	}

	return s.Sync(ctx)
}
