package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mrudoy/studio-analytics-sub004/errors"
	"github.com/mrudoy/studio-analytics-sub004/logger"
)

// Event types emitted by the publisher
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// Event is one status update streamed to an observer
type Event struct {
	Type       string                    `json:"type"`
	JobID      string                    `json:"job_id"`
	State      State                     `json:"state,omitempty"`
	Step       string                    `json:"step,omitempty"`
	Percent    int                       `json:"percent"`
	StartedAt  *time.Time                `json:"started_at,omitempty"`
	Categories map[string]CategoryStatus `json:"categories,omitempty"`
	Result     *Result                   `json:"result,omitempty"`
	Error      string                    `json:"error,omitempty"`
	Timestamp  time.Time                 `json:"timestamp"`
}

// PublisherConfig tunes a status stream
type PublisherConfig struct {
	PollInterval   time.Duration // how often the job row is re-read
	SessionTimeout time.Duration // hard cap on one observer session
}

// DefaultPublisherConfig returns the standard streaming cadence
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		PollInterval:   time.Second,
		SessionTimeout: 30 * time.Minute,
	}
}

// Publisher streams job progress to observers by polling the store. Polling
// rather than push keeps the worker completely unaware of observers: it
// writes progress rows and nothing else.
type Publisher struct {
	store *Store
	cfg   PublisherConfig
	log   *zap.SugaredLogger
}

// NewPublisher creates a publisher over the store
func NewPublisher(store *Store, cfg PublisherConfig) *Publisher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 30 * time.Minute
	}
	return &Publisher{
		store: store,
		cfg:   cfg,
		log:   logger.Named("publisher"),
	}
}

// Stream follows one job until it reaches a terminal state, sending events
// through send. Progress events are emitted only when the snapshot changes;
// exactly one terminal event (complete or error) ends a successful session.
// The stream also ends when ctx is cancelled (observer went away), when send
// fails, or when the session outlives SessionTimeout.
func (p *Publisher) Stream(ctx context.Context, jobID string, send func(Event) error) error {
	deadline := time.Now().Add(p.cfg.SessionTimeout)

	var lastStep string
	lastPercent := -1

	// First poll immediately so the observer sees current state without
	// waiting a full tick.
	done, err := p.poll(ctx, jobID, send, &lastStep, &lastPercent)
	if done || err != nil {
		return err
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if time.Now().After(deadline) {
				p.log.Warnw("Status stream session timed out", "job_id", jobID)
				_ = send(Event{
					Type:      EventError,
					JobID:     jobID,
					Error:     "session timeout",
					Timestamp: time.Now(),
				})
				return errors.Wrapf(errors.ErrTimeout, "status stream for job %s", jobID)
			}

			done, err := p.poll(ctx, jobID, send, &lastStep, &lastPercent)
			if done || err != nil {
				return err
			}
		}
	}
}

// poll reads the job once and emits whatever event is due. Returns done=true
// when the session should end.
func (p *Publisher) poll(ctx context.Context, jobID string, send func(Event) error, lastStep *string, lastPercent *int) (bool, error) {
	job, err := p.store.GetJob(ctx, jobID)
	if errors.IsJobNotFound(err) {
		sendErr := send(Event{
			Type:      EventError,
			JobID:     jobID,
			Error:     "job not found",
			Timestamp: time.Now(),
		})
		return true, sendErr
	}
	if err != nil {
		// The observer gets a terminal event even when the store read
		// fails; a silently closed stream looks like a hang.
		_ = send(Event{
			Type:      EventError,
			JobID:     jobID,
			Error:     "status read failed",
			Timestamp: time.Now(),
		})
		return true, errors.Wrapf(err, "failed to poll job %s", jobID)
	}

	switch {
	case job.State == StateCompleted:
		return true, send(Event{
			Type:      EventComplete,
			JobID:     jobID,
			State:     job.State,
			Percent:   100,
			Result:    job.Result,
			Timestamp: time.Now(),
		})

	case job.State == StateFailed:
		return true, send(Event{
			Type:      EventError,
			JobID:     jobID,
			State:     job.State,
			Error:     job.FailureReason,
			Timestamp: time.Now(),
		})

	case job.Progress.Step != *lastStep || job.Progress.Percent != *lastPercent:
		*lastStep = job.Progress.Step
		*lastPercent = job.Progress.Percent
		if err := send(Event{
			Type:       EventProgress,
			JobID:      jobID,
			State:      job.State,
			Step:       job.Progress.Step,
			Percent:    job.Progress.Percent,
			StartedAt:  job.Progress.StartedAt,
			Categories: job.Progress.Categories,
			Timestamp:  time.Now(),
		}); err != nil {
			// Observer disconnected
			return true, nil
		}
	}

	return false, nil
}
