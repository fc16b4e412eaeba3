package queue

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/mrudoy/studio-analytics-sub004/errors"
	"github.com/mrudoy/studio-analytics-sub004/logger"
)

// Options tune the queue façade
type Options struct {
	// StaleThreshold is how long an active job may run before the reaper
	// considers it abandoned.
	StaleThreshold time.Duration
	// OpTimeout bounds each individual store operation issued by queue
	// maintenance (reaping, clearing).
	OpTimeout time.Duration
}

const (
	defaultStaleThreshold = 30 * time.Minute
	defaultOpTimeout      = 5 * time.Second
)

// Queue is the single-flight enqueue façade over the job store. Every
// enqueue first sweeps stale jobs, then admits at most one pipeline job into
// the waiting/active window.
type Queue struct {
	store     *Store
	reaper    *Reaper
	opTimeout time.Duration
	log       *zap.SugaredLogger
}

// New creates a queue over the given database connection
func New(db *sql.DB, opts Options) *Queue {
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = defaultStaleThreshold
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}

	store := NewStore(db)
	return &Queue{
		store:     store,
		reaper:    NewReaper(store, opts.StaleThreshold, opts.OpTimeout),
		opTimeout: opts.OpTimeout,
		log:       logger.Named("queue"),
	}
}

// Store exposes the underlying job store for the worker and publisher
func (q *Queue) Store() *Store {
	return q.store
}

// Enqueue admits a new pipeline job. It first sweeps stale jobs so a zombie
// row from a crashed worker never blocks the queue forever, then inserts the
// job conditionally: ErrAlreadyRunning when another job is already waiting
// or active.
func (q *Queue) Enqueue(ctx context.Context, payload Payload) (*Job, error) {
	if _, err := q.reaper.Sweep(ctx); err != nil {
		// A failed sweep degrades to the pre-reaper behavior; enqueue
		// still gets its answer from the conditional insert.
		q.log.Warnw("Stale-job sweep failed during enqueue", "error", err)
	}

	counts, err := q.store.CountByStates(ctx, StateWaiting, StateActive)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check queue occupancy")
	}
	if counts[StateWaiting] > 0 || counts[StateActive] > 0 {
		return nil, errors.Wrapf(errors.ErrAlreadyRunning,
			"pipeline busy: active=%d, waiting=%d", counts[StateActive], counts[StateWaiting])
	}

	job := NewJob(payload)
	if err := q.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	q.log.Infow("Enqueued pipeline job",
		"job_id", job.ID,
		"triggered_by", payload.TriggeredBy)
	return job, nil
}

// ClearResult summarizes a ClearQueue call
type ClearResult struct {
	Cleared int `json:"cleared"`
}

// ClearQueue removes every non-terminal job: active jobs are force-failed
// with an operator-visible reason, waiting and delayed jobs are deleted.
// Each store operation gets its own bounded timeout so a wedged database
// cannot hang the reset endpoint; jobs that time out are logged and left
// for the next sweep rather than counted as cleared.
func (q *Queue) ClearQueue(ctx context.Context) (*ClearResult, error) {
	result := &ClearResult{}

	for _, state := range []State{StateActive, StateWaiting, StateDelayed} {
		jobs, err := q.listWithTimeout(ctx, state)
		if err != nil {
			q.log.Warnw("Failed to list jobs during queue clear", "state", state, "error", err)
			continue
		}

		for _, job := range jobs {
			if q.clearOne(ctx, job) {
				result.Cleared++
			}
		}
	}

	q.log.Infow("Queue cleared", "cleared", result.Cleared)
	return result, nil
}

func (q *Queue) listWithTimeout(ctx context.Context, state State) ([]*Job, error) {
	opCtx, cancel := context.WithTimeout(ctx, q.opTimeout)
	defer cancel()
	return q.store.ListJobsByState(opCtx, state, 100)
}

func (q *Queue) clearOne(ctx context.Context, job *Job) bool {
	opCtx, cancel := context.WithTimeout(ctx, q.opTimeout)
	defer cancel()

	if job.State == StateActive {
		if err := q.store.ForceFail(opCtx, job.ID, "Cleared by user"); err != nil {
			q.log.Warnw("Failed to clear active job", "job_id", job.ID, "error", err)
			return false
		}
		return true
	}

	removed, err := q.store.RemoveJob(opCtx, job.ID)
	if err != nil {
		q.log.Warnw("Failed to remove job", "job_id", job.ID, "error", err)
		return false
	}
	if !removed {
		// Raced into active between list and delete; fail it instead
		if err := q.store.ForceFail(opCtx, job.ID, "Cleared by user"); err != nil {
			q.log.Warnw("Failed to clear raced job", "job_id", job.ID, "error", err)
			return false
		}
	}
	return true
}

// GetJob returns the job with the given id
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	return q.store.GetJob(ctx, id)
}

// Counts returns occupancy for the status endpoint
func (q *Queue) Counts(ctx context.Context) (map[State]int, error) {
	return q.store.CountByStates(ctx, StateWaiting, StateActive, StateDelayed, StateCompleted, StateFailed)
}

// LatestResult returns the most recent completed job
func (q *Queue) LatestResult(ctx context.Context) (*Job, error) {
	return q.store.LatestCompleted(ctx)
}

// RecentRuns returns terminal jobs for the history view, newest first
func (q *Queue) RecentRuns(ctx context.Context, limit int) ([]*Job, error) {
	return q.store.RecentFinished(ctx, limit)
}
