package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mrudoy/studio-analytics-sub004/errors"
	"github.com/mrudoy/studio-analytics-sub004/logger"
)

// Reaper clears jobs whose execution outlived the stale threshold. A crashed
// or hung worker leaves its job active forever; because the queue is
// single-flight, that one zombie row blocks all future runs. The reaper runs
// synchronously inside enqueue so a stuck queue self-heals the moment anyone
// tries to use it again.
type Reaper struct {
	store     *Store
	threshold time.Duration
	opTimeout time.Duration
	log       *zap.SugaredLogger
}

// NewReaper creates a reaper with the given staleness threshold. Each store
// operation issued by a sweep is bounded by opTimeout so a wedged database
// cannot hang the enqueue that triggered the sweep.
func NewReaper(store *Store, threshold, opTimeout time.Duration) *Reaper {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Reaper{
		store:     store,
		threshold: threshold,
		opTimeout: opTimeout,
		log:       logger.Named("reaper"),
	}
}

// Sweep force-fails every active job older than the threshold. Per-job
// failures are logged and skipped so one bad row cannot block the sweep.
// Sweeping an already-clean queue is a no-op.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	active, err := r.listActive(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "reaper failed to list active jobs")
	}

	now := time.Now()
	reaped := 0
	for _, job := range active {
		age := job.Age(now)
		if age <= r.threshold {
			continue
		}

		reason := fmt.Sprintf("Auto-cleared: exceeded %s limit", r.threshold)
		if err := r.forceFail(ctx, job.ID, reason); err != nil {
			// The job may have finished between list and fail; either way
			// the sweep moves on.
			r.log.Warnw("Failed to clear stale job",
				"job_id", job.ID,
				"age", age.Round(time.Second),
				"error", err)
			continue
		}

		r.log.Infow("Cleared stale job",
			"job_id", job.ID,
			"age", age.Round(time.Second),
			"threshold", r.threshold)
		reaped++
	}

	return reaped, nil
}

func (r *Reaper) listActive(ctx context.Context) ([]*Job, error) {
	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	return r.store.ListJobsByState(opCtx, StateActive, 100)
}

func (r *Reaper) forceFail(ctx context.Context, id, reason string) error {
	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	return r.store.ForceFail(opCtx, id, reason)
}
