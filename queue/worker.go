package queue

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/mrudoy/studio-analytics-sub004/errors"
	"github.com/mrudoy/studio-analytics-sub004/logger"
)

// ProgressFunc reports pipeline progress from inside a run. Implementations
// must tolerate ErrClaimLost: once the claim is gone, further reports are
// dropped and the run should wind down.
type ProgressFunc func(step string, percent int, categories map[string]CategoryStatus) error

// Runner is the pipeline body executed for each claimed job
type Runner interface {
	Run(ctx context.Context, payload Payload, progress ProgressFunc) (*Result, error)
}

// WorkerConfig tunes the single pipeline worker
type WorkerConfig struct {
	PollInterval time.Duration // how often to look for work
	MaxAttempts  int           // total execution attempts per job
	RetryBackoff time.Duration // delay before a retry attempt
	StopTimeout  time.Duration // how long Stop waits for an in-flight run
}

// DefaultWorkerConfig returns sensible defaults
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 2 * time.Second,
		MaxAttempts:  2,
		RetryBackoff: 30 * time.Second,
		StopTimeout:  30 * time.Second,
	}
}

// Worker runs pipeline jobs one at a time. There is deliberately no pool:
// the queue admits a single job, and the panel scraping the pipeline does is
// rate-limited at the source, so parallelism buys nothing.
type Worker struct {
	store  *Store
	runner Runner
	cfg    WorkerConfig

	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	log       *zap.SugaredLogger
	mu        sync.Mutex
}

// NewWorker creates a worker over the store. Callers own Start/Stop.
func NewWorker(ctx context.Context, store *Store, runner Runner, cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}

	workerCtx, cancel := context.WithCancel(ctx)
	return &Worker{
		store:     store,
		runner:    runner,
		cfg:       cfg,
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		log:       logger.Named("worker"),
	}
}

// Start begins polling for jobs
func (w *Worker) Start() {
	w.mu.Lock()
	select {
	case <-w.ctx.Done():
		// Restart after a previous Stop
		w.ctx, w.cancel = context.WithCancel(w.parentCtx)
	default:
	}
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop()
	w.log.Infow("Worker started", "poll_interval", w.cfg.PollInterval)
}

// Stop cancels the worker and waits for any in-flight run to finish, bounded
// by StopTimeout so shutdown cannot hang on a stuck pipeline.
func (w *Worker) Stop() {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Infow("Worker stopped cleanly")
	case <-time.After(w.cfg.StopTimeout):
		w.log.Warnw("Worker stop timeout, run may still be finishing", "timeout", w.cfg.StopTimeout)
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.tick(); err != nil {
				select {
				case <-w.ctx.Done():
					return
				default:
				}
				if errors.Is(err, sql.ErrConnDone) {
					// Database closed during shutdown
					return
				}
				w.log.Errorw("Worker tick failed", "error", err)
			}
		}
	}
}

// tick wakes due retries then claims and executes at most one job
func (w *Worker) tick() error {
	woken, err := w.store.WakeDelayed(w.ctx, time.Now())
	if err != nil {
		return errors.Wrap(err, "failed to wake delayed jobs")
	}
	if woken > 0 {
		w.log.Infow("Promoted delayed jobs to waiting", "count", woken)
	}

	job, err := w.store.ClaimNextWaiting(w.ctx)
	if err != nil {
		return errors.Wrap(err, "failed to claim job")
	}
	if job == nil {
		return nil
	}

	w.execute(job)
	return nil
}

// execute runs the pipeline body for a claimed job and finalizes its state.
// Claim loss (the job was force-failed or cleared mid-run) flips claimLost;
// from then on progress writes stop and no finalization is attempted, since
// whoever took the claim already decided the job's fate.
func (w *Worker) execute(job *Job) {
	if warning := checkMemoryPressure(); warning != "" {
		w.log.Warnw("Memory pressure warning before run", "job_id", job.ID, "warning", warning)
	}

	w.log.Infow("Executing pipeline job",
		"job_id", job.ID,
		"attempt", job.Attempts,
		"triggered_by", job.Payload.TriggeredBy)

	var claimLost atomic.Bool
	lastPercent := job.Progress.Percent

	progress := func(step string, percent int, categories map[string]CategoryStatus) error {
		if claimLost.Load() {
			return errors.Wrapf(errors.ErrClaimLost, "job %s", job.ID)
		}
		// Percent never moves backwards within a run
		if percent < lastPercent {
			percent = lastPercent
		}
		lastPercent = percent

		err := w.store.UpdateProgress(w.ctx, job.ID, Progress{
			Step:       step,
			Percent:    percent,
			Categories: categories,
		})
		if errors.Is(err, errors.ErrClaimLost) {
			claimLost.Store(true)
			w.log.Warnw("Lost claim on job, abandoning run", "job_id", job.ID)
			return err
		}
		return err
	}

	started := time.Now()
	result, runErr := w.runner.Run(w.ctx, job.Payload, progress)

	if claimLost.Load() {
		// The row already reached a terminal state under someone else's
		// hand; writing anything now would corrupt it.
		return
	}

	if runErr != nil {
		w.finalizeFailure(job, runErr)
		return
	}

	if result == nil {
		result = &Result{}
	}
	result.DurationMS = time.Since(started).Milliseconds()

	if err := w.store.CompleteJob(w.ctx, job.ID, result); err != nil {
		if errors.Is(err, errors.ErrClaimLost) {
			w.log.Warnw("Lost claim before completion", "job_id", job.ID)
			return
		}
		w.log.Errorw("Failed to complete job", "job_id", job.ID, "error", err)
		return
	}

	w.log.Infow("Pipeline job completed",
		"job_id", job.ID,
		"duration_ms", result.DurationMS,
		"digest_sent", result.DigestSent)
}

func (w *Worker) finalizeFailure(job *Job, runErr error) {
	if job.Attempts < w.cfg.MaxAttempts {
		wakeAt := time.Now().Add(w.cfg.RetryBackoff)
		if err := w.store.DelayJob(w.ctx, job.ID, wakeAt); err != nil {
			if errors.Is(err, errors.ErrClaimLost) {
				return
			}
			w.log.Errorw("Failed to delay job for retry", "job_id", job.ID, "error", err)
			return
		}
		w.log.Warnw("Pipeline run failed, retry scheduled",
			"job_id", job.ID,
			"attempt", job.Attempts,
			"max_attempts", w.cfg.MaxAttempts,
			"wake_at", wakeAt,
			"error", runErr)
		return
	}

	reason := fmt.Sprintf("Failed after %d attempts: %v", job.Attempts, runErr)
	if err := w.store.FailJob(w.ctx, job.ID, reason); err != nil {
		if errors.Is(err, errors.ErrClaimLost) {
			return
		}
		w.log.Errorw("Failed to mark job failed", "job_id", job.ID, "error", err)
		return
	}

	w.log.Errorw("Pipeline job failed permanently",
		"job_id", job.ID,
		"attempts", job.Attempts,
		"error", runErr)
}

// checkMemoryPressure returns a warning string when available memory is low
// enough that a scraping run may struggle, or "" when fine. Stubbed in tests.
var checkMemoryPressure = func() string {
	v, err := mem.VirtualMemory()
	if err != nil {
		return ""
	}
	const minAvailable = 256 << 20
	if v.Available < minAvailable {
		return fmt.Sprintf("only %d MB available memory", v.Available>>20)
	}
	return ""
}
