package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrudoy/studio-analytics-sub004/errors"
	"github.com/mrudoy/studio-analytics-sub004/internal/testutil"
)

// fakeRunner scripts the pipeline body for worker tests
type fakeRunner struct {
	run func(ctx context.Context, payload Payload, progress ProgressFunc) (*Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, payload Payload, progress ProgressFunc) (*Result, error) {
	return f.run(ctx, payload, progress)
}

func newTestWorker(t *testing.T, runner Runner, cfg WorkerConfig) (*Worker, *Store) {
	t.Helper()
	store := NewStore(testutil.CreateTestDB(t))
	return NewWorker(context.Background(), store, runner, cfg), store
}

func TestWorkerRunsJobToCompletion(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, payload Payload, progress ProgressFunc) (*Result, error) {
			require.NoError(t, progress("Collecting attendance", 20, map[string]CategoryStatus{
				"attendance": {State: CategoryRunning},
			}))
			require.NoError(t, progress("Exporting spreadsheet", 80, map[string]CategoryStatus{
				"attendance": {State: CategoryDone, RecordCount: 42},
			}))
			return &Result{
				RecordCounts:     map[string]int{"attendance": 42},
				ValidationPassed: true,
			}, nil
		},
	}
	worker, store := newTestWorker(t, runner, DefaultWorkerConfig())
	ctx := context.Background()

	job := NewJob(Payload{TriggeredBy: TriggeredByUI})
	require.NoError(t, store.CreateJob(ctx, job))

	require.NoError(t, worker.tick())

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	assert.Equal(t, 100, got.Progress.Percent)
	require.NotNil(t, got.Result)
	assert.Equal(t, 42, got.Result.RecordCounts["attendance"])
	assert.GreaterOrEqual(t, got.Result.DurationMS, int64(0))
}

func TestWorkerProgressIsMonotonic(t *testing.T) {
	var store *Store
	var jobID string
	var percents []int

	readPercent := func(ctx context.Context) int {
		job, err := store.GetJob(ctx, jobID)
		require.NoError(t, err)
		return job.Progress.Percent
	}

	runner := &fakeRunner{
		run: func(ctx context.Context, payload Payload, progress ProgressFunc) (*Result, error) {
			require.NoError(t, progress("step one", 40, nil))
			percents = append(percents, readPercent(ctx))
			// A buggy stage reports a lower percent; the worker clamps it
			require.NoError(t, progress("step two", 30, nil))
			percents = append(percents, readPercent(ctx))
			require.NoError(t, progress("step three", 70, nil))
			percents = append(percents, readPercent(ctx))
			return &Result{}, nil
		},
	}
	worker, s := newTestWorker(t, runner, DefaultWorkerConfig())
	store = s
	ctx := context.Background()

	job := NewJob(Payload{TriggeredBy: TriggeredByUI})
	jobID = job.ID
	require.NoError(t, store.CreateJob(ctx, job))

	require.NoError(t, worker.tick())

	assert.Equal(t, []int{40, 40, 70}, percents)
	assert.Equal(t, 100, readPercent(ctx))
}

func TestWorkerRetriesThenFails(t *testing.T) {
	calls := 0
	runner := &fakeRunner{
		run: func(ctx context.Context, payload Payload, progress ProgressFunc) (*Result, error) {
			calls++
			return nil, errors.New("panel returned 503")
		},
	}
	cfg := DefaultWorkerConfig()
	cfg.MaxAttempts = 2
	cfg.RetryBackoff = 10 * time.Millisecond
	worker, store := newTestWorker(t, runner, cfg)
	ctx := context.Background()

	job := NewJob(Payload{TriggeredBy: TriggeredBySchedule})
	require.NoError(t, store.CreateJob(ctx, job))

	// First attempt fails and parks the job as delayed
	require.NoError(t, worker.tick())
	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateDelayed, got.State)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.WakeAt)

	// Once the wake time passes, the next tick retries and exhausts the budget
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, worker.tick())
	got, err = store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.State)
	assert.Equal(t, 2, got.Attempts)
	assert.Contains(t, got.FailureReason, "Failed after 2 attempts")
	assert.Contains(t, got.FailureReason, "panel returned 503")
	assert.Equal(t, 2, calls)
}

func TestWorkerAbandonsRunOnClaimLoss(t *testing.T) {
	var store *Store
	runner := &fakeRunner{
		run: func(ctx context.Context, payload Payload, progress ProgressFunc) (*Result, error) {
			// Simulate the reaper clearing the job mid-run
			jobs, err := store.ListJobsByState(ctx, StateActive, 1)
			require.NoError(t, err)
			require.Len(t, jobs, 1)
			require.NoError(t, store.ForceFail(ctx, jobs[0].ID, "Auto-cleared: exceeded 30m0s limit"))

			err = progress("Collecting sales", 50, nil)
			assert.True(t, errors.Is(err, errors.ErrClaimLost))

			// Worker must not finalize; return success to prove it
			return &Result{DigestSent: true}, nil
		},
	}
	worker, s := newTestWorker(t, runner, DefaultWorkerConfig())
	store = s
	ctx := context.Background()

	job := NewJob(Payload{TriggeredBy: TriggeredByUI})
	require.NoError(t, store.CreateJob(ctx, job))

	require.NoError(t, worker.tick())

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.State)
	assert.Contains(t, got.FailureReason, "Auto-cleared")
	assert.Nil(t, got.Result)
}

func TestWorkerWakesDelayedJobs(t *testing.T) {
	done := make(chan struct{}, 1)
	runner := &fakeRunner{
		run: func(ctx context.Context, payload Payload, progress ProgressFunc) (*Result, error) {
			done <- struct{}{}
			return &Result{}, nil
		},
	}
	worker, store := newTestWorker(t, runner, DefaultWorkerConfig())
	ctx := context.Background()

	job := NewJob(Payload{TriggeredBy: TriggeredByUI})
	require.NoError(t, store.CreateJob(ctx, job))
	claimed, err := store.ClaimNextWaiting(ctx)
	require.NoError(t, err)
	require.NoError(t, store.DelayJob(ctx, claimed.ID, time.Now().Add(-time.Second)))

	// The tick wakes the overdue job and runs it in one pass
	require.NoError(t, worker.tick())

	select {
	case <-done:
	default:
		t.Fatal("expected the woken job to be executed")
	}

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
}

func TestWorkerChecksMemoryBeforeEachRun(t *testing.T) {
	checks := 0
	orig := checkMemoryPressure
	checkMemoryPressure = func() string {
		checks++
		return ""
	}
	defer func() { checkMemoryPressure = orig }()

	runner := &fakeRunner{
		run: func(ctx context.Context, payload Payload, progress ProgressFunc) (*Result, error) {
			return &Result{}, nil
		},
	}
	worker, store := newTestWorker(t, runner, DefaultWorkerConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		job := NewJob(Payload{TriggeredBy: TriggeredByUI})
		require.NoError(t, store.CreateJob(ctx, job))
		require.NoError(t, worker.tick())

		got, err := store.GetJob(ctx, job.ID)
		require.NoError(t, err)
		require.Equal(t, StateCompleted, got.State)
	}

	assert.Equal(t, 2, checks)
}

func TestWorkerStartStop(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, payload Payload, progress ProgressFunc) (*Result, error) {
			return &Result{}, nil
		},
	}
	cfg := DefaultWorkerConfig()
	cfg.PollInterval = 10 * time.Millisecond
	worker, store := newTestWorker(t, runner, cfg)
	ctx := context.Background()

	job := NewJob(Payload{TriggeredBy: TriggeredByUI})
	require.NoError(t, store.CreateJob(ctx, job))

	worker.Start()
	require.Eventually(t, func() bool {
		got, err := store.GetJob(ctx, job.ID)
		return err == nil && got.State == StateCompleted
	}, 2*time.Second, 10*time.Millisecond)
	worker.Stop()
}
