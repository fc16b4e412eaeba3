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

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(testutil.CreateTestDB(t))
}

func TestCreateAndGetJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := NewJob(Payload{TriggeredBy: TriggeredByUI, DateRangeStart: "2026-08-01", DateRangeEnd: "2026-08-28"})
	require.NoError(t, store.CreateJob(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, JobTypePipeline, got.Type)
	assert.Equal(t, StateWaiting, got.State)
	assert.Equal(t, TriggeredByUI, got.Payload.TriggeredBy)
	assert.Equal(t, "2026-08-01", got.Payload.DateRangeStart)
	assert.Equal(t, 0, got.Attempts)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.FinishedAt)
}

func TestGetJobNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetJob(context.Background(), "nope")
	assert.True(t, errors.IsJobNotFound(err))
}

func TestCreateJobRejectsSecondInFlight(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := NewJob(Payload{TriggeredBy: TriggeredByUI})
	require.NoError(t, store.CreateJob(ctx, first))

	second := NewJob(Payload{TriggeredBy: TriggeredByAPI})
	err := store.CreateJob(ctx, second)
	assert.True(t, errors.IsAlreadyRunning(err))

	// Once the first job is terminal, a new one is admitted again
	claimed, err := store.ClaimNextWaiting(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, store.CompleteJob(ctx, claimed.ID, &Result{}))

	third := NewJob(Payload{TriggeredBy: TriggeredByAPI})
	require.NoError(t, store.CreateJob(ctx, third))
}

func TestClaimNextWaiting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("empty queue returns nil", func(t *testing.T) {
		job, err := store.ClaimNextWaiting(ctx)
		require.NoError(t, err)
		assert.Nil(t, job)
	})

	t.Run("claim transitions waiting to active", func(t *testing.T) {
		job := NewJob(Payload{TriggeredBy: TriggeredBySchedule})
		require.NoError(t, store.CreateJob(ctx, job))

		claimed, err := store.ClaimNextWaiting(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, job.ID, claimed.ID)
		assert.Equal(t, StateActive, claimed.State)
		assert.Equal(t, 1, claimed.Attempts)
		assert.Equal(t, "Starting", claimed.Progress.Step)
		assert.Equal(t, 0, claimed.Progress.Percent)
		require.NotNil(t, claimed.ProcessedAt)
		require.NotNil(t, claimed.Progress.StartedAt)
	})

	t.Run("second claim finds nothing", func(t *testing.T) {
		job, err := store.ClaimNextWaiting(ctx)
		require.NoError(t, err)
		assert.Nil(t, job)
	})
}

func TestUpdateProgress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := NewJob(Payload{TriggeredBy: TriggeredByUI})
	require.NoError(t, store.CreateJob(ctx, job))
	claimed, err := store.ClaimNextWaiting(ctx)
	require.NoError(t, err)

	categories := map[string]CategoryStatus{
		"attendance": {State: CategoryRunning},
		"sales":      {State: CategoryPending},
	}
	require.NoError(t, store.UpdateProgress(ctx, claimed.ID, Progress{
		Step:       "Collecting attendance",
		Percent:    25,
		Categories: categories,
	}))

	got, err := store.GetJob(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, "Collecting attendance", got.Progress.Step)
	assert.Equal(t, 25, got.Progress.Percent)
	assert.Equal(t, CategoryRunning, got.Progress.Categories["attendance"].State)
}

func TestUpdateProgressAfterClaimLost(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := NewJob(Payload{TriggeredBy: TriggeredByUI})
	require.NoError(t, store.CreateJob(ctx, job))
	claimed, err := store.ClaimNextWaiting(ctx)
	require.NoError(t, err)

	// Someone force-fails the job out from under the worker
	require.NoError(t, store.ForceFail(ctx, claimed.ID, "Cleared by user"))

	err = store.UpdateProgress(ctx, claimed.ID, Progress{Step: "Collecting", Percent: 40})
	assert.True(t, errors.Is(err, errors.ErrClaimLost))

	// The terminal row was not touched
	got, err := store.GetJob(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.State)
	assert.Equal(t, "Cleared by user", got.FailureReason)
}

func TestCompleteJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := NewJob(Payload{TriggeredBy: TriggeredByUI})
	require.NoError(t, store.CreateJob(ctx, job))
	claimed, err := store.ClaimNextWaiting(ctx)
	require.NoError(t, err)

	result := &Result{
		RecordCounts:     map[string]int{"attendance": 120, "sales": 45},
		SpreadsheetURL:   "https://sheets.example/abc",
		DigestSent:       true,
		DurationMS:       4200,
		ValidationPassed: true,
	}
	require.NoError(t, store.CompleteJob(ctx, claimed.ID, result))

	got, err := store.GetJob(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	assert.Equal(t, 100, got.Progress.Percent)
	require.NotNil(t, got.Result)
	assert.Equal(t, 120, got.Result.RecordCounts["attendance"])
	assert.True(t, got.Result.DigestSent)
	require.NotNil(t, got.FinishedAt)
}

func TestDelayAndWake(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := NewJob(Payload{TriggeredBy: TriggeredByUI})
	require.NoError(t, store.CreateJob(ctx, job))
	claimed, err := store.ClaimNextWaiting(ctx)
	require.NoError(t, err)

	wakeAt := time.Now().Add(30 * time.Second)
	require.NoError(t, store.DelayJob(ctx, claimed.ID, wakeAt))

	got, err := store.GetJob(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, StateDelayed, got.State)
	require.NotNil(t, got.WakeAt)

	t.Run("not yet due", func(t *testing.T) {
		woken, err := store.WakeDelayed(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 0, woken)
	})

	t.Run("due jobs return to waiting", func(t *testing.T) {
		woken, err := store.WakeDelayed(ctx, wakeAt.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, 1, woken)

		got, err := store.GetJob(ctx, claimed.ID)
		require.NoError(t, err)
		assert.Equal(t, StateWaiting, got.State)
		assert.Nil(t, got.WakeAt)
		assert.Equal(t, 1, got.Attempts)
	})
}

func TestForceFailTerminalIsImmutable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := NewJob(Payload{TriggeredBy: TriggeredByUI})
	require.NoError(t, store.CreateJob(ctx, job))
	claimed, err := store.ClaimNextWaiting(ctx)
	require.NoError(t, err)
	require.NoError(t, store.CompleteJob(ctx, claimed.ID, &Result{}))

	err = store.ForceFail(ctx, claimed.ID, "too late")
	assert.True(t, errors.Is(err, errors.ErrTerminalState))

	got, err := store.GetJob(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
}

func TestRemoveJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := NewJob(Payload{TriggeredBy: TriggeredByUI})
	require.NoError(t, store.CreateJob(ctx, job))

	removed, err := store.RemoveJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = store.GetJob(ctx, job.ID)
	assert.True(t, errors.IsJobNotFound(err))

	removed, err = store.RemoveJob(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCountByStates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := NewJob(Payload{TriggeredBy: TriggeredByUI})
	require.NoError(t, store.CreateJob(ctx, job))

	counts, err := store.CountByStates(ctx, StateWaiting, StateActive)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[StateWaiting])
	assert.Equal(t, 0, counts[StateActive])
}

func TestLatestCompletedAndRecentFinished(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("empty history", func(t *testing.T) {
		_, err := store.LatestCompleted(ctx)
		assert.True(t, errors.IsJobNotFound(err))
	})

	runOnce := func(fail bool) string {
		job := NewJob(Payload{TriggeredBy: TriggeredBySchedule})
		require.NoError(t, store.CreateJob(ctx, job))
		claimed, err := store.ClaimNextWaiting(ctx)
		require.NoError(t, err)
		if fail {
			require.NoError(t, store.FailJob(ctx, claimed.ID, "panel login failed"))
		} else {
			require.NoError(t, store.CompleteJob(ctx, claimed.ID, &Result{DigestSent: true}))
		}
		time.Sleep(5 * time.Millisecond)
		return claimed.ID
	}

	runOnce(false)
	runOnce(true)
	lastCompleted := runOnce(false)

	latest, err := store.LatestCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, lastCompleted, latest.ID)

	history, err := store.RecentFinished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, lastCompleted, history[0].ID)
}
