package queue

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrudoy/studio-analytics-sub004/errors"
)

// These tests use sqlmock to exercise database failure paths that a real
// SQLite connection will not produce on demand.

func TestCreateJobDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO pipeline_jobs").
		WillReturnError(errors.New("database is locked"))

	store := NewStore(db)
	job := NewJob(Payload{TriggeredBy: TriggeredByUI})
	err = store.CreateJob(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create job")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWakeDelayedDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE pipeline_jobs").
		WillReturnError(errors.New("disk I/O error"))

	store := NewStore(db)
	_, err = store.WakeDelayed(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to wake delayed jobs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProgressClaimLostFromZeroRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE pipeline_jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)
	err = store.UpdateProgress(context.Background(), "job-1", Progress{Step: "Collecting", Percent: 10})
	assert.True(t, errors.Is(err, errors.ErrClaimLost))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReaperSweepBoundsStoreOperations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// The sweep runs inside enqueue, so a hung store must not hang the
	// caller: each store call gets its own deadline.
	mock.ExpectQuery("SELECT (.+) FROM pipeline_jobs").
		WillDelayFor(5 * time.Second).
		WillReturnError(errors.New("unreachable"))

	reaper := NewReaper(NewStore(db), 30*time.Minute, 50*time.Millisecond)

	start := time.Now()
	_, err = reaper.Sweep(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

func TestListJobsByStateQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM pipeline_jobs").
		WillReturnError(errors.New("no such table: pipeline_jobs"))

	store := NewStore(db)
	_, err = store.ListJobsByState(context.Background(), StateActive, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list active jobs")
	assert.NoError(t, mock.ExpectationsWereMet())
}
