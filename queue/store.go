package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mrudoy/studio-analytics-sub004/errors"
)

// Store handles persistence of pipeline jobs. It is the exclusive owner of
// the pipeline_jobs table: all state transitions go through its conditional
// updates, so a worker in one process and producers in another coordinate
// purely through SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, job_type, state, triggered_by, date_range_start, date_range_end,
	progress_step, progress_percent, progress_started_at, progress_categories,
	result, failure_reason, attempts, wake_at, enqueued_at, processed_at, finished_at`

// CreateJob inserts a new waiting job, but only if no other job of the same
// type is currently waiting or active. The conditional insert closes the
// check-then-act window between two concurrent enqueue callers: the second
// writer's insert matches zero rows and fails with ErrAlreadyRunning.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO pipeline_jobs (
			id, job_type, state, triggered_by, date_range_start, date_range_end,
			attempts, enqueued_at
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM pipeline_jobs
			WHERE job_type = ? AND state IN ('waiting', 'active')
		)
	`

	res, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Type,
		job.State,
		job.Payload.TriggeredBy,
		nullString(job.Payload.DateRangeStart),
		nullString(job.Payload.DateRangeEnd),
		job.Attempts,
		job.EnqueuedAt,
		job.Type,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create job %s", job.ID)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrap(errors.ErrAlreadyRunning, "another pipeline job is waiting or active")
	}

	return nil
}

// GetJob retrieves a job by id
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM pipeline_jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewJobNotFound(id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get job %s", id)
	}
	return job, nil
}

// ListJobsByState returns jobs in the given state, oldest first
func (s *Store) ListJobsByState(ctx context.Context, state State, limit int) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM pipeline_jobs WHERE state = ? ORDER BY enqueued_at ASC LIMIT ?`,
		state, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s jobs", state)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// CountByStates returns the number of jobs in each of the given states
func (s *Store) CountByStates(ctx context.Context, states ...State) (map[State]int, error) {
	counts := make(map[State]int, len(states))
	for _, state := range states {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM pipeline_jobs WHERE state = ?`, state).Scan(&n)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to count %s jobs", state)
		}
		counts[state] = n
	}
	return counts, nil
}

// ClaimNextWaiting atomically claims the oldest waiting job for execution:
// waiting -> active, attempts incremented, progress reset to the starting
// snapshot. Returns (nil, nil) when no waiting job exists. The conditional
// update is the store's exclusive-claim primitive: if a concurrent reset
// removed the job between select and update, the claim simply misses.
func (s *Store) ClaimNextWaiting(ctx context.Context) (*Job, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM pipeline_jobs WHERE state = 'waiting' ORDER BY enqueued_at ASC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find waiting job")
	}

	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET state = 'active',
		    attempts = attempts + 1,
		    processed_at = ?,
		    progress_step = 'Starting',
		    progress_percent = 0,
		    progress_started_at = ?,
		    progress_categories = NULL
		WHERE id = ? AND state = 'waiting'
	`, now, now, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to claim job %s", id)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		// Lost the claim to a concurrent transition; treat as no work
		return nil, nil
	}

	return s.GetJob(ctx, id)
}

// UpdateProgress writes the worker's progress snapshot. The update only
// matches while the job is still active, which makes progress writes no-ops
// once the worker's claim has been lost (ErrClaimLost tells it so).
func (s *Store) UpdateProgress(ctx context.Context, id string, p Progress) error {
	categories, err := marshalCategories(p.Categories)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET progress_step = ?, progress_percent = ?, progress_categories = ?
		WHERE id = ? AND state = 'active'
	`, p.Step, p.Percent, categories, id)
	if err != nil {
		return errors.Wrapf(err, "failed to update progress for job %s", id)
	}

	return claimCheck(res, id)
}

// CompleteJob transitions an active job to completed with its result
func (s *Store) CompleteJob(ctx context.Context, id string, result *Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal result for job %s", id)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET state = 'completed',
		    result = ?,
		    progress_percent = 100,
		    progress_step = 'Done',
		    finished_at = ?
		WHERE id = ? AND state = 'active'
	`, string(resultJSON), time.Now(), id)
	if err != nil {
		return errors.Wrapf(err, "failed to complete job %s", id)
	}

	return claimCheck(res, id)
}

// FailJob transitions an active job to failed with a human-readable reason
func (s *Store) FailJob(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET state = 'failed', failure_reason = ?, finished_at = ?
		WHERE id = ? AND state = 'active'
	`, reason, time.Now(), id)
	if err != nil {
		return errors.Wrapf(err, "failed to fail job %s", id)
	}

	return claimCheck(res, id)
}

// DelayJob parks an active job for a retry attempt: active -> delayed with a
// persisted wake time. No timer exists outside the store; the worker
// promotes due rows on its next tick.
func (s *Store) DelayJob(ctx context.Context, id string, wakeAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET state = 'delayed', wake_at = ?
		WHERE id = ? AND state = 'active'
	`, wakeAt, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delay job %s", id)
	}

	return claimCheck(res, id)
}

// WakeDelayed promotes delayed jobs whose wake time has passed back to
// waiting. Returns how many were woken.
func (s *Store) WakeDelayed(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET state = 'waiting', wake_at = NULL
		WHERE state = 'delayed' AND wake_at <= ?
	`, now)
	if err != nil {
		return 0, errors.Wrap(err, "failed to wake delayed jobs")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

// ForceFail fails a job regardless of who is executing it. Used by the reaper
// and by manual resets. Terminal jobs are left untouched (terminal states are
// immutable), reported as ErrTerminalState.
func (s *Store) ForceFail(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET state = 'failed', failure_reason = ?, finished_at = ?, wake_at = NULL
		WHERE id = ? AND state IN ('waiting', 'active', 'delayed')
	`, reason, time.Now(), id)
	if err != nil {
		return errors.Wrapf(err, "failed to force-fail job %s", id)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrTerminalState, "job %s", id)
	}
	return nil
}

// RemoveJob deletes a waiting or delayed job. Active jobs are protected by
// the worker's claim and cannot be removed, only force-failed; the boolean
// reports whether a row was actually deleted.
func (s *Store) RemoveJob(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pipeline_jobs WHERE id = ? AND state IN ('waiting', 'delayed')`, id)
	if err != nil {
		return false, errors.Wrapf(err, "failed to remove job %s", id)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rows > 0, nil
}

// LatestCompleted returns the most recently finished completed job, or
// ErrJobNotFound when no run has ever completed.
func (s *Store) LatestCompleted(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM pipeline_jobs WHERE state = 'completed' ORDER BY finished_at DESC LIMIT 1`)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(errors.ErrJobNotFound, "no completed runs")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest completed job")
	}
	return job, nil
}

// RecentFinished returns terminal jobs (completed and failed), most recent
// first, bounded by limit. Backs the results-history endpoint.
func (s *Store) RecentFinished(ctx context.Context, limit int) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM pipeline_jobs
		 WHERE state IN ('completed', 'failed')
		 ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list finished jobs")
	}
	defer rows.Close()

	return scanJobs(rows)
}

// claimCheck turns a zero-row conditional update into ErrClaimLost
func claimCheck(res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrClaimLost, "job %s", id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalCategories(categories map[string]CategoryStatus) (sql.NullString, error) {
	if len(categories) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(categories)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "failed to marshal category status")
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
