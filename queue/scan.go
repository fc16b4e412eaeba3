package queue

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mrudoy/studio-analytics-sub004/errors"
)

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job               Job
		dateStart         sql.NullString
		dateEnd           sql.NullString
		progressStep      sql.NullString
		progressPercent   sql.NullInt64
		progressStartedAt sql.NullTime
		categoriesJSON    sql.NullString
		resultJSON        sql.NullString
		failureReason     sql.NullString
		wakeAt            sql.NullTime
		processedAt       sql.NullTime
		finishedAt        sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.Type,
		&job.State,
		&job.Payload.TriggeredBy,
		&dateStart,
		&dateEnd,
		&progressStep,
		&progressPercent,
		&progressStartedAt,
		&categoriesJSON,
		&resultJSON,
		&failureReason,
		&job.Attempts,
		&wakeAt,
		&job.EnqueuedAt,
		&processedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Payload.DateRangeStart = dateStart.String
	job.Payload.DateRangeEnd = dateEnd.String
	job.Progress.Step = progressStep.String
	job.Progress.Percent = int(progressPercent.Int64)
	job.FailureReason = failureReason.String
	job.WakeAt = nullTimePtr(wakeAt)
	job.ProcessedAt = nullTimePtr(processedAt)
	job.FinishedAt = nullTimePtr(finishedAt)
	job.Progress.StartedAt = nullTimePtr(progressStartedAt)

	if categoriesJSON.Valid && categoriesJSON.String != "" {
		if err := json.Unmarshal([]byte(categoriesJSON.String), &job.Progress.Categories); err != nil {
			return nil, errors.Wrapf(err, "failed to decode category status for job %s", job.ID)
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result Result
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, errors.Wrapf(err, "failed to decode result for job %s", job.ID)
		}
		job.Result = &result
	}

	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job row")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate job rows")
	}
	return jobs, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
