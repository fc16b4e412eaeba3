// Package queue implements the single-flight job orchestration layer: a
// durable SQLite-backed queue of pipeline jobs, the stale-job reaper, the
// worker that executes the pipeline body, and the progress publisher that
// streams job state to observers.
package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobTypePipeline is the single job type this queue manages. At most one job
// of this type may be waiting or active at any time.
const JobTypePipeline = "report-pipeline"

// State represents the lifecycle state of a job
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed" // scheduled backoff before a retry attempt
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether the state permits no further transitions
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Trigger origins recorded in the job payload
const (
	TriggeredByUI       = "ui"
	TriggeredBySchedule = "schedule"
	TriggeredByAPI      = "api"
	TriggeredByCLI      = "cli"
)

// Payload holds the input parameters of a pipeline run
type Payload struct {
	TriggeredBy string `json:"triggered_by"`
	// Optional explicit date range override (YYYY-MM-DD). Empty means the
	// pipeline body picks its own default window.
	DateRangeStart string `json:"date_range_start,omitempty"`
	DateRangeEnd   string `json:"date_range_end,omitempty"`
}

// CategoryStatus tracks one report category (or side-effect stage) within a run
type CategoryStatus struct {
	State          string `json:"state"` // pending, running, done, failed
	RecordCount    int    `json:"record_count"`
	Error          string `json:"error,omitempty"`
	DeliveryMethod string `json:"delivery_method,omitempty"`
}

// Category states written into Progress.Categories by the pipeline body
const (
	CategoryPending = "pending"
	CategoryRunning = "running"
	CategoryDone    = "done"
	CategoryFailed  = "failed"
)

// Progress is the mutable snapshot written only by the worker while a job is
// active. Percent is monotonically non-decreasing within one job's lifetime.
type Progress struct {
	Step       string                    `json:"step"`
	Percent    int                       `json:"percent"`
	StartedAt  *time.Time                `json:"started_at,omitempty"`
	Categories map[string]CategoryStatus `json:"categories,omitempty"`
}

// Result is the structured summary of a completed run
type Result struct {
	RecordCounts     map[string]int `json:"record_counts"`
	Warnings         []string       `json:"warnings,omitempty"`
	SpreadsheetURL   string         `json:"spreadsheet_url,omitempty"`
	DigestSent       bool           `json:"digest_sent"`
	DurationMS       int64          `json:"duration_ms"`
	ValidationPassed bool           `json:"validation_passed"`
}

// Job is one unit of orchestrated pipeline work
type Job struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Payload       Payload    `json:"payload"`
	State         State      `json:"state"`
	Progress      Progress   `json:"progress"`
	Result        *Result    `json:"result,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	Attempts      int        `json:"attempts"`
	WakeAt        *time.Time `json:"wake_at,omitempty"`
	EnqueuedAt    time.Time  `json:"enqueued_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// NewJob creates a waiting pipeline job with a fresh time-prefixed id.
// The millisecond prefix keeps ids roughly sortable by enqueue time; the
// uuid suffix guarantees uniqueness when the clock repeats.
func NewJob(payload Payload) *Job {
	now := time.Now()
	return &Job{
		ID:         fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8]),
		Type:       JobTypePipeline,
		Payload:    payload,
		State:      StateWaiting,
		EnqueuedAt: now,
	}
}

// IsTerminal reports whether the job reached completed or failed
func (j *Job) IsTerminal() bool {
	return j.State.Terminal()
}

// Age returns how long the job has been in flight, measured from the moment
// it was first picked up, falling back to enqueue time if never started.
func (j *Job) Age(now time.Time) time.Duration {
	if j.ProcessedAt != nil {
		return now.Sub(*j.ProcessedAt)
	}
	return now.Sub(j.EnqueuedAt)
}
