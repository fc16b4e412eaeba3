// Package errors provides error handling for studio-analytics.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Structured details for operator diagnosis
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrAlreadyRunning) {
//	    // reject the trigger with a conflict
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenDetails = crdb.FlattenDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// Sentinel errors for the pipeline orchestration layer.
// Use these with errors.Is() for type-safe error checking and wrap them
// with errors.Wrap() to add context while preserving the type.
var (
	// ErrAlreadyRunning indicates a pipeline job is already waiting or active.
	// The caller should wait for it to finish or reset the queue.
	ErrAlreadyRunning = New("pipeline already running")

	// ErrJobNotFound indicates the requested job id does not exist
	ErrJobNotFound = New("job not found")

	// ErrClaimLost indicates the worker no longer owns the active claim on a
	// job (it was force-failed by the reaper or a manual reset mid-run)
	ErrClaimLost = New("job claim lost")

	// ErrTerminalState indicates a write was attempted against a completed or
	// failed job
	ErrTerminalState = New("job is in a terminal state")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrTimeout indicates a bounded operation exceeded its deadline
	ErrTimeout = New("operation timed out")
)

// IsAlreadyRunning checks if an error is or wraps ErrAlreadyRunning
func IsAlreadyRunning(err error) bool {
	return err != nil && Is(err, ErrAlreadyRunning)
}

// IsJobNotFound checks if an error is or wraps ErrJobNotFound
func IsJobNotFound(err error) bool {
	return err != nil && Is(err, ErrJobNotFound)
}

// NewJobNotFound creates a job-not-found error carrying the job id
func NewJobNotFound(jobID string) error {
	return Wrapf(ErrJobNotFound, "job %s", jobID)
}
