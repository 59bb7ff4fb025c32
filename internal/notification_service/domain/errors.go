package domain

import "errors"

var (
	// ErrNotFound indicates the requested job does not exist.
	ErrNotFound = errors.New("notification job not found")

	// ErrNoDueJobs indicates a poll cycle found nothing to claim.
	ErrNoDueJobs = errors.New("no due jobs")

	// ErrInvalidTransition indicates the requested status change is not
	// allowed from the job's current state, e.g. cancelling a job that
	// already left pending.
	ErrInvalidTransition = errors.New("invalid job status transition")
)
