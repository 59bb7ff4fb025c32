package domain

import "errors"

var (
	// ErrNotFound indicates the schedule or digest does not exist.
	ErrNotFound = errors.New("requested entity not found")
	// ErrDuplicateSchedule indicates a schedule already exists for the
	// recipient and group pair.
	ErrDuplicateSchedule = errors.New("schedule already exists for recipient and group")
	// ErrNoDueSchedules indicates the poller found nothing to claim.
	ErrNoDueSchedules = errors.New("no due digest schedules")
	// ErrNoEligibleItems indicates a compile found no content to include.
	ErrNoEligibleItems = errors.New("no eligible content items for digest")
	// ErrInvalidTransition indicates the digest is not in a state that
	// allows the requested operation.
	ErrInvalidTransition = errors.New("invalid digest state for operation")
)
