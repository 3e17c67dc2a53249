package model

import "errors"

var (
	// ErrInvalidArgument marks caller bugs such as a cadence below one day.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned when a challenge does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write lost a race.
	ErrConflict = errors.New("conflict")
	// ErrTransport wraps notification send failures and timeouts.
	ErrTransport = errors.New("transport failure")
	// ErrInfrastructure is returned when a run cannot load its work at all.
	ErrInfrastructure = errors.New("infrastructure failure")
)
