package scheduler

import "errors"

// Sentinel errors for job registry operations.
var (
	// ErrJobNotFound is returned when updating or deleting a job the
	// registry does not have.
	ErrJobNotFound = errors.New("scheduled job not found")

	// ErrJobAlreadyExists is returned when creating a job whose name is
	// already registered.
	ErrJobAlreadyExists = errors.New("scheduled job already exists")

	// ErrRegistryUnavailable is returned when the registry cannot be
	// reached. Transient: the next pass retries naturally.
	ErrRegistryUnavailable = errors.New("job registry unavailable")

	// ErrStateLoadFailed aborts a reconciliation pass before anything is
	// modified.
	ErrStateLoadFailed = errors.New("reconciliation state load failed")
)
