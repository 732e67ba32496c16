package errors

import "errors"

var (
	// ErrAllocation is returned by Launch when the worker record could not be
	// created. No worker is started.
	ErrAllocation = errors.New("holdlock: allocation failed")
	// ErrSpawn is returned by Launch when the worker could not be started.
	ErrSpawn = errors.New("holdlock: spawn failed")
	// ErrTiming marks a worker that failed while sleeping.
	ErrTiming = errors.New("holdlock: timing failure")
	// ErrLock marks a worker whose acquire or release failed.
	ErrLock = errors.New("holdlock: lock failure")
	// ErrInvalidDelay is returned by Launch for negative delays.
	ErrInvalidDelay = errors.New("holdlock: delay must not be negative")
)
