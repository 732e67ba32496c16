package worker

import (
	"time"

	"github.com/mirkobrombin/go-holdlock/v1/lock"
)

// State is a step of the worker routine.
type State int

const (
	StateStart State = iota
	StateAcquire
	StateHeld
	StateRelease
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateAcquire:
		return "acquire"
	case StateHeld:
		return "held"
	case StateRelease:
		return "release"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request is the record a worker operates on. It is written only by the
// worker and must be read only after Handle.Join returned it.
type Request struct {
	// ID identifies the worker in logs, traces and metrics.
	ID string
	// Lock is not owned by the request; the caller keeps it alive until the
	// worker is joined.
	Lock               lock.Mutex
	DelayBeforeAcquire time.Duration
	DelayWhileHeld     time.Duration

	// Succeeded is true iff every step completed without error.
	Succeeded bool
	// State is StateDone or StateFailed once the worker terminated.
	State State
	// FailedIn is the step that failed. It is meaningless when Succeeded.
	FailedIn State
	// Err wraps ErrTiming or ErrLock when the worker failed.
	Err error
	// Held is how long the lock was held, zero if it never was.
	Held time.Duration
}
