// Package worker launches locked-interval workers. A worker runs on its own
// goroutine pinned to an OS thread: it sleeps, acquires the lock it was
// given, sleeps again while holding it and releases it. The outcome is
// recorded in a Request that the caller reads through Handle.Join once the
// worker has terminated. Failures inside the worker never cross the goroutine
// boundary; they are reported only through Request.Succeeded and Request.Err.
package worker
