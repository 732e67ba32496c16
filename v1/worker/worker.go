package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	herrors "github.com/mirkobrombin/go-holdlock/v1/errors"
	"github.com/mirkobrombin/go-holdlock/v1/lock"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-holdlock/v1/worker")

// Aliases of the v1/errors sentinels.
var (
	ErrAllocation   = herrors.ErrAllocation
	ErrSpawn        = herrors.ErrSpawn
	ErrTiming       = herrors.ErrTiming
	ErrLock         = herrors.ErrLock
	ErrInvalidDelay = herrors.ErrInvalidDelay
)

// Handle identifies a launched worker.
type Handle struct {
	id   string
	req  *Request
	done chan struct{}
}

// ID returns the worker ID.
func (h *Handle) ID() string {
	return h.id
}

// Done is closed when the worker has terminated.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Join waits for the worker to terminate and returns its request. Join may be
// called any number of times; every call returns the same record.
func (h *Handle) Join() *Request {
	<-h.done
	return h.req
}

// JoinAll joins every handle in order.
func JoinAll(handles ...*Handle) []*Request {
	out := make([]*Request, len(handles))
	for i, h := range handles {
		out[i] = h.Join()
	}
	return out
}

// Launch starts a worker that sleeps for delayBeforeAcquire, acquires mu,
// sleeps for delayWhileHeld and releases mu.
//
// Launch returns an error, and starts nothing, when a delay is negative
// (ErrInvalidDelay), when the request cannot be allocated (ErrAllocation) or
// when the worker cannot be spawned (ErrSpawn). Once launched, a worker cannot
// be cancelled: ctx only contributes its values, such as the parent span.
func Launch(ctx context.Context, mu lock.Mutex, delayBeforeAcquire, delayWhileHeld time.Duration, opts ...Option) (*Handle, error) {
	cfg := newConfig(opts)

	if delayBeforeAcquire < 0 || delayWhileHeld < 0 {
		cfg.metrics.Launched("invalid")
		return nil, fmt.Errorf("%w: before=%s held=%s", ErrInvalidDelay, delayBeforeAcquire, delayWhileHeld)
	}

	req, err := allocate(cfg, mu, delayBeforeAcquire, delayWhileHeld)
	if err != nil {
		cfg.metrics.Launched("allocation")
		cfg.logger.Error("worker allocation failed", "error", err)
		return nil, err
	}

	h := &Handle{id: req.ID, req: req, done: make(chan struct{})}
	w := &worker{cfg: cfg, req: req, logger: cfg.logger.With("worker", req.ID)}
	runCtx := context.WithoutCancel(ctx)
	if err := cfg.spawner.Spawn(func() { w.run(runCtx, h.done) }); err != nil {
		cfg.budget.release()
		cfg.metrics.Launched("spawn")
		cfg.logger.Error("worker spawn failed", "worker", req.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	cfg.metrics.Launched("started")
	return h, nil
}

// allocate reserves a budget slot and builds the request. Nothing is held
// when it returns an error.
func allocate(cfg *config, mu lock.Mutex, before, held time.Duration) (*Request, error) {
	if !cfg.budget.reserve() {
		return nil, fmt.Errorf("%w: worker budget exhausted", ErrAllocation)
	}
	id, err := cfg.newID()
	if err != nil {
		cfg.budget.release()
		return nil, fmt.Errorf("%w: worker id: %w", ErrAllocation, err)
	}
	return &Request{
		ID:                 id,
		Lock:               mu,
		DelayBeforeAcquire: before,
		DelayWhileHeld:     held,
		State:              StateStart,
	}, nil
}

type worker struct {
	cfg    *config
	req    *Request
	logger *slog.Logger
}

func (w *worker) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	defer w.cfg.budget.release()

	var span trace.Span
	if w.cfg.trace {
		ctx, span = tracer.Start(ctx, "Worker.Run", trace.WithAttributes(
			attribute.String("holdlock.worker.id", w.req.ID),
			attribute.Int64("holdlock.worker.before_ms", w.req.DelayBeforeAcquire.Milliseconds()),
			attribute.Int64("holdlock.worker.held_ms", w.req.DelayWhileHeld.Milliseconds()),
		))
		defer span.End()
	}

	w.execute(ctx)

	req := w.req
	state := StateDone
	if !req.Succeeded {
		state = req.FailedIn
	}
	w.cfg.metrics.Finished(req.Succeeded, state.String(), req.Held.Seconds())
	if span != nil {
		span.SetAttributes(attribute.Bool("holdlock.worker.succeeded", req.Succeeded))
		if req.Err != nil {
			span.RecordError(req.Err)
			span.SetStatus(codes.Error, req.Err.Error())
		}
	}
	if req.Succeeded {
		w.logger.Info("worker finished", "held", req.Held)
		return
	}
	w.logger.Warn("worker failed", "state", req.FailedIn.String(), "error", req.Err)
}

// execute walks the states in order. Every failure is terminal; a failure
// while the lock is held releases it first.
func (w *worker) execute(ctx context.Context) {
	req := w.req

	w.enter(StateStart)
	if err := w.sleep(ctx, req.DelayBeforeAcquire); err != nil {
		w.fail(fmt.Errorf("%w: sleep before acquire: %w", ErrTiming, err))
		return
	}

	w.enter(StateAcquire)
	if err := guard(func() error { return lockOf(req).Lock(ctx) }); err != nil {
		w.fail(fmt.Errorf("%w: acquire: %w", ErrLock, err))
		return
	}
	acquired := time.Now()

	w.enter(StateHeld)
	if err := w.sleep(ctx, req.DelayWhileHeld); err != nil {
		relErr := w.unlock(ctx)
		req.Held = time.Since(acquired)
		if relErr != nil {
			relErr = fmt.Errorf("%w: release after failed sleep: %w", ErrLock, relErr)
		}
		w.fail(errors.Join(fmt.Errorf("%w: sleep while held: %w", ErrTiming, err), relErr))
		return
	}

	w.enter(StateRelease)
	err := w.unlock(ctx)
	req.Held = time.Since(acquired)
	if err != nil {
		w.fail(fmt.Errorf("%w: release: %w", ErrLock, err))
		return
	}

	req.State = StateDone
	req.Succeeded = true
}

func (w *worker) enter(s State) {
	w.req.State = s
	w.logger.Debug("worker state", "state", s.String())
}

func (w *worker) fail(err error) {
	w.req.FailedIn = w.req.State
	w.req.State = StateFailed
	w.req.Succeeded = false
	w.req.Err = err
}

func (w *worker) sleep(ctx context.Context, d time.Duration) error {
	return guard(func() error { return w.cfg.sleeper.Sleep(ctx, d) })
}

func (w *worker) unlock(ctx context.Context) error {
	return guard(func() error { return lockOf(w.req).Unlock(ctx) })
}

// lockOf substitutes a nil Mutex with an uninitialized Local so that a
// missing lock fails like any other invalid one.
func lockOf(req *Request) lock.Mutex {
	if req.Lock == nil {
		return (*lock.Local)(nil)
	}
	return req.Lock
}

// guard turns a panic in fn into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
