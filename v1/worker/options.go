package worker

import (
	"log/slog"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/mirkobrombin/go-holdlock/v1/metrics"
)

type config struct {
	logger  *slog.Logger
	sleeper Sleeper
	spawner Spawner
	budget  *Budget
	metrics *metrics.Collectors
	newID   func() (string, error)
	trace   bool
}

// Option configures Launch.
type Option func(*config)

// WithLogger sets the logger the worker reports to. Workers log nothing by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSleeper replaces the timer-based sleeper.
func WithSleeper(s Sleeper) Option {
	return func(c *config) {
		c.sleeper = s
	}
}

// WithSpawner replaces the default spawner, which runs each worker on its own
// OS thread.
func WithSpawner(s Spawner) Option {
	return func(c *config) {
		c.spawner = s
	}
}

// WithBudget makes Launch reserve a slot in b for the lifetime of the worker.
func WithBudget(b *Budget) Option {
	return func(c *config) {
		c.budget = b
	}
}

// WithMetrics records launches and outcomes on m.
func WithMetrics(m *metrics.Collectors) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithIDGenerator replaces the random worker ID generator.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(c *config) {
		c.newID = fn
	}
}

// WithTracing enables an OpenTelemetry span per worker.
func WithTracing(enabled bool) Option {
	return func(c *config) {
		c.trace = enabled
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		logger:  slog.New(slog.DiscardHandler),
		sleeper: timerSleeper{},
		spawner: threadSpawner{},
		newID:   uuid.GenerateUUID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
