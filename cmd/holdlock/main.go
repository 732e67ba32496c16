package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-holdlock/v1/lock"
	"github.com/mirkobrombin/go-holdlock/v1/metrics"
	"github.com/mirkobrombin/go-holdlock/v1/syncbus"
	"github.com/mirkobrombin/go-holdlock/v1/worker"
)

var (
	workers     = flag.Int("workers", 2, "Number of workers sharing the lock")
	before      = flag.Duration("before", 100*time.Millisecond, "Delay before acquiring the lock")
	hold        = flag.Duration("hold", 200*time.Millisecond, "Delay while holding the lock")
	backend     = flag.String("backend", "local", "Lock backend: local, inmemory or redis")
	busKind     = flag.String("bus", "inmemory", "Unlock notification bus: inmemory, redis or nats")
	key         = flag.String("key", "holdlock", "Lock key for keyed backends")
	redisAddr   = flag.String("redis", "localhost:6379", "Redis address")
	natsURL     = flag.String("nats", nats.DefaultURL, "NATS URL")
	maxActive   = flag.Int64("max-active", 0, "Maximum live workers, 0 for unbounded")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address and keep running")
	traceOut    = flag.Bool("trace", false, "Print OpenTelemetry spans to stdout")
	verbose     = flag.Bool("v", false, "Log worker state transitions")
)

func main() {
	flag.Parse()
	if err := run(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *traceOut {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return err
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		defer func() { _ = tp.Shutdown(ctx) }()
		otel.SetTracerProvider(tp)
	}

	reg := metrics.NewRegistry()
	m := metrics.NewCollectors(reg)

	var redisClient *redis.Client
	if *backend == "redis" || *busKind == "redis" {
		redisClient = redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis %s: %w", *redisAddr, err)
		}
	}

	bus, closeBus, err := newBus(redisClient)
	if err != nil {
		return err
	}
	defer closeBus()

	mu, err := newMutex(redisClient, bus)
	if err != nil {
		return err
	}

	opts := []worker.Option{
		worker.WithLogger(logger),
		worker.WithMetrics(m),
		worker.WithTracing(*traceOut),
	}
	if *maxActive > 0 {
		opts = append(opts, worker.WithBudget(worker.NewBudget(*maxActive)))
	}

	log.Printf("Launching %d workers on %s lock (before=%s hold=%s)", *workers, *backend, *before, *hold)
	start := time.Now()
	var g errgroup.Group
	for i := 0; i < *workers; i++ {
		h, err := worker.Launch(ctx, mu, *before, *hold, opts...)
		if err != nil {
			return fmt.Errorf("launch worker %d: %w", i, err)
		}
		g.Go(func() error {
			req := h.Join()
			if !req.Succeeded {
				return fmt.Errorf("worker %s failed in %s: %w", req.ID, req.FailedIn, req.Err)
			}
			log.Printf("worker %s held the lock for %s", req.ID, req.Held.Round(time.Millisecond))
			return nil
		})
	}
	err = g.Wait()
	log.Printf("Finished in %v", time.Since(start).Round(time.Millisecond))
	if err != nil {
		return err
	}

	if *metricsAddr != "" {
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Printf("Serving metrics on %s", *metricsAddr)
		return http.ListenAndServe(*metricsAddr, nil)
	}
	return nil
}

func newBus(redisClient *redis.Client) (syncbus.Bus, func(), error) {
	switch *busKind {
	case "inmemory":
		return syncbus.NewInMemoryBus(), func() {}, nil
	case "redis":
		b := syncbus.NewRedisBus(redisClient)
		return syncbus.NewCircuitBreaker(b, 3, time.Second), func() { _ = b.Close() }, nil
	case "nats":
		conn, err := nats.Connect(*natsURL)
		if err != nil {
			return nil, nil, fmt.Errorf("nats %s: %w", *natsURL, err)
		}
		return syncbus.NewCircuitBreaker(syncbus.NewNATSBus(conn), 3, time.Second), conn.Close, nil
	default:
		return nil, nil, errors.New("unknown bus " + *busKind)
	}
}

func newMutex(redisClient *redis.Client, bus syncbus.Bus) (lock.Mutex, error) {
	switch *backend {
	case "local":
		return lock.NewLocal(), nil
	case "inmemory":
		return lock.NewKeyed(lock.NewInMemory(bus), *key), nil
	case "redis":
		return lock.NewKeyed(lock.NewRedis(redisClient, bus), *key), nil
	default:
		return nil, errors.New("unknown backend " + *backend)
	}
}
