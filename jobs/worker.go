package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"
)

// Worker runs the Asynq server and, when cron entries exist, the scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// QueueWeights gives mail priority over housekeeping.
var QueueWeights = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
}

// NewWorker validates the registrations and prepares the server.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}

	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			return nil, fmt.Errorf("jobs: incomplete handler registration %q", h.Type)
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				return nil, errors.New("jobs: cron entry needs a spec and a task")
			}
			id, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...)
			if err != nil {
				return nil, fmt.Errorf("jobs: register cron %q for %s: %w", entry.Spec, entry.Task.Type(), err)
			}
			logger.Info("cron registered", slog.String("task", entry.Task.Type()), slog.String("spec", entry.Spec), slog.String("entry_id", id))
		}
	}

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:  cfg.Concurrency,
		Queues:       QueueWeights,
		ErrorHandler: failureLogger(logger),
	})
	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// failureLogger records every failed attempt with its retry position.
func failureLogger(logger *slog.Logger) asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		logger.Warn("task failed",
			slog.String("task", task.Type()),
			slog.Int("retried", retried),
			slog.Int("max_retry", maxRetry),
			slog.Any("error", err),
		)
	})
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("worker: start server: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("worker: start scheduler: %w", err)
		}
	}
	w.logger.Info("worker started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		w.logger.Info("worker stopped")
		return gctx.Err()
	})
	return g.Wait()
}

// NewClient constructs an Asynq client. Callers close it on shutdown.
func NewClient(redisOpts asynq.RedisClientOpt) *asynq.Client {
	return asynq.NewClient(redisOpts)
}
