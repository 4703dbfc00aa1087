package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/rbacadmin/internal/app"
	"github.com/odyssey-erp/rbacadmin/internal/auth"
	jobmetrics "github.com/odyssey-erp/rbacadmin/internal/jobs"
	"github.com/odyssey-erp/rbacadmin/internal/platform/db"
	"github.com/odyssey-erp/rbacadmin/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(nil)
	mailJob := &jobs.SendEmailJob{Sender: mailSender(cfg, logger), Logger: logger, Metrics: metrics}
	purgeJob := jobs.NewPurgeTokensJob(auth.NewTokenStore(pool), logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
			{Type: jobs.TaskTypePurgeTokens, Handler: purgeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.TokenPurgeCron, Task: jobs.NewPurgeTokensTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

// mailSender relays through SMTP when an address is configured and logs the
// rendered message otherwise.
func mailSender(cfg *app.Config, logger *slog.Logger) jobs.Sender {
	if cfg.SMTPAddr == "" {
		logger.Info("SMTP_ADDR not set, mail will be logged")
		return jobs.LogSender{Logger: logger}
	}
	return jobs.NewSMTPSender(jobs.SMTPConfig{
		Addr:     cfg.SMTPAddr,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
}
