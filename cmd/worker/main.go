package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/anonlounge/anonlounge/internal/app"
	"github.com/anonlounge/anonlounge/internal/broadcast"
	"github.com/anonlounge/anonlounge/internal/platform/db"
	"github.com/anonlounge/anonlounge/internal/users"
	"github.com/anonlounge/anonlounge/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	logStore := broadcast.NewLogStore(pool)
	userRepo := users.NewRepository(pool)

	purgeTask, err := jobs.NewMessageLogPurgeTask(jobs.MessageLogPurgePayload{Retention: cfg.MessageRetention})
	if err != nil {
		logger.Error("build purge task", slog.Any("error", err))
		os.Exit(1)
	}
	sweepTask, err := jobs.NewCaptchaSweepTask(jobs.CaptchaSweepPayload{MaxAge: cfg.CaptchaExpiry})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskMessageLogPurge, Handler: jobs.NewMessageLogPurgeHandler(logStore, logger)},
			{Type: jobs.TaskCaptchaSweep, Handler: jobs.NewCaptchaSweepHandler(userRepo, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 3 * * *", Task: purgeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/30 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
