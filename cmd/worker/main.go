package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/aegis-admin/aegis/internal/app"
	"github.com/aegis-admin/aegis/internal/platform/cache"
	"github.com/aegis-admin/aegis/internal/platform/db"
	"github.com/aegis-admin/aegis/internal/policy"
	"github.com/aegis-admin/aegis/internal/rbac"
	"github.com/aegis-admin/aegis/internal/session"
	"github.com/aegis-admin/aegis/jobs"
)

func main() {
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	graph := rbac.NewGraph(rbac.NewPGSource(pool), logger)
	policyEngine := policy.NewEngine(policy.NewPGSource(pool), policy.NewPGViolations(pool), logger, nil)

	reaperJob := jobs.NewSessionReaperJob(session.NewPGRepository(pool), logger, nil)
	trimJob := jobs.NewViolationTrimJob(policy.NewPGViolations(pool), logger, nil)
	warmupJob := jobs.NewAuthzWarmupJob(graph, policyEngine, logger)

	reapTask, err := jobs.NewSessionReapTask(cfg.SessionRetention)
	if err != nil {
		logger.Error("build reap task", slog.Any("error", err))
		os.Exit(1)
	}
	trimTask, err := jobs.NewViolationTrimTask(cfg.ViolationRetention)
	if err != nil {
		logger.Error("build trim task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSessionReap, Handler: reaperJob.Handle},
			{Type: jobs.TaskViolationTrim, Handler: trimJob.Handle},
			{Type: jobs.TaskAuthzWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: reapTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: trimTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: jobs.NewAuthzWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
