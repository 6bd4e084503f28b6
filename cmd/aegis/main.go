package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aegis-admin/aegis/internal/app"
	"github.com/aegis-admin/aegis/internal/auth"
	"github.com/aegis-admin/aegis/internal/core"
	"github.com/aegis-admin/aegis/internal/history"
	"github.com/aegis-admin/aegis/internal/platform/cache"
	"github.com/aegis-admin/aegis/internal/platform/db"
	"github.com/aegis-admin/aegis/internal/policy"
	"github.com/aegis-admin/aegis/internal/rbac"
	"github.com/aegis-admin/aegis/internal/resource"
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
		logger.Warn("redis unavailable, jobs health degraded", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	violations := policy.NewPGViolations(pool)
	policyEngine := policy.NewEngine(policy.NewPGSource(pool), violations, logger, nil)
	if err := policyEngine.Reload(ctx); err != nil {
		logger.Error("load policies", slog.Any("error", err))
		os.Exit(1)
	}

	graph := rbac.NewGraph(rbac.NewPGSource(pool), logger)
	if err := graph.Rebuild(ctx); err != nil {
		logger.Error("build rbac graph", slog.Any("error", err))
		os.Exit(1)
	}
	resolver := rbac.NewResolver(graph)

	sessions, err := session.NewManager(session.NewPGRepository(pool), nil, cfg.SessionTTL)
	if err != nil {
		logger.Error("init sessions", slog.Any("error", err))
		os.Exit(1)
	}

	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	authService := auth.NewService(auth.NewPGCredentialFinder(pool), hasher, sessions)
	authHandler := auth.NewHandler(logger, authService, cfg.SessionTTL)

	store := resource.NewPGStore(pool, history.NewRecorder(nil), nil)
	engine, err := resource.NewEngine(resource.EngineParams{
		Store:             store,
		Features:          resolver,
		Policies:          policyEngine,
		Logger:            logger,
		Entities:          core.Entities(hasher),
		GraphInvalidator:  graph,
		PolicyInvalidator: policyEngine,
	})
	if err != nil {
		logger.Error("init resource engine", slog.Any("error", err))
		os.Exit(1)
	}

	coreService := core.NewService(engine, resolver, policyEngine, logger)
	entityHandler := core.NewHandler(logger, coreService)

	var jobHandler *jobs.Handler
	if redisClient != nil {
		// The inspector shares the redis connection already held open; its
		// lifetime ends with the client's deferred Close.
		jobHandler = jobs.NewHandler(asynq.NewInspectorFromRedisClient(redisClient), logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		Core:          coreService,
		Sessions:      sessions,
		AuthHandler:   authHandler,
		EntityHandler: entityHandler,
		JobHandler:    jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
