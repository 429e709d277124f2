package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"collectdesk/internal/cache"
	"collectdesk/internal/config"
	"collectdesk/internal/database"
	"collectdesk/internal/handlers"
	"collectdesk/internal/jobs"
	"collectdesk/internal/log"
	"collectdesk/internal/repository"
	"collectdesk/internal/server"
	"collectdesk/internal/service"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "api")
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if err := database.Migrate(ctx, dbPool); err != nil {
		logger.Fatal().Err(err).Msg("schema migration failed")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	users := repository.NewUserRepository(dbPool)
	sessions := repository.NewSessionRepository(dbPool)
	auth := service.NewAuthService(
		users,
		sessions,
		service.NewLoginThrottle(redisClient, cfg.Security.LoginMaxAttempts, cfg.Security.LoginLockout),
		service.NewStreamPublisher(redisClient, cfg.Worker.Stream, logger),
		cfg,
		logger,
	)
	if err := auth.EnsureBootstrapAdmin(ctx); err != nil {
		logger.Fatal().Err(err).Msg("bootstrap admin failed")
	}

	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Dependencies{
		Auth:     auth,
		Users:    users,
		Sessions: sessions,
		Checks: map[string]handlers.HealthCheck{
			"database": dbPool.Ping,
			"cache":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})
	httpServer, err := server.NewHTTPServer(cfg, logger, handlerSet)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid http configuration")
	}

	scheduler := jobs.NewScheduler(redisClient, cfg.Worker.Stream, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
