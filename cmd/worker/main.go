package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"collectdesk/internal/cache"
	"collectdesk/internal/config"
	"collectdesk/internal/database"
	"collectdesk/internal/log"
	"collectdesk/internal/queue"
	"collectdesk/internal/repository"
	"collectdesk/internal/tasks"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	processor := tasks.NewProcessor(repository.NewSessionRepository(dbPool), logger)
	consumer := queue.NewConsumer(
		client,
		cfg.Worker.Stream,
		cfg.Worker.Group,
		cfg.Worker.Consumer,
		cfg.Worker.ClaimInterval,
		logger,
		processor,
	)

	logger.Info().Str("stream", cfg.Worker.Stream).Str("group", cfg.Worker.Group).Msg("worker starting")
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
	}
	logger.Info().Msg("worker exited cleanly")
}
