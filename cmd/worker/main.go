package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"phRestore/internal/config"
	"phRestore/internal/database"
	"phRestore/internal/jobs"
	"phRestore/internal/logging"
	"phRestore/internal/metrics"
	"phRestore/internal/restorer"
	"phRestore/internal/storage"
	"phRestore/internal/tasks"
	"phRestore/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	logger.Info("database connection ready for worker")

	storageClient, err := storage.NewClient(ctx, cfg.MinIO)
	if err != nil {
		return fmt.Errorf("init storage client: %w", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	restorerClient, err := restorer.NewClient(cfg.Restorer)
	if err != nil {
		return fmt.Errorf("init restorer client: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	store := jobs.NewGormStore(db)
	restorationHandler := worker.NewRestorationTaskHandler(store, storageClient, restorerClient, redisClient, logger)
	reapHandler := worker.NewReapTaskHandler(store, cfg.Worker.StaleAfter, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeRestorationProcess, restorationHandler)
	mux.Handle(tasks.TypeRestorationReap, reapHandler)

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      newAsynqLogger(logger),
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: newAsynqLogger(logger.With(slog.String("component", "scheduler"))),
	})
	entryID, err := scheduler.Register(cfg.Worker.ReapCronSpec, tasks.NewReapTask(), asynq.MaxRetry(0))
	if err != nil {
		return fmt.Errorf("register reap schedule: %w", err)
	}
	logger.Info("reap task scheduled", slog.String("spec", cfg.Worker.ReapCronSpec), slog.String("entry_id", entryID))

	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Shutdown()

	if err := server.Start(mux); err != nil {
		return fmt.Errorf("start worker server: %w", err)
	}
	logger.Info("worker service started",
		slog.String("redis_addr", cfg.Redis.Addr()),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	<-ctx.Done()
	logger.Info("shutting down worker")
	server.Shutdown()
	return nil
}
