package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fruitbot/internal/app"
	"fruitbot/internal/config"
	"fruitbot/internal/logging"
	"fruitbot/internal/worker"

	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		logging.Must("info", "json").Fatal("load config", zap.Error(err))
	}
	logger := logging.Must(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = logger.Sync() }()

	st, err := app.OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("store connect failed", zap.Error(err))
	}
	defer st.Close()

	gameSvc, err := app.NewService(cfg.Economy, st, logger, nil)
	if err != nil {
		logger.Fatal("game init failed", zap.Error(err))
	}

	sweeper, err := worker.NewSweeper(gameSvc, cfg.SweepWorkers, cfg.SweepBatch, logger, nil)
	if err != nil {
		logger.Fatal("sweeper init failed", zap.Error(err))
	}
	defer sweeper.Close()

	if cfg.RunOnce {
		if _, err := sweeper.Sweep(ctx); err != nil {
			logger.Error("sweep failed", zap.Error(err))
			os.Exit(1)
		}
		if _, err := worker.Purge(ctx, gameSvc, cfg.IdempotencyTTL, logger); err != nil {
			logger.Error("purge failed", zap.Error(err))
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	sched, err := worker.NewScheduler(ctx, worker.Schedule{
		Sweep:          cfg.SweepSchedule,
		Purge:          cfg.PurgeSchedule,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}, sweeper, gameSvc, logger)
	if err != nil {
		logger.Fatal("scheduler init failed", zap.Error(err))
	}
	sched.Start()
	logger.Info("worker started",
		zap.String("sweep", cfg.SweepSchedule),
		zap.String("purge", cfg.PurgeSchedule),
		zap.Int("workers", cfg.SweepWorkers),
	)

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sched.Stop(stopCtx)
	logger.Info("worker shutdown")
}
