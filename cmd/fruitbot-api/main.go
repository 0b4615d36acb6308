package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fruitbot/internal/api"
	"fruitbot/internal/app"
	"fruitbot/internal/auth"
	"fruitbot/internal/config"
	"fruitbot/internal/logging"
	"fruitbot/internal/metrics"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
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

	m := metrics.New()
	gameSvc, err := app.NewService(cfg.Economy, st, logger, m)
	if err != nil {
		logger.Fatal("game init failed", zap.Error(err))
	}
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		logger.Fatal("auth init failed", zap.Error(err))
	}

	server := api.New(cfg, logger, issuer, gameSvc, m)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("fruitbot api listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.Storage.Driver))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
}
