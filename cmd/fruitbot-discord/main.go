package main

import (
	"context"
	"os/signal"
	"syscall"

	"fruitbot/internal/app"
	"fruitbot/internal/config"
	"fruitbot/internal/discord"
	"fruitbot/internal/logging"

	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDiscordFromEnv()
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

	bot, err := discord.New(cfg.Token, cfg.AppID, cfg.GuildID, gameSvc, logger)
	if err != nil {
		logger.Fatal("discord init failed", zap.Error(err))
	}
	if err := bot.Start(); err != nil {
		logger.Fatal("discord start failed", zap.Error(err))
	}
	defer bot.Close()

	<-ctx.Done()
	logger.Info("discord bot shutdown")
}
