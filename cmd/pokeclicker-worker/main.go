package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pokeclicker/internal/config"
	"pokeclicker/internal/db"
	"pokeclicker/internal/game"
	"pokeclicker/internal/pokeapi"
	"pokeclicker/internal/progression"
	"pokeclicker/internal/telemetry"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("load .env", "err", err)
	}
	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Setup(ctx, "pokeclicker-worker", cfg.OTelEndpoint)
	if err != nil {
		logger.Error("telemetry init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBPool, logger)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Error("schema init failed", "err", err)
		os.Exit(1)
	}

	prog := progression.New(pokeapi.NewClient(pokeapi.Options{
		BaseURL: cfg.PokeAPI.BaseURL,
		Timeout: cfg.PokeAPI.Timeout,
		RPS:     cfg.PokeAPI.RPS,
	}), progression.Options{
		StatTTL:   cfg.Cache.StatTTL,
		StatSweep: cfg.Cache.StatSweep,
		UserTTL:   cfg.Cache.UserTTL,
		UserSweep: cfg.Cache.UserSweep,
		AbsentTTL: cfg.Cache.AbsentTTL,
		Logger:    logger,
	})
	defer prog.Close()
	svc := game.NewService(pool, prog, logger)

	seed := func(ctx context.Context) error {
		started := time.Now()
		res, err := svc.RefreshCatalog(ctx, cfg.MaxID, cfg.Batch, cfg.Concurrency)
		if err != nil {
			return err
		}
		logger.Info("catalog refresh complete",
			"upserted", res.Upserted,
			"estimated", res.Estimated,
			"batches", res.Batches,
			"took", time.Since(started).String(),
		)
		return nil
	}

	if cfg.RunOnce {
		if err := seed(ctx); err != nil {
			logger.Error("catalog refresh failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(cfg.Schedule, func() {
		if err := seed(ctx); err != nil {
			logger.Error("catalog refresh failed", "err", err)
		}
	}); err != nil {
		logger.Error("invalid seed schedule", "schedule", cfg.Schedule, "err", err)
		os.Exit(1)
	}
	scheduler.Start()

	logger.Info("worker started", "schedule", cfg.Schedule, "max_id", cfg.MaxID, "batch", cfg.Batch)
	<-ctx.Done()
	logger.Info("worker shutdown")
	<-scheduler.Stop().Done()
}
