package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pokeclicker/internal/api"
	"pokeclicker/internal/auth"
	"pokeclicker/internal/config"
	"pokeclicker/internal/db"
	"pokeclicker/internal/game"
	"pokeclicker/internal/pokeapi"
	"pokeclicker/internal/progression"
	"pokeclicker/internal/telemetry"

	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("load .env", "err", err)
	}
	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Setup(ctx, "pokeclicker-api", cfg.OTelEndpoint)
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

	stats := pokeapi.NewClient(pokeapi.Options{
		BaseURL: cfg.PokeAPI.BaseURL,
		Timeout: cfg.PokeAPI.Timeout,
		RPS:     cfg.PokeAPI.RPS,
	})
	prog := progression.New(stats, progression.Options{
		StatTTL:   cfg.Cache.StatTTL,
		StatSweep: cfg.Cache.StatSweep,
		UserTTL:   cfg.Cache.UserTTL,
		UserSweep: cfg.Cache.UserSweep,
		AbsentTTL: cfg.Cache.AbsentTTL,
		Logger:    logger,
	})
	defer prog.Close()

	gameSvc := game.NewService(pool, prog, logger)
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	passwords := auth.NewPasswords(cfg.BcryptCost)

	server := api.New(cfg, logger, tokens, passwords, prog, gameSvc)
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

	logger.Info("pokeclicker api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
