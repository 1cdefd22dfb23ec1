package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leverclick/internal/api"
	"leverclick/internal/auth"
	"leverclick/internal/config"
	"leverclick/internal/db"
	"leverclick/internal/feed"
	"leverclick/internal/game"
	"leverclick/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	var results store.ResultStore = store.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Error("schema setup failed", "err", err)
			os.Exit(1)
		}
		results = store.NewPostgresStore(pool)

		if cfg.RedisURL != "" {
			rdb, err := store.ConnectRedis(ctx, cfg.RedisURL)
			if err != nil {
				logger.Error("redis connect failed", "err", err)
				os.Exit(1)
			}
			defer rdb.Close()
			results = store.NewCachedStore(results, rdb, cfg.CacheTTL)
		}
	} else {
		logger.Warn("DATABASE_URL not set, match results kept in memory")
	}

	hub := api.NewHub(logger)
	go hub.Run(ctx)
	publishers := []game.Publisher{hub}

	if cfg.NATSURL != "" {
		nc, js, err := feed.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("nats connect failed", "err", err)
			os.Exit(1)
		}
		defer nc.Drain()
		if err := feed.EnsureStream(ctx, js); err != nil {
			logger.Error("nats stream setup failed", "err", err)
			os.Exit(1)
		}
		natsPub := feed.NewPublisher(js, logger)
		go natsPub.Run(ctx)
		publishers = append(publishers, natsPub)
	}

	gameSvc := game.NewService(game.ServiceConfig{
		Rules:    cfg.Rules,
		Duration: cfg.MatchDuration,
		Runner: game.RunnerConfig{
			TickEvery:  cfg.TickEvery,
			Publishers: publishers,
			Results:    results,
		},
	}, logger)
	defer gameSvc.Shutdown()

	server := api.New(logger, gameSvc, results, hub, auth.NewTokens())
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

	logger.Info("leverclick api listening",
		"addr", cfg.Addr,
		"tick_every", cfg.TickEvery.String(),
		"match_duration", cfg.MatchDuration.String(),
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
