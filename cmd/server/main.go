package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailblast/internal/api"
	"github.com/ignite/mailblast/internal/config"
	"github.com/ignite/mailblast/internal/engine"
	"github.com/ignite/mailblast/internal/events"
	"github.com/ignite/mailblast/internal/pkg/logger"
	"github.com/ignite/mailblast/internal/queue"
	"github.com/ignite/mailblast/internal/store"
	"github.com/ignite/mailblast/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}
	logger.Info("starting mailblast delivery service", "addr", cfg.Server.Addr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pg, err := store.Open(ctx, cfg.Database.URL)
	cancel()
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer pg.Close()
	logger.Info("connected to postgres")

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unavailable, locking and throttling degraded", "error", err)
			redisClient = nil
		}
		pingCancel()
	}

	mailTransport, err := buildTransport(cfg.Transport)
	if err != nil {
		logger.Error("transport init failed", "error", err)
		os.Exit(1)
	}

	registry := engine.NewRegistry(pg, pg, mailTransport, events.NewBus(), engine.Config{
		Defaults: queue.Options{
			Concurrency:   cfg.Engine.Concurrency,
			MaxRetries:    cfg.Engine.MaxRetries,
			JobDelay:      cfg.Engine.JobDelay(),
			BackoffUnit:   cfg.Engine.BackoffUnit(),
			RatePerMinute: cfg.Engine.RatePerMinute,
		},
		PollInterval:  cfg.Engine.PollInterval(),
		Retention:     cfg.Engine.Retention(),
		SweepInterval: cfg.Engine.SweepInterval(),
		Redis:         redisClient,
		LockDB:        pg.DB(),
	})
	defer registry.Close()

	server := api.NewServer(cfg.Server, registry)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server stopped", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func buildTransport(cfg config.TransportConfig) (transport.Transport, error) {
	switch cfg.Provider {
	case "sparkpost":
		if cfg.SparkPost.APIKey == "" {
			return nil, fmt.Errorf("sparkpost provider requires an API key")
		}
		return transport.NewSparkPost(cfg.SparkPost.APIKey, cfg.SparkPost.BaseURL), nil
	case "ses", "":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return transport.NewSES(ctx, cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region)
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}
