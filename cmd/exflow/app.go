package main

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/anggasct/exflow"
	"github.com/anggasct/exflow/pkg/config"
	"github.com/anggasct/exflow/pkg/directory"
	"github.com/anggasct/exflow/pkg/lock/redislock"
	"github.com/anggasct/exflow/pkg/observers"
	"github.com/anggasct/exflow/pkg/store/postgres"
)

// app holds the wired engine and the resources to release on shutdown
type app struct {
	engine  *exflow.Engine
	metrics *observers.MetricsObserver
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires storage, locking, directory and observers from the configuration
func buildApp(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*app, error) {
	a := &app{metrics: observers.NewMetricsObserver()}
	opts := []exflow.Option{
		exflow.WithObserver(observers.NewLoggingObserver(logger.Named("workflow"))),
		exflow.WithObserver(a.metrics),
		exflow.WithGracePeriod(cfg.Workflow.GracePeriod),
	}
	if cfg.Workflow.MaxRetries != nil {
		opts = append(opts, exflow.WithMaxRetries(*cfg.Workflow.MaxRetries))
	}

	var store exflow.Store
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		pool, err := postgres.Open(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		pg := postgres.New(pool)
		if err := pg.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
		store = pg
	default:
		logger.Warn("using in-memory storage, requests are lost on exit")
		store = exflow.NewMemoryStore()
	}

	if cfg.Lock.Driver == config.LockRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			a.Close()
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		opts = append(opts, exflow.WithLocker(redislock.New(client,
			redislock.WithTTL(cfg.Lock.TTL),
			redislock.WithLogger(logger.Named("lock")))))
	}

	if cfg.Directory.BaseURL != "" {
		dir, err := directory.New(logger.Named("directory"), cfg.Directory)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, exflow.WithDirectory(dir))
	}

	if cfg.Notify.WebhookURL != "" {
		opts = append(opts, exflow.WithObserver(observers.NewWebhookObserver(logger.Named("webhook"), cfg.Notify)))
	}

	a.engine = exflow.NewEngine(store, opts...)
	return a, nil
}
