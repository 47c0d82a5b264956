package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sandstone-edu/webhooks/pkg/config"
	"github.com/sandstone-edu/webhooks/pkg/dispatch"
	"github.com/sandstone-edu/webhooks/pkg/logger"
	"github.com/sandstone-edu/webhooks/pkg/pgstore"
	"github.com/sandstone-edu/webhooks/pkg/redislock"
	"github.com/sandstone-edu/webhooks/pkg/webhook"
)

type dispatcherConfig struct {
	ExecutionMode   string        `env:"EXECUTION_MODE" envDefault:"production"`        // production or development; controls endpoint URL rules
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`                  // json or text
	BatchSize       int           `env:"WEBHOOK_BATCH_SIZE" envDefault:"100"`           // max due events per batch pass
	PollInterval    time.Duration `env:"WEBHOOK_POLL_INTERVAL" envDefault:"10s"`        // delay between batch passes
	DeliveryTimeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"30s"`              // per-request delivery timeout
	MaxRetries      int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"3"`            // default retry budget for subscriptions without their own
	RetryInterval   time.Duration `env:"WEBHOOK_RETRY_INTERVAL" envDefault:"60s"`       // default base retry interval for subscriptions without their own
	RetentionDays   int           `env:"WEBHOOK_RETENTION_DAYS" envDefault:"30"`        // terminal events and deliveries older than this are purged
	CleanupInterval time.Duration `env:"WEBHOOK_CLEANUP_INTERVAL" envDefault:"1h"`      // delay between retention cleanup passes
	HealthInterval  time.Duration `env:"WEBHOOK_HEALTHCHECK_INTERVAL" envDefault:"1m"`  // delay between database liveness checks
	LockEnabled     bool          `env:"WEBHOOK_LOCK_ENABLED" envDefault:"false"`       // coordinate batch passes across replicas through redis
	LockKey         string        `env:"WEBHOOK_LOCK_KEY" envDefault:"webhooks:batch"`  // redis key for the batch lock
}

func main() {
	var cfg dispatcherConfig
	config.MustLoad(&cfg)

	logOpts := []logger.Option{
		logger.WithAttrs(slog.String("service", "webhook-dispatcher")),
	}
	if cfg.LogFormat == "text" {
		logOpts = append(logOpts, logger.WithFormat(logger.FormatText))
	}
	if cfg.ExecutionMode == "development" {
		logOpts = append(logOpts, logger.WithDevelopment())
	}
	log := logger.New(logOpts...)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("dispatcher exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg dispatcherConfig, log *slog.Logger) error {
	var pgCfg pgstore.Config
	config.MustLoad(&pgCfg)

	pool, err := pgstore.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pgstore.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	mode := webhook.ModeProduction
	if cfg.ExecutionMode == "development" {
		mode = webhook.ModeDevelopment
	}

	client := webhook.NewClient(
		webhook.WithMode(mode),
		webhook.WithTimeout(cfg.DeliveryTimeout),
		webhook.WithCircuitBreaking(5, 2, 30*time.Second),
	)

	stores := pgstore.New(pool)
	processor := dispatch.NewProcessor(client, stores.Subscriptions, stores.Events, stores.Deliveries, log,
		dispatch.WithRetryDefaults(cfg.MaxRetries, cfg.RetryInterval),
	)
	runner := dispatch.NewRunner(processor, stores.Events, stores.Deliveries, log,
		dispatch.WithBatchSize(cfg.BatchSize),
		dispatch.WithRetention(time.Duration(cfg.RetentionDays)*24*time.Hour),
	)

	var lock *redislock.Locker
	if cfg.LockEnabled {
		var redisCfg redislock.Config
		config.MustLoad(&redisCfg)

		redisClient, err := redislock.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()

		lock = redislock.NewLocker(redisClient, cfg.LockKey, redisCfg.LockTTL)
	}

	log.Info("webhook dispatcher started",
		slog.String("mode", cfg.ExecutionMode),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Duration("poll_interval", cfg.PollInterval))

	health := pgstore.Healthcheck(pool)

	pollTicker := time.NewTicker(cfg.PollInterval)
	defer pollTicker.Stop()
	cleanupTicker := time.NewTicker(cfg.CleanupInterval)
	defer cleanupTicker.Stop()
	healthTicker := time.NewTicker(cfg.HealthInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("webhook dispatcher stopping")
			return nil

		case <-pollTicker.C:
			runBatch(ctx, runner, lock, log)

		case <-cleanupTicker.C:
			if _, _, err := runner.Cleanup(ctx); err != nil {
				log.Error("retention cleanup failed", slog.String("error", err.Error()))
			}

		case <-healthTicker.C:
			if err := health(ctx); err != nil {
				log.Error("database healthcheck failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runBatch executes one batch pass, optionally guarded by the distributed
// lock. A lock held elsewhere just skips the pass; the next tick tries again.
func runBatch(ctx context.Context, runner *dispatch.Runner, lock *redislock.Locker, log *slog.Logger) {
	if lock != nil {
		if err := lock.Acquire(ctx); err != nil {
			if !errors.Is(err, redislock.ErrNotAcquired) {
				log.Error("acquire batch lock", slog.String("error", err.Error()))
			}
			return
		}
		defer func() {
			if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrNotHeld) {
				log.Error("release batch lock", slog.String("error", err.Error()))
			}
		}()
	}

	if _, err := runner.RunBatch(ctx); err != nil {
		log.Error("batch pass failed", slog.String("error", err.Error()))
	}
}
