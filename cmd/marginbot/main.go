package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wb-margin-bot/internal/bot"
	"wb-margin-bot/internal/category"
	"wb-margin-bot/internal/config"
	"wb-margin-bot/internal/margin"
	"wb-margin-bot/internal/quota"
	"wb-margin-bot/internal/ratelimit"
	"wb-margin-bot/internal/scheduler"
	"wb-margin-bot/internal/server"
	"wb-margin-bot/internal/session"
	"wb-margin-bot/internal/storage"
	"wb-margin-bot/pkg/contextx"
	"wb-margin-bot/pkg/logger"
	"wb-margin-bot/pkg/metrics"
	"wb-margin-bot/pkg/redis"
	"wb-margin-bot/pkg/wb"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer zapLogger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctx = contextx.WithLogger(ctx, zapLogger)

	if err := run(ctx, cfg, zapLogger); err != nil {
		zapLogger.Fatal("Application stopped with error", zap.Error(err))
	}

	zapLogger.Info("Application shutdown gracefully")
}

func run(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	store, err := storage.New(ctx, cfg.Database, logger.Named(zapLogger, "storage"))
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	sessions, counter, closeRedis, err := newStateBackends(ctx, cfg, zapLogger)
	if err != nil {
		return err
	}
	defer closeRedis()

	categories := category.NewService(
		wb.NewClient(wb.Options{
			ContentBaseURL: cfg.WB.BaseURL,
			CommonBaseURL:  cfg.WB.CommonBaseURL,
			Token:          cfg.WB.Token,
			Timeout:        cfg.WB.RequestTimeout,
		}),
		category.Options{
			CacheTTL:          cfg.WB.CacheTTL,
			DefaultCommission: cfg.Quota.DefaultCommission,
			Overrides:         cfg.WB.CommissionOverrides,
		},
		logger.Named(zapLogger, "category"),
	)

	api, err := bot.NewAPI(cfg.TelegramToken, zapLogger)
	if err != nil {
		return err
	}

	tgBot := bot.New(api, bot.Deps{
		Sessions:   sessions,
		Quota:      quota.NewService(store, cfg.Quota.FreeCalculationsLimit),
		Categories: categories,
		History:    store,
		Limiter:    ratelimit.New(counter, cfg.RateLimit.Requests, cfg.RateLimit.Window),
	}, cfg, logger.Named(zapLogger, "bot"))

	wizards := session.NewWizardStore(cfg.Redis.SessionTTL, margin.WizardDefaults{
		CommissionPercent: cfg.Quota.DefaultCommission,
		StorageCost:       cfg.Quota.DefaultStorageCost(),
	})

	apiServer := server.New(categories, wizards, server.Options{
		Addr:        cfg.HTTP.APIAddr,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	}, logger.Named(zapLogger, "http"))

	jobs := scheduler.New(cfg.Schedule, categories, store, tgBot, logger.Named(zapLogger, "scheduler"))

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := api.GetUpdatesChan(u)

		go func() {
			<-ctx.Done()
			api.StopReceivingUpdates()
		}()

		return tgBot.Run(ctx, updates)
	})
	eg.Go(func() error {
		return apiServer.Run(ctx)
	})
	eg.Go(func() error {
		return metrics.NewPrometheusServer(cfg.HTTP.MetricsAddr).Run(ctx)
	})
	eg.Go(func() error {
		return jobs.Run(ctx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newStateBackends picks Redis for sessions and rate limits when configured, memory otherwise.
func newStateBackends(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (session.Store, ratelimit.Counter, func(), error) {
	if cfg.Redis.Addr == "" {
		zapLogger.Warn("REDIS_ADDR is empty, sessions and rate limits are kept in memory")
		return session.NewMemoryStore(cfg.Redis.SessionTTL), ratelimit.NewMemoryCounter(), func() {}, nil
	}

	redisClient := redis.New(redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx); err != nil {
		redisClient.Close()
		return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	return session.NewRedisStore(redisClient, cfg.Redis.SessionTTL), redisClient, redisClient.Close, nil
}
