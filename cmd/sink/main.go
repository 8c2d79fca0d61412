package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/miem-nvr/sink/internal/app"
	"github.com/miem-nvr/sink/internal/cache"
	"github.com/miem-nvr/sink/internal/config"
	"github.com/miem-nvr/sink/internal/erudite"
	"github.com/miem-nvr/sink/internal/gcalendar"
	"github.com/miem-nvr/sink/internal/limiter"
	"github.com/miem-nvr/sink/internal/model"
	"github.com/miem-nvr/sink/internal/repository"
	"github.com/miem-nvr/sink/internal/ruz"
	"github.com/miem-nvr/sink/internal/service"
)

func main() {
	once := flag.Bool("once", false, "run a single synchronization batch and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logger.Info("Starting sink",
		zap.String("environment", cfg.Environment),
		zap.Strings("buildings", cfg.Buildings),
		zap.Int("period_days", cfg.SyncPeriodDays),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	migrator.Close()

	// Кэши ответов внешних сервисов
	roomsCache := cache.New[[]model.Room](cfg.CacheSize, cfg.CacheTTL)
	emailsCache := cache.New[[]string](cfg.CacheSize, cfg.CacheTTL)

	// Адаптеры внешних сервисов
	ruzClient := ruz.New(ruz.Config{
		BaseURL: cfg.RUZAPIURL,
		Timeout: cfg.HTTPTimeout,
	}, roomsCache, logger)

	eruditeClient := erudite.New(erudite.Config{
		BaseURL: cfg.EruditeAPIURL,
		APIKey:  cfg.EruditeAPIKey,
		Timeout: cfg.HTTPTimeout,
	}, emailsCache, logger)

	calendarClient := gcalendar.New(gcalendar.Config{
		BaseURL: cfg.GCalAPIURL,
		Timeout: cfg.HTTPTimeout,
	}, gcalendar.StaticToken(cfg.GCalToken), logger)

	// Потолки конкурентности по сервисам
	lim, err := limiter.New(map[limiter.Service]int64{
		limiter.ServiceRUZ:      cfg.RUZMaxConcurrency,
		limiter.ServiceErudite:  cfg.EruditeMaxConcurrency,
		limiter.ServiceCalendar: cfg.GCalMaxConcurrency,
	})
	if err != nil {
		logger.Fatal("Failed to create limiter", zap.Error(err))
	}

	roomRepo := repository.NewRoomRepository(pool)
	runRepo := repository.NewSyncRunRepository(pool)

	syncService := service.NewSyncService(
		ruzClient,
		eruditeClient,
		calendarClient,
		roomRepo,
		lim,
		service.SyncConfig{
			PeriodDays: cfg.SyncPeriodDays,
			Buildings:  cfg.Buildings,
		},
		logger,
	)

	notifier, err := service.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID, logger)
	if err != nil {
		logger.Fatal("Failed to create notifier", zap.Error(err))
	}

	scheduler := app.NewScheduler(syncService, runRepo, notifier, cfg.SyncInterval, logger)

	if *once {
		if err := scheduler.RunOnce(ctx); err != nil {
			logger.Error("Batch failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	scheduler.Start(ctx)

	<-ctx.Done()
	scheduler.Stop()
	logger.Info("Shutdown complete")
}
