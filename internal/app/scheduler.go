package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/miem-nvr/sink/internal/model"
	"github.com/miem-nvr/sink/internal/repository"
	"github.com/miem-nvr/sink/internal/service"
)

// Scheduler периодически запускает батч синхронизации.
type Scheduler struct {
	syncService *service.SyncService
	runRepo     *repository.SyncRunRepository
	notifier    *service.Notifier // nil — нотификации выключены
	interval    time.Duration
	logger      *zap.Logger
	stopChan    chan struct{}
}

// NewScheduler создаёт планировщик батча.
func NewScheduler(
	syncService *service.SyncService,
	runRepo *repository.SyncRunRepository,
	notifier *service.Notifier,
	interval time.Duration,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		syncService: syncService,
		runRepo:     runRepo,
		notifier:    notifier,
		interval:    interval,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start запускает фоновый цикл синхронизации.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))
	go s.runSyncTask(ctx)
}

// Stop останавливает фоновый цикл.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	close(s.stopChan)
}

// runSyncTask гоняет батч по тикеру. Первый запуск — сразу при старте.
func (s *Scheduler) runSyncTask(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopChan:
			s.logger.Info("Sync task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Sync task cancelled")
			return
		}
	}
}

// RunOnce выполняет один батч, сохраняет итог в историю и шлёт сводку.
// Возвращает ошибку только на конфигурационных дефектах.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	run, err := s.syncService.Run(ctx)
	if err != nil {
		s.logger.Error("Synchronization batch failed", zap.Error(err))
		return err
	}

	s.finishRun(ctx, run)
	return nil
}

func (s *Scheduler) finishRun(ctx context.Context, run *model.SyncRun) {
	if s.runRepo != nil {
		if err := s.runRepo.Save(ctx, run); err != nil {
			s.logger.Error("Failed to persist sync run", zap.Error(err))
		}
	}
	if s.notifier != nil {
		s.notifier.NotifyRun(ctx, run)
	}
}
