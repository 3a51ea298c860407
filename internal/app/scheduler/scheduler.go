// Package scheduler содержит приложение планировщика периодических проверок.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/host-lifecycle/internal/app/core"
	"github.com/magabrotheeeer/host-lifecycle/internal/config"
	schedulerservice "github.com/magabrotheeeer/host-lifecycle/internal/services/scheduler"
)

// App представляет приложение планировщика.
type App struct {
	core             *core.Core
	schedulerService *schedulerservice.SchedulerService
	runOnStart       bool
	logger           *slog.Logger
}

// New создает новый экземпляр приложения планировщика и регистрирует расписания.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	c, err := core.Build(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependencies: %w", err)
	}

	svc := schedulerservice.NewSchedulerService(logger, c.Lifecycle, c.Clock, cfg.SweepTimeout)
	if err := svc.Schedule(ctx, cfg.Scheduler); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to register schedules: %w", err)
	}

	return &App{
		core:             c,
		schedulerService: svc,
		runOnStart:       cfg.RunOnStart,
		logger:           logger,
	}, nil
}

// Run запускает планировщик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	a.schedulerService.Start(ctx, a.runOnStart)
	a.logger.Info("shutting down scheduler service")
	a.core.Close()
	return nil
}
