// Package scheduler запускает периодические проверки жизненного цикла по расписанию cron.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/host-lifecycle/internal/config"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/clock"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/lifecycle"
)

// Пакеты проверок.
const (
	BatchDaily  = "daily"
	BatchWeekly = "weekly"
)

// SweepRunner запускает проверку по имени; реализуется lifecycle.Service.
type SweepRunner interface {
	RunSweep(ctx context.Context, name string, now time.Time) (lifecycle.SweepResult, error)
}

// SchedulerService планировщик проверок.
type SchedulerService struct {
	runner  SweepRunner
	clock   clock.Clock
	timeout time.Duration
	cron    *cron.Cron
	log     *slog.Logger
}

// NewSchedulerService создает новый экземпляр SchedulerService.
func NewSchedulerService(log *slog.Logger, runner SweepRunner, clk clock.Clock, timeout time.Duration) *SchedulerService {
	if clk == nil {
		clk = clock.System{}
	}
	cl := cronLogger{log: log}
	return &SchedulerService{
		runner:  runner,
		clock:   clk,
		timeout: timeout,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: log,
	}
}

// Batches имена проверок каждого пакета в порядке выполнения.
func Batches() map[string][]string {
	return map[string][]string{
		BatchDaily:  lifecycle.DailySweeps(),
		BatchWeekly: lifecycle.WeeklySweeps(),
	}
}

// Schedule регистрирует ежедневный и еженедельный пакеты.
func (s *SchedulerService) Schedule(ctx context.Context, cfg config.Scheduler) error {
	const op = "scheduler.Schedule"
	specs := []struct {
		batch string
		spec  string
	}{
		{BatchDaily, cfg.DailySpec},
		{BatchWeekly, cfg.WeeklySpec},
	}
	for _, sp := range specs {
		batch := sp.batch
		if _, err := s.cron.AddFunc(sp.spec, func() { s.RunBatch(ctx, batch) }); err != nil {
			return fmt.Errorf("%s: %s spec %q: %w", op, batch, sp.spec, err)
		}
		s.log.Info("sweep batch scheduled", slog.String("batch", batch), slog.String("spec", sp.spec))
	}
	return nil
}

// RunBatch последовательно выполняет проверки пакета. Сбой одной проверки не останавливает остальные.
func (s *SchedulerService) RunBatch(ctx context.Context, batch string) []lifecycle.SweepResult {
	names, ok := Batches()[batch]
	if !ok {
		s.log.Error("unknown sweep batch", slog.String("batch", batch))
		return nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	now := s.clock.Now()
	s.log.Info("starting sweep batch", slog.String("batch", batch), slog.Time("now", now))
	results := make([]lifecycle.SweepResult, 0, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			s.log.Warn("sweep batch interrupted", slog.String("batch", batch), sl.Err(ctx.Err()))
			break
		}
		res, err := s.runner.RunSweep(ctx, name, now)
		if err != nil {
			s.log.Error("sweep failed", slog.String("sweep", name), sl.Err(err))
			continue
		}
		results = append(results, res)
	}
	return results
}

// Start запускает расписание и блокируется до отмены ctx.
func (s *SchedulerService) Start(ctx context.Context, runOnStart bool) {
	if runOnStart {
		s.RunBatch(ctx, BatchDaily)
	}
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Info("next sweep run", slog.Int("entry", int(e.ID)), slog.Time("at", e.Next))
	}
	<-ctx.Done()
	s.log.Info("stopping scheduler, waiting for running sweeps")
	<-s.cron.Stop().Done()
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, sl.Err(err))...)
}
