// Package core собирает общие зависимости процессов платформы: хранилище, кэш,
// отправку писем, метрики и доменные сервисы.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/host-lifecycle/internal/cache"
	"github.com/magabrotheeeer/host-lifecycle/internal/config"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/clock"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/jwt"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/host-lifecycle/internal/mailer"
	"github.com/magabrotheeeer/host-lifecycle/internal/metrics"
	"github.com/magabrotheeeer/host-lifecycle/internal/migrations"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/rabbitmq"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/audit"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/auth"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/export"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/lifecycle"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/messaging"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/permission"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage/memory"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage/repository"
)

// MetricsNamespace префикс метрик всех процессов.
const MetricsNamespace = "host_lifecycle"

// Store хранилище со всеми операциями, которые нужны сервисам.
type Store interface {
	lifecycle.Store
	audit.Store
	permission.Store
	messaging.Store
	export.Store
	auth.UserRepository
	CreateTemplate(ctx context.Context, t *models.ContractTemplate) error
}

// Checker проверка доступности зависимости для /health.
type Checker func(ctx context.Context) error

// Core собранные зависимости.
type Core struct {
	Log     *slog.Logger
	Cfg     *config.Config
	Clock   clock.Clock
	Store   Store
	Cache   *cache.Cache
	Metrics *metrics.Collector
	Mailer  lifecycle.Mailer

	Audit       *audit.Service
	Resolver    *permission.Resolver
	Permissions *permission.Service
	Lifecycle   *lifecycle.Service
	Messaging   *messaging.Service
	Export      *export.Service
	Auth        *auth.AuthService

	Checks map[string]Checker

	closers []func() error
}

// Build подключает хранилище и остальные зависимости по конфигу.
// При ошибке уже открытые ресурсы закрываются.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (c *Core, err error) {
	const op = "core.Build"
	c = &Core{
		Log:     log,
		Cfg:     cfg,
		Clock:   clock.System{},
		Metrics: metrics.NewCollector(MetricsNamespace),
		Checks:  map[string]Checker{},
	}
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()

	if err = c.openStore(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = c.openCache(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = c.openMailer(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.wireServices()
	return c, nil
}

func (c *Core) openStore(ctx context.Context) error {
	if c.Cfg.Storage.Driver == "memory" {
		st := memory.New()
		if err := SeedTemplate(ctx, st, c.Clock.Now()); err != nil {
			return err
		}
		c.Store = st
		c.Log.Warn("using in-memory storage, data is lost on restart")
		return nil
	}

	db, err := repository.New(c.Cfg.StorageConnectionString)
	if err != nil {
		return err
	}
	c.closers = append(c.closers, db.Close)
	if err := waitForDB(ctx, db); err != nil {
		return err
	}
	if err := migrations.Run(db.DB, c.Cfg.MigrationsPath); err != nil {
		return err
	}
	if err := repository.CheckDatabaseReady(ctx, db); err != nil {
		return err
	}
	c.Store = db
	c.Checks["postgres"] = db.DB.PingContext
	return nil
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	var err error
	for range 10 {
		if err = db.DB.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}

// SeedTemplate создаёт действующую версию договора 1.0, если её ещё нет.
func SeedTemplate(ctx context.Context, st Store, now time.Time) error {
	_, err := st.GetActiveTemplate(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return st.CreateTemplate(ctx, &models.ContractTemplate{
		ID:        "00000000-0000-0000-0000-000000000001",
		Version:   "1.0",
		Title:     "Host Service Agreement",
		Body:      "By signing this agreement the host accepts the platform terms of service. Either party may terminate the agreement with a notice period of two months. After the service end date the host keeps read-only access to their data for one year.",
		IsActive:  true,
		CreatedAt: now,
	})
}

func (c *Core) openCache(ctx context.Context) error {
	if c.Cfg.AddressRedis == "" {
		c.Log.Warn("redis address is empty, subscription status cache disabled")
		return nil
	}
	rc, err := cache.InitServer(ctx, c.Cfg.RedisConnection)
	if err != nil {
		return err
	}
	c.Cache = rc
	c.closers = append(c.closers, rc.Close)
	c.Checks["redis"] = func(ctx context.Context) error { return rc.Db.Ping(ctx).Err() }
	return nil
}

func (c *Core) openMailer() error {
	renderer, err := mailer.NewRenderer()
	if err != nil {
		return err
	}
	switch c.Cfg.Mail.Mode {
	case "smtp":
		c.Mailer = mailer.NewSMTPMailer(c.Log, c.Cfg.SMTP, renderer)
	case "log":
		c.Mailer = mailer.NewLogMailer(c.Log, renderer)
	default:
		conn, err := rabbitmq.Connect(c.Cfg.RabbitMQURL, c.Cfg.RabbitMQMaxRetries, c.Cfg.RabbitMQRetryDelay)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, conn.Close)
		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.MailQueues())
		if err != nil {
			return err
		}
		c.closers = append(c.closers, ch.Close)
		c.Mailer = mailer.NewQueueMailer(rabbitmq.NewPublisher(ch, rabbitmq.Exchange))
		c.Checks["rabbitmq"] = func(context.Context) error { return connAlive(conn) }
	}
	return nil
}

func connAlive(conn *amqp.Connection) error {
	if conn.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

func (c *Core) wireServices() {
	jwtCfg := c.Cfg.JWTToken
	c.Audit = audit.New(c.Log, c.Store, c.Clock)
	c.Resolver = permission.NewResolver(c.Store)
	c.Permissions = permission.NewService(c.Log, c.Store, c.Resolver, c.Clock)
	c.Messaging = messaging.New(c.Log, c.Store, c.Resolver, c.Clock)
	c.Export = export.New(c.Log, c.Store, c.Clock)
	c.Auth = auth.NewAuthService(c.Log, c.Store, jwt.NewJWTMaker(jwtCfg.JWTSecretKey, jwtCfg.TokenTTL), c.Clock)

	deps := lifecycle.Deps{
		Log:        c.Log,
		Store:      c.Store,
		Auditor:    c.Audit,
		Authorizer: c.Resolver,
		Mailer:     c.Mailer,
		Tokens:     jwt.NewSetupTokenIssuer(jwtCfg.JWTSecretKey, jwtCfg.SetupTTL, c.Clock),
		Metrics:    c.Metrics,
		Clock:      c.Clock,
	}
	if c.Cache != nil {
		deps.Cache = c.Cache
	}
	c.Lifecycle = lifecycle.New(deps, lifecycle.Options{
		FrontendURL:        c.Cfg.FrontendURL,
		TrialPeriod:        c.Cfg.TrialPeriod,
		TrialWarningWindow: c.Cfg.TrialWarningWindow,
		DedupWindow:        c.Cfg.DedupWindow,
		AccessWarningDays:  c.Cfg.AccessWarningDays,
		StatusTTL:          c.Cfg.StatusTTL,
		MailTimeout:        c.Cfg.Mail.Timeout,
	})
}

// Close закрывает ресурсы в обратном порядке открытия.
func (c *Core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Log.Error("failed to close resource", sl.Err(err))
		}
	}
	c.closers = nil
}
