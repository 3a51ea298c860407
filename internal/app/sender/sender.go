// Package sender содержит приложение доставки писем из очереди.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/host-lifecycle/internal/config"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/host-lifecycle/internal/mailer"
	"github.com/magabrotheeeer/host-lifecycle/internal/metrics"
	"github.com/magabrotheeeer/host-lifecycle/internal/rabbitmq"
	senderservice "github.com/magabrotheeeer/host-lifecycle/internal/services/sender"
)

// App представляет приложение отправки писем.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	server        *http.Server
	workers       int
	logger        *slog.Logger
}

// New подключается к брокеру и готовит SMTP-отправителя.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	renderer, err := mailer.NewRenderer()
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.MailQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	collector := metrics.NewCollector("host_lifecycle")
	smtpMailer := mailer.NewSMTPMailer(logger, cfg.SMTP, renderer)
	senderService := senderservice.NewSenderService(logger, smtpMailer, collector, cfg.Mail.Timeout)

	router := chi.NewRouter()
	router.Handle("/metrics", collector.Handler())

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		server: &http.Server{
			Addr:        cfg.AddressHTTP,
			Handler:     router,
			ReadTimeout: cfg.TimeoutHTTP,
			IdleTimeout: cfg.IdleTimeout,
		},
		workers: cfg.Workers,
		logger:  logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
}

// Run потребляет очередь писем до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumeQueue(ctx, a.ch, rabbitmq.QueueEmail, a.workers, a.logger, a.senderService.HandleEmail)
	if err != nil {
		a.logger.Error("failed to start email consumer", sl.Err(err))
		closeResources(a.ch, a.conn, a.logger)
		return err
	}

	go func() {
		a.logger.Info("metrics listener started", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics listener failed", sl.Err(err))
		}
	}()

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to stop metrics listener", sl.Err(err))
	}
	closeResources(a.ch, a.conn, a.logger)
	return nil
}
