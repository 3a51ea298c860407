// Package sender доставляет почтовые задания из очереди через SMTP.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/host-lifecycle/internal/mailer"
)

// Transport отправляет отрендеренное письмо; реализуется mailer.SMTPMailer.
type Transport interface {
	Send(ctx context.Context, template, to string, data map[string]any) error
}

// Metrics учёт результатов доставки.
type Metrics interface {
	ObserveMail(template string, err error)
}

// SenderService обработчик очереди notifications.email.
type SenderService struct {
	transport Transport
	metrics   Metrics
	timeout   time.Duration
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(log *slog.Logger, transport Transport, metrics Metrics, timeout time.Duration) *SenderService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SenderService{
		transport: transport,
		metrics:   metrics,
		timeout:   timeout,
		log:       log,
	}
}

// HandleEmail разбирает конверт и отправляет письмо. Ошибка возвращает сообщение в очередь.
func (s *SenderService) HandleEmail(ctx context.Context, body []byte) error {
	const op = "sender.HandleEmail"
	var env mailer.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("%s: error unmarshalling message: %w", op, err)
	}
	if err := env.Validate(); err != nil {
		s.log.Error("invalid email envelope", slog.String("template", env.Template), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.transport.Send(sendCtx, env.Template, env.To, env.Data)
	if s.metrics != nil {
		s.metrics.ObserveMail(env.Template, err)
	}
	if err != nil {
		s.log.Error("failed to send email",
			slog.String("template", env.Template),
			slog.String("to", env.To),
			sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("email sent successfully",
		slog.String("template", env.Template),
		slog.String("to", env.To),
		slog.Duration("queued_for", time.Since(env.QueuedAt)))
	return nil
}
