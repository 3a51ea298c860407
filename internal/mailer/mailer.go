// Package mailer доставляет письма по шаблонам: напрямую через SMTP,
// через очередь RabbitMQ или только в журнал.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/magabrotheeeer/host-lifecycle/internal/config"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/rabbitmq"
)

// Envelope почтовое задание, которое передаётся через очередь.
type Envelope struct {
	Template string         `json:"template"`
	To       string         `json:"to"`
	Data     map[string]any `json:"data"`
	QueuedAt time.Time      `json:"queued_at"`
}

// Validate проверяет, что задание можно доставить.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.To) == "" {
		return errors.New("recipient is required")
	}
	if !Known(e.Template) {
		return fmt.Errorf("unknown template %q", e.Template)
	}
	return nil
}

// Dialer отправляет готовые сообщения; *gomail.Dialer подходит.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer отправляет письма через SMTP-сервер.
type SMTPMailer struct {
	log      *slog.Logger
	dialer   Dialer
	from     string
	renderer *Renderer
}

// NewSMTPMailer создаёт отправителя по настройкам SMTP.
func NewSMTPMailer(log *slog.Logger, cfg config.SMTP, renderer *Renderer) *SMTPMailer {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	return NewSMTPMailerWithDialer(log, d, cfg.From, renderer)
}

// NewSMTPMailerWithDialer создаёт отправителя поверх произвольного Dialer.
func NewSMTPMailerWithDialer(log *slog.Logger, d Dialer, from string, renderer *Renderer) *SMTPMailer {
	return &SMTPMailer{log: log, dialer: d, from: from, renderer: renderer}
}

// Send рендерит шаблон и отправляет письмо. Отмена ctx прерывает ожидание отправки.
func (m *SMTPMailer) Send(ctx context.Context, template, to string, data map[string]any) error {
	subject, body, err := m.renderer.Render(template, data)
	if err != nil {
		return apperrors.Delivery(err, "cannot render email")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return apperrors.Delivery(err, "smtp delivery failed")
		}
	case <-ctx.Done():
		return apperrors.Delivery(ctx.Err(), "smtp delivery timed out")
	}
	m.log.Info("email sent", slog.String("template", template), slog.String("to", to))
	return nil
}

// Publisher публикация задания в брокер.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// QueueMailer ставит письма в очередь; доставляет их сервис sender.
type QueueMailer struct {
	pub   Publisher
	clock func() time.Time
}

// NewQueueMailer создаёт отправителя через очередь.
func NewQueueMailer(pub Publisher) *QueueMailer {
	return &QueueMailer{pub: pub, clock: time.Now}
}

// Send публикует задание с ключом rabbitmq.RoutingKeyEmail.
func (m *QueueMailer) Send(ctx context.Context, template, to string, data map[string]any) error {
	env := Envelope{Template: template, To: to, Data: data, QueuedAt: m.clock().UTC()}
	if err := env.Validate(); err != nil {
		return apperrors.Delivery(err, "invalid email")
	}
	if err := m.pub.Publish(ctx, rabbitmq.RoutingKeyEmail, env); err != nil {
		return apperrors.Delivery(err, "cannot enqueue email")
	}
	return nil
}

// Queued сообщает, что успешный Send означает только постановку в очередь.
func (m *QueueMailer) Queued() bool { return true }

// LogMailer только пишет письмо в журнал. Используется локально и в тестовых стендах.
type LogMailer struct {
	log      *slog.Logger
	renderer *Renderer
}

// NewLogMailer создаёт журналирующего отправителя.
func NewLogMailer(log *slog.Logger, renderer *Renderer) *LogMailer {
	return &LogMailer{log: log, renderer: renderer}
}

// Send рендерит письмо и пишет тему в журнал.
func (m *LogMailer) Send(_ context.Context, template, to string, data map[string]any) error {
	subject, _, err := m.renderer.Render(template, data)
	if err != nil {
		return apperrors.Delivery(err, "cannot render email")
	}
	m.log.Info("email (log mode)",
		slog.String("template", template),
		slog.String("to", to),
		slog.String("subject", subject))
	return nil
}
