// Package audit ведёт журнал заявок и уведомления пользователей.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/clock"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

// InboxLimit сколько последних уведомлений отдаётся в списке.
const InboxLimit = 50

// Store хранилище журнала и уведомлений.
type Store interface {
	CreateLog(ctx context.Context, l *models.ApplicationLog) error
	ListLogs(ctx context.Context, hostID string, limit int) ([]models.ApplicationLog, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	RecentNotificationExists(ctx context.Context, userID string, category models.NotificationCategory,
		titlePrefix string, since time.Time) (bool, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
}

// Entry запись журнала заявки.
type Entry struct {
	HostID   string
	Action   models.LogAction
	ActorID  *string
	Note     string
	IP       string
	Metadata map[string]any
}

// Message уведомление пользователю.
type Message struct {
	UserID    string
	Category  models.NotificationCategory
	Title     string
	Body      string
	ActionURL string
}

// Service журнал и уведомления.
type Service struct {
	log   *slog.Logger
	store Store
	clock clock.Clock
}

// New создаёт сервис.
func New(log *slog.Logger, store Store, clk clock.Clock) *Service {
	return &Service{log: log, store: store, clock: clk}
}

type ipKey struct{}

// WithIP сохраняет IP клиента в контексте для записей журнала.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

// IPFrom IP клиента из контекста.
func IPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey{}).(string)
	return ip
}

// Record добавляет неизменяемую запись в журнал заявки.
func (s *Service) Record(ctx context.Context, e Entry) (*models.ApplicationLog, error) {
	const op = "audit.Record"
	if e.HostID == "" || e.Action == "" {
		return nil, apperrors.Validation("audit", "host id and action are required")
	}
	ip := e.IP
	if ip == "" {
		ip = IPFrom(ctx)
	}
	l := &models.ApplicationLog{
		ID:        uuid.NewString(),
		HostID:    e.HostID,
		Action:    e.Action,
		ActorID:   e.ActorID,
		Note:      e.Note,
		IPAddress: ip,
		Metadata:  e.Metadata,
		CreatedAt: s.clock.Now(),
	}
	if l.Metadata == nil {
		l.Metadata = map[string]any{}
	}
	if err := s.store.CreateLog(ctx, l); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return l, nil
}

// Logs журнал заявки, новые записи первыми.
func (s *Service) Logs(ctx context.Context, hostID string, limit int) ([]models.ApplicationLog, error) {
	const op = "audit.Logs"
	logs, err := s.store.ListLogs(ctx, hostID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return logs, nil
}

// Notify создаёт уведомление. Пустая категория заменяется на info.
func (s *Service) Notify(ctx context.Context, m Message) (*models.Notification, error) {
	const op = "audit.Notify"
	if m.UserID == "" || m.Title == "" {
		return nil, apperrors.Validation("notification", "user id and title are required")
	}
	if m.Category == "" {
		m.Category = models.CategoryInfo
	}
	n := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    m.UserID,
		Category:  m.Category,
		Title:     m.Title,
		Message:   m.Body,
		ActionURL: m.ActionURL,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// NotifyUnlessRecent создаёт уведомление, если у пользователя нет уведомления той же категории
// с заголовком, начинающимся на titlePrefix, созданного не раньше since.
func (s *Service) NotifyUnlessRecent(ctx context.Context, m Message, titlePrefix string, since time.Time) (bool, error) {
	const op = "audit.NotifyUnlessRecent"
	if m.Category == "" {
		m.Category = models.CategoryInfo
	}
	exists, err := s.store.RecentNotificationExists(ctx, m.UserID, m.Category, titlePrefix, since)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		s.log.Debug("notification suppressed by dedup window",
			slog.String("user_id", m.UserID),
			slog.String("title_prefix", titlePrefix))
		return false, nil
	}
	if _, err := s.Notify(ctx, m); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// List последние уведомления пользователя.
func (s *Service) List(ctx context.Context, userID string) ([]models.Notification, error) {
	const op = "audit.List"
	res, err := s.store.ListNotifications(ctx, userID, InboxLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if res == nil {
		res = []models.Notification{}
	}
	return res, nil
}

// UnreadCount число непрочитанных уведомлений.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	const op = "audit.UnreadCount"
	n, err := s.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// MarkRead отмечает уведомление прочитанным; чужое уведомление не найдено.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	const op = "audit.MarkRead"
	if err := s.store.MarkNotificationRead(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFound("notification", "notification not found")
		}
		s.log.Error("failed to mark notification read", sl.Op(op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkAllRead отмечает прочитанными все уведомления пользователя.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	const op = "audit.MarkAllRead"
	n, err := s.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
