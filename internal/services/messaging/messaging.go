// Package messaging реализует переписку хостов с поддержкой.
// Сотрудник видит все переписки, хост только свои. Закрытая переписка не открывается повторно.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/clock"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

// Store хранилище переписки.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetHostProfile(ctx context.Context, id string) (*models.HostProfile, error)
	GetHostProfileByUser(ctx context.Context, userID string) (*models.HostProfile, error)
	CreateConversation(ctx context.Context, c *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, f models.ConversationFilter, unreadFromHost bool) ([]models.Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	CloseConversation(ctx context.Context, id string) error
	CreateMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	MarkMessagesRead(ctx context.Context, conversationID string, fromHost bool) (int, error)
}

// Authorizer проверяет права сотрудника на заявки.
type Authorizer interface {
	Require(ctx context.Context, actor *models.User, level models.PermissionLevel) error
}

// Detail переписка с сообщениями.
type Detail struct {
	*models.Conversation
	Messages []models.Message `json:"messages"`
}

// Service сервис переписки.
type Service struct {
	log   *slog.Logger
	store Store
	authz Authorizer
	clock clock.Clock
}

// New создаёт сервис переписки.
func New(log *slog.Logger, store Store, authz Authorizer, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{log: log, store: store, authz: authz, clock: clk}
}

// viewer сторона переписки, от имени которой действует пользователь.
type viewer struct {
	user    *models.User
	staff   bool
	profile *models.HostProfile
}

func (s *Service) viewerOf(ctx context.Context, u *models.User) (*viewer, error) {
	if u == nil || !u.IsActive {
		return nil, apperrors.PermissionDenied("active account required")
	}
	if u.IsStaff {
		return &viewer{user: u, staff: true}, nil
	}
	p, err := s.store.GetHostProfileByUser(ctx, u.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return &viewer{user: u}, nil
	}
	if err != nil {
		return nil, err
	}
	return &viewer{user: u, profile: p}, nil
}

// conversation загружает переписку и проверяет доступ к ней.
func (s *Service) conversation(ctx context.Context, v *viewer, id string) (*models.Conversation, error) {
	c, err := s.store.GetConversation(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("conversation", "conversation not found")
	}
	if err != nil {
		return nil, err
	}
	if !v.staff && (v.profile == nil || v.profile.ID != c.HostID) {
		return nil, apperrors.PermissionDenied("access denied")
	}
	return c, nil
}

// List переписки, видимые пользователю; status пустой означает все.
// Число непрочитанных считается по сообщениям другой стороны.
func (s *Service) List(ctx context.Context, u *models.User, status models.ConversationStatus) ([]models.Conversation, error) {
	const op = "messaging.List"
	v, err := s.viewerOf(ctx, u)
	if err != nil {
		return nil, err
	}
	f := models.ConversationFilter{Status: status}
	if !v.staff {
		if v.profile == nil {
			return []models.Conversation{}, nil
		}
		f.HostID = v.profile.ID
	}
	res, err := s.store.ListConversations(ctx, f, v.staff)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if res == nil {
		res = []models.Conversation{}
	}
	return res, nil
}

// Open возвращает переписку с сообщениями и отмечает прочитанными сообщения другой стороны.
func (s *Service) Open(ctx context.Context, u *models.User, id string) (*Detail, error) {
	const op = "messaging.Open"
	v, err := s.viewerOf(ctx, u)
	if err != nil {
		return nil, err
	}
	c, err := s.conversation(ctx, v, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var messages []models.Message
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.MarkMessagesRead(ctx, c.ID, v.staff); err != nil {
			return err
		}
		messages, err = s.store.ListMessages(ctx, c.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return &Detail{Conversation: c, Messages: messages}, nil
}

// Start создаёт переписку с первым сообщением. Сотрудник обязан указать hostID,
// хост пишет от своего профиля.
func (s *Service) Start(ctx context.Context, u *models.User, hostID, subject, body string) (*Detail, error) {
	const op = "messaging.Start"
	v, err := s.viewerOf(ctx, u)
	if err != nil {
		return nil, err
	}
	subject, body = strings.TrimSpace(subject), strings.TrimSpace(body)
	if subject == "" || body == "" {
		return nil, apperrors.Validation("conversation", "subject and body are required")
	}

	var host *models.HostProfile
	switch {
	case v.staff:
		if hostID == "" {
			return nil, apperrors.Validation("conversation", "host_id required for staff-initiated conversations").
				WithDetails(map[string]string{"field": "host_id"})
		}
		host, err = s.store.GetHostProfile(ctx, hostID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("host_profile", "host not found")
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case v.profile != nil:
		host = v.profile
	default:
		return nil, apperrors.PermissionDenied("only hosts and staff can start conversations")
	}

	now := s.clock.Now()
	c := &models.Conversation{
		ID:            uuid.NewString(),
		HostID:        host.ID,
		CompanyName:   host.CompanyName,
		Subject:       subject,
		Status:        models.ConversationOpen,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	m := models.Message{
		ID:             uuid.NewString(),
		ConversationID: c.ID,
		SenderID:       u.ID,
		Body:           body,
		IsFromHost:     !v.staff,
		CreatedAt:      now,
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateConversation(ctx, c); err != nil {
			return err
		}
		return s.store.CreateMessage(ctx, &m)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("conversation started",
		slog.String("conversation_id", c.ID),
		slog.String("host_id", host.ID),
		slog.Bool("by_staff", v.staff))
	return &Detail{Conversation: c, Messages: []models.Message{m}}, nil
}

// Send добавляет сообщение в открытую переписку.
func (s *Service) Send(ctx context.Context, u *models.User, id, body string) (*models.Message, error) {
	const op = "messaging.Send"
	v, err := s.viewerOf(ctx, u)
	if err != nil {
		return nil, err
	}
	c, err := s.conversation(ctx, v, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if c.Status == models.ConversationClosed {
		return nil, closedConflict()
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.Validation("message", "body is required").
			WithDetails(map[string]string{"field": "body"})
	}

	m := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: c.ID,
		SenderID:       u.ID,
		Body:           body,
		IsFromHost:     !v.staff,
		CreatedAt:      s.clock.Now(),
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.TouchConversation(ctx, c.ID, m.CreatedAt); err != nil {
			return err
		}
		return s.store.CreateMessage(ctx, m)
	})
	if errors.Is(err, storage.ErrStaleState) {
		return nil, closedConflict()
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}

// Close закрывает переписку. Доступно только сотрудникам; повторное закрытие даёт Conflict.
func (s *Service) Close(ctx context.Context, u *models.User, id string) error {
	const op = "messaging.Close"
	v, err := s.viewerOf(ctx, u)
	if err != nil {
		return err
	}
	if !v.staff {
		return apperrors.PermissionDenied("only staff can close conversations")
	}
	c, err := s.conversation(ctx, v, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if c.Status == models.ConversationClosed {
		return closedConflict()
	}
	err = s.store.CloseConversation(ctx, c.ID)
	if errors.Is(err, storage.ErrStaleState) {
		return closedConflict()
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("conversation closed", slog.String("conversation_id", c.ID), slog.String("actor_id", u.ID))
	return nil
}

// HostConversations переписки конкретного хоста для сотрудника с правом view.
func (s *Service) HostConversations(ctx context.Context, actor *models.User, hostID string) ([]models.Conversation, error) {
	const op = "messaging.HostConversations"
	if err := s.authz.Require(ctx, actor, models.PermissionView); err != nil {
		return nil, err
	}
	if _, err := s.store.GetHostProfile(ctx, hostID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("host_profile", "application not found")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.store.ListConversations(ctx, models.ConversationFilter{HostID: hostID}, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if res == nil {
		res = []models.Conversation{}
	}
	return res, nil
}

func closedConflict() error {
	return apperrors.Conflict("conversation", "this conversation is closed",
		string(models.ConversationClosed), string(models.ConversationOpen))
}
