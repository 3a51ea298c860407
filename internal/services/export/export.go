// Package export собирает выгрузку всех данных хоста: учётную запись, профиль, договор,
// уведомления, журнал заявки и переписку.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/clock"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

// RecordLimit сколько последних уведомлений и записей журнала попадает в выгрузку.
const RecordLimit = 200

// Store источник данных выгрузки.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetHostProfileByUser(ctx context.Context, userID string) (*models.HostProfile, error)
	GetContractByHost(ctx context.Context, hostID string) (*models.ServiceContract, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	ListLogs(ctx context.Context, hostID string, limit int) ([]models.ApplicationLog, error)
	ListConversations(ctx context.Context, f models.ConversationFilter, unreadFromHost bool) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// Account данные учётной записи в выгрузке.
type Account struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Conversation переписка с сообщениями.
type Conversation struct {
	Subject   string                    `json:"subject"`
	Status    models.ConversationStatus `json:"status"`
	CreatedAt time.Time                 `json:"created_at"`
	Messages  []models.Message          `json:"messages"`
}

// Data полная выгрузка данных хоста.
type Data struct {
	ExportedAt    time.Time               `json:"exported_at"`
	User          Account                 `json:"user"`
	Profile       *models.HostProfile     `json:"profile"`
	Contract      *models.ServiceContract `json:"contract,omitempty"`
	Notifications []models.Notification   `json:"notifications"`
	ActivityLogs  []models.ApplicationLog `json:"activity_logs"`
	Conversations []Conversation          `json:"conversations"`
}

// Service сервис выгрузки.
type Service struct {
	log   *slog.Logger
	store Store
	clock clock.Clock
}

// New создаёт сервис выгрузки.
func New(log *slog.Logger, store Store, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{log: log, store: store, clock: clk}
}

// Export выгружает данные хоста. Доступно только пользователю с профилем хоста,
// в том числе в период доступа только на чтение.
func (s *Service) Export(ctx context.Context, userID string) (*Data, error) {
	const op = "export.Export"
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("user", "user not found")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	profile, err := s.store.GetHostProfileByUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !user.IsHost) {
		return nil, apperrors.PermissionDenied("not a host user")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	data := &Data{
		ExportedAt:    s.clock.Now(),
		User:          Account{Email: user.Email, FullName: user.FullName},
		Profile:       profile,
		Conversations: []Conversation{},
	}
	contract, err := s.store.GetContractByHost(ctx, profile.ID)
	switch {
	case err == nil:
		data.Contract = contract
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if data.Notifications, err = s.store.ListNotifications(ctx, userID, RecordLimit); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if data.ActivityLogs, err = s.store.ListLogs(ctx, profile.ID, RecordLimit); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if data.Notifications == nil {
		data.Notifications = []models.Notification{}
	}
	if data.ActivityLogs == nil {
		data.ActivityLogs = []models.ApplicationLog{}
	}

	convs, err := s.store.ListConversations(ctx, models.ConversationFilter{HostID: profile.ID}, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, c := range convs {
		msgs, err := s.store.ListMessages(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: conversation %s: %w", op, c.ID, err)
		}
		if msgs == nil {
			msgs = []models.Message{}
		}
		data.Conversations = append(data.Conversations, Conversation{
			Subject:   c.Subject,
			Status:    c.Status,
			CreatedAt: c.CreatedAt,
			Messages:  msgs,
		})
	}
	s.log.Info("host data exported",
		slog.String("host_id", profile.ID),
		slog.Int("notifications", len(data.Notifications)),
		slog.Int("conversations", len(data.Conversations)))
	return data, nil
}
