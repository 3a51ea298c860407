package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

var errHostInvariant = errors.New("host profile violates review field constraints")

// checkHost повторяет CHECK-ограничения таблицы host_profiles.
func checkHost(p *models.HostProfile) error {
	rejected := p.Status == models.HostRejected
	if rejected != (p.RejectedAt != nil && p.RejectedBy != nil) {
		return errHostInvariant
	}
	var approved bool
	switch p.Status {
	case models.HostApproved, models.HostActive, models.HostSuspended, models.HostDeactivated:
		approved = true
	}
	if approved != (p.ApprovedAt != nil && p.ApprovedBy != nil) {
		return errHostInvariant
	}
	return nil
}

// CreateLog добавляет запись журнала.
func (s *Store) CreateLog(ctx context.Context, l *models.ApplicationLog) error {
	const op = "memory.CreateLog"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	if _, ok := s.t.hosts[l.HostID]; !ok {
		return fmt.Errorf("%s: host %s: %w", op, l.HostID, storage.ErrNotFound)
	}
	stored := *l
	if stored.Metadata == nil {
		stored.Metadata = map[string]any{}
	}
	s.t.logs = append(s.t.logs, stored)
	return nil
}

// ListLogs возвращает журнал профиля, новые записи первыми.
func (s *Store) ListLogs(ctx context.Context, hostID string, limit int) ([]models.ApplicationLog, error) {
	const op = "memory.ListLogs"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []models.ApplicationLog
	for i := len(s.t.logs) - 1; i >= 0; i-- {
		if s.t.logs[i].HostID == hostID {
			res = append(res, s.t.logs[i])
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return paginate(res, limit, 0), nil
}

// CreateNotification сохраняет уведомление.
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	const op = "memory.CreateNotification"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	s.t.notifications = append(s.t.notifications, *n)
	return nil
}

// RecentNotificationExists ищет уведомление с префиксом заголовка не старше since.
func (s *Store) RecentNotificationExists(ctx context.Context, userID string, category models.NotificationCategory,
	titlePrefix string, since time.Time) (bool, error) {
	const op = "memory.RecentNotificationExists"
	if err := ctxDone(ctx, op); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.t.notifications {
		if n.UserID == userID && n.Category == category &&
			strings.HasPrefix(n.Title, titlePrefix) && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// ListNotifications возвращает последние уведомления пользователя.
func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	const op = "memory.ListNotifications"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []models.Notification
	for i := len(s.t.notifications) - 1; i >= 0; i-- {
		if s.t.notifications[i].UserID == userID {
			res = append(res, s.t.notifications[i])
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return paginate(res, limit, 0), nil
}

// CountUnreadNotifications число непрочитанных уведомлений.
func (s *Store) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	const op = "memory.CountUnreadNotifications"
	if err := ctxDone(ctx, op); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.t.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkNotificationRead отмечает уведомление пользователя прочитанным.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) error {
	const op = "memory.MarkNotificationRead"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	for i := range s.t.notifications {
		if s.t.notifications[i].ID == id && s.t.notifications[i].UserID == userID {
			s.t.notifications[i].IsRead = true
			return nil
		}
	}
	return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

// MarkAllNotificationsRead отмечает все уведомления пользователя прочитанными.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	const op = "memory.MarkAllNotificationsRead"
	if err := ctxDone(ctx, op); err != nil {
		return 0, err
	}
	defer s.lock(ctx)()

	n := 0
	for i := range s.t.notifications {
		if s.t.notifications[i].UserID == userID && !s.t.notifications[i].IsRead {
			s.t.notifications[i].IsRead = true
			n++
		}
	}
	return n, nil
}

// CreatePermission сохраняет право; пара (user, permission) уникальна.
func (s *Store) CreatePermission(ctx context.Context, p *models.ApplicationPermission) error {
	const op = "memory.CreatePermission"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	if _, ok := s.t.users[p.UserID]; !ok {
		return fmt.Errorf("%s: user %s: %w", op, p.UserID, storage.ErrNotFound)
	}
	for _, existing := range s.t.permissions {
		if existing.UserID == p.UserID && existing.Permission == p.Permission {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
	}
	stored := *p
	stored.UserEmail = ""
	s.t.permissions[p.ID] = stored
	return nil
}

func (s *Store) permissionView(p models.ApplicationPermission) models.ApplicationPermission {
	if u, ok := s.t.users[p.UserID]; ok {
		p.UserEmail = u.Email
	}
	return p
}

// GetPermission возвращает право пользователя заданного уровня.
func (s *Store) GetPermission(ctx context.Context, userID string, level models.PermissionLevel) (*models.ApplicationPermission, error) {
	const op = "memory.GetPermission"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.t.permissions {
		if p.UserID == userID && p.Permission == level {
			v := s.permissionView(p)
			return &v, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

// DeletePermission отзывает право.
func (s *Store) DeletePermission(ctx context.Context, id string) error {
	const op = "memory.DeletePermission"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	if _, ok := s.t.permissions[id]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	delete(s.t.permissions, id)
	return nil
}

// ListPermissionsByUser возвращает права пользователя.
func (s *Store) ListPermissionsByUser(ctx context.Context, userID string) ([]models.ApplicationPermission, error) {
	return s.listPermissions(ctx, "memory.ListPermissionsByUser", func(p models.ApplicationPermission) bool {
		return p.UserID == userID
	})
}

// ListPermissions возвращает все права.
func (s *Store) ListPermissions(ctx context.Context) ([]models.ApplicationPermission, error) {
	return s.listPermissions(ctx, "memory.ListPermissions", func(models.ApplicationPermission) bool { return true })
}

func (s *Store) listPermissions(ctx context.Context, op string, keep func(models.ApplicationPermission) bool) ([]models.ApplicationPermission, error) {
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []models.ApplicationPermission
	for _, p := range s.t.permissions {
		if keep(p) {
			res = append(res, s.permissionView(p))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].UserEmail != res[j].UserEmail {
			return res[i].UserEmail < res[j].UserEmail
		}
		return res[i].Permission < res[j].Permission
	})
	return res, nil
}

// CreateConversation сохраняет переписку.
func (s *Store) CreateConversation(ctx context.Context, c *models.Conversation) error {
	const op = "memory.CreateConversation"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	if _, ok := s.t.hosts[c.HostID]; !ok {
		return fmt.Errorf("%s: host %s: %w", op, c.HostID, storage.ErrNotFound)
	}
	stored := *c
	stored.CompanyName, stored.UnreadCount = "", 0
	s.t.conversations[c.ID] = stored
	return nil
}

func (s *Store) conversationView(c models.Conversation) models.Conversation {
	if h, ok := s.t.hosts[c.HostID]; ok {
		c.CompanyName = h.CompanyName
	}
	return c
}

// GetConversation возвращает переписку по ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	const op = "memory.GetConversation"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.t.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	v := s.conversationView(c)
	return &v, nil
}

// ListConversations возвращает переписки по фильтру с числом непрочитанных для стороны зрителя.
func (s *Store) ListConversations(ctx context.Context, f models.ConversationFilter, unreadFromHost bool) ([]models.Conversation, error) {
	const op = "memory.ListConversations"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	unread := make(map[string]int)
	for _, m := range s.t.messages {
		if !m.IsRead && m.IsFromHost == unreadFromHost {
			unread[m.ConversationID]++
		}
	}

	var res []models.Conversation
	for _, c := range s.t.conversations {
		if f.HostID != "" && c.HostID != f.HostID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		v := s.conversationView(c)
		v.UnreadCount = unread[c.ID]
		res = append(res, v)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].LastMessageAt.Equal(res[j].LastMessageAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].LastMessageAt.After(res[j].LastMessageAt)
	})
	return res, nil
}

// TouchConversation обновляет время последнего сообщения открытой переписки.
func (s *Store) TouchConversation(ctx context.Context, id string, at time.Time) error {
	const op = "memory.TouchConversation"
	return s.updateOpenConversation(ctx, op, id, func(c *models.Conversation) { c.LastMessageAt = at })
}

// CloseConversation закрывает открытую переписку.
func (s *Store) CloseConversation(ctx context.Context, id string) error {
	const op = "memory.CloseConversation"
	return s.updateOpenConversation(ctx, op, id, func(c *models.Conversation) { c.Status = models.ConversationClosed })
}

func (s *Store) updateOpenConversation(ctx context.Context, op, id string, apply func(*models.Conversation)) error {
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	c, ok := s.t.conversations[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if c.Status != models.ConversationOpen {
		return fmt.Errorf("%s: %w", op, storage.ErrStaleState)
	}
	apply(&c)
	s.t.conversations[id] = c
	return nil
}

// CreateMessage сохраняет сообщение.
func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	const op = "memory.CreateMessage"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	if _, ok := s.t.conversations[m.ConversationID]; !ok {
		return fmt.Errorf("%s: conversation %s: %w", op, m.ConversationID, storage.ErrNotFound)
	}
	s.t.messages = append(s.t.messages, *m)
	return nil
}

// ListMessages возвращает сообщения переписки в порядке создания.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	const op = "memory.ListMessages"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []models.Message
	for _, m := range s.t.messages {
		if m.ConversationID == conversationID {
			res = append(res, m)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// MarkMessagesRead отмечает прочитанными непрочитанные сообщения одной стороны.
func (s *Store) MarkMessagesRead(ctx context.Context, conversationID string, fromHost bool) (int, error) {
	const op = "memory.MarkMessagesRead"
	if err := ctxDone(ctx, op); err != nil {
		return 0, err
	}
	defer s.lock(ctx)()

	n := 0
	for i := range s.t.messages {
		m := &s.t.messages[i]
		if m.ConversationID == conversationID && m.IsFromHost == fromHost && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}
