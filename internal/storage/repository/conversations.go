package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

// CreateConversation сохраняет новую переписку.
func (s *Storage) CreateConversation(ctx context.Context, c *models.Conversation) error {
	const op = "storage.CreateConversation"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO conversations (id, host_id, subject, status, last_message_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.conn(ctx).ExecContext(ctx, query,
		c.ID, c.HostID, c.Subject, string(c.Status), c.LastMessageAt, c.CreatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// GetConversation возвращает переписку по ID вместе с названием компании хоста.
func (s *Storage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	const op = "storage.GetConversation"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT c.id, c.host_id, h.company_name, c.subject, c.status, c.last_message_at, c.created_at, 0
			  FROM conversations c
			  JOIN host_profiles h ON h.id = c.host_id
			  WHERE c.id = $1`
	c, err := scanConversation(s.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return c, nil
}

// ListConversations возвращает переписки по фильтру, последние по активности первыми.
// UnreadCount считает сообщения хоста при unreadFromHost и сообщения поддержки иначе.
func (s *Storage) ListConversations(ctx context.Context, f models.ConversationFilter, unreadFromHost bool) ([]models.Conversation, error) {
	const op = "storage.ListConversations"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	args := []any{unreadFromHost}
	var conds []string
	if f.HostID != "" {
		args = append(args, f.HostID)
		conds = append(conds, "c.host_id = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, "c.status = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT c.id, c.host_id, h.company_name, c.subject, c.status, c.last_message_at, c.created_at,
			      (SELECT COUNT(*) FROM messages m
			       WHERE m.conversation_id = c.id AND NOT m.is_read AND m.is_from_host = $1)
			  FROM conversations c
			  JOIN host_profiles h ON h.id = c.host_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY c.last_message_at DESC"

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// TouchConversation обновляет время последнего сообщения открытой переписки.
// Закрытая переписка даёт storage.ErrStaleState.
func (s *Storage) TouchConversation(ctx context.Context, id string, at time.Time) error {
	const op = "storage.TouchConversation"
	return s.conversationCAS(ctx, op,
		`UPDATE conversations SET last_message_at = $2 WHERE id = $1 AND status = 'open'`, id, at)
}

// CloseConversation переводит открытую переписку в closed. Повторное закрытие даёт storage.ErrStaleState.
func (s *Storage) CloseConversation(ctx context.Context, id string) error {
	const op = "storage.CloseConversation"
	return s.conversationCAS(ctx, op,
		`UPDATE conversations SET status = 'closed' WHERE id = $1 AND status = 'open'`, id)
}

func (s *Storage) conversationCAS(ctx context.Context, op, query string, id string, args ...any) error {
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	res, err := s.conn(ctx).ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ok, err := affected(res)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		return nil
	}

	var exists bool
	if err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, storage.ErrStaleState)
}

// CreateMessage сохраняет сообщение.
func (s *Storage) CreateMessage(ctx context.Context, m *models.Message) error {
	const op = "storage.CreateMessage"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO messages (id, conversation_id, sender_id, body, is_from_host, is_read, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := s.conn(ctx).ExecContext(ctx, query,
		m.ID, m.ConversationID, m.SenderID, m.Body, m.IsFromHost, m.IsRead, m.CreatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// ListMessages возвращает сообщения переписки в хронологическом порядке.
func (s *Storage) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	const op = "storage.ListMessages"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, conversation_id, sender_id, body, is_from_host, is_read, created_at
			  FROM messages
			  WHERE conversation_id = $1
			  ORDER BY created_at`
	rows, err := s.conn(ctx).QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.IsFromHost,
			&m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// MarkMessagesRead отмечает прочитанными непрочитанные сообщения одной стороны переписки.
func (s *Storage) MarkMessagesRead(ctx context.Context, conversationID string, fromHost bool) (int, error) {
	const op = "storage.MarkMessagesRead"
	if err := ctxDone(ctx, op); err != nil {
		return 0, err
	}

	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE messages SET is_read = true
		 WHERE conversation_id = $1 AND is_from_host = $2 AND NOT is_read`, conversationID, fromHost)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(n), nil
}

func scanConversation(row scanner) (*models.Conversation, error) {
	c := &models.Conversation{}
	var status string
	if err := row.Scan(&c.ID, &c.HostID, &c.CompanyName, &c.Subject, &status,
		&c.LastMessageAt, &c.CreatedAt, &c.UnreadCount); err != nil {
		return nil, err
	}
	c.Status = models.ConversationStatus(status)
	c.LastMessageAt = c.LastMessageAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}
