package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

// CreateNotification сохраняет уведомление.
func (s *Storage) CreateNotification(ctx context.Context, n *models.Notification) error {
	const op = "storage.CreateNotification"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO notifications (id, user_id, category, title, message, action_url, is_read, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := s.conn(ctx).ExecContext(ctx, query,
		n.ID, n.UserID, string(n.Category), n.Title, n.Message, n.ActionURL, n.IsRead, n.CreatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// RecentNotificationExists сообщает, есть ли у пользователя уведомление категории category
// с заголовком, начинающимся на titlePrefix, созданное не раньше since.
func (s *Storage) RecentNotificationExists(ctx context.Context, userID string, category models.NotificationCategory,
	titlePrefix string, since time.Time) (bool, error) {
	const op = "storage.RecentNotificationExists"
	if err := ctxDone(ctx, op); err != nil {
		return false, err
	}

	query := `SELECT EXISTS (
			      SELECT 1 FROM notifications
			      WHERE user_id = $1 AND category = $2 AND title LIKE $3 ESCAPE '\' AND created_at >= $4
			  )`
	var exists bool
	if err := s.conn(ctx).QueryRowContext(ctx, query,
		userID, string(category), likePrefix(titlePrefix), since).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// ListNotifications возвращает последние уведомления пользователя.
func (s *Storage) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	const op = "storage.ListNotifications"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, user_id, category, title, message, action_url, is_read, created_at
			  FROM notifications
			  WHERE user_id = $1
			  ORDER BY created_at DESC
			  LIMIT $2`
	rows, err := s.conn(ctx).QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []models.Notification
	for rows.Next() {
		var (
			n        models.Notification
			category string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &category, &n.Title, &n.Message, &n.ActionURL,
			&n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		n.Category = models.NotificationCategory(category)
		n.CreatedAt = n.CreatedAt.UTC()
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// CountUnreadNotifications число непрочитанных уведомлений пользователя.
func (s *Storage) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	const op = "storage.CountUnreadNotifications"
	if err := ctxDone(ctx, op); err != nil {
		return 0, err
	}

	var count int
	if err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// MarkNotificationRead отмечает уведомление прочитанным. Чужое уведомление даёт storage.ErrNotFound.
func (s *Storage) MarkNotificationRead(ctx context.Context, userID, id string) error {
	const op = "storage.MarkNotificationRead"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ok, err := affected(res)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// MarkAllNotificationsRead отмечает все уведомления пользователя прочитанными.
func (s *Storage) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	const op = "storage.MarkAllNotificationsRead"
	if err := ctxDone(ctx, op); err != nil {
		return 0, err
	}

	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE notifications SET is_read = true WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(n), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
