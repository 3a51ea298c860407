package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/magabrotheeeer/host-lifecycle/internal/models"
)

// CreateLog добавляет запись в журнал заявки. Записи журнала не изменяются.
func (s *Storage) CreateLog(ctx context.Context, l *models.ApplicationLog) error {
	const op = "storage.CreateLog"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	meta := l.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO application_logs (id, host_id, action, actor_id, note, ip_address, metadata, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := s.conn(ctx).ExecContext(ctx, query,
		l.ID, l.HostID, string(l.Action), l.ActorID, l.Note, l.IPAddress, string(raw), l.CreatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// ListLogs возвращает журнал профиля, новые записи первыми. limit <= 0 снимает ограничение.
func (s *Storage) ListLogs(ctx context.Context, hostID string, limit int) ([]models.ApplicationLog, error) {
	const op = "storage.ListLogs"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, host_id, action, actor_id, note, ip_address, metadata, created_at
			  FROM application_logs
			  WHERE host_id = $1
			  ORDER BY created_at DESC`
	args := []any{hostID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []models.ApplicationLog
	for rows.Next() {
		var (
			l       models.ApplicationLog
			action  string
			actorID sql.NullString
			raw     []byte
		)
		if err := rows.Scan(&l.ID, &l.HostID, &action, &actorID, &l.Note, &l.IPAddress, &raw, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		l.Action = models.LogAction(action)
		l.ActorID = nullString(actorID)
		l.CreatedAt = l.CreatedAt.UTC()
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &l.Metadata); err != nil {
				return nil, fmt.Errorf("%s: metadata: %w", op, err)
			}
		}
		res = append(res, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}
