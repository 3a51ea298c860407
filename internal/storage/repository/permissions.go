package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

const permissionSelect = `SELECT p.id, p.user_id, u.email, p.permission, p.granted_by, p.created_at
			  FROM application_permissions p
			  JOIN users u ON u.id = p.user_id`

// CreatePermission сохраняет право. Повтор пары (user_id, permission) даёт storage.ErrAlreadyExists.
func (s *Storage) CreatePermission(ctx context.Context, p *models.ApplicationPermission) error {
	const op = "storage.CreatePermission"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO application_permissions (id, user_id, permission, granted_by, created_at)
			  VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.conn(ctx).ExecContext(ctx, query,
		p.ID, p.UserID, string(p.Permission), p.GrantedBy, p.CreatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// GetPermission возвращает право пользователя заданного уровня.
func (s *Storage) GetPermission(ctx context.Context, userID string, level models.PermissionLevel) (*models.ApplicationPermission, error) {
	const op = "storage.GetPermission"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	p, err := scanPermission(s.conn(ctx).QueryRowContext(ctx,
		permissionSelect+` WHERE p.user_id = $1 AND p.permission = $2`, userID, string(level)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return p, nil
}

// DeletePermission отзывает право по ID.
func (s *Storage) DeletePermission(ctx context.Context, id string) error {
	const op = "storage.DeletePermission"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM application_permissions WHERE id = $1`, id)
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

// ListPermissionsByUser возвращает все права пользователя.
func (s *Storage) ListPermissionsByUser(ctx context.Context, userID string) ([]models.ApplicationPermission, error) {
	const op = "storage.ListPermissionsByUser"
	return s.listPermissions(ctx, op, permissionSelect+` WHERE p.user_id = $1 ORDER BY p.created_at`, userID)
}

// ListPermissions возвращает все выданные права.
func (s *Storage) ListPermissions(ctx context.Context) ([]models.ApplicationPermission, error) {
	const op = "storage.ListPermissions"
	return s.listPermissions(ctx, op, permissionSelect+` ORDER BY u.email, p.created_at`)
}

func (s *Storage) listPermissions(ctx context.Context, op, query string, args ...any) ([]models.ApplicationPermission, error) {
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []models.ApplicationPermission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func scanPermission(row scanner) (*models.ApplicationPermission, error) {
	p := &models.ApplicationPermission{}
	var (
		level     string
		grantedBy sql.NullString
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.UserEmail, &level, &grantedBy, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Permission = models.PermissionLevel(level)
	p.GrantedBy = nullString(grantedBy)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}
