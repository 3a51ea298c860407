package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

const userColumns = `id, email, full_name, password_hash, is_active, is_staff, is_superuser,
			      is_host, created_at, last_login_at`

// CreateUser сохраняет нового пользователя. Email хранится в нижнем регистре.
func (s *Storage) CreateUser(ctx context.Context, u *models.User) error {
	const op = "storage.CreateUser"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	u.Email = strings.ToLower(u.Email)
	query := `INSERT INTO users (id, email, full_name, password_hash, is_active, is_staff,
			      is_superuser, is_host, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := s.conn(ctx).ExecContext(ctx, query,
		u.ID, u.Email, u.FullName, u.PasswordHash, u.IsActive, u.IsStaff,
		u.IsSuperuser, u.IsHost, u.CreatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// GetUser возвращает пользователя по ID.
func (s *Storage) GetUser(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.GetUser"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return u, nil
}

// GetUserByEmail возвращает пользователя по email без учёта регистра.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	u, err := scanUser(s.conn(ctx).QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return u, nil
}

// TouchLastLogin записывает время последнего входа. Остальные поля не меняются.
func (s *Storage) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const op = "storage.TouchLastLogin"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	res, err := s.conn(ctx).ExecContext(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
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

// SetPasswordAndActivate заменяет хеш пароля и активирует пользователя, только если
// текущий хеш всё ещё равен expectedHash. Иначе возвращает storage.ErrStaleState.
func (s *Storage) SetPasswordAndActivate(ctx context.Context, id, expectedHash, newHash string) error {
	const op = "storage.SetPasswordAndActivate"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	query := `UPDATE users SET password_hash = $3, is_active = TRUE
			  WHERE id = $1 AND password_hash = $2`
	res, err := s.conn(ctx).ExecContext(ctx, query, id, expectedHash, newHash)
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
	return fmt.Errorf("%s: %w", op, s.userMissingOrStale(ctx, id))
}

// DeactivateUser снимает флаг активности. Повторная деактивация не ошибка.
func (s *Storage) DeactivateUser(ctx context.Context, id string) error {
	const op = "storage.DeactivateUser"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	res, err := s.conn(ctx).ExecContext(ctx, `UPDATE users SET is_active = FALSE WHERE id = $1`, id)
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

func (s *Storage) userMissingOrStale(ctx context.Context, id string) error {
	var exists bool
	if err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrStaleState
}

// ListStaff возвращает всех сотрудников, упорядоченных по email.
func (s *Storage) ListStaff(ctx context.Context) ([]models.User, error) {
	const op = "storage.ListStaff"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE is_staff ORDER BY email`
	rows, err := s.conn(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.IsActive,
		&u.IsStaff, &u.IsSuperuser, &u.IsHost, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.LastLoginAt = nullTime(lastLogin)
	return u, nil
}
