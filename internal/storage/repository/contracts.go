package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

// CreateTemplate сохраняет версию договора. Активация снимает флаг с остальных версий.
func (s *Storage) CreateTemplate(ctx context.Context, t *models.ContractTemplate) error {
	const op = "storage.CreateTemplate"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	return s.RunInTx(ctx, func(ctx context.Context) error {
		if t.IsActive {
			if _, err := s.conn(ctx).ExecContext(ctx,
				`UPDATE contract_templates SET is_active = false WHERE is_active`); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		query := `INSERT INTO contract_templates (id, version, title, body, is_active, created_at)
				  VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := s.conn(ctx).ExecContext(ctx, query,
			t.ID, t.Version, t.Title, t.Body, t.IsActive, t.CreatedAt); err != nil {
			return fmt.Errorf("%s: %w", op, mapError(err))
		}
		return nil
	})
}

// GetActiveTemplate возвращает самую новую активную версию договора.
func (s *Storage) GetActiveTemplate(ctx context.Context) (*models.ContractTemplate, error) {
	const op = "storage.GetActiveTemplate"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, version, title, body, is_active, created_at
			  FROM contract_templates
			  WHERE is_active
			  ORDER BY created_at DESC
			  LIMIT 1`
	t := &models.ContractTemplate{}
	if err := s.conn(ctx).QueryRowContext(ctx, query).Scan(
		&t.ID, &t.Version, &t.Title, &t.Body, &t.IsActive, &t.CreatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

const contractSelect = `SELECT id, host_id, version, status, signed_at, service_start_date,
			      cancellation_requested_at, cancellation_reason, cancellation_notice_months,
			      service_end_date, read_only_access_until, created_at, updated_at
			  FROM service_contracts`

// CreateContract сохраняет договор хоста.
func (s *Storage) CreateContract(ctx context.Context, c *models.ServiceContract) error {
	const op = "storage.CreateContract"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO service_contracts (id, host_id, version, status, signed_at, service_start_date,
			      cancellation_notice_months, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := s.conn(ctx).ExecContext(ctx, query,
		c.ID, c.HostID, c.Version, string(c.Status), c.SignedAt, c.ServiceStartDate,
		c.NoticeMonths, c.CreatedAt, c.UpdatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// GetContractByHost возвращает договор профиля хоста.
func (s *Storage) GetContractByHost(ctx context.Context, hostID string) (*models.ServiceContract, error) {
	const op = "storage.GetContractByHost"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	c, err := scanContract(s.conn(ctx).QueryRowContext(ctx, contractSelect+` WHERE host_id = $1`, hostID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return c, nil
}

// UpdateContract сохраняет договор, только если его статус всё ещё равен expected.
func (s *Storage) UpdateContract(ctx context.Context, c *models.ServiceContract, expected models.ContractStatus) error {
	const op = "storage.UpdateContract"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	query := `UPDATE service_contracts
			  SET version = $3, status = $4, signed_at = $5, service_start_date = $6,
			      cancellation_requested_at = $7, cancellation_reason = $8,
			      cancellation_notice_months = $9, service_end_date = $10,
			      read_only_access_until = $11, updated_at = $12
			  WHERE id = $1 AND status = $2`
	res, err := s.conn(ctx).ExecContext(ctx, query,
		c.ID, string(expected), c.Version, string(c.Status), c.SignedAt, c.ServiceStartDate,
		c.CancellationRequestedAt, c.CancellationReason,
		c.NoticeMonths, c.ServiceEndDate,
		c.ReadOnlyAccessUntil, c.UpdatedAt)
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
		`SELECT EXISTS (SELECT 1 FROM service_contracts WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, storage.ErrStaleState)
}

// ListContracts возвращает договоры по фильтру. Даты сравниваются как календарные.
func (s *Storage) ListContracts(ctx context.Context, f models.ContractFilter) ([]models.ServiceContract, error) {
	const op = "storage.ListContracts"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.ServiceEndBy != nil {
		add("service_end_date <= ?::date", models.DateOf(*f.ServiceEndBy))
	}
	if f.ReadOnlyUntilBy != nil {
		add("read_only_access_until <= ?::date", models.DateOf(*f.ReadOnlyUntilBy))
	}
	if f.ReadOnlyUntilEqual != nil {
		add("read_only_access_until = ?::date", models.DateOf(*f.ReadOnlyUntilEqual))
	}

	query := contractSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []models.ServiceContract
	for rows.Next() {
		c, err := scanContract(rows)
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

func scanContract(row scanner) (*models.ServiceContract, error) {
	c := &models.ServiceContract{}
	var (
		status                           string
		signedAt, startDate, requestedAt sql.NullTime
		serviceEnd, readOnlyUntil        sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.HostID, &c.Version, &status, &signedAt, &startDate,
		&requestedAt, &c.CancellationReason, &c.NoticeMonths,
		&serviceEnd, &readOnlyUntil, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = models.ContractStatus(status)
	c.SignedAt = nullTime(signedAt)
	c.ServiceStartDate = nullTime(startDate)
	c.CancellationRequestedAt = nullTime(requestedAt)
	c.ServiceEndDate = nullTime(serviceEnd)
	c.ReadOnlyAccessUntil = nullTime(readOnlyUntil)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}
