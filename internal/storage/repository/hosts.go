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

const hostSelect = `SELECT h.id, h.user_id, u.email, u.full_name, h.company_name, h.country, h.phone,
			      h.property_type, h.num_properties, h.num_units, h.status, h.onboarding_step,
			      h.subscription_plan, h.subscription_status, h.trial_ends_at, h.approved_at,
			      h.approved_by, h.rejected_at, h.rejected_by, h.rejection_reason, h.suspended_at,
			      h.created_at, h.updated_at, h.revision
			  FROM host_profiles h
			  JOIN users u ON u.id = h.user_id`

// CreateHostProfile сохраняет новый профиль хоста.
func (s *Storage) CreateHostProfile(ctx context.Context, p *models.HostProfile) error {
	const op = "storage.CreateHostProfile"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO host_profiles (id, user_id, company_name, country, phone, property_type,
			      num_properties, num_units, status, onboarding_step, subscription_plan,
			      subscription_status, trial_ends_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	if _, err := s.conn(ctx).ExecContext(ctx, query,
		p.ID, p.UserID, p.CompanyName, p.Country, p.Phone, p.PropertyType,
		p.NumProperties, p.NumUnits, string(p.Status), string(p.OnboardingStep), string(p.SubscriptionPlan),
		string(p.SubscriptionStatus), p.TrialEndsAt, p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// GetHostProfile возвращает профиль по ID вместе с email и именем пользователя.
func (s *Storage) GetHostProfile(ctx context.Context, id string) (*models.HostProfile, error) {
	const op = "storage.GetHostProfile"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	p, err := scanHost(s.conn(ctx).QueryRowContext(ctx, hostSelect+` WHERE h.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return p, nil
}

// GetHostProfileByUser возвращает профиль, принадлежащий пользователю.
func (s *Storage) GetHostProfileByUser(ctx context.Context, userID string) (*models.HostProfile, error) {
	const op = "storage.GetHostProfileByUser"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	p, err := scanHost(s.conn(ctx).QueryRowContext(ctx, hostSelect+` WHERE h.user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return p, nil
}

// UpdateHostProfile сохраняет профиль, только если его статусы и ревизия всё ещё равны expected.
// Иначе возвращает storage.ErrStaleState (или storage.ErrNotFound, если профиля нет).
// При успехе p.Revision увеличивается.
func (s *Storage) UpdateHostProfile(ctx context.Context, p *models.HostProfile, expected models.HostState) error {
	const op = "storage.UpdateHostProfile"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	query := `UPDATE host_profiles
			  SET company_name = $5, country = $6, phone = $7, property_type = $8,
			      num_properties = $9, num_units = $10, status = $11, onboarding_step = $12,
			      subscription_plan = $13, subscription_status = $14, trial_ends_at = $15,
			      approved_at = $16, approved_by = $17, rejected_at = $18, rejected_by = $19,
			      rejection_reason = $20, suspended_at = $21, updated_at = $22,
			      revision = revision + 1
			  WHERE id = $1 AND status = $2 AND subscription_status = $3 AND revision = $4`
	res, err := s.conn(ctx).ExecContext(ctx, query,
		p.ID, string(expected.Status), string(expected.SubscriptionStatus), expected.Revision,
		p.CompanyName, p.Country, p.Phone, p.PropertyType,
		p.NumProperties, p.NumUnits, string(p.Status), string(p.OnboardingStep),
		string(p.SubscriptionPlan), string(p.SubscriptionStatus), p.TrialEndsAt,
		p.ApprovedAt, p.ApprovedBy, p.RejectedAt, p.RejectedBy,
		p.RejectionReason, p.SuspendedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ok, err := affected(res)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		p.Revision = expected.Revision + 1
		return nil
	}

	var exists bool
	if err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM host_profiles WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, storage.ErrStaleState)
}

// ListHostProfiles возвращает профили по фильтру, новые первыми.
func (s *Storage) ListHostProfiles(ctx context.Context, f models.HostFilter) ([]models.HostProfile, error) {
	const op = "storage.ListHostProfiles"
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
		add("h.status = ?", string(f.Status))
	}
	if f.SubscriptionStatus != "" {
		add("h.subscription_status = ?", string(f.SubscriptionStatus))
	}
	if f.TrialEndsAfter != nil {
		add("h.trial_ends_at > ?", *f.TrialEndsAfter)
	}
	if f.TrialEndsBy != nil {
		add("h.trial_ends_at <= ?", *f.TrialEndsBy)
	}

	query := hostSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY h.created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []models.HostProfile
	for rows.Next() {
		p, err := scanHost(rows)
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

func scanHost(row scanner) (*models.HostProfile, error) {
	p := &models.HostProfile{}
	var (
		status, step, plan, subStatus                  string
		trialEnds, approvedAt, rejectedAt, suspendedAt sql.NullTime
		approvedBy, rejectedBy                         sql.NullString
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Email, &p.FullName, &p.CompanyName, &p.Country, &p.Phone,
		&p.PropertyType, &p.NumProperties, &p.NumUnits, &status, &step,
		&plan, &subStatus, &trialEnds, &approvedAt,
		&approvedBy, &rejectedAt, &rejectedBy, &p.RejectionReason, &suspendedAt,
		&p.CreatedAt, &p.UpdatedAt, &p.Revision); err != nil {
		return nil, err
	}
	p.Status = models.HostStatus(status)
	p.OnboardingStep = models.OnboardingStep(step)
	p.SubscriptionPlan = models.SubscriptionPlan(plan)
	p.SubscriptionStatus = models.SubscriptionStatus(subStatus)
	p.TrialEndsAt = nullTime(trialEnds)
	p.ApprovedAt = nullTime(approvedAt)
	p.ApprovedBy = nullString(approvedBy)
	p.RejectedAt = nullTime(rejectedAt)
	p.RejectedBy = nullString(rejectedBy)
	p.SuspendedAt = nullTime(suspendedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
