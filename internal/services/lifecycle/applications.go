package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/password"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/audit"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

// ApplicationLogLimit сколько записей журнала отдаётся сотруднику.
const ApplicationLogLimit = 100

// Application данные публичной заявки хоста.
type Application struct {
	Email         string
	FullName      string
	CompanyName   string
	Country       string
	Phone         string
	PropertyType  string
	NumProperties int
	NumUnits      int
}

// ApprovalResult результат одобрения заявки.
type ApprovalResult struct {
	Profile  *models.HostProfile
	SetupURL string
	Resent   bool
}

// ApplyForHosting создаёт неактивного пользователя без пароля и профиль в статусе pending_review
// с пробным периодом.
func (s *Service) ApplyForHosting(ctx context.Context, app Application) (*models.HostProfile, error) {
	const op = "lifecycle.ApplyForHosting"
	email := strings.ToLower(strings.TrimSpace(app.Email))
	if email == "" || strings.TrimSpace(app.CompanyName) == "" {
		return nil, apperrors.Validation("host_profile", "email and company name are required")
	}

	now := s.clock.Now()
	trialEnds := now.Add(s.opts.TrialPeriod)
	user := &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		FullName:  strings.TrimSpace(app.FullName),
		IsHost:    true,
		CreatedAt: now,
	}
	profile := &models.HostProfile{
		ID:                 uuid.NewString(),
		UserID:             user.ID,
		Email:              email,
		FullName:           user.FullName,
		CompanyName:        strings.TrimSpace(app.CompanyName),
		Country:            app.Country,
		Phone:              app.Phone,
		PropertyType:       app.PropertyType,
		NumProperties:      app.NumProperties,
		NumUnits:           app.NumUnits,
		Status:             models.HostPendingReview,
		OnboardingStep:     models.StepRegistered,
		SubscriptionPlan:   models.PlanFreeTrial,
		SubscriptionStatus: models.SubscriptionTrialing,
		TrialEndsAt:        &trialEnds,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
			return storage.ErrAlreadyExists
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err := s.store.CreateUser(ctx, user); err != nil {
			return err
		}
		return s.store.CreateHostProfile(ctx, profile)
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return nil, apperrors.New(apperrors.CodeConflict, "user", "an account with this email already exists")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("host application received", slog.String("host_id", profile.ID))
	s.sendMail(s.afterCommit(ctx), profile.ID, "application_received", email, map[string]any{
		"host_name":    hostName(profile),
		"company_name": profile.CompanyName,
	})
	return profile, nil
}

// ApproveApplication одобряет заявку и выпускает ссылку установки пароля.
// Повторное одобрение уже одобренной заявки только перевыпускает ссылку.
func (s *Service) ApproveApplication(ctx context.Context, id string, actor *models.User) (*ApprovalResult, error) {
	const op = "lifecycle.ApproveApplication"
	if err := s.authz.Require(ctx, actor, models.PermissionReview); err != nil {
		return nil, err
	}
	profile, err := s.hostByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t, err := Next(MachineHost, string(profile.Status), EventApprove)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, profile.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("%s: issue setup token: %w", op, err)
	}

	now := s.clock.Now()
	expected := profile.State()
	next := *profile
	next.UpdatedAt = now
	if !t.Resend {
		next.Status = models.HostStatus(t.To)
		next.ApprovedAt = &now
		next.ApprovedBy = actorID(actor)
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateHostProfile(ctx, &next, expected); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, audit.Entry{
			HostID:   next.ID,
			Action:   t.Action,
			ActorID:  actorID(actor),
			Note:     "Set-password link generated for " + user.Email,
			Metadata: map[string]any{"resend": t.Resend},
		})
		return err
	})
	if errors.Is(err, storage.ErrStaleState) {
		return nil, s.staleHost(ctx, id, Sources(MachineHost, EventApprove)...)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.observe(MachineHost, EventApprove)

	setupURL := s.setupURL(user.ID, token)
	after := s.afterCommit(ctx)
	s.invalidateStatus(after, next.UserID)
	s.sendMail(after, next.ID, "application_approved", user.Email, map[string]any{
		"host_name":    hostName(&next),
		"company_name": next.CompanyName,
		"setup_url":    setupURL,
	})
	s.log.Info("application approved",
		slog.String("host_id", next.ID),
		slog.Bool("resend", t.Resend),
		slog.String("actor_id", actor.ID))
	return &ApprovalResult{Profile: &next, SetupURL: setupURL, Resent: t.Resend}, nil
}

func (s *Service) setupURL(userID, token string) string {
	q := url.Values{}
	q.Set("uid", userID)
	q.Set("token", token)
	return strings.TrimRight(s.opts.FrontendURL, "/") + "/set-password?" + q.Encode()
}

// RejectApplication отклоняет заявку; отклонение терминально.
func (s *Service) RejectApplication(ctx context.Context, id string, actor *models.User, reason string) (*models.HostProfile, error) {
	const op = "lifecycle.RejectApplication"
	if err := s.authz.Require(ctx, actor, models.PermissionReview); err != nil {
		return nil, err
	}
	profile, err := s.hostByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t, err := Next(MachineHost, string(profile.Status), EventReject)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expected := profile.State()
	next := *profile
	next.Status = models.HostStatus(t.To)
	next.RejectedAt = &now
	next.RejectedBy = actorID(actor)
	next.RejectionReason = strings.TrimSpace(reason)
	next.UpdatedAt = now

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateHostProfile(ctx, &next, expected); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, audit.Entry{
			HostID:  next.ID,
			Action:  t.Action,
			ActorID: actorID(actor),
			Note:    next.RejectionReason,
		})
		return err
	})
	if errors.Is(err, storage.ErrStaleState) {
		return nil, s.staleHost(ctx, id, Sources(MachineHost, EventReject)...)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.observe(MachineHost, EventReject)

	s.sendMail(s.afterCommit(ctx), next.ID, "application_rejected", next.Email, map[string]any{
		"host_name":    hostName(&next),
		"company_name": next.CompanyName,
		"reason":       next.RejectionReason,
	})
	s.log.Info("application rejected", slog.String("host_id", next.ID), slog.String("actor_id", actor.ID))
	return &next, nil
}

// SetPassword принимает пароль по ссылке установки и активирует учётную запись:
// пользователь становится активным, профиль переходит approved -> active.
func (s *Service) SetPassword(ctx context.Context, userID, token, newPassword, confirm string) error {
	const op = "lifecycle.SetPassword"
	if err := password.Validate(newPassword, confirm); err != nil {
		return apperrors.Validation("user", err.Error()).WithDetails(map[string]string{"field": "password"})
	}
	invalidLink := apperrors.Validation("user", "invalid or expired link")
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return invalidLink
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !s.tokens.Verify(user, token) {
		return invalidLink
	}
	profile, err := s.hostByUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	t, err := Next(MachineHost, string(profile.Status), EventPasswordSet)
	if err != nil {
		return err
	}
	hash, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := s.clock.Now()
	expected := profile.State()
	next := *profile
	next.Status = models.HostStatus(t.To)
	if next.OnboardingStep.Before(models.StepEmailVerified) {
		next.OnboardingStep = models.StepEmailVerified
	}
	next.UpdatedAt = now

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateHostProfile(ctx, &next, expected); err != nil {
			return err
		}
		if err := s.store.SetPasswordAndActivate(ctx, user.ID, user.PasswordHash, hash); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, audit.Entry{
			HostID:  next.ID,
			Action:  t.Action,
			ActorID: &user.ID,
			Note:    "Host set their password and account was activated.",
		})
		return err
	})
	if errors.Is(err, storage.ErrStaleState) {
		return s.staleHost(ctx, next.ID, Sources(MachineHost, EventPasswordSet)...)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.observe(MachineHost, EventPasswordSet)

	after := s.afterCommit(ctx)
	s.invalidateStatus(after, user.ID)
	s.notify(after, audit.Message{
		UserID:    user.ID,
		Category:  models.CategorySystem,
		Title:     "Welcome to UnitoPMS",
		Body:      "Your account is active. Review and sign the service agreement to get started.",
		ActionURL: "/dashboard/contract",
	})
	s.log.Info("host account activated", slog.String("host_id", next.ID))
	return nil
}

// ListApplications профили хостов для сотрудника с правом view.
func (s *Service) ListApplications(ctx context.Context, actor *models.User, f models.HostFilter) ([]models.HostProfile, error) {
	const op = "lifecycle.ListApplications"
	if err := s.authz.Require(ctx, actor, models.PermissionView); err != nil {
		return nil, err
	}
	res, err := s.store.ListHostProfiles(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if res == nil {
		res = []models.HostProfile{}
	}
	return res, nil
}

// ApplicationDetail профиль с договором.
type ApplicationDetail struct {
	Profile  *models.HostProfile     `json:"profile"`
	Contract *models.ServiceContract `json:"contract,omitempty"`
}

// GetApplication профиль хоста и его договор.
func (s *Service) GetApplication(ctx context.Context, actor *models.User, id string) (*ApplicationDetail, error) {
	const op = "lifecycle.GetApplication"
	if err := s.authz.Require(ctx, actor, models.PermissionView); err != nil {
		return nil, err
	}
	profile, err := s.hostByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	contract, err := s.contractOf(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &ApplicationDetail{Profile: profile, Contract: contract}, nil
}

// ApplicationLogs журнал заявки, новые записи первыми.
func (s *Service) ApplicationLogs(ctx context.Context, actor *models.User, id string) ([]models.ApplicationLog, error) {
	const op = "lifecycle.ApplicationLogs"
	if err := s.authz.Require(ctx, actor, models.PermissionView); err != nil {
		return nil, err
	}
	if _, err := s.hostByID(ctx, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logs, err := s.audit.Logs(ctx, id, ApplicationLogLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if logs == nil {
		logs = []models.ApplicationLog{}
	}
	return logs, nil
}

// AddNote добавляет заметку сотрудника в журнал заявки.
func (s *Service) AddNote(ctx context.Context, actor *models.User, id, note string) (*models.ApplicationLog, error) {
	const op = "lifecycle.AddNote"
	if err := s.authz.Require(ctx, actor, models.PermissionReview); err != nil {
		return nil, err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperrors.Validation("application_log", "note is required")
	}
	if _, err := s.hostByID(ctx, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	l, err := s.audit.Record(ctx, audit.Entry{
		HostID:  id,
		Action:  models.ActionNoteAdded,
		ActorID: actorID(actor),
		Note:    note,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return l, nil
}
