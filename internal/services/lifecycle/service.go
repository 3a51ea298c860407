// Package lifecycle ведёт жизненный цикл хоста: заявку, подписку и договор на обслуживание.
// Все переходы проходят через одну таблицу (transitions.go); изменение состояния фиксируется
// вместе с записью журнала в одной транзакции, уведомления и письма отправляются после неё.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/host-lifecycle/internal/cache"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/clock"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/audit"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

// Store хранилище, с которым работает автомат.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetPasswordAndActivate(ctx context.Context, id, expectedHash, newHash string) error
	DeactivateUser(ctx context.Context, id string) error

	CreateHostProfile(ctx context.Context, p *models.HostProfile) error
	GetHostProfile(ctx context.Context, id string) (*models.HostProfile, error)
	GetHostProfileByUser(ctx context.Context, userID string) (*models.HostProfile, error)
	UpdateHostProfile(ctx context.Context, p *models.HostProfile, expected models.HostState) error
	ListHostProfiles(ctx context.Context, f models.HostFilter) ([]models.HostProfile, error)

	GetActiveTemplate(ctx context.Context) (*models.ContractTemplate, error)
	CreateContract(ctx context.Context, c *models.ServiceContract) error
	GetContractByHost(ctx context.Context, hostID string) (*models.ServiceContract, error)
	UpdateContract(ctx context.Context, c *models.ServiceContract, expected models.ContractStatus) error
	ListContracts(ctx context.Context, f models.ContractFilter) ([]models.ServiceContract, error)
}

// Auditor журнал заявок и уведомления.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) (*models.ApplicationLog, error)
	Logs(ctx context.Context, hostID string, limit int) ([]models.ApplicationLog, error)
	Notify(ctx context.Context, m audit.Message) (*models.Notification, error)
	NotifyUnlessRecent(ctx context.Context, m audit.Message, titlePrefix string, since time.Time) (bool, error)
}

// Authorizer проверка прав сотрудника.
type Authorizer interface {
	Require(ctx context.Context, actor *models.User, level models.PermissionLevel) error
}

// Mailer отправка письма по шаблону. Ошибка доставки не откатывает переход.
type Mailer interface {
	Send(ctx context.Context, template, to string, data map[string]any) error
}

// TokenIssuer токены ссылки установки пароля.
type TokenIssuer interface {
	Issue(user *models.User) (string, error)
	Verify(user *models.User, token string) bool
}

// StatusCache кэш представления подписки.
type StatusCache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Metrics счётчики переходов, проверок и писем.
type Metrics interface {
	ObserveTransition(machine, event string)
	ObserveSweep(sweep string, processed, skipped, failed int, took time.Duration)
	ObserveMail(template string, err error)
}

// Options параметры жизненного цикла.
type Options struct {
	FrontendURL        string
	TrialPeriod        time.Duration
	TrialWarningWindow time.Duration
	DedupWindow        time.Duration
	AccessWarningDays  []int
	StatusTTL          time.Duration
	MailTimeout        time.Duration
}

func (o Options) withDefaults() Options {
	if o.FrontendURL == "" {
		o.FrontendURL = "https://unitopms.com"
	}
	if o.TrialPeriod <= 0 {
		o.TrialPeriod = 14 * 24 * time.Hour
	}
	if o.TrialWarningWindow <= 0 {
		o.TrialWarningWindow = 3 * 24 * time.Hour
	}
	if o.DedupWindow <= 0 {
		o.DedupWindow = 24 * time.Hour
	}
	if len(o.AccessWarningDays) == 0 {
		o.AccessWarningDays = []int{30, 7, 1}
	}
	if o.StatusTTL <= 0 {
		o.StatusTTL = 5 * time.Minute
	}
	if o.MailTimeout <= 0 {
		o.MailTimeout = 10 * time.Second
	}
	return o
}

// Deps зависимости сервиса. Cache и Metrics необязательны.
type Deps struct {
	Log        *slog.Logger
	Store      Store
	Auditor    Auditor
	Authorizer Authorizer
	Mailer     Mailer
	Tokens     TokenIssuer
	Cache      StatusCache
	Metrics    Metrics
	Clock      clock.Clock
}

// Service автомат жизненного цикла хоста.
type Service struct {
	log     *slog.Logger
	store   Store
	audit   Auditor
	authz   Authorizer
	mailer  Mailer
	tokens  TokenIssuer
	cache   StatusCache
	metrics Metrics
	clock   clock.Clock
	opts    Options
}

// New создаёт сервис.
func New(deps Deps, opts Options) *Service {
	s := &Service{
		log:     deps.Log,
		store:   deps.Store,
		audit:   deps.Auditor,
		authz:   deps.Authorizer,
		mailer:  deps.Mailer,
		tokens:  deps.Tokens,
		cache:   deps.Cache,
		metrics: deps.Metrics,
		clock:   deps.Clock,
		opts:    opts.withDefaults(),
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	return s
}

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(string, string) {}
func (noopMetrics) ObserveSweep(string, int, int, int, time.Duration) {}
func (noopMetrics) ObserveMail(string, error) {}

// hostByID загружает профиль, переводя отсутствие в NotFound.
func (s *Service) hostByID(ctx context.Context, id string) (*models.HostProfile, error) {
	p, err := s.store.GetHostProfile(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("host_profile", "application not found")
	}
	return p, err
}

func (s *Service) hostByUser(ctx context.Context, userID string) (*models.HostProfile, error) {
	p, err := s.store.GetHostProfileByUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("host_profile", "host profile not found")
	}
	return p, err
}

func (s *Service) contractOf(ctx context.Context, hostID string) (*models.ServiceContract, error) {
	c, err := s.store.GetContractByHost(ctx, hostID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// staleHost превращает проигранное условное обновление профиля в Conflict с актуальным статусом.
func (s *Service) staleHost(ctx context.Context, hostID string, expected ...string) error {
	current := "unknown"
	if p, err := s.store.GetHostProfile(ctx, hostID); err == nil {
		current = string(p.Status)
	}
	return apperrors.Conflict(string(MachineHost), "application was modified concurrently", current, expected...)
}

func (s *Service) staleContract(ctx context.Context, hostID string, expected ...string) error {
	current := "unknown"
	if c, err := s.store.GetContractByHost(ctx, hostID); err == nil {
		current = string(c.Status)
	}
	return apperrors.Conflict(string(MachineContract), "contract was modified concurrently", current, expected...)
}

// afterCommit выполняет побочные эффекты перехода, не связанные с его фиксацией.
// Контекст запроса может быть уже отменён, поэтому используется отвязанный контекст.
func (s *Service) afterCommit(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// notify создаёт уведомление после фиксации; ошибка только журналируется.
func (s *Service) notify(ctx context.Context, m audit.Message) {
	if _, err := s.audit.Notify(ctx, m); err != nil {
		s.log.Error("failed to create notification",
			slog.String("user_id", m.UserID),
			slog.String("title", m.Title),
			sl.Err(err))
	}
}

// queuedMailer реализуют отправители, которые только ставят письмо в очередь.
type queuedMailer interface {
	Queued() bool
}

// sendMail отправляет письмо с ограничением по времени. Ошибка доставки журналируется
// и не возвращается: состояние уже зафиксировано.
func (s *Service) sendMail(ctx context.Context, hostID, template, to string, data map[string]any) {
	const op = "lifecycle.sendMail"
	if s.mailer == nil || to == "" {
		return
	}
	mailCtx, cancel := context.WithTimeout(ctx, s.opts.MailTimeout)
	defer cancel()

	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["frontend_url"]; !ok {
		data["frontend_url"] = s.opts.FrontendURL
	}
	err := s.mailer.Send(mailCtx, template, to, data)
	s.metrics.ObserveMail(template, err)
	if err != nil {
		s.log.Error("failed to send email, state change kept",
			sl.Op(op),
			slog.String("template", template),
			slog.String("host_id", hostID),
			sl.Err(apperrors.Delivery(err, "email delivery failed")))
		return
	}
	if hostID == "" {
		return
	}
	action, note := models.ActionEmailSent, fmt.Sprintf("Email %q sent to %s", template, to)
	if q, ok := s.mailer.(queuedMailer); ok && q.Queued() {
		action, note = models.ActionEmailQueued, fmt.Sprintf("Email %q queued for %s", template, to)
	}
	if _, err := s.audit.Record(ctx, audit.Entry{
		HostID:   hostID,
		Action:   action,
		Note:     note,
		Metadata: map[string]any{"template": template},
	}); err != nil {
		s.log.Warn("failed to record email action", slog.String("host_id", hostID), slog.String("action", string(action)), sl.Err(err))
	}
}

// invalidateStatus сбрасывает кэш представления подписки пользователя.
func (s *Service) invalidateStatus(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.SubscriptionStatusKey(userID)); err != nil {
		s.log.Warn("failed to invalidate subscription status", slog.String("user_id", userID), sl.Err(err))
	}
}

func (s *Service) observe(m Machine, ev Event) {
	s.metrics.ObserveTransition(string(m), string(ev))
}

// hostName имя для писем: ФИО или название компании.
func hostName(p *models.HostProfile) string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.CompanyName
}

func dayWord(n int) string {
	if n == 1 {
		return "Day"
	}
	return "Days"
}

func actorID(u *models.User) *string {
	if u == nil {
		return nil
	}
	id := u.ID
	return &id
}
