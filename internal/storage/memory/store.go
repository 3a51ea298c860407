// Package memory реализует хранилище платформы в памяти процесса.
// Используется в тестах сервисов и при storage.driver = memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

type txKey struct{}

type tables struct {
	users         map[string]models.User
	hosts         map[string]models.HostProfile
	templates     map[string]models.ContractTemplate
	contracts     map[string]models.ServiceContract
	logs          []models.ApplicationLog
	notifications []models.Notification
	permissions   map[string]models.ApplicationPermission
	conversations map[string]models.Conversation
	messages      []models.Message
}

func newTables() tables {
	return tables{
		users:         make(map[string]models.User),
		hosts:         make(map[string]models.HostProfile),
		templates:     make(map[string]models.ContractTemplate),
		contracts:     make(map[string]models.ServiceContract),
		permissions:   make(map[string]models.ApplicationPermission),
		conversations: make(map[string]models.Conversation),
	}
}

func (t tables) clone() tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.hosts {
		c.hosts[k] = v
	}
	for k, v := range t.templates {
		c.templates[k] = v
	}
	for k, v := range t.contracts {
		c.contracts[k] = v
	}
	for k, v := range t.permissions {
		c.permissions[k] = v
	}
	for k, v := range t.conversations {
		c.conversations[k] = v
	}
	c.logs = append([]models.ApplicationLog(nil), t.logs...)
	c.notifications = append([]models.Notification(nil), t.notifications...)
	c.messages = append([]models.Message(nil), t.messages...)
	return c
}

// Store хранилище в памяти. Транзакции сериализуются и откатываются восстановлением снимка.
// Запись вне транзакции ждёт завершения открытой транзакции, иначе откат снимка стёр бы её.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	t    tables
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{t: newTables()}
}

// RunInTx выполняет fn атомарно: при ошибке все изменения fn отменяются.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.t.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.t = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// lock берёт блокировку на запись и возвращает функцию её снятия.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

func ctxDone(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
		return nil
	}
}

// CreateUser сохраняет пользователя; email уникален без учёта регистра.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	const op = "memory.CreateUser"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	u.Email = strings.ToLower(u.Email)
	for _, existing := range s.t.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
	}
	if _, ok := s.t.users[u.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	s.t.users[u.ID] = *u
	return nil
}

// GetUser возвращает пользователя по ID.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	const op = "memory.GetUser"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.t.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return &u, nil
}

// GetUserByEmail возвращает пользователя по email без учёта регистра.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "memory.GetUserByEmail"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(email)
	for _, u := range s.t.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

// TouchLastLogin записывает время последнего входа.
func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const op = "memory.TouchLastLogin"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	cur, ok := s.t.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	cur.LastLoginAt = &at
	s.t.users[id] = cur
	return nil
}

// SetPasswordAndActivate меняет хеш и активирует пользователя, если хеш всё ещё равен expectedHash.
func (s *Store) SetPasswordAndActivate(ctx context.Context, id, expectedHash, newHash string) error {
	const op = "memory.SetPasswordAndActivate"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	cur, ok := s.t.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if cur.PasswordHash != expectedHash {
		return fmt.Errorf("%s: %w", op, storage.ErrStaleState)
	}
	cur.PasswordHash = newHash
	cur.IsActive = true
	s.t.users[id] = cur
	return nil
}

// DeactivateUser снимает флаг активности.
func (s *Store) DeactivateUser(ctx context.Context, id string) error {
	const op = "memory.DeactivateUser"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	cur, ok := s.t.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	cur.IsActive = false
	s.t.users[id] = cur
	return nil
}

// ListStaff возвращает сотрудников по email.
func (s *Store) ListStaff(ctx context.Context) ([]models.User, error) {
	const op = "memory.ListStaff"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []models.User
	for _, u := range s.t.users {
		if u.IsStaff {
			res = append(res, u)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Email < res[j].Email })
	return res, nil
}

// CreateHostProfile сохраняет профиль; один профиль на пользователя.
func (s *Store) CreateHostProfile(ctx context.Context, p *models.HostProfile) error {
	const op = "memory.CreateHostProfile"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	if err := checkHost(p); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := s.t.users[p.UserID]; !ok {
		return fmt.Errorf("%s: user %s: %w", op, p.UserID, storage.ErrNotFound)
	}
	for _, h := range s.t.hosts {
		if h.UserID == p.UserID {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
	}
	stored := *p
	stored.Email, stored.FullName = "", ""
	s.t.hosts[p.ID] = stored
	return nil
}

func (s *Store) hostView(h models.HostProfile) *models.HostProfile {
	if u, ok := s.t.users[h.UserID]; ok {
		h.Email = u.Email
		h.FullName = u.FullName
	}
	return &h
}

// GetHostProfile возвращает профиль по ID.
func (s *Store) GetHostProfile(ctx context.Context, id string) (*models.HostProfile, error) {
	const op = "memory.GetHostProfile"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.t.hosts[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return s.hostView(h), nil
}

// GetHostProfileByUser возвращает профиль пользователя.
func (s *Store) GetHostProfileByUser(ctx context.Context, userID string) (*models.HostProfile, error) {
	const op = "memory.GetHostProfileByUser"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, h := range s.t.hosts {
		if h.UserID == userID {
			return s.hostView(h), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

// UpdateHostProfile условно сохраняет профиль, если статусы и ревизия равны expected.
func (s *Store) UpdateHostProfile(ctx context.Context, p *models.HostProfile, expected models.HostState) error {
	const op = "memory.UpdateHostProfile"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	cur, ok := s.t.hosts[p.ID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if cur.State() != expected {
		return fmt.Errorf("%s: %w", op, storage.ErrStaleState)
	}
	if err := checkHost(p); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	stored := *p
	stored.UserID = cur.UserID
	stored.CreatedAt = cur.CreatedAt
	stored.Email, stored.FullName = "", ""
	stored.Revision = cur.Revision + 1
	s.t.hosts[p.ID] = stored
	p.Revision = stored.Revision
	return nil
}

// ListHostProfiles возвращает профили по фильтру, новые первыми.
func (s *Store) ListHostProfiles(ctx context.Context, f models.HostFilter) ([]models.HostProfile, error) {
	const op = "memory.ListHostProfiles"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []models.HostProfile
	for _, h := range s.t.hosts {
		if f.Status != "" && h.Status != f.Status {
			continue
		}
		if f.SubscriptionStatus != "" && h.SubscriptionStatus != f.SubscriptionStatus {
			continue
		}
		if f.TrialEndsAfter != nil && (h.TrialEndsAt == nil || !h.TrialEndsAt.After(*f.TrialEndsAfter)) {
			continue
		}
		if f.TrialEndsBy != nil && (h.TrialEndsAt == nil || h.TrialEndsAt.After(*f.TrialEndsBy)) {
			continue
		}
		res = append(res, *s.hostView(h))
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return paginate(res, f.Limit, f.Offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// CreateTemplate сохраняет версию договора; активная версия снимает флаг с остальных.
func (s *Store) CreateTemplate(ctx context.Context, t *models.ContractTemplate) error {
	const op = "memory.CreateTemplate"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	for _, existing := range s.t.templates {
		if existing.Version == t.Version {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
	}
	if t.IsActive {
		for id, existing := range s.t.templates {
			existing.IsActive = false
			s.t.templates[id] = existing
		}
	}
	s.t.templates[t.ID] = *t
	return nil
}

// GetActiveTemplate возвращает самую новую активную версию.
func (s *Store) GetActiveTemplate(ctx context.Context) (*models.ContractTemplate, error) {
	const op = "memory.GetActiveTemplate"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.ContractTemplate
	for _, t := range s.t.templates {
		if !t.IsActive {
			continue
		}
		if best == nil || t.CreatedAt.After(best.CreatedAt) {
			cp := t
			best = &cp
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return best, nil
}

// CreateContract сохраняет договор; один договор на профиль.
func (s *Store) CreateContract(ctx context.Context, c *models.ServiceContract) error {
	const op = "memory.CreateContract"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	for _, existing := range s.t.contracts {
		if existing.HostID == c.HostID {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
	}
	s.t.contracts[c.ID] = *c
	return nil
}

// GetContractByHost возвращает договор профиля.
func (s *Store) GetContractByHost(ctx context.Context, hostID string) (*models.ServiceContract, error) {
	const op = "memory.GetContractByHost"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.t.contracts {
		if c.HostID == hostID {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

// UpdateContract условно сохраняет договор, если его статус равен expected.
func (s *Store) UpdateContract(ctx context.Context, c *models.ServiceContract, expected models.ContractStatus) error {
	const op = "memory.UpdateContract"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}
	defer s.lock(ctx)()

	cur, ok := s.t.contracts[c.ID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if cur.Status != expected {
		return fmt.Errorf("%s: %w", op, storage.ErrStaleState)
	}
	stored := *c
	stored.HostID = cur.HostID
	stored.CreatedAt = cur.CreatedAt
	s.t.contracts[c.ID] = stored
	return nil
}

// ListContracts возвращает договоры по фильтру; даты сравниваются как календарные.
func (s *Store) ListContracts(ctx context.Context, f models.ContractFilter) ([]models.ServiceContract, error) {
	const op = "memory.ListContracts"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	onOrBefore := func(v *time.Time, limit time.Time) bool {
		return v != nil && !models.DateOf(*v).After(models.DateOf(limit))
	}
	var res []models.ServiceContract
	for _, c := range s.t.contracts {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.ServiceEndBy != nil && !onOrBefore(c.ServiceEndDate, *f.ServiceEndBy) {
			continue
		}
		if f.ReadOnlyUntilBy != nil && !onOrBefore(c.ReadOnlyAccessUntil, *f.ReadOnlyUntilBy) {
			continue
		}
		if f.ReadOnlyUntilEqual != nil &&
			(c.ReadOnlyAccessUntil == nil || !models.DateOf(*c.ReadOnlyAccessUntil).Equal(models.DateOf(*f.ReadOnlyUntilEqual))) {
			continue
		}
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}
