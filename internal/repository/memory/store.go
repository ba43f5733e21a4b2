// Package memory хранилище в памяти с теми же гарантиями уникальности, что и схема Postgres.
// Транзакции сериализуются общей блокировкой, откат восстанавливает снимок.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/google/uuid"
)

type txKey struct{}

type state struct {
	users       map[uuid.UUID]model.User
	providers   map[uuid.UUID]model.ProviderProfile
	units       map[uuid.UUID]model.ReservableUnit
	requests    map[uuid.UUID]model.WorkRequest
	proposals   map[uuid.UUID]model.Proposal
	engagements map[uuid.UUID]model.Engagement
	occupants   map[uuid.UUID]model.Occupant
	ledger      map[uuid.UUID]model.LedgerEntry
}

func newState() state {
	return state{
		users:       make(map[uuid.UUID]model.User),
		providers:   make(map[uuid.UUID]model.ProviderProfile),
		units:       make(map[uuid.UUID]model.ReservableUnit),
		requests:    make(map[uuid.UUID]model.WorkRequest),
		proposals:   make(map[uuid.UUID]model.Proposal),
		engagements: make(map[uuid.UUID]model.Engagement),
		occupants:   make(map[uuid.UUID]model.Occupant),
		ledger:      make(map[uuid.UUID]model.LedgerEntry),
	}
}

func (s state) clone() state {
	return state{
		users:       maps.Clone(s.users),
		providers:   maps.Clone(s.providers),
		units:       maps.Clone(s.units),
		requests:    maps.Clone(s.requests),
		proposals:   maps.Clone(s.proposals),
		engagements: maps.Clone(s.engagements),
		occupants:   maps.Clone(s.occupants),
		ledger:      maps.Clone(s.ledger),
	}
}

// Store in-memory реализация всех репозиториев
type Store struct {
	mu    sync.Mutex
	data  state
	clock func() time.Time
}

func NewStore() *Store {
	return &Store{data: newState(), clock: time.Now}
}

// SetClock подменяет источник времени для created_at/updated_at
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// lock берёт блокировку, если вызов не внутри транзакции
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTx выполняет fn атомарно: при ошибке состояние откатывается
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// AddUser добавляет пользователя
func (s *Store) AddUser(name string) *model.User {
	defer s.lock(context.Background())()
	u := model.User{ID: uuid.New(), DisplayName: name, CreatedAt: s.clock()}
	s.data.users[u.ID] = u
	return &u
}

// AddProvider добавляет пользователя с профилем провайдера
func (s *Store) AddProvider(name string, hourlyRate model.Money) (*model.User, *model.ProviderProfile) {
	user := s.AddUser(name)

	defer s.lock(context.Background())()
	p := model.ProviderProfile{ID: uuid.New(), UserID: user.ID, DisplayName: name, HourlyRate: hourlyRate, CreatedAt: s.clock()}
	s.data.providers[p.ID] = p
	return user, &p
}

func (s *Store) Units() *UnitRepository             { return &UnitRepository{s} }
func (s *Store) Requests() *RequestRepository       { return &RequestRepository{s} }
func (s *Store) Proposals() *ProposalRepository     { return &ProposalRepository{s} }
func (s *Store) Engagements() *EngagementRepository { return &EngagementRepository{s} }
func (s *Store) Occupants() *OccupantRepository     { return &OccupantRepository{s} }
func (s *Store) Ledger() *LedgerRepository          { return &LedgerRepository{s} }
func (s *Store) Identity() *IdentityRepository      { return &IdentityRepository{s} }

func ptr[T any](v T) *T {
	return &v
}
