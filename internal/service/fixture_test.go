package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/notify"
	"github.com/Freeeeeet/skill_market/internal/payment/paymenttest"
	"github.com/Freeeeeet/skill_market/internal/repository/memory"
	"github.com/Freeeeeet/skill_market/internal/settlement"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder собирает уведомления вместо отправки
type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorder) Notify(msg notify.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return true
}

func (r *recorder) events(userID uuid.UUID) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, m := range r.msgs {
		if m.UserID == userID {
			out = append(out, m.Event)
		}
	}
	return out
}

type chatStub struct {
	mu      sync.Mutex
	started map[uuid.UUID][]uuid.UUID
}

func (c *chatStub) StartConversation(_ context.Context, engagementID uuid.UUID, members ...uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started[engagementID] = members
	return nil
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	now   time.Time
	store *memory.Store
	proc  *paymenttest.Processor
	notes *recorder
	chat  *chatStub

	units    *UnitService
	projects *ProjectService
	requests *RequestService
	sessions *SessionService
	expiry   *ExpiryService
}

// Понедельник, 09:00 UTC
var testNow = time.Date(2026, time.November, 2, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		now:   testNow,
		store: memory.NewStore(),
		proc:  paymenttest.New(),
		notes: &recorder{},
		chat:  &chatStub{started: make(map[uuid.UUID][]uuid.UUID)},
	}
	clock := func() time.Time { return f.now }
	f.store.SetClock(clock)

	logger := zap.NewNop()
	settings := DefaultSettings()
	s := f.store
	escrow := settlement.NewOrchestrator(s, s.Ledger(), settlement.NewLocalLocker(), f.proc, "thb", logger)

	f.units = NewUnitService(s, s.Units(), s.Occupants(), s.Engagements(), s.Identity(), settings, logger)
	f.projects = NewProjectService(s, s.Requests(), s.Proposals(), s.Engagements(), escrow, s.Identity(), f.notes, f.chat, logger)
	f.requests = NewRequestService(s, s.Requests(), s.Proposals(), f.projects, s.Identity(), f.notes, settings, logger)
	f.sessions = NewSessionService(s, s.Units(), s.Engagements(), s.Occupants(), escrow, s.Identity(), f.notes, f.chat, logger)
	f.expiry = NewExpiryService(s.Requests(), s.Occupants(), s.Units(), f.requests, f.sessions, f.units, settings, logger)

	f.units.now = clock
	f.projects.now = clock
	f.requests.now = clock
	f.sessions.now = clock
	f.expiry.now = clock

	return f
}

func (f *fixture) provider(name string, rate model.Money) (model.Principal, *model.ProviderProfile) {
	user, profile := f.store.AddProvider(name, rate)
	return model.Principal{UserID: user.ID, Roles: []model.Role{model.RoleProvider}}, profile
}

func (f *fixture) client(name string) model.Principal {
	user := f.store.AddUser(name)
	return model.Principal{UserID: user.ID, Roles: []model.Role{model.RoleClient}}
}

func (f *fixture) unit(p model.Principal, date, start, end string, mode model.CapacityMode, max int) *model.ReservableUnit {
	f.t.Helper()
	unit, err := f.units.CreateUnit(f.ctx, p, UnitInput{
		Title:        "Go basics",
		Date:         date,
		StartTime:    start,
		EndTime:      end,
		CapacityMode: mode,
		MaxOccupants: max,
	})
	require.NoError(f.t, err)
	return unit
}

func (f *fixture) entry(id uuid.UUID) *model.LedgerEntry {
	f.t.Helper()
	e, err := f.store.Ledger().GetByID(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, e)
	return e
}

func (f *fixture) occupant(id uuid.UUID) *model.Occupant {
	f.t.Helper()
	o, err := f.store.Occupants().GetByID(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, o)
	return o
}

func (f *fixture) engagement(id uuid.UUID) *model.Engagement {
	f.t.Helper()
	e, err := f.store.Engagements().GetByID(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, e)
	return e
}

func money(v model.Money) *model.Money {
	return &v
}
