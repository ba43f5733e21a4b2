package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/notify"
	"github.com/Freeeeeet/skill_market/internal/settlement"
	"github.com/google/uuid"
)

// Transactor выполняет функцию в одной транзакции хранилища
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type UnitStore interface {
	Create(ctx context.Context, unit *model.ReservableUnit) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ReservableUnit, error)
	LockByID(ctx context.Context, id uuid.UUID) (*model.ReservableUnit, error)
	LockOwner(ctx context.Context, ownerID uuid.UUID) error
	ListByOwnerDate(ctx context.Context, ownerID uuid.UUID, date string) ([]*model.ReservableUnit, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, fromDate string) ([]*model.ReservableUnit, error)
	ListDiscoverable(ctx context.Context, fromDate string, ownerID *uuid.UUID) ([]*model.ReservableUnit, error)
	UpdateWindow(ctx context.Context, unit *model.ReservableUnit) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListPastUnoccupied(ctx context.Context, before time.Time, limit int) ([]*model.ReservableUnit, error)
}

type RequestStore interface {
	Create(ctx context.Context, req *model.WorkRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.WorkRequest, error)
	LockByID(ctx context.Context, id uuid.UUID) (*model.WorkRequest, error)
	Update(ctx context.Context, req *model.WorkRequest) error
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*model.WorkRequest, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.WorkRequest, error)
	ListPublic(ctx context.Context) ([]*model.WorkRequest, error)
	ListOverduePending(ctx context.Context, now time.Time, limit int) ([]*model.WorkRequest, error)
	ListStaleDrafts(ctx context.Context, before time.Time, limit int) ([]*model.WorkRequest, error)
}

type ProposalStore interface {
	Create(ctx context.Context, p *model.Proposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Proposal, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*model.Proposal, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ProposalStatus) error
	RejectOthers(ctx context.Context, requestID, keepID uuid.UUID) error
}

type EngagementStore interface {
	Create(ctx context.Context, e *model.Engagement) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Engagement, error)
	LockByID(ctx context.Context, id uuid.UUID) (*model.Engagement, error)
	Update(ctx context.Context, e *model.Engagement) error
	FindOpenSessionByUnit(ctx context.Context, unitID uuid.UUID) (*model.Engagement, error)
}

type OccupantStore interface {
	Create(ctx context.Context, o *model.Occupant) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Occupant, error)
	LockByID(ctx context.Context, id uuid.UUID) (*model.Occupant, error)
	GetByEngagementAndUser(ctx context.Context, engagementID, userID uuid.UUID) (*model.Occupant, error)
	ListByEngagement(ctx context.Context, engagementID uuid.UUID) ([]*model.Occupant, error)
	CountReservedByUnit(ctx context.Context, unitID uuid.UUID) (int, error)
	Reactivate(ctx context.Context, o *model.Occupant) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OccupantStatus) error
	MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkJoined(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkLeft(ctx context.Context, id uuid.UUID, at time.Time) error
	ListUnpaidBefore(ctx context.Context, before time.Time, limit int) ([]*model.Occupant, error)
}

// IdentityLookup профили пользователей и провайдеров
type IdentityLookup interface {
	User(ctx context.Context, id uuid.UUID) (*model.User, error)
	Provider(ctx context.Context, id uuid.UUID) (*model.ProviderProfile, error)
	ProviderForUser(ctx context.Context, userID uuid.UUID) (*model.ProviderProfile, error)
}

// Escrow операции эскроу (internal/settlement.Orchestrator)
type Escrow interface {
	Authorize(ctx context.Context, p settlement.HoldParams) (*settlement.Hold, error)
	Record(ctx context.Context, hold *settlement.Hold) (*model.LedgerEntry, error)
	Void(ctx context.Context, hold *settlement.Hold)
	OpenHold(ctx context.Context, p settlement.HoldParams) (*settlement.Hold, error)
	Release(ctx context.Context, entryID, payeeID uuid.UUID, onSettled func(ctx context.Context) error) error
	Refund(ctx context.Context, entryID uuid.UUID, onSettled func(ctx context.Context) error) error
	EntryForEngagement(ctx context.Context, engagementID uuid.UUID) (*model.LedgerEntry, error)
	EntryForOccupant(ctx context.Context, occupantID uuid.UUID) (*model.LedgerEntry, error)
}

// Notifier неблокирующая отправка уведомлений
type Notifier interface {
	Notify(msg notify.Message) bool
}

// ConversationStarter открывает переписку участников работы
type ConversationStarter interface {
	StartConversation(ctx context.Context, engagementID uuid.UUID, members ...uuid.UUID) error
}

// Settings временные параметры движка
type Settings struct {
	MaxLeadTime    time.Duration // как далеко вперёд можно создавать слоты
	ResponseWindow time.Duration // срок ответа провайдера на прямой запрос
	HoldTTL        time.Duration // сколько бронь может оставаться неоплаченной
	DraftTTL       time.Duration // срок жизни черновика
	SweepBatch     int
}

func DefaultSettings() Settings {
	return Settings{
		MaxLeadTime:    4 * 7 * 24 * time.Hour,
		ResponseWindow: 48 * time.Hour,
		HoldTTL:        15 * time.Minute,
		DraftTTL:       30 * 24 * time.Hour,
		SweepBatch:     100,
	}
}
