package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/skill_market/internal/apperror"
	"github.com/Freeeeeet/skill_market/internal/availability"
	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/notify"
	"github.com/Freeeeeet/skill_market/internal/settlement"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Booking результат бронирования места на занятии
type Booking struct {
	Occupant     *model.Occupant
	Session      *model.Engagement
	LedgerEntry  *model.LedgerEntry
	ClientSecret string
}

type SessionService struct {
	tx          Transactor
	units       UnitStore
	engagements EngagementStore
	occupants   OccupantStore
	escrow      Escrow
	identity    IdentityLookup
	notifier    Notifier
	chat        ConversationStarter
	logger      *zap.Logger
	now         func() time.Time
}

func NewSessionService(
	tx Transactor,
	units UnitStore,
	engagements EngagementStore,
	occupants OccupantStore,
	escrow Escrow,
	identity IdentityLookup,
	notifier Notifier,
	chat ConversationStarter,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		tx:          tx,
		units:       units,
		engagements: engagements,
		occupants:   occupants,
		escrow:      escrow,
		identity:    identity,
		notifier:    notifier,
		chat:        chat,
		logger:      logger,
		now:         time.Now,
	}
}

// Book бронирует место на слоте: проверка вместимости и запись участника в одной транзакции,
// затем удержание оплаты у процессора
func (s *SessionService) Book(ctx context.Context, p model.Principal, unitID uuid.UUID, paymentMethod string) (*Booking, error) {
	if err := requireClient(p); err != nil {
		return nil, err
	}

	var (
		occupant *model.Occupant
		session  *model.Engagement
		owner    *model.ProviderProfile
		unit     *model.ReservableUnit
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		unit, err = s.units.LockByID(ctx, unitID)
		if err != nil {
			return err
		}
		if unit == nil {
			return apperror.NotFound("unit", unitID)
		}

		owner, err = s.identity.Provider(ctx, unit.OwnerID())
		if err != nil {
			return fmt.Errorf("get unit owner: %w", err)
		}
		if owner == nil {
			return apperror.NotFound("provider", unit.OwnerID())
		}
		if owner.UserID == p.UserID {
			return apperror.Conflict("cannot book your own unit")
		}
		if !availability.IsFuture(unit.Window, s.now()) {
			return apperror.Conflict("unit has already started")
		}

		reserved, err := s.occupants.CountReservedByUnit(ctx, unitID)
		if err != nil {
			return err
		}
		if !availability.HasRoom(unit, reserved) {
			return apperror.Conflict("unit is full")
		}

		price, err := availability.SessionPrice(owner.HourlyRate, unit.DurationMinutes())
		if err != nil {
			return err
		}

		session, err = s.openSession(ctx, unitID)
		if err != nil {
			return err
		}
		if session == nil {
			session = &model.Engagement{
				ID:          uuid.New(),
				Kind:        model.EngagementSession,
				UnitID:      &unit.ID,
				InitiatorID: owner.UserID,
				ProviderID:  owner.ID,
				Status:      model.EngagementScheduled,
				Amount:      price,
			}
			if err := s.engagements.Create(ctx, session); err != nil {
				return conflictOnDuplicate(err, "unit already has an open session")
			}
		} else if session.Status != model.EngagementScheduled {
			return apperror.Conflict("session is %s, booking is closed", session.Status)
		}

		occupant = &model.Occupant{
			ID:           uuid.New(),
			EngagementID: session.ID,
			UnitID:       &unit.ID,
			UserID:       p.UserID,
			Status:       model.OccupantReserved,
			OneToOne:     unit.CapacityMode == model.CapacityOneToOne,
			Price:        price,
		}

		existing, err := s.occupants.GetByEngagementAndUser(ctx, session.ID, p.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return s.retryBooking(ctx, existing, occupant)
		}

		if err := s.occupants.Create(ctx, occupant); err != nil {
			return conflictOnDuplicate(err, "unit is already reserved")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Occupant reserved",
		zap.String("occupant_id", occupant.ID.String()),
		zap.String("engagement_id", session.ID.String()),
		zap.String("unit_id", unitID.String()),
		zap.String("user_id", p.UserID.String()),
		zap.Stringer("price", occupant.Price))

	hold, err := s.escrow.OpenHold(ctx, settlement.HoldParams{
		Subject:       settlement.ForOccupant(occupant.ID),
		PayerID:       p.UserID,
		PayeeID:       &owner.ID,
		Amount:        occupant.Price,
		PaymentMethod: paymentMethod,
		Description:   unit.Title,
	})
	if err != nil {
		s.logger.Warn("Hold failed, releasing reservation",
			zap.String("occupant_id", occupant.ID.String()),
			zap.Error(err))
		if cerr := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			return s.occupants.UpdateStatus(ctx, occupant.ID, model.OccupantCancelled)
		}); cerr != nil {
			s.logger.Error("Failed to cancel occupant after hold failure",
				zap.String("occupant_id", occupant.ID.String()),
				zap.Error(cerr))
		}
		return nil, err
	}

	if err := s.checkStillReserved(ctx, occupant.ID, hold.Entry); err != nil {
		return nil, err
	}

	send(s.notifier, owner.UserID, notify.EventBookingCreated, session.ID,
		"Новая запись",
		fmt.Sprintf("Запись на %s %s-%s", unit.Window.Date, unit.Window.StartTime, unit.Window.EndTime))

	return &Booking{
		Occupant:     occupant,
		Session:      session,
		LedgerEntry:  hold.Entry,
		ClientSecret: hold.ClientSecret,
	}, nil
}

// openSession блокирует открытое занятие слота. Занятие, отменённое пока ждали блокировку,
// считается отсутствующим: слот получит новое.
func (s *SessionService) openSession(ctx context.Context, unitID uuid.UUID) (*model.Engagement, error) {
	found, err := s.engagements.FindOpenSessionByUnit(ctx, unitID)
	if err != nil || found == nil {
		return nil, err
	}
	session, err := s.engagements.LockByID(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Status == model.EngagementCancelled {
		return nil, nil
	}
	return session, nil
}

// retryBooking повторно занимает место после сбоя удержания: запись участника осталась
// CANCELLED без действующего удержания. Любая другая запись означает повторную бронь.
func (s *SessionService) retryBooking(ctx context.Context, existing, occupant *model.Occupant) error {
	if existing.Status != model.OccupantCancelled {
		return apperror.Conflict("already booked this session")
	}
	entry, err := s.escrow.EntryForOccupant(ctx, existing.ID)
	if err != nil {
		return err
	}
	if entry != nil {
		return apperror.Conflict("already booked this session")
	}

	occupant.ID = existing.ID
	if err := s.occupants.Reactivate(ctx, occupant); err != nil {
		return conflictOnDuplicate(err, "unit is already reserved")
	}
	return nil
}

// checkStillReserved проверяет что бронь не отменили, пока открывалось удержание.
// Иначе удержание возвращается.
func (s *SessionService) checkStillReserved(ctx context.Context, occupantID uuid.UUID, entry *model.LedgerEntry) error {
	var reserved bool
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.occupants.LockByID(ctx, occupantID)
		if err != nil {
			return err
		}
		reserved = current != nil && current.IsReserved()
		return nil
	})
	if err != nil {
		return err
	}
	if reserved {
		return nil
	}

	s.logger.Warn("Reservation cancelled while hold was opening, refunding",
		zap.String("occupant_id", occupantID.String()),
		zap.String("ledger_entry_id", entry.ID.String()))
	if err := s.escrow.Refund(ctx, entry.ID, nil); err != nil {
		return err
	}
	return apperror.Conflict("session was cancelled while booking")
}

// ConfirmBooking подтверждает оплату места по ссылке процессора
func (s *SessionService) ConfirmBooking(ctx context.Context, p model.Principal, occupantID uuid.UUID, paymentRef string) (*model.Occupant, error) {
	occupant, err := s.occupants.GetByID(ctx, occupantID)
	if err != nil {
		return nil, fmt.Errorf("get occupant: %w", err)
	}
	if occupant == nil || occupant.UserID != p.UserID {
		return nil, apperror.NotFound("occupant", occupantID)
	}
	if !occupant.IsReserved() {
		return nil, apperror.Conflict("reservation is %s", occupant.Status)
	}

	entry, err := s.escrow.EntryForOccupant(ctx, occupantID)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.Status != model.LedgerHolding {
		return nil, apperror.Conflict("reservation has no funds on hold")
	}
	if entry.ProcessorRef != paymentRef {
		return nil, apperror.Validation("payment reference does not match the hold")
	}

	at := s.now()
	if err := s.occupants.MarkPaid(ctx, occupantID, at); err != nil {
		return nil, err
	}
	if occupant.PaidAt == nil {
		occupant.PaidAt = &at
	}

	s.logger.Info("Booking paid",
		zap.String("occupant_id", occupantID.String()),
		zap.String("ledger_entry_id", entry.ID.String()))

	return occupant, nil
}

// session загружает занятие и проверяет вид
func (s *SessionService) session(ctx context.Context, id uuid.UUID) (*model.Engagement, error) {
	e, err := s.engagements.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if e == nil || e.Kind != model.EngagementSession {
		return nil, apperror.NotFound("session", id)
	}
	return e, nil
}

func (s *SessionService) asInstructor(ctx context.Context, p model.Principal, id uuid.UUID) (*model.Engagement, error) {
	provider, err := callerProvider(ctx, s.identity, p)
	if err != nil {
		return nil, err
	}
	e, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.ProviderID != provider.ID {
		return nil, apperror.Conflict("only the instructor can do this")
	}
	return e, nil
}

func (s *SessionService) transition(ctx context.Context, id uuid.UUID, to model.EngagementStatus) (*model.Engagement, error) {
	e, err := s.engagements.LockByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperror.NotFound("session", id)
	}
	if !e.CanTransition(to) {
		return nil, apperror.Transition("session", e.Status, to)
	}
	e.Apply(to, s.now())
	if err := s.engagements.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SessionService) reserved(ctx context.Context, sessionID uuid.UUID) ([]*model.Occupant, error) {
	all, err := s.occupants.ListByEngagement(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	result := make([]*model.Occupant, 0, len(all))
	for _, o := range all {
		if o.IsReserved() {
			result = append(result, o)
		}
	}
	return result, nil
}

func (s *SessionService) notifyOccupants(occupants []*model.Occupant, event notify.Event, sessionID uuid.UUID, title, body string) {
	for _, o := range occupants {
		send(s.notifier, o.UserID, event, sessionID, title, body)
	}
}

// Start начинает занятие
func (s *SessionService) Start(ctx context.Context, p model.Principal, sessionID uuid.UUID) (*model.Engagement, error) {
	if _, err := s.asInstructor(ctx, p, sessionID); err != nil {
		return nil, err
	}

	var (
		e         *model.Engagement
		occupants []*model.Occupant
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if e, err = s.transition(ctx, sessionID, model.EngagementInProgress); err != nil {
			return err
		}
		occupants, err = s.reserved(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session started",
		zap.String("engagement_id", sessionID.String()),
		zap.Int("occupants", len(occupants)))

	s.notifyOccupants(occupants, notify.EventSessionStarted, sessionID, "Занятие началось", "Преподаватель начал занятие")

	members := []uuid.UUID{e.InitiatorID}
	for _, o := range occupants {
		members = append(members, o.UserID)
	}
	startConversation(ctx, s.chat, s.logger, sessionID, members...)

	return e, nil
}

// Complete завершает занятие: оплаченные места выплачиваются преподавателю,
// неоплаченные возвращаются и отменяются. Статус меняется только после всех расчётов.
func (s *SessionService) Complete(ctx context.Context, p model.Principal, sessionID uuid.UUID) (*model.Engagement, error) {
	e, err := s.asInstructor(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	if e.Status == model.EngagementCompleted {
		return e, nil
	}
	if e.Status != model.EngagementInProgress {
		return nil, apperror.Transition("session", e.Status, model.EngagementCompleted)
	}

	occupants, err := s.reserved(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	paid := make([]*model.Occupant, 0, len(occupants))
	for _, o := range occupants {
		entry, err := s.escrow.EntryForOccupant(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}

		occupantID := o.ID
		if o.PaidAt != nil {
			err = s.escrow.Release(ctx, entry.ID, e.ProviderID, nil)
			paid = append(paid, o)
		} else {
			err = s.escrow.Refund(ctx, entry.ID, func(ctx context.Context) error {
				return s.occupants.UpdateStatus(ctx, occupantID, model.OccupantCancelled)
			})
		}
		if err != nil {
			s.logger.Error("Settlement failed, session stays in progress",
				zap.String("engagement_id", sessionID.String()),
				zap.String("occupant_id", o.ID.String()),
				zap.Error(err))
			return nil, err
		}
	}

	var updated *model.Engagement
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		updated, err = s.transition(ctx, sessionID, model.EngagementCompleted)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session completed",
		zap.String("engagement_id", sessionID.String()),
		zap.Int("paid_occupants", len(paid)))

	s.notifyOccupants(paid, notify.EventSessionCompleted, sessionID, "Занятие завершено", "Спасибо за участие")
	return updated, nil
}

// refundOccupant возвращает удержание участника и переводит его в status.
// Без удержания участник просто получает CANCELLED.
func (s *SessionService) refundOccupant(ctx context.Context, o *model.Occupant, status model.OccupantStatus, after func(ctx context.Context) error) error {
	entry, err := s.escrow.EntryForOccupant(ctx, o.ID)
	if err != nil {
		return err
	}

	settle := func(ctx context.Context, to model.OccupantStatus) error {
		current, err := s.occupants.LockByID(ctx, o.ID)
		if err != nil {
			return err
		}
		if current == nil || !current.IsReserved() {
			return nil
		}
		if err := s.occupants.UpdateStatus(ctx, o.ID, to); err != nil {
			return err
		}
		if after != nil {
			return after(ctx)
		}
		return nil
	}

	if entry == nil || entry.Status == model.LedgerRefunded {
		return s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if entry == nil {
				return settle(ctx, model.OccupantCancelled)
			}
			return settle(ctx, status)
		})
	}
	return s.escrow.Refund(ctx, entry.ID, func(ctx context.Context) error {
		return settle(ctx, status)
	})
}

// cancelRounds сколько раз CancelByInstructor доводит возвраты до конца, если во время
// возвратов появляются новые брони
const cancelRounds = 3

// CancelByInstructor отменяет занятие с возвратом всем участникам.
// При частичном сбое занятие остаётся неотменённым, повторный вызов продолжает с места сбоя.
// Статус меняется под блокировкой занятия и только если активных броней не осталось.
func (s *SessionService) CancelByInstructor(ctx context.Context, p model.Principal, sessionID uuid.UUID) (*model.Engagement, error) {
	e, err := s.asInstructor(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	if e.Status == model.EngagementCancelled {
		return e, nil
	}
	if !e.CanTransition(model.EngagementCancelled) {
		return nil, apperror.Transition("session", e.Status, model.EngagementCancelled)
	}

	var refunded []*model.Occupant
	for round := 0; round < cancelRounds; round++ {
		occupants, err := s.reserved(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		for _, o := range occupants {
			if err := s.refundOccupant(ctx, o, model.OccupantRefunded, nil); err != nil {
				s.logger.Error("Refund failed, session stays open",
					zap.String("engagement_id", sessionID.String()),
					zap.String("occupant_id", o.ID.String()),
					zap.Error(err))
				return nil, err
			}
		}
		refunded = append(refunded, occupants...)

		var (
			updated *model.Engagement
			late    int
		)
		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			current, err := s.engagements.LockByID(ctx, sessionID)
			if err != nil {
				return err
			}
			if current == nil {
				return apperror.NotFound("session", sessionID)
			}
			if current.Status == model.EngagementCancelled {
				updated = current
				return nil
			}
			remaining, err := s.reserved(ctx, sessionID)
			if err != nil {
				return err
			}
			if late = len(remaining); late > 0 {
				return nil
			}
			updated, err = s.transition(ctx, sessionID, model.EngagementCancelled)
			return err
		})
		if err != nil {
			return nil, err
		}
		if late > 0 {
			s.logger.Info("New reservations arrived during cancel, refunding them",
				zap.String("engagement_id", sessionID.String()),
				zap.Int("late", late))
			continue
		}

		s.logger.Info("Session cancelled by instructor",
			zap.String("engagement_id", sessionID.String()),
			zap.Int("refunded", len(refunded)))

		s.notifyOccupants(refunded, notify.EventSessionCancelled, sessionID,
			"Занятие отменено", "Преподаватель отменил занятие, оплата возвращена")
		return updated, nil
	}

	return nil, apperror.Conflict("session keeps receiving reservations, retry cancel")
}

// cancelIfEmpty отменяет запланированное занятие без участников
func (s *SessionService) cancelIfEmpty(ctx context.Context, sessionID uuid.UUID) error {
	remaining, err := s.reserved(ctx, sessionID)
	if err != nil || len(remaining) > 0 {
		return err
	}
	e, err := s.engagements.LockByID(ctx, sessionID)
	if err != nil || e == nil || e.Status != model.EngagementScheduled {
		return err
	}
	e.Apply(model.EngagementCancelled, s.now())
	if err := s.engagements.Update(ctx, e); err != nil {
		return err
	}
	s.logger.Info("Empty session cancelled", zap.String("engagement_id", sessionID.String()))
	return nil
}

// CancelByOccupant отменяет запись участника; занятие отменяется, только если участников не осталось
func (s *SessionService) CancelByOccupant(ctx context.Context, p model.Principal, sessionID uuid.UUID) error {
	e, err := s.session(ctx, sessionID)
	if err != nil {
		return err
	}
	occupant, err := s.occupants.GetByEngagementAndUser(ctx, sessionID, p.UserID)
	if err != nil {
		return fmt.Errorf("get occupant: %w", err)
	}
	if occupant == nil {
		return apperror.NotFound("occupant", p.UserID)
	}
	if !occupant.IsReserved() {
		return nil
	}
	if e.Status != model.EngagementScheduled {
		return apperror.Conflict("session is %s, reservation can no longer be cancelled", e.Status)
	}

	err = s.refundOccupant(ctx, occupant, model.OccupantRefunded, func(ctx context.Context) error {
		return s.cancelIfEmpty(ctx, sessionID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Reservation cancelled by occupant",
		zap.String("engagement_id", sessionID.String()),
		zap.String("occupant_id", occupant.ID.String()))

	send(s.notifier, e.InitiatorID, notify.EventBookingCancelled, sessionID,
		"Запись отменена", "Участник отменил запись на занятие")
	return nil
}

// lapse снимает неоплаченную бронь после истечения HoldTTL.
// Бронь, оплаченная после выборки очистки, не трогается: возвращает false.
func (s *SessionService) lapse(ctx context.Context, o *model.Occupant) (bool, error) {
	current, err := s.occupants.GetByID(ctx, o.ID)
	if err != nil {
		return false, fmt.Errorf("get occupant: %w", err)
	}
	if current == nil || !current.IsReserved() || current.PaidAt != nil {
		return false, nil
	}

	err = s.refundOccupant(ctx, current, model.OccupantCancelled, func(ctx context.Context) error {
		return s.cancelIfEmpty(ctx, o.EngagementID)
	})
	if err != nil {
		return false, err
	}

	s.logger.Info("Unpaid reservation lapsed",
		zap.String("occupant_id", o.ID.String()),
		zap.String("engagement_id", o.EngagementID.String()))

	send(s.notifier, o.UserID, notify.EventReservationLapsed, o.EngagementID,
		"Бронь снята", "Оплата не была подтверждена вовремя, место освобождено")
	return true, nil
}

// participant проверяет что занятие идёт и пользователь в нём участвует.
// Возвращает nil occupant для преподавателя.
func (s *SessionService) participant(ctx context.Context, p model.Principal, sessionID uuid.UUID) (*model.Occupant, error) {
	e, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if e.Status != model.EngagementInProgress {
		return nil, apperror.Conflict("session is %s, not live", e.Status)
	}
	if e.InitiatorID == p.UserID {
		return nil, nil
	}

	occupant, err := s.occupants.GetByEngagementAndUser(ctx, sessionID, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("get occupant: %w", err)
	}
	if occupant == nil || !occupant.IsReserved() {
		return nil, apperror.Conflict("not a participant of this session")
	}
	return occupant, nil
}

// Join отмечает вход в идущее занятие
func (s *SessionService) Join(ctx context.Context, p model.Principal, sessionID uuid.UUID) error {
	occupant, err := s.participant(ctx, p, sessionID)
	if err != nil || occupant == nil {
		return err
	}
	if err := s.occupants.MarkJoined(ctx, occupant.ID, s.now()); err != nil {
		return err
	}
	s.logger.Debug("Occupant joined",
		zap.String("engagement_id", sessionID.String()),
		zap.String("occupant_id", occupant.ID.String()))
	return nil
}

// Leave отмечает выход из занятия
func (s *SessionService) Leave(ctx context.Context, p model.Principal, sessionID uuid.UUID) error {
	occupant, err := s.participant(ctx, p, sessionID)
	if err != nil || occupant == nil {
		return err
	}
	if err := s.occupants.MarkLeft(ctx, occupant.ID, s.now()); err != nil {
		return err
	}
	s.logger.Debug("Occupant left",
		zap.String("engagement_id", sessionID.String()),
		zap.String("occupant_id", occupant.ID.String()))
	return nil
}

// Occupants участники занятия (для преподавателя)
func (s *SessionService) Occupants(ctx context.Context, p model.Principal, sessionID uuid.UUID) ([]*model.Occupant, error) {
	if _, err := s.asInstructor(ctx, p, sessionID); err != nil {
		return nil, err
	}
	return s.occupants.ListByEngagement(ctx, sessionID)
}
