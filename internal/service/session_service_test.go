package service

import (
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/skill_market/internal/apperror"
	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/notify"
	"github.com/Freeeeeet/skill_market/internal/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookOneToOneConcurrently(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)
	unit := f.unit(olga, "2026-11-03", "10:00", "11:00", model.CapacityOneToOne, 0)

	const students = 8
	principals := make([]model.Principal, students)
	for i := range principals {
		principals[i] = f.client("student")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		bookings []*Booking
		errs     []error
	)
	for _, p := range principals {
		wg.Add(1)
		go func(p model.Principal) {
			defer wg.Done()
			b, err := f.sessions.Book(f.ctx, p, unit.ID, "tok_visa")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			bookings = append(bookings, b)
		}(p)
	}
	wg.Wait()

	require.Len(t, bookings, 1)
	require.Len(t, errs, students-1)
	for _, err := range errs {
		assert.True(t, apperror.IsKind(err, apperror.KindConflict), "got %v", err)
	}

	reserved, err := f.store.Occupants().CountReservedByUnit(f.ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reserved)
	assert.Equal(t, 1, f.store.Ledger().Count(settlement.ForOccupant(bookings[0].Occupant.ID)))
}

func TestBookPricesAndHolds(t *testing.T) {
	f := newFixture(t)
	olga, profile := f.provider("Olga", 150000)
	student := f.client("Ivan")
	unit := f.unit(olga, "2026-11-03", "10:00", "10:45", model.CapacityOneToOne, 0)

	b, err := f.sessions.Book(f.ctx, student, unit.ID, "tok_visa")
	require.NoError(t, err)

	// 1500.00 в час × 45 минут
	assert.Equal(t, model.Money(112500), b.Occupant.Price)
	assert.True(t, b.Occupant.OneToOne)
	assert.Equal(t, model.EngagementScheduled, b.Session.Status)
	assert.Equal(t, profile.ID, b.Session.ProviderID)
	assert.Equal(t, olga.UserID, b.Session.InitiatorID)
	assert.Equal(t, model.LedgerHolding, b.LedgerEntry.Status)
	assert.Equal(t, model.Money(112500), b.LedgerEntry.HoldAmount)
	assert.Equal(t, "secret_"+b.LedgerEntry.ProcessorRef, b.ClientSecret)
	assert.Contains(t, f.notes.events(olga.UserID), notify.EventBookingCreated)

	_, err = f.sessions.Book(f.ctx, olga, unit.ID, "tok_visa")
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestBookOwnUnitRejected(t *testing.T) {
	f := newFixture(t)
	user, profile := f.store.AddProvider("Olga", 150000)
	both := model.Principal{UserID: user.ID, Roles: []model.Role{model.RoleClient, model.RoleProvider}}

	unit, err := f.units.CreateUnit(f.ctx, both, UnitInput{Date: "2026-11-03", StartTime: "10:00", EndTime: "11:00", CapacityMode: model.CapacityOneToOne})
	require.NoError(t, err)
	assert.Equal(t, profile.ID, unit.OwnerID())

	_, err = f.sessions.Book(f.ctx, both, unit.ID, "tok_visa")
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestBookGroupCapacity(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)
	unit := f.unit(olga, "2026-11-03", "10:00", "11:00", model.CapacityGroup, 2)

	first, err := f.sessions.Book(f.ctx, f.client("a"), unit.ID, "tok_visa")
	require.NoError(t, err)
	second, err := f.sessions.Book(f.ctx, f.client("b"), unit.ID, "tok_visa")
	require.NoError(t, err)
	assert.Equal(t, first.Session.ID, second.Session.ID)
	assert.False(t, first.Occupant.OneToOne)

	_, err = f.sessions.Book(f.ctx, f.client("c"), unit.ID, "tok_visa")
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestBookHoldFailureReleasesSeat(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)
	unit := f.unit(olga, "2026-11-03", "10:00", "11:00", model.CapacityOneToOne, 0)

	f.proc.SetFailures(true, false, false)
	_, err := f.sessions.Book(f.ctx, f.client("a"), unit.ID, "tok_declined")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindProcessor))

	reserved, err := f.store.Occupants().CountReservedByUnit(f.ctx, unit.ID)
	require.NoError(t, err)
	assert.Zero(t, reserved)

	f.proc.SetFailures(false, false, false)
	b, err := f.sessions.Book(f.ctx, f.client("b"), unit.ID, "tok_visa")
	require.NoError(t, err)
	assert.Equal(t, model.OccupantReserved, b.Occupant.Status)
}

func TestBookRetryAfterHoldFailure(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)
	unit := f.unit(olga, "2026-11-03", "10:00", "11:00", model.CapacityOneToOne, 0)
	student := f.client("a")

	f.proc.SetFailures(true, false, false)
	_, err := f.sessions.Book(f.ctx, student, unit.ID, "tok_visa")
	require.True(t, apperror.IsKind(err, apperror.KindProcessor))
	assert.True(t, apperror.IsRetryable(err))

	f.proc.SetFailures(false, false, false)
	f.now = f.now.Add(10 * time.Minute)
	b, err := f.sessions.Book(f.ctx, student, unit.ID, "tok_visa")
	require.NoError(t, err)

	got := f.occupant(b.Occupant.ID)
	assert.Equal(t, model.OccupantReserved, got.Status)
	assert.Equal(t, f.now, got.CreatedAt, "hold TTL counts from the retry")
	assert.Equal(t, model.LedgerHolding, f.entry(b.LedgerEntry.ID).Status)
	// FAILED запись первой попытки и действующее удержание
	assert.Equal(t, 2, f.store.Ledger().Count(settlement.ForOccupant(b.Occupant.ID)))

	reserved, err := f.store.Occupants().CountReservedByUnit(f.ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reserved)

	// после успешной брони повтор снова запрещён
	_, err = f.sessions.Book(f.ctx, student, unit.ID, "tok_visa")
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestBookRetryBlockedWhileSeatTaken(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)
	unit := f.unit(olga, "2026-11-03", "10:00", "11:00", model.CapacityOneToOne, 0)
	student := f.client("a")

	f.proc.SetFailures(true, false, false)
	_, err := f.sessions.Book(f.ctx, student, unit.ID, "tok_visa")
	require.Error(t, err)
	f.proc.SetFailures(false, false, false)

	_, err = f.sessions.Book(f.ctx, f.client("b"), unit.ID, "tok_visa")
	require.NoError(t, err)

	_, err = f.sessions.Book(f.ctx, student, unit.ID, "tok_visa")
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestCancelByInstructorRefundsLateBooking(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)
	unit := f.unit(olga, "2026-11-03", "10:00", "11:00", model.CapacityGroup, 3)

	var bookings []*Booking
	for _, name := range []string{"a", "b"} {
		b, err := f.sessions.Book(f.ctx, f.client(name), unit.ID, "tok_visa")
		require.NoError(t, err)
		bookings = append(bookings, b)
	}
	sessionID := bookings[0].Session.ID

	// Новая бронь приходит, пока идут возвраты
	var (
		once    sync.Once
		late    *Booking
		lateErr error
	)
	f.proc.OnRefund = func(string) {
		once.Do(func() {
			late, lateErr = f.sessions.Book(f.ctx, f.client("late"), unit.ID, "tok_visa")
		})
	}

	cancelled, err := f.sessions.CancelByInstructor(f.ctx, olga, sessionID)
	require.NoError(t, err)
	require.NoError(t, lateErr)
	require.NotNil(t, late)
	assert.Equal(t, sessionID, late.Session.ID)
	assert.Equal(t, model.EngagementCancelled, cancelled.Status)

	assert.Equal(t, model.OccupantRefunded, f.occupant(late.Occupant.ID).Status)
	assert.Equal(t, model.LedgerRefunded, f.entry(late.LedgerEntry.ID).Status)
	assert.Equal(t, 1, f.proc.Refunds(late.LedgerEntry.ProcessorRef))
	assert.Contains(t, f.notes.events(late.Occupant.UserID), notify.EventSessionCancelled)

	for _, b := range bookings {
		assert.Equal(t, model.LedgerRefunded, f.entry(b.LedgerEntry.ID).Status)
	}

	reserved, err := f.store.Occupants().CountReservedByUnit(f.ctx, unit.ID)
	require.NoError(t, err)
	assert.Zero(t, reserved)
}

func TestBookAfterSessionCancelledOpensNewSession(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)
	unit := f.unit(olga, "2026-11-03", "10:00", "11:00", model.CapacityGroup, 3)

	first, err := f.sessions.Book(f.ctx, f.client("a"), unit.ID, "tok_visa")
	require.NoError(t, err)
	_, err = f.sessions.CancelByInstructor(f.ctx, olga, first.Session.ID)
	require.NoError(t, err)

	next, err := f.sessions.Book(f.ctx, f.client("b"), unit.ID, "tok_visa")
	require.NoError(t, err)
	assert.NotEqual(t, first.Session.ID, next.Session.ID)
	assert.Equal(t, model.EngagementScheduled, next.Session.Status)
	assert.Equal(t, model.LedgerHolding, f.entry(next.LedgerEntry.ID).Status)
}

func TestLapseSkipsReservationPaidAfterListing(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)
	unit := f.unit(olga, "2026-11-03", "10:00", "11:00", model.CapacityOneToOne, 0)
	student := f.client("a")

	b, err := f.sessions.Book(f.ctx, student, unit.ID, "tok_visa")
	require.NoError(t, err)
	listed := *f.occupant(b.Occupant.ID)
	require.Nil(t, listed.PaidAt)

	_, err = f.sessions.ConfirmBooking(f.ctx, student, b.Occupant.ID, b.LedgerEntry.ProcessorRef)
	require.NoError(t, err)

	lapsed, err := f.sessions.lapse(f.ctx, &listed)
	require.NoError(t, err)
	assert.False(t, lapsed)

	assert.Equal(t, model.OccupantReserved, f.occupant(b.Occupant.ID).Status)
	assert.Equal(t, model.LedgerHolding, f.entry(b.LedgerEntry.ID).Status)
	assert.Zero(t, f.proc.Refunds(b.LedgerEntry.ProcessorRef))
}

func TestCancelByInstructorRefundsEveryone(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)
	unit := f.unit(olga, "2026-11-03", "10:00", "11:00", model.CapacityGroup, 3)

	var bookings []*Booking
	for _, name := range []string{"a", "b", "c"} {
		b, err := f.sessions.Book(f.ctx, f.client(name), unit.ID, "tok_visa")
		require.NoError(t, err)
		bookings = append(bookings, b)
	}
	sessionID := bookings[0].Session.ID

	// Первая попытка падает на возврате, занятие остаётся открытым
	f.proc.SetFailures(false, false, true)
	_, err := f.sessions.CancelByInstructor(f.ctx, olga, sessionID)
	require.Error(t, err)
	assert.Equal(t, model.EngagementScheduled, f.engagement(sessionID).Status)
	f.proc.SetFailures(false, false, false)

	cancelled, err := f.sessions.CancelByInstructor(f.ctx, olga, sessionID)
	require.NoError(t, err)
	assert.Equal(t, model.EngagementCancelled, cancelled.Status)

	for _, b := range bookings {
		assert.Equal(t, model.OccupantRefunded, f.occupant(b.Occupant.ID).Status)
		assert.Equal(t, model.LedgerRefunded, f.entry(b.LedgerEntry.ID).Status)
		assert.Equal(t, 1, f.proc.Refunds(b.LedgerEntry.ProcessorRef))
		assert.Contains(t, f.notes.events(b.Occupant.UserID), notify.EventSessionCancelled)
	}

	calls := f.proc.CallCount()
	again, err := f.sessions.CancelByInstructor(f.ctx, olga, sessionID)
	require.NoError(t, err)
	assert.Equal(t, model.EngagementCancelled, again.Status)
	assert.Equal(t, calls, f.proc.CallCount())
}

func TestCompleteSettlesPaidAndRefundsUnpaid(t *testing.T) {
	f := newFixture(t)
	olga, profile := f.provider("Olga", 150000)
	unit := f.unit(olga, "2026-11-03", "10:00", "11:00", model.CapacityGroup, 3)
	payer := f.client("payer")
	idle := f.client("idle")

	paid, err := f.sessions.Book(f.ctx, payer, unit.ID, "tok_visa")
	require.NoError(t, err)
	unpaid, err := f.sessions.Book(f.ctx, idle, unit.ID, "tok_visa")
	require.NoError(t, err)
	sessionID := paid.Session.ID

	_, err = f.sessions.ConfirmBooking(f.ctx, payer, paid.Occupant.ID, "chrg_other")
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
	confirmed, err := f.sessions.ConfirmBooking(f.ctx, payer, paid.Occupant.ID, paid.LedgerEntry.ProcessorRef)
	require.NoError(t, err)
	require.NotNil(t, confirmed.PaidAt)

	_, err = f.sessions.Complete(f.ctx, olga, sessionID)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))

	started, err := f.sessions.Start(f.ctx, olga, sessionID)
	require.NoError(t, err)
	assert.Equal(t, model.EngagementInProgress, started.Status)
	assert.Contains(t, f.notes.events(payer.UserID), notify.EventSessionStarted)
	assert.Len(t, f.chat.started[sessionID], 3)

	require.NoError(t, f.sessions.Join(f.ctx, payer, sessionID))
	require.NoError(t, f.sessions.Join(f.ctx, olga, sessionID))
	assert.NotNil(t, f.occupant(paid.Occupant.ID).JoinedAt)
	require.NoError(t, f.sessions.Leave(f.ctx, payer, sessionID))
	assert.NotNil(t, f.occupant(paid.Occupant.ID).LeftAt)
	assert.True(t, apperror.IsKind(f.sessions.Join(f.ctx, f.client("stranger"), sessionID), apperror.KindConflict))

	done, err := f.sessions.Complete(f.ctx, olga, sessionID)
	require.NoError(t, err)
	assert.Equal(t, model.EngagementCompleted, done.Status)

	released := f.entry(paid.LedgerEntry.ID)
	assert.Equal(t, model.LedgerReleased, released.Status)
	assert.Equal(t, profile.ID, *released.PayeeID)
	assert.Equal(t, model.OccupantReserved, f.occupant(paid.Occupant.ID).Status)

	assert.Equal(t, model.LedgerRefunded, f.entry(unpaid.LedgerEntry.ID).Status)
	assert.Equal(t, model.OccupantCancelled, f.occupant(unpaid.Occupant.ID).Status)
}

func TestCancelByOccupant(t *testing.T) {
	f := newFixture(t)
	olga, _ := f.provider("Olga", 150000)
	unit := f.unit(olga, "2026-11-03", "10:00", "11:00", model.CapacityGroup, 3)
	a, b := f.client("a"), f.client("b")

	first, err := f.sessions.Book(f.ctx, a, unit.ID, "tok_visa")
	require.NoError(t, err)
	second, err := f.sessions.Book(f.ctx, b, unit.ID, "tok_visa")
	require.NoError(t, err)
	sessionID := first.Session.ID

	require.NoError(t, f.sessions.CancelByOccupant(f.ctx, a, sessionID))
	assert.Equal(t, model.OccupantRefunded, f.occupant(first.Occupant.ID).Status)
	assert.Equal(t, model.LedgerRefunded, f.entry(first.LedgerEntry.ID).Status)
	assert.Equal(t, model.LedgerHolding, f.entry(second.LedgerEntry.ID).Status)
	assert.Equal(t, model.EngagementScheduled, f.engagement(sessionID).Status)

	// Повторная запись на то же занятие запрещена
	_, err = f.sessions.Book(f.ctx, a, unit.ID, "tok_visa")
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))

	require.NoError(t, f.sessions.CancelByOccupant(f.ctx, b, sessionID))
	assert.Equal(t, model.EngagementCancelled, f.engagement(sessionID).Status)

	// Повтор без эффекта
	require.NoError(t, f.sessions.CancelByOccupant(f.ctx, b, sessionID))
	assert.Equal(t, 1, f.proc.Refunds(second.LedgerEntry.ProcessorRef))

	// Слот снова свободен и получает новое занятие
	again, err := f.sessions.Book(f.ctx, f.client("c"), unit.ID, "tok_visa")
	require.NoError(t, err)
	assert.NotEqual(t, sessionID, again.Session.ID)
}
