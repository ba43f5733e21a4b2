// Package settlement ведёт эскроу: удержание средств у процессора и его судьбу (выплата или возврат).
// Статус LedgerEntry меняется только здесь.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/skill_market/internal/apperror"
	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/payment"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrDuplicateHold у субъекта уже есть действующая запись
var ErrDuplicateHold = apperror.Conflict("subject already has a ledger entry")

type LedgerStore interface {
	Create(ctx context.Context, entry *model.LedgerEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.LedgerEntry, error)
	GetByEngagement(ctx context.Context, engagementID uuid.UUID) (*model.LedgerEntry, error)
	GetByOccupant(ctx context.Context, occupantID uuid.UUID) (*model.LedgerEntry, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to model.LedgerStatus, payeeID *uuid.UUID, at time.Time) (bool, error)
}

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ForEngagement субъект проекта
func ForEngagement(id uuid.UUID) model.LedgerSubject {
	return model.LedgerSubject{EngagementID: &id}
}

// ForOccupant субъект места на занятии
func ForOccupant(id uuid.UUID) model.LedgerSubject {
	return model.LedgerSubject{OccupantID: &id}
}

// HoldParams параметры нового удержания
type HoldParams struct {
	Subject       model.LedgerSubject
	PayerID       uuid.UUID
	PayeeID       *uuid.UUID
	Amount        model.Money
	PaymentMethod string
	Description   string
}

// Hold авторизованное у процессора удержание; Entry заполняется после записи в журнал
type Hold struct {
	HoldParams
	Ref          string
	ClientSecret string
	Entry        *model.LedgerEntry
}

type Orchestrator struct {
	tx        Transactor
	ledger    LedgerStore
	locker    EntryLocker
	processor payment.Processor
	currency  string
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewOrchestrator(tx Transactor, ledger LedgerStore, locker EntryLocker, processor payment.Processor, currency string, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		tx:        tx,
		ledger:    ledger,
		locker:    locker,
		processor: processor,
		currency:  currency,
		logger:    logger,
		tracer:    otel.Tracer("github.com/Freeeeeet/skill_market/internal/settlement"),
		now:       time.Now,
	}
}

func (o *Orchestrator) existing(ctx context.Context, subject model.LedgerSubject) (*model.LedgerEntry, error) {
	switch {
	case subject.EngagementID != nil:
		return o.ledger.GetByEngagement(ctx, *subject.EngagementID)
	case subject.OccupantID != nil:
		return o.ledger.GetByOccupant(ctx, *subject.OccupantID)
	default:
		return nil, apperror.Validation("ledger subject is empty")
	}
}

// Authorize удерживает сумму у процессора, ничего не записывая в журнал.
// Вызывается вне транзакции БД.
func (o *Orchestrator) Authorize(ctx context.Context, p HoldParams) (*Hold, error) {
	if !p.Amount.IsPositive() {
		return nil, apperror.Validation("hold amount must be positive, got %s", p.Amount)
	}

	current, err := o.existing(ctx, p.Subject)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, ErrDuplicateHold
	}

	key := "hold:" + p.Subject.Key()
	ctx, span := o.tracer.Start(ctx, "settlement.hold", trace.WithAttributes(
		attribute.String("ledger.subject", p.Subject.Key()),
		attribute.Int64("ledger.amount", int64(p.Amount)),
	))
	defer span.End()

	res, err := o.processor.CreateHold(ctx, payment.HoldRequest{
		Amount:         p.Amount,
		Currency:       o.currency,
		PaymentMethod:  p.PaymentMethod,
		IdempotencyKey: key,
		Description:    p.Description,
		Metadata:       map[string]string{"subject": p.Subject.Key()},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hold failed")
		o.logger.Warn("Processor hold failed",
			zap.String("subject", p.Subject.Key()),
			zap.Error(err))
		return nil, apperror.Processor(err, "could not hold funds")
	}

	return &Hold{HoldParams: p, Ref: res.HoldRef, ClientSecret: res.ClientSecret}, nil
}

func (o *Orchestrator) entryFor(h HoldParams, status model.LedgerStatus, ref string) *model.LedgerEntry {
	return &model.LedgerEntry{
		ID:           uuid.New(),
		EngagementID: h.Subject.EngagementID,
		OccupantID:   h.Subject.OccupantID,
		PayerID:      h.PayerID,
		PayeeID:      h.PayeeID,
		HoldAmount:   h.Amount,
		Currency:     o.currency,
		Status:       status,
		ProcessorRef: ref,
	}
}

// Record записывает HOLDING запись в транзакции вызывающего
func (o *Orchestrator) Record(ctx context.Context, hold *Hold) (*model.LedgerEntry, error) {
	entry := o.entryFor(hold.HoldParams, model.LedgerHolding, hold.Ref)
	if err := o.ledger.Create(ctx, entry); err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			return nil, ErrDuplicateHold
		}
		return nil, fmt.Errorf("record hold: %w", err)
	}
	hold.Entry = entry
	return entry, nil
}

// Void снимает удержание, которое так и не попало в журнал (компенсация)
func (o *Orchestrator) Void(ctx context.Context, hold *Hold) {
	if err := o.processor.Refund(ctx, hold.Ref, "refund:"+hold.Subject.Key()); err != nil {
		o.logger.Error("Failed to void orphan hold",
			zap.String("subject", hold.Subject.Key()),
			zap.String("hold_ref", hold.Ref),
			zap.Error(err))
		return
	}
	o.logger.Info("Orphan hold voided", zap.String("subject", hold.Subject.Key()), zap.String("hold_ref", hold.Ref))
}

// OpenHold удерживает сумму и записывает HOLDING запись.
// Если процессор отказал, сохраняется FAILED запись для аудита.
func (o *Orchestrator) OpenHold(ctx context.Context, p HoldParams) (*Hold, error) {
	hold, err := o.Authorize(ctx, p)
	if err != nil {
		if apperror.IsKind(err, apperror.KindProcessor) {
			if ferr := o.ledger.Create(ctx, o.entryFor(p, model.LedgerFailed, "")); ferr != nil {
				o.logger.Warn("Failed to record failed hold", zap.String("subject", p.Subject.Key()), zap.Error(ferr))
			}
		}
		return nil, err
	}

	if _, err := o.Record(ctx, hold); err != nil {
		o.Void(ctx, hold)
		return nil, err
	}

	o.logger.Info("Hold opened",
		zap.String("subject", p.Subject.Key()),
		zap.String("entry_id", hold.Entry.ID.String()),
		zap.String("amount", p.Amount.String()))

	return hold, nil
}

// Release выплачивает удержание исполнителю. onSettled выполняется в той же транзакции,
// что и смена статуса записи.
func (o *Orchestrator) Release(ctx context.Context, entryID, payeeID uuid.UUID, onSettled func(ctx context.Context) error) error {
	return o.settle(ctx, entryID, model.LedgerReleased, &payeeID, "capture", o.processor.Capture, onSettled)
}

// Refund возвращает удержание плательщику
func (o *Orchestrator) Refund(ctx context.Context, entryID uuid.UUID, onSettled func(ctx context.Context) error) error {
	return o.settle(ctx, entryID, model.LedgerRefunded, nil, "refund", o.processor.Refund, onSettled)
}

func (o *Orchestrator) settle(
	ctx context.Context,
	entryID uuid.UUID,
	target model.LedgerStatus,
	payeeID *uuid.UUID,
	op string,
	call func(ctx context.Context, holdRef, key string) error,
	onSettled func(ctx context.Context) error,
) error {
	// Статус читается под блокировкой: второй расчёт по записи ждёт первый
	// и видит уже итоговый статус, не обращаясь к процессору
	unlock, err := o.locker.LockEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("lock ledger entry: %w", err)
	}
	defer unlock()

	entry, err := o.ledger.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get ledger entry: %w", err)
	}
	if entry == nil {
		return apperror.NotFound("ledger entry", entryID)
	}
	if entry.Status == target {
		return nil
	}
	if entry.Status != model.LedgerHolding {
		return apperror.Transition("ledger entry", entry.Status, target)
	}

	if err := o.callProcessor(ctx, entry, op, call); err != nil {
		return err
	}

	now := o.now()
	err = o.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := o.ledger.CompareAndSetStatus(ctx, entry.ID, model.LedgerHolding, target, payeeID, now)
		if err != nil {
			return err
		}
		if !ok {
			current, err := o.ledger.GetByID(ctx, entry.ID)
			if err != nil {
				return fmt.Errorf("get ledger entry: %w", err)
			}
			if current == nil {
				return apperror.NotFound("ledger entry", entry.ID)
			}
			if current.Status == target {
				return nil
			}
			return apperror.Transition("ledger entry", current.Status, target)
		}
		if onSettled != nil {
			return onSettled(ctx)
		}
		return nil
	})
	if err != nil {
		o.logger.Error("Processor settled but ledger update failed",
			zap.String("entry_id", entry.ID.String()),
			zap.String("target", string(target)),
			zap.Error(err))
		return err
	}

	o.logger.Info("Ledger entry settled",
		zap.String("entry_id", entry.ID.String()),
		zap.String("status", string(target)),
		zap.String("amount", entry.HoldAmount.String()))

	return nil
}

func (o *Orchestrator) callProcessor(ctx context.Context, entry *model.LedgerEntry, op string, call func(ctx context.Context, holdRef, key string) error) error {
	ctx, span := o.tracer.Start(ctx, "settlement."+op, trace.WithAttributes(
		attribute.String("ledger.entry_id", entry.ID.String()),
		attribute.Int64("ledger.amount", int64(entry.HoldAmount)),
	))
	defer span.End()

	if err := call(ctx, entry.ProcessorRef, op+":"+entry.ID.String()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		o.logger.Warn("Processor call failed, entry stays HOLDING",
			zap.String("op", op),
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err))
		return apperror.Processor(err, "%s of ledger entry failed", op).With("entry_id", entry.ID.String())
	}
	return nil
}

// EntryForEngagement действующая запись проекта
func (o *Orchestrator) EntryForEngagement(ctx context.Context, engagementID uuid.UUID) (*model.LedgerEntry, error) {
	return o.ledger.GetByEngagement(ctx, engagementID)
}

// EntryForOccupant действующая запись участника
func (o *Orchestrator) EntryForOccupant(ctx context.Context, occupantID uuid.UUID) (*model.LedgerEntry, error) {
	return o.ledger.GetByOccupant(ctx, occupantID)
}
