package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/Freeeeeet/skill_market/internal/repository/base"
	"github.com/google/uuid"
)

const ledgerColumns = `
	id, engagement_id, occupant_id, payer_id, payee_id, hold_amount, currency, status, processor_ref, created_at, settled_at
`

// LedgerRepository хранилище записей эскроу. Статус меняется только через CompareAndSetStatus.
type LedgerRepository struct {
	*base.Repository
}

func NewLedgerRepository(pool base.Querier) *LedgerRepository {
	return &LedgerRepository{Repository: base.NewRepository(pool)}
}

func scanLedgerEntry(row rowScanner) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	err := row.Scan(
		&e.ID,
		&e.EngagementID,
		&e.OccupantID,
		&e.PayerID,
		&e.PayeeID,
		&e.HoldAmount,
		&e.Currency,
		&e.Status,
		&e.ProcessorRef,
		&e.CreatedAt,
		&e.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create создаёт запись
func (r *LedgerRepository) Create(ctx context.Context, e *model.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, engagement_id, occupant_id, payer_id, payee_id, hold_amount, currency, status, processor_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := r.Conn(ctx).QueryRow(
		ctx, query,
		e.ID,
		e.EngagementID,
		e.OccupantID,
		e.PayerID,
		e.PayeeID,
		e.HoldAmount,
		e.Currency,
		e.Status,
		e.ProcessorRef,
	).Scan(&e.CreatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create ledger entry: %w", model.ErrDuplicate)
		}
		return fmt.Errorf("create ledger entry: %w", err)
	}

	return nil
}

func (r *LedgerRepository) getOne(ctx context.Context, op, query string, args ...any) (*model.LedgerEntry, error) {
	e, err := scanLedgerEntry(r.Conn(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

// GetByID получает запись по ID
func (r *LedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.LedgerEntry, error) {
	return r.getOne(ctx, "get ledger entry", `SELECT `+ledgerColumns+` FROM ledger_entries WHERE id = $1`, id)
}

// GetByEngagement получает действующую (не FAILED) запись проекта
func (r *LedgerRepository) GetByEngagement(ctx context.Context, engagementID uuid.UUID) (*model.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE engagement_id = $1 AND status <> 'FAILED'`
	return r.getOne(ctx, "get ledger entry by engagement", query, engagementID)
}

// GetByOccupant получает действующую (не FAILED) запись участника
func (r *LedgerRepository) GetByOccupant(ctx context.Context, occupantID uuid.UUID) (*model.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE occupant_id = $1 AND status <> 'FAILED'`
	return r.getOne(ctx, "get ledger entry by occupant", query, occupantID)
}

// CompareAndSetStatus переводит запись из from в to. Возвращает false, если статус уже другой.
func (r *LedgerRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to model.LedgerStatus, payeeID *uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE ledger_entries
		SET status = $3, payee_id = COALESCE($4, payee_id), settled_at = $5
		WHERE id = $1 AND status = $2
	`

	affected, err := r.ExecAffected(ctx, query, id, from, to, payeeID, at)
	if err != nil {
		return false, fmt.Errorf("set ledger status: %w", err)
	}

	return affected == 1, nil
}
