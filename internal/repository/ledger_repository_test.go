package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRepository_CreateMapsUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepository(mock)
	occupantID := uuid.New()
	entry := &model.LedgerEntry{
		ID:         uuid.New(),
		OccupantID: &occupantID,
		PayerID:    uuid.New(),
		HoldAmount: 150000,
		Currency:   "thb",
		Status:     model.LedgerHolding,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_ledger_occupant"})

	err = repo.Create(context.Background(), entry)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_CreateSetsCreatedAt(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepository(mock)
	engagementID := uuid.New()
	entry := &model.LedgerEntry{
		ID:           uuid.New(),
		EngagementID: &engagementID,
		PayerID:      uuid.New(),
		HoldAmount:   15000,
		Currency:     "thb",
		Status:       model.LedgerHolding,
		ProcessorRef: "chrg_test_1",
	}
	createdAt := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WithArgs(entry.ID, entry.EngagementID, entry.OccupantID, entry.PayerID, entry.PayeeID,
			entry.HoldAmount, entry.Currency, entry.Status, entry.ProcessorRef).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))

	require.NoError(t, repo.Create(context.Background(), entry))
	assert.Equal(t, createdAt, entry.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_CompareAndSetStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepository(mock)
	id := uuid.New()
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE ledger_entries")).
		WithArgs(id, model.LedgerHolding, model.LedgerReleased, pgxmock.AnyArg(), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ledger_entries")).
		WithArgs(id, model.LedgerHolding, model.LedgerRefunded, pgxmock.AnyArg(), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.CompareAndSetStatus(context.Background(), id, model.LedgerHolding, model.LedgerReleased, nil, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CompareAndSetStatus(context.Background(), id, model.LedgerHolding, model.LedgerRefunded, nil, now)
	require.NoError(t, err)
	assert.False(t, ok, "second transition out of HOLDING must lose the compare-and-set")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_GetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepository(mock)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM ledger_entries WHERE id = $1")).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	entry, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}
