package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitRepository_LockOwnerTakesAdvisoryLock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ownerID := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).
		WithArgs(ownerID.String()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, NewUnitRepository(mock).LockOwner(context.Background(), ownerID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitRepository_GetByIDMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("FROM reservable_units u WHERE u.id = $1")).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	unit, err := NewUnitRepository(mock).GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, unit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupantRepository_CreateMapsUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	unitID := uuid.New()
	occupant := &model.Occupant{
		ID:           uuid.New(),
		EngagementID: uuid.New(),
		UnitID:       &unitID,
		UserID:       uuid.New(),
		Status:       model.OccupantReserved,
		OneToOne:     true,
		Price:        150000,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO occupants")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_occupants_one_to_one"})

	err = NewOccupantRepository(mock).Create(context.Background(), occupant)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupantRepository_CountReservedByUnit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	unitID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM occupants")).
		WithArgs(unitID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	count, err := NewOccupantRepository(mock).CountReservedByUnit(context.Background(), unitID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
