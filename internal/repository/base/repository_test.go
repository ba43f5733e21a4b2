package base

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactor_CommitUsesTxConn(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)
	tr := NewTransactor(mock)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE units")).WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	err = tr.WithinTx(context.Background(), func(ctx context.Context) error {
		_, ok := repo.Conn(ctx).(pgx.Tx)
		assert.True(t, ok, "repository must use the transaction from context")

		n, err := repo.ExecAffected(ctx, "UPDATE units SET title = 'x'")
		assert.Equal(t, int64(2), n)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_RollbackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tr := NewTransactor(mock)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = tr.WithinTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_NestedReusesOuter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tr := NewTransactor(mock)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err = tr.WithinTx(context.Background(), func(ctx context.Context) error {
		return tr.WithinTx(ctx, func(ctx context.Context) error { return nil })
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, IsNotFound(pgx.ErrNoRows))
	assert.False(t, IsNotFound(errors.New("x")))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
}
