package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AdvisoryLocker сессионная advisory-блокировка записи журнала. Держит отдельное соединение
// пула, пока идёт вызов процессора, поэтому работает между экземплярами сервиса.
type AdvisoryLocker struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewAdvisoryLocker(pool *pgxpool.Pool, logger *zap.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool, logger: logger}
}

func ledgerLockKey(entryID uuid.UUID) string {
	return "ledger:" + entryID.String()
}

// LockEntry ждёт блокировку записи; unlock снимает её и возвращает соединение в пул
func (l *AdvisoryLocker) LockEntry(ctx context.Context, entryID uuid.UUID) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	key := ledgerLockKey(entryID)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1::text, 0))`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("lock ledger entry: %w", err)
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtextextended($1::text, 0))`, key); err != nil {
			l.logger.Error("Failed to release ledger lock, dropping connection",
				zap.String("entry_id", entryID.String()),
				zap.Error(err))
			// Соединение с висящей блокировкой в пул не возвращаем
			_ = conn.Conn().Close(unlockCtx)
		}
		conn.Release()
	}, nil
}
