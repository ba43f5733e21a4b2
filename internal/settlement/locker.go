package settlement

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// EntryLocker сериализует расчёты по одной записи журнала на время вызова процессора.
// unlock обязателен к вызову.
type EntryLocker interface {
	LockEntry(ctx context.Context, entryID uuid.UUID) (unlock func(), err error)
}

// LocalLocker блокировки в памяти процесса. Для одного экземпляра сервиса и тестов.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entryLock
}

type entryLock struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[uuid.UUID]*entryLock)}
}

func (l *LocalLocker) LockEntry(ctx context.Context, entryID uuid.UUID) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[entryID]
	if !ok {
		lock = &entryLock{sem: make(chan struct{}, 1)}
		l.locks[entryID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(entryID, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.sem
			l.release(entryID, lock)
		})
	}, nil
}

func (l *LocalLocker) release(entryID uuid.UUID, lock *entryLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, entryID)
	}
}
