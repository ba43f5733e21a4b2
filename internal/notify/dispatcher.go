package notify

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/skill_market/internal/apperror"
	"go.uber.org/zap"
)

// Dispatcher пул воркеров, доставляющий уведомления во все sink'и.
// Notify никогда не блокирует и не возвращает ошибку вызывающему.
type Dispatcher struct {
	size   int
	jobs   chan Message
	sinks  []Sink
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewDispatcher создаёт пул из size воркеров с очередью queue сообщений
func NewDispatcher(size, queue int, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if size < 1 {
		size = 1
	}
	return &Dispatcher{
		size:   size,
		jobs:   make(chan Message, queue),
		sinks:  sinks,
		logger: logger,
	}
}

// Start запускает воркеры; они останавливаются при отмене ctx
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.size; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Wait ждёт остановки воркеров
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	d.logger.Debug("Notify worker started", zap.Int("worker", id))
	for {
		select {
		case msg := <-d.jobs:
			d.deliver(ctx, msg)
		case <-ctx.Done():
			d.logger.Debug("Notify worker stopped", zap.Int("worker", id))
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	for _, sink := range d.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := sink.Send(sendCtx, msg)
		cancel()
		if err != nil {
			d.logger.Warn("Notification not delivered",
				zap.String("event", string(msg.Event)),
				zap.String("user_id", msg.UserID.String()),
				zap.Error(apperror.SideEffect(err, "send notification")))
		}
	}
}

// Notify ставит сообщение в очередь. При переполнении сообщение отбрасывается.
func (d *Dispatcher) Notify(msg Message) bool {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	select {
	case d.jobs <- msg:
		return true
	default:
		d.logger.Warn("Notification queue full, dropping message",
			zap.String("event", string(msg.Event)),
			zap.String("user_id", msg.UserID.String()))
		return false
	}
}
