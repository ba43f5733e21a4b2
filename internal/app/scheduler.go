package app

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/skill_market/internal/service"
	"go.uber.org/zap"
)

// Sweeper фоновая очистка истёкших сроков
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepReport, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewScheduler создаёт новый планировщик
func NewScheduler(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start запускает фоновые задачи. Повторный вызов и вызов после Stop ничего не делают.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))

	go s.runSweepTask(ctx)
}

// Stop останавливает фоновые задачи и ждёт завершения текущего прохода.
// Безопасен без Start и при повторном вызове.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.waitDone()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	s.logger.Info("Stopping background scheduler")
	close(s.stopChan)
	if started {
		<-s.done
	}
}

// waitDone канал завершения задачи; для незапущенного планировщика уже закрыт
func (s *Scheduler) waitDone() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// runSweepTask периодически обрабатывает истёкшие запросы, брони и слоты
func (s *Scheduler) runSweepTask(ctx context.Context) {
	defer close(s.done)

	// Первый запуск сразу при старте
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("Sweep task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Sweep task cancelled")
			return
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	report, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("Sweep failed", zap.Error(err))
		return
	}
	if report.Failed > 0 {
		s.logger.Warn("Sweep finished with failures", zap.Int("failed", report.Failed))
	}
}
