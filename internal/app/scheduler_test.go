package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Freeeeeet/skill_market/internal/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) Sweep(context.Context) (service.SweepReport, error) {
	c.calls.Add(1)
	return service.SweepReport{}, c.err
}

func TestSchedulerSweepsUntilStopped(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewScheduler(sweeper, 10*time.Millisecond, zap.NewNop())

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	stopped := sweeper.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, sweeper.calls.Load())
}

func TestSchedulerSurvivesSweepErrors(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("db down")}
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(sweeper, 10*time.Millisecond, zap.NewNop())

	s.Start(ctx)
	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-s.done
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewScheduler(sweeper, 10*time.Millisecond, zap.NewNop())

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a scheduler that was never started")
	}

	// после Stop запуск игнорируется
	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, sweeper.calls.Load())
}

func TestSchedulerDoubleStartAndStop(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewScheduler(sweeper, 10*time.Millisecond, zap.NewNop())

	s.Start(context.Background())
	s.Start(context.Background())
	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)

	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "", "skill_market")
	assert.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
