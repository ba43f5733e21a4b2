// Package paymenttest процессор в памяти для тестов
package paymenttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Freeeeeet/skill_market/internal/payment"
)

// ErrDeclined ошибка, которую возвращает процессор при включённом сбое
var ErrDeclined = errors.New("processor unavailable")

// Processor фиксирует вызовы и позволяет имитировать сбои
type Processor struct {
	mu sync.Mutex

	FailHold    bool
	FailCapture bool
	FailRefund  bool

	// Вызываются до выполнения операции, вне мьютекса процессора
	OnCapture func(holdRef string)
	OnRefund  func(holdRef string)

	seq      int
	holds    map[string]string // idempotency key -> hold ref
	Captured map[string]int    // hold ref -> число успешных capture
	Refunded map[string]int    // hold ref -> число успешных refund
	Calls    []string
}

func New() *Processor {
	return &Processor{
		holds:    make(map[string]string),
		Captured: make(map[string]int),
		Refunded: make(map[string]int),
	}
}

// SetFailures включает или выключает сбои процессора
func (p *Processor) SetFailures(hold, capture, refund bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FailHold, p.FailCapture, p.FailRefund = hold, capture, refund
}

func (p *Processor) CreateHold(_ context.Context, req payment.HoldRequest) (*payment.HoldResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req.IdempotencyKey)

	if p.FailHold {
		return nil, ErrDeclined
	}
	if ref, ok := p.holds[req.IdempotencyKey]; ok {
		return &payment.HoldResult{HoldRef: ref, ClientSecret: "secret_" + ref}, nil
	}
	p.seq++
	ref := fmt.Sprintf("chrg_test_%d", p.seq)
	p.holds[req.IdempotencyKey] = ref
	return &payment.HoldResult{HoldRef: ref, ClientSecret: "secret_" + ref}, nil
}

func (p *Processor) Capture(_ context.Context, holdRef, key string) error {
	p.mu.Lock()
	p.Calls = append(p.Calls, key)
	hook := p.OnCapture
	p.mu.Unlock()

	if hook != nil {
		hook(holdRef)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailCapture {
		return ErrDeclined
	}
	p.Captured[holdRef]++
	return nil
}

func (p *Processor) Refund(_ context.Context, holdRef, key string) error {
	p.mu.Lock()
	p.Calls = append(p.Calls, key)
	hook := p.OnRefund
	p.mu.Unlock()

	if hook != nil {
		hook(holdRef)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailRefund {
		return ErrDeclined
	}
	p.Refunded[holdRef]++
	return nil
}

// CallCount число вызовов процессора
func (p *Processor) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Captures число capture для удержания
func (p *Processor) Captures(holdRef string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Captured[holdRef]
}

// Refunds число refund для удержания
func (p *Processor) Refunds(holdRef string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Refunded[holdRef]
}
