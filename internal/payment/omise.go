package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OmiseProcessor удержание = charge без capture, выплата = capture, возврат = reverse или refund
type OmiseProcessor struct {
	client  *omise.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewOmiseClient создаёт клиента Omise
func NewOmiseClient(publicKey, secretKey string) (*omise.Client, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("create omise client: %w", err)
	}
	return c, nil
}

// NewOmiseProcessor создаёт процессор; rps ограничивает частоту вызовов API
func NewOmiseProcessor(client *omise.Client, rps float64, logger *zap.Logger) *OmiseProcessor {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps) + 1
	}
	return &OmiseProcessor{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// chargeOperation строит запрос на авторизацию без списания
func chargeOperation(req HoldRequest) *operations.CreateCharge {
	metadata := map[string]interface{}{"idempotency_key": req.IdempotencyKey}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	op := &operations.CreateCharge{
		Amount:      int64(req.Amount),
		Currency:    strings.ToLower(req.Currency),
		Description: req.Description,
		DontCapture: true,
		Metadata:    metadata,
	}

	switch {
	case strings.HasPrefix(req.PaymentMethod, "cust_"):
		op.Customer = req.PaymentMethod
	case strings.HasPrefix(req.PaymentMethod, "src_"):
		op.Source = req.PaymentMethod
	default:
		op.Card = req.PaymentMethod
	}

	return op
}

func (p *OmiseProcessor) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("processor rate limit: %w", err)
	}
	return nil
}

// do выполняет запрос с контекстом вызова. Контекст клиента общий,
// поэтому каждый запрос идёт через собственную копию клиента.
func (p *OmiseProcessor) do(ctx context.Context, call func(c *omise.Client) error) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	c := *p.client
	c.WithContext(ctx)
	return call(&c)
}

// CreateHold авторизует сумму на карте клиента
func (p *OmiseProcessor) CreateHold(ctx context.Context, req HoldRequest) (*HoldResult, error) {
	ch := &omise.Charge{}
	op := chargeOperation(req)
	if err := p.do(ctx, func(c *omise.Client) error { return c.Do(ch, op) }); err != nil {
		return nil, fmt.Errorf("create charge: %w", err)
	}

	if string(ch.Status) == "failed" {
		var code, msg string
		if ch.FailureCode != nil {
			code = *ch.FailureCode
		}
		if ch.FailureMessage != nil {
			msg = *ch.FailureMessage
		}
		return nil, fmt.Errorf("charge %s failed: %s %s", ch.ID, code, msg)
	}

	p.logger.Info("Hold created",
		zap.String("charge_id", ch.ID),
		zap.String("status", string(ch.Status)),
		zap.String("idempotency_key", req.IdempotencyKey))

	return &HoldResult{HoldRef: ch.ID, ClientSecret: ch.AuthorizeURI}, nil
}

func (p *OmiseProcessor) retrieve(ctx context.Context, holdRef string) (*omise.Charge, error) {
	ch := &omise.Charge{}
	op := &operations.RetrieveCharge{ChargeID: holdRef}
	if err := p.do(ctx, func(c *omise.Client) error { return c.Do(ch, op) }); err != nil {
		return nil, fmt.Errorf("retrieve charge: %w", err)
	}
	return ch, nil
}

// Capture списывает удержанную сумму. Уже списанный charge считается успехом.
func (p *OmiseProcessor) Capture(ctx context.Context, holdRef, idempotencyKey string) error {
	ch, err := p.retrieve(ctx, holdRef)
	if err != nil {
		return err
	}
	if string(ch.Status) == "successful" {
		return nil
	}

	op := &operations.CaptureCharge{ChargeID: holdRef}
	if err := p.do(ctx, func(c *omise.Client) error { return c.Do(ch, op) }); err != nil {
		return fmt.Errorf("capture charge: %w", err)
	}

	p.logger.Info("Hold captured", zap.String("charge_id", holdRef), zap.String("idempotency_key", idempotencyKey))
	return nil
}

// Refund снимает удержание (reverse) или возвращает уже списанные деньги (refund)
func (p *OmiseProcessor) Refund(ctx context.Context, holdRef, idempotencyKey string) error {
	ch, err := p.retrieve(ctx, holdRef)
	if err != nil {
		return err
	}

	switch string(ch.Status) {
	case "reversed", "expired", "failed":
		return nil
	case "successful":
		refund := &omise.Refund{}
		op := &operations.CreateRefund{
			ChargeID: holdRef,
			Amount:   ch.Amount,
			Metadata: map[string]interface{}{"idempotency_key": idempotencyKey},
		}
		if err := p.do(ctx, func(c *omise.Client) error { return c.Do(refund, op) }); err != nil {
			return fmt.Errorf("create refund: %w", err)
		}
	default:
		op := &operations.ReverseCharge{ChargeID: holdRef}
		if err := p.do(ctx, func(c *omise.Client) error { return c.Do(ch, op) }); err != nil {
			return fmt.Errorf("reverse charge: %w", err)
		}
	}

	p.logger.Info("Hold refunded", zap.String("charge_id", holdRef), zap.String("idempotency_key", idempotencyKey))
	return nil
}
