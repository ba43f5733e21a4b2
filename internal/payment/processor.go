package payment

import (
	"context"

	"github.com/Freeeeeet/skill_market/internal/model"
)

// HoldRequest параметры авторизации (удержания) средств
type HoldRequest struct {
	Amount         model.Money
	Currency       string
	PaymentMethod  string // токен карты, source или customer у процессора
	IdempotencyKey string
	Description    string
	Metadata       map[string]string
}

// HoldResult результат удержания
type HoldResult struct {
	HoldRef      string // идентификатор удержания у процессора
	ClientSecret string // что нужно клиенту для подтверждения (например authorize URI 3-D Secure)
}

// Processor внешний платёжный процессор с семантикой hold / capture / refund
type Processor interface {
	CreateHold(ctx context.Context, req HoldRequest) (*HoldResult, error)
	Capture(ctx context.Context, holdRef, idempotencyKey string) error
	Refund(ctx context.Context, holdRef, idempotencyKey string) error
}
