package model

import (
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	RequestStatusDraft     RequestStatus = "DRAFT"     // Черновик клиента
	RequestStatusPending   RequestStatus = "PENDING"   // Ждёт ответа выбранного провайдера
	RequestStatusPublic    RequestStatus = "PUBLIC"    // Открыт для предложений всех провайдеров
	RequestStatusAccepted  RequestStatus = "ACCEPTED"  // Принят, создан проект
	RequestStatusRejected  RequestStatus = "REJECTED"  // Отклонён провайдером
	RequestStatusCancelled RequestStatus = "CANCELLED" // Отменён клиентом
	RequestStatusExpired   RequestStatus = "EXPIRED"   // Истёк срок ответа
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusDraft:   {RequestStatusPending, RequestStatusPublic, RequestStatusCancelled, RequestStatusExpired},
	RequestStatusPending: {RequestStatusPublic, RequestStatusAccepted, RequestStatusRejected, RequestStatusCancelled, RequestStatusExpired},
	RequestStatusPublic:  {RequestStatusAccepted, RequestStatusCancelled},
}

// CanTransition проверяет допустимость перехода статуса запроса
func (s RequestStatus) CanTransition(to RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal проверяет что статус финальный
func (s RequestStatus) IsTerminal() bool {
	return len(requestTransitions[s]) == 0
}

// WorkRequest запрос клиента на работу (прямой или публичный)
type WorkRequest struct {
	ID               uuid.UUID     `json:"id"`
	ClientID         uuid.UUID     `json:"client_id"`
	TargetProviderID *uuid.UUID    `json:"target_provider_id"` // nil = публичный запрос
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	FromBudget       *Money        `json:"from_budget"`
	ToBudget         *Money        `json:"to_budget"`
	PaymentMethod    string        `json:"-"` // ссылка на способ оплаты у процессора
	Status           RequestStatus `json:"status"`
	ResponseDeadline *time.Time    `json:"response_deadline"`
	FallbackToPublic bool          `json:"fallback_to_public"` // после дедлайна -> PUBLIC вместо EXPIRED
	EngagementID     *uuid.UUID    `json:"engagement_id"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// IsDirect проверяет что запрос адресован конкретному провайдеру
func (r *WorkRequest) IsDirect() bool {
	return r.TargetProviderID != nil
}
