package model

import (
	"time"

	"github.com/google/uuid"
)

type EngagementKind string

const (
	EngagementProject EngagementKind = "PROJECT" // Проект по принятому запросу
	EngagementSession EngagementKind = "SESSION" // Занятие по слоту
)

type EngagementStatus string

const (
	EngagementCreated    EngagementStatus = "CREATED"     // Проект создан, деньги на удержании
	EngagementScheduled  EngagementStatus = "SCHEDULED"   // Занятие запланировано
	EngagementInProgress EngagementStatus = "IN_PROGRESS" // В работе / занятие идёт
	EngagementCompleted  EngagementStatus = "COMPLETED"   // Завершено
	EngagementCancelled  EngagementStatus = "CANCELLED"   // Отменено
)

var engagementTransitions = map[EngagementKind]map[EngagementStatus][]EngagementStatus{
	EngagementProject: {
		EngagementCreated:    {EngagementInProgress, EngagementCancelled},
		EngagementInProgress: {EngagementCompleted, EngagementCancelled},
	},
	EngagementSession: {
		EngagementScheduled:  {EngagementInProgress, EngagementCancelled},
		EngagementInProgress: {EngagementCompleted, EngagementCancelled},
	},
}

// Engagement оплачиваемая работа: проект или занятие
type Engagement struct {
	ID                  uuid.UUID        `json:"id"`
	Kind                EngagementKind   `json:"kind"`
	UnitID              *uuid.UUID       `json:"unit_id"`      // только для занятий
	RequestID           *uuid.UUID       `json:"request_id"`   // только для проектов
	InitiatorID         uuid.UUID        `json:"initiator_id"` // клиент проекта / преподаватель занятия (user id)
	ResponderID         *uuid.UUID       `json:"responder_id"` // исполнитель проекта (user id), nil для занятий
	ProviderID          uuid.UUID        `json:"provider_id"`  // provider profile id получателя выплаты
	Status              EngagementStatus `json:"status"`
	Amount              Money            `json:"amount"` // сумма проекта / цена места на занятии
	ProviderCompletedAt *time.Time       `json:"provider_completed_at"`
	CreatedAt           time.Time        `json:"created_at"`
	StartedAt           *time.Time       `json:"started_at"`
	CompletedAt         *time.Time       `json:"completed_at"`
	CancelledAt         *time.Time       `json:"cancelled_at"`
}

// CanTransition проверяет допустимость перехода для данного вида работы
func (e *Engagement) CanTransition(to EngagementStatus) bool {
	for _, allowed := range engagementTransitions[e.Kind][e.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal проверяет что работа завершена или отменена
func (e *Engagement) IsTerminal() bool {
	return e.Status == EngagementCompleted || e.Status == EngagementCancelled
}

// Apply переводит работу в новый статус и проставляет временную метку
func (e *Engagement) Apply(to EngagementStatus, at time.Time) {
	e.Status = to
	switch to {
	case EngagementInProgress:
		e.StartedAt = &at
	case EngagementCompleted:
		e.CompletedAt = &at
	case EngagementCancelled:
		e.CancelledAt = &at
	}
}
