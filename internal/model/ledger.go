package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type LedgerStatus string

const (
	LedgerHolding  LedgerStatus = "HOLDING"  // Деньги удержаны у процессора
	LedgerReleased LedgerStatus = "RELEASED" // Выплачено исполнителю
	LedgerRefunded LedgerStatus = "REFUNDED" // Возвращено клиенту
	LedgerFailed   LedgerStatus = "FAILED"   // Удержание не удалось создать
)

// LedgerSubject то, за что удерживаются деньги: проект целиком или место участника
type LedgerSubject struct {
	EngagementID *uuid.UUID
	OccupantID   *uuid.UUID
}

// Key возвращает стабильный ключ субъекта для идемпотентности
func (s LedgerSubject) Key() string {
	switch {
	case s.EngagementID != nil:
		return fmt.Sprintf("engagement:%s", s.EngagementID)
	case s.OccupantID != nil:
		return fmt.Sprintf("occupant:%s", s.OccupantID)
	default:
		return "unknown"
	}
}

// LedgerEntry запись эскроу: удержание и его судьба
type LedgerEntry struct {
	ID           uuid.UUID    `json:"id"`
	EngagementID *uuid.UUID   `json:"engagement_id"`
	OccupantID   *uuid.UUID   `json:"occupant_id"`
	PayerID      uuid.UUID    `json:"payer_id"`
	PayeeID      *uuid.UUID   `json:"payee_id"`
	HoldAmount   Money        `json:"hold_amount"`
	Currency     string       `json:"currency"`
	Status       LedgerStatus `json:"status"`
	ProcessorRef string       `json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
	SettledAt    *time.Time   `json:"settled_at"`
}

// Subject возвращает субъект записи
func (e *LedgerEntry) Subject() LedgerSubject {
	return LedgerSubject{EngagementID: e.EngagementID, OccupantID: e.OccupantID}
}
