package model

import (
	"time"

	"github.com/google/uuid"
)

type OccupantStatus string

const (
	OccupantReserved  OccupantStatus = "RESERVED"  // Место занято
	OccupantCancelled OccupantStatus = "CANCELLED" // Отменено без удержания денег
	OccupantRefunded  OccupantStatus = "REFUNDED"  // Отменено, деньги возвращены
)

// Occupant участник занятия
type Occupant struct {
	ID           uuid.UUID      `json:"id"`
	EngagementID uuid.UUID      `json:"engagement_id"`
	UnitID       *uuid.UUID     `json:"unit_id"`
	UserID       uuid.UUID      `json:"user_id"`
	Status       OccupantStatus `json:"status"`
	OneToOne     bool           `json:"one_to_one"`
	Price        Money          `json:"price"`
	PaidAt       *time.Time     `json:"paid_at"` // оплата подтверждена клиентом
	JoinedAt     *time.Time     `json:"joined_at"`
	LeftAt       *time.Time     `json:"left_at"`
	CreatedAt    time.Time      `json:"created_at"`
}

// IsReserved проверяет что участник занимает место
func (o *Occupant) IsReserved() bool {
	return o.Status == OccupantReserved
}
