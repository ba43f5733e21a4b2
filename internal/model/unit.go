package model

import (
	"time"

	"github.com/google/uuid"
)

type CapacityMode string

const (
	CapacityOneToOne CapacityMode = "ONE_TO_ONE" // Индивидуальное занятие
	CapacityGroup    CapacityMode = "GROUP"      // Групповое занятие
)

// ReservableUnit слот провайдера, который можно забронировать
type ReservableUnit struct {
	ID           uuid.UUID    `json:"id"`
	Title        string       `json:"title"`
	Window       TimeWindow   `json:"window"`
	CapacityMode CapacityMode `json:"capacity_mode"`
	MaxOccupants int          `json:"max_occupants"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`

	// Вычисляется запросом (не колонка)
	ReservedCount int `json:"reserved_count"`
}

// OwnerID возвращает провайдера-владельца слота
func (u *ReservableUnit) OwnerID() uuid.UUID {
	return u.Window.OwnerID
}

// DurationMinutes возвращает длительность окна в минутах (0 для некорректного окна)
func (u *ReservableUnit) DurationMinutes() int {
	start, err1 := time.Parse("15:04", u.Window.StartTime)
	end, err2 := time.Parse("15:04", u.Window.EndTime)
	if err1 != nil || err2 != nil || !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}
