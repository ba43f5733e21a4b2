package model

import "github.com/google/uuid"

// TimeWindow временное окно в локальном времени владельца.
// Дата и время хранятся строками ("2006-01-02", "15:04"), а не моментами времени:
// окна через полночь не поддерживаются.
type TimeWindow struct {
	OwnerID   uuid.UUID `json:"owner_id"`   // provider profile id
	Date      string    `json:"date"`       // YYYY-MM-DD
	StartTime string    `json:"start_time"` // HH:MM
	EndTime   string    `json:"end_time"`   // HH:MM
	Timezone  string    `json:"timezone"`   // IANA, пусто = UTC
}
