package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID `json:"id"`
	DisplayName    string    `json:"display_name"`
	TelegramChatID *int64    `json:"telegram_chat_id"` // для уведомлений в Telegram
	CreatedAt      time.Time `json:"created_at"`
}

// ProviderProfile профиль провайдера (преподавателя/исполнителя)
type ProviderProfile struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	HourlyRate  Money     `json:"hourly_rate"`
	CreatedAt   time.Time `json:"created_at"`
}
