package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/Freeeeeet/skill_market/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
)

// UserLookup источник chat id пользователя
type UserLookup interface {
	User(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramSink отправляет уведомление в личные сообщения бота
type TelegramSink struct {
	bot   messageSender
	users UserLookup
}

func NewTelegramSink(b *bot.Bot, users UserLookup) *TelegramSink {
	return &TelegramSink{bot: b, users: users}
}

func (s *TelegramSink) Send(ctx context.Context, msg Message) error {
	user, err := s.users.User(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	// Пользователь не подключил Telegram
	if user == nil || user.TelegramChatID == nil {
		return nil
	}

	_, err = s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    *user.TelegramChatID,
		Text:      fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(msg.Title), html.EscapeString(msg.Body)),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
