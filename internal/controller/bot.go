package controller

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatLinker привязка чата Telegram к пользователю маркетплейса
type ChatLinker interface {
	LinkTelegramChat(ctx context.Context, userID uuid.UUID, chatID int64) (bool, error)
}

const (
	textLinked   = "✅ Уведомления подключены. Сюда будут приходить новости о заявках, проектах и занятиях."
	textNoToken  = "👋 Чтобы получать уведомления, откройте бота по ссылке из личного кабинета."
	textBadToken = "❌ Ссылка недействительна. Скопируйте её заново из личного кабинета."
	textFailed   = "❌ Произошла ошибка. Попробуйте позже."
	textHelp     = "📚 Справка:\n\n" +
		"/start - Подключить уведомления\n" +
		"/help - Показать эту справку\n\n" +
		"Бот только присылает уведомления. Заявки, проекты и записи управляются в приложении."
)

// BotController обработчики команд бота уведомлений
type BotController struct {
	bot    *bot.Bot
	users  ChatLinker
	logger *zap.Logger
}

func NewBotController(botInstance *bot.Bot, users ChatLinker, logger *zap.Logger) *BotController {
	return &BotController{
		bot:    botInstance,
		users:  users,
		logger: logger,
	}
}

// RegisterHandlers регистрирует все обработчики команд
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, c.HandleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, c.HandleHelp)

	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🔔 Подключить уведомления"},
		{Command: "help", Description: "❓ Справка"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})

	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("✅ Bot commands menu set")
	return nil
}

// Start запускает бота, блокируется до отмены ctx
func (c *BotController) Start(ctx context.Context) {
	c.logger.Info("Starting notification bot...")
	c.bot.Start(ctx)
}

// HandleStart обрабатывает /start <user_id> из deep link личного кабинета
func (c *BotController) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	reply := c.link(ctx, update.Message.Text, update.Message.Chat.ID)
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   reply,
	}); err != nil {
		c.logger.Warn("Failed to send reply", zap.Error(err))
	}
}

// HandleHelp обрабатывает команду /help
func (c *BotController) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   textHelp,
	}); err != nil {
		c.logger.Warn("Failed to send reply", zap.Error(err))
	}
}

// link разбирает payload команды и возвращает текст ответа
func (c *BotController) link(ctx context.Context, text string, chatID int64) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return textNoToken
	}

	userID, err := uuid.Parse(fields[1])
	if err != nil {
		return textBadToken
	}

	linked, err := c.users.LinkTelegramChat(ctx, userID, chatID)
	if err != nil {
		c.logger.Error("Failed to link telegram chat",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return textFailed
	}
	if !linked {
		return textBadToken
	}

	c.logger.Info("Telegram chat linked",
		zap.String("user_id", userID.String()),
		zap.Int64("chat_id", chatID))
	return textLinked
}
