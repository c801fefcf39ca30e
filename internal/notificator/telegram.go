package notificator

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/core-coin/handlemint/pkg/logger"
)

// ChatRegistry stores the telegram chat of an operator who started the bot.
type ChatRegistry interface {
	SetAlertRecipientChatID(ctx context.Context, username, chatID string) (bool, error)
}

type TelegramNotificator struct {
	logger *logger.Logger
	bot    *bot.Bot

	db ChatRegistry
}

func NewTelegramNotificator(logger *logger.Logger, token string, db ChatRegistry) (*TelegramNotificator, error) {
	provider := &TelegramNotificator{
		logger: logger,
		db:     db,
	}
	opts := []bot.Option{
		bot.WithDefaultHandler(provider.handler),
	}

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	provider.bot = b

	return provider, nil
}

// Start polls telegram for updates until ctx is done.
func (t *TelegramNotificator) Start(ctx context.Context) {
	t.bot.Start(ctx)
}

func (t *TelegramNotificator) SendNotification(ctx context.Context, chatID, message string) error {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   message,
	}
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func (t *TelegramNotificator) handler(ctx context.Context, b *bot.Bot, update *tgModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	user := update.Message.From
	t.logger.Debugw("Telegram update", "username", user.Username, "text", update.Message.Text)
	if update.Message.Text != "/start" {
		return
	}

	chatID := fmt.Sprint(update.Message.Chat.ID)
	registered, err := t.db.SetAlertRecipientChatID(ctx, user.Username, chatID)
	if err != nil {
		t.logger.Errorw("Failed to add telegram chat ID", "username", user.Username, "error", err)
		return
	}
	if !registered {
		t.logger.Warnw("Telegram user is not an alert recipient", "username", user.Username)
		return
	}
	t.logger.Infow("Telegram alert recipient registered", "username", user.Username)
	if err := t.SendNotification(ctx, chatID, "You will now receive handlemint operator alerts."); err != nil {
		t.logger.Errorw("Failed to confirm telegram registration", "error", err)
	}
}
