package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/moodmate/internal/models"
	"go.uber.org/zap"
)

// messageSender is the part of *tgbotapi.BotAPI the sink needs.
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink pushes broadcasts to a fixed list of chats and direct
// notifications to the chat id given as recipient.
type TelegramSink struct {
	api     messageSender
	chatIDs []int64
	logger  *zap.Logger
}

func NewTelegramSink(token string, chatIDs []int64, logger *zap.Logger) (*TelegramSink, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Info("Telegram notifications enabled",
		zap.String("bot", api.Self.UserName),
		zap.Int("chats", len(chatIDs)))
	return newTelegramSink(api, chatIDs, logger), nil
}

func newTelegramSink(api messageSender, chatIDs []int64, logger *zap.Logger) *TelegramSink {
	return &TelegramSink{api: api, chatIDs: chatIDs, logger: logger}
}

func (s *TelegramSink) Name() string {
	return "telegram"
}

func (s *TelegramSink) Deliver(ctx context.Context, n *models.Notification) error {
	if n.IsDirect() {
		chatID, err := strconv.ParseInt(strings.TrimSpace(n.Recipient), 10, 64)
		if err != nil {
			// not a telegram recipient
			s.logger.Debug("Skipping direct notification for non-telegram recipient",
				zap.String("recipient", n.Recipient))
			return nil
		}
		return s.sendMessage(chatID, n.Message)
	}

	var errs []error
	for _, chatID := range s.chatIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.sendMessage(chatID, n.Message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *TelegramSink) sendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return nil
}
