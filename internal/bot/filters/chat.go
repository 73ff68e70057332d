// Package filters решает, обрабатывать ли сообщение: бот работает только
// в личных сообщениях и не отвечает заблокированным пользователям.
package filters

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// BanChecker - проверка блокировки. Реализуется *members.Service.
type BanChecker interface {
	IsBanned(ctx context.Context, userID int64) (bool, error)
}

// ChatFilter пропускает только личные сообщения незаблокированных пользователей.
type ChatFilter struct {
	bans BanChecker
	bot  *tgbotapi.BotAPI
}

// NewChatFilter создаёт фильтр. bot нужен для ответа заблокированным и может быть nil.
func NewChatFilter(bans BanChecker, bot *tgbotapi.BotAPI) *ChatFilter {
	return &ChatFilter{bans: bans, bot: bot}
}

// CheckAccess возвращает true, если сообщение нужно обработать.
func (f *ChatFilter) CheckAccess(ctx context.Context, message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "ChatFilter").Warn("nil message/chat")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("Сообщение без отправителя (канал или сервисное)")
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "ChatFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	// 1) Группы и каналы игнорируем: подписка и оплата только в личке
	if !message.Chat.IsPrivate() {
		logger.Debug("deny: not private")
		return false
	}

	// 2) Бан
	banned, err := f.bans.IsBanned(ctx, message.From.ID)
	if err != nil {
		logger.WithError(err).Error("ban check failed (db)")
		return false
	}
	if banned {
		logger.Info("deny: banned")
		if f.bot != nil {
			msg := tgbotapi.NewMessage(message.Chat.ID, "⛔ Доступ к боту ограничен. Напишите в поддержку.")
			if _, sendErr := f.bot.Send(msg); sendErr != nil {
				logger.WithError(sendErr).Warn("failed to send deny message")
			}
		}
		return false
	}
	return true
}
