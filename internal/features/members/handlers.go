// Package members - handlers.go обрабатывает /start: регистрирует реферала
// и присылает кнопку открытия Mini App.
package members

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Handler обрабатывает события пользователей.
type Handler struct {
	service   *Service
	bot       *tgbotapi.BotAPI
	webAppURL string // Ссылка на Mini App (t.me/<bot>/app или https://...)
}

// NewHandler создаёт новый обработчик.
func NewHandler(service *Service, bot *tgbotapi.BotAPI, webAppURL string) *Handler {
	return &Handler{service: service, bot: bot, webAppURL: webAppURL}
}

// HandleStart обрабатывает /start [referrer_id].
// Параметр приходит из реферальной ссылки https://t.me/<bot>?start=<id>.
func (h *Handler) HandleStart(ctx context.Context, chatID, userID int64, firstName string, args []string) {
	if referrerID, ok := ParseReferrer(args); ok {
		if err := h.service.RegisterReferral(ctx, userID, referrerID); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("Не удалось записать реферала")
		}
	}

	text := fmt.Sprintf(
		"👋 Привет, %s!\n\n"+
			"Здесь можно оформить подписку SHFT Secure, следить за уровнем лояльности "+
			"и смотреть историю платежей.\n\n"+
			"Команды: /loyalty - уровень и скидка, /prices - цены, /payments - платежи",
		firstName,
	)
	msg := tgbotapi.NewMessage(chatID, text)
	if h.webAppURL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("🚀 Открыть приложение", h.webAppURL),
			),
		)
	}
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки приветствия")
	}
}

// ParseReferrer достаёт ID пригласившего из аргументов /start.
func ParseReferrer(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
