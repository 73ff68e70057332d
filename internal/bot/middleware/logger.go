// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting. Используется и ботом, и Mini App API.
package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// LogUpdate логирует входящий апдейт.
// Для сообщений пишет user_id, chat_id, username и текст (первые 50 символов).
func LogUpdate(update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		logMessage(update.Message)
	case update.PreCheckoutQuery != nil:
		q := update.PreCheckoutQuery
		log.WithFields(log.Fields{
			"user_id": q.From.ID,
			"payload": q.InvoicePayload,
			"amount":  q.TotalAmount,
		}).Info("Входящий pre_checkout_query")
	case update.CallbackQuery != nil:
		log.WithFields(log.Fields{
			"user_id": update.CallbackQuery.From.ID,
			"data":    update.CallbackQuery.Data,
		}).Debug("Входящий callback")
	}
}

func logMessage(message *tgbotapi.Message) {
	if message.From == nil {
		return
	}

	text := []rune(message.Text)
	if len(text) > 50 {
		text = append(text[:50], []rune("...")...)
	}

	log.WithFields(log.Fields{
		"user_id":  message.From.ID,
		"chat_id":  message.Chat.ID,
		"username": message.From.UserName,
		"text":     string(text),
		"payment":  message.SuccessfulPayment != nil,
	}).Debug("Входящее сообщение")
}

// AccessLog пишет строку лога на каждый HTTP-запрос Mini App API.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		entry := log.WithFields(log.Fields{
			"component":  "webapp",
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
		})
		switch {
		case ww.Status() >= http.StatusInternalServerError:
			entry.Error("HTTP запрос")
		case ww.Status() >= http.StatusBadRequest:
			entry.Warn("HTTP запрос")
		default:
			entry.Debug("HTTP запрос")
		}
	})
}
