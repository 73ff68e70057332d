// Package payments - handlers.go: отправка инвойсов, ответ на pre_checkout_query,
// обработка successful_payment и команда /payments.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"shft.ru/secure-bot/internal/common"
	"shft.ru/secure-bot/internal/features/loyalty"
)

// Handler связывает сервис платежей с Telegram.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик платежей.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// SendStarsInvoice готовит инвойс и отправляет его пользователю в личку.
// Используется командой /buy.
func (h *Handler) SendStarsInvoice(ctx context.Context, userID int64, months int) (*Invoice, error) {
	inv, err := h.service.PrepareInvoice(ctx, userID, months, MethodStars)
	if err != nil {
		return nil, err
	}

	cfg := tgbotapi.NewInvoice(
		userID,
		inv.Title(),
		inv.Description(),
		inv.Payload.String(),
		"", // для Stars provider_token пустой
		"",
		CurrencyStars,
		[]tgbotapi.LabeledPrice{{Label: inv.Plan.Title, Amount: int(inv.Stars.DiscountedPrice)}},
	)
	if _, err := h.bot.Send(cfg); err != nil {
		return nil, fmt.Errorf("отправка инвойса: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"plan_id": inv.Plan.ID,
		"stars":   inv.Stars.DiscountedPrice,
		"tier":    inv.Tier.Name,
	}).Info("Инвойс отправлен")
	return inv, nil
}

// CreateStarsInvoiceLink готовит инвойс и возвращает ссылку для
// Telegram.WebApp.openInvoice. Вызывается из Mini App (POST /payment/create).
func (h *Handler) CreateStarsInvoiceLink(ctx context.Context, userID int64, months int) (*Invoice, string, error) {
	inv, err := h.service.PrepareInvoice(ctx, userID, months, MethodStars)
	if err != nil {
		return nil, "", err
	}

	params := tgbotapi.Params{}
	params.AddNonEmpty("title", inv.Title())
	params.AddNonEmpty("description", inv.Description())
	params.AddNonEmpty("payload", inv.Payload.String())
	params.AddNonEmpty("currency", CurrencyStars)
	prices := []tgbotapi.LabeledPrice{{Label: inv.Plan.Title, Amount: int(inv.Stars.DiscountedPrice)}}
	if err := params.AddInterface("prices", prices); err != nil {
		return nil, "", err
	}

	// Для createInvoiceLink в библиотеке нет конфига, вызываем метод напрямую
	resp, err := h.bot.MakeRequest("createInvoiceLink", params)
	if err != nil {
		return nil, "", fmt.Errorf("создание ссылки на инвойс: %w", err)
	}
	var link string
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return nil, "", fmt.Errorf("разбор ссылки на инвойс: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"plan_id": inv.Plan.ID,
		"stars":   inv.Stars.DiscountedPrice,
		"tier":    inv.Tier.Name,
	}).Info("Ссылка на инвойс создана")
	return inv, link, nil
}

// HandleBuy обрабатывает /buy <месяцев>: инвойс приходит прямо в чат.
func (h *Handler) HandleBuy(ctx context.Context, chatID, userID int64, args []string) {
	months := 0
	if len(args) > 0 {
		months, _ = strconv.Atoi(args[0])
	}
	if months <= 0 {
		h.sendMessage(chatID, "Использование: /buy <месяцев>, например /buy 3")
		return
	}

	if _, err := h.SendStarsInvoice(ctx, userID, months); err != nil {
		switch {
		case errors.Is(err, common.ErrPlanNotFound):
			h.sendMessage(chatID, "❌ Такого тарифа нет. Доступны 1, 3, 6 и 12 месяцев.")
		case errors.Is(err, common.ErrStarsDisabled):
			h.sendMessage(chatID, "⏸ "+common.ErrStarsDisabled.Error())
		default:
			log.WithError(err).WithField("user_id", userID).Error("Ошибка отправки инвойса")
			h.sendMessage(chatID, "❌ Не удалось выставить счёт, попробуйте позже")
		}
	}
}

// HandlePreCheckout подтверждает или отклоняет списание.
func (h *Handler) HandlePreCheckout(q *tgbotapi.PreCheckoutQuery) {
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: true}
	if err := h.service.ValidatePreCheckout(q.InvoicePayload, q.Currency, q.TotalAmount); err != nil {
		log.WithError(err).WithField("user_id", q.From.ID).Warn("Pre-checkout отклонён")
		answer.OK = false
		answer.ErrorMessage = "Цена изменилась, откройте оплату заново"
	}
	if _, err := h.bot.Request(answer); err != nil {
		log.WithError(err).WithField("query_id", q.ID).Error("Ошибка ответа на pre_checkout_query")
	}
}

// HandleSuccessfulPayment проводит оплату и поздравляет с новым уровнем.
func (h *Handler) HandleSuccessfulPayment(ctx context.Context, chatID, userID int64, sp *tgbotapi.SuccessfulPayment) {
	payment, change, err := h.service.CompleteStarsPayment(ctx, userID, SuccessfulPayment{
		Currency:    sp.Currency,
		TotalAmount: sp.TotalAmount,
		Payload:     sp.InvoicePayload,
		ChargeID:    sp.TelegramPaymentChargeID,
	})
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка проведения оплаты")
		h.sendMessage(chatID, "⚠️ Оплата получена, но не проведена. Напишите в поддержку, мы всё исправим.")
		return
	}
	if payment == nil {
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("✅ Оплата прошла: %s на %d %s.\nНачислено %s.",
		common.FormatStars(payment.Stars), payment.Months, common.PluralizeMonths(payment.Months),
		common.FormatPoints(payment.AmountRub)))
	if change != nil && change.Upgraded() {
		h.sendMessage(chatID, loyalty.FormatStatusChange(*change))
	}
}

// HandlePayments обрабатывает /payments - последние 10 платежей.
func (h *Handler) HandlePayments(ctx context.Context, chatID, userID int64) {
	list, err := h.service.History(ctx, userID, 10)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения платежей")
		h.sendMessage(chatID, "❌ Не удалось загрузить историю платежей")
		return
	}
	h.sendMessage(chatID, FormatHistory(list))
}

// FormatHistory собирает текст истории платежей.
func FormatHistory(list []Payment) string {
	if len(list) == 0 {
		return "📋 Платежей пока нет"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Последние платежи (%d):\n\n", len(list))
	for i, p := range list {
		fmt.Fprintf(&sb, "%d. %s | %d %s | %s (%s)\n",
			i+1, common.FormatDateTime(p.CreatedAt), p.Months, common.PluralizeMonths(p.Months),
			common.FormatStars(p.Stars), common.FormatRub(p.AmountRub))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (h *Handler) sendMessage(chatID int64, text string) {
	if _, err := h.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
