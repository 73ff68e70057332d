// Package loyalty - handlers.go обрабатывает команды бота:
// /loyalty (профиль лояльности) и /prices (цены с личной скидкой).
package loyalty

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"shft.ru/secure-bot/internal/common"
)

// Handler обрабатывает команды лояльности.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик команд лояльности.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleLoyalty показывает профиль лояльности.
//
// Формат ответа:
//
//	🥈 Серебро · скидка 5%
//	Баллы: 850
//	Оплачено всего: 850₽
//
//	До 🥇 Золото: 150 баллов
//	▓▓▓▓▓▓▓▓░░ 80%
func (h *Handler) HandleLoyalty(ctx context.Context, chatID, userID int64) {
	profile, err := h.service.GetProfile(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка получения профиля лояльности")
		h.sendMessage(chatID, "❌ Не удалось загрузить профиль лояльности")
		return
	}
	h.sendMessage(chatID, FormatProfile(profile))
}

// HandlePrices показывает тарифы с личной скидкой.
func (h *Handler) HandlePrices(ctx context.Context, chatID, userID int64) {
	profile, quotes, err := h.service.QuotesForUser(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Ошибка расчёта цен")
		h.sendMessage(chatID, "❌ Не удалось рассчитать цены")
		return
	}
	h.sendMessage(chatID, FormatPrices(profile.Resolution.Current, h.service.Plans(), quotes))
}

// FormatProfile собирает текст профиля лояльности.
func FormatProfile(p *Profile) string {
	res := p.Resolution
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s · скидка %d%%\n", res.Current.Title, res.Current.DiscountPercent)
	fmt.Fprintf(&sb, "Баллы: %s\n", common.FormatNumber(res.Points))
	fmt.Fprintf(&sb, "Оплачено всего: %s\n\n", common.FormatRub(p.Account.TotalSpent))

	if res.IsTop() {
		sb.WriteString("🏆 У вас максимальный уровень")
		return sb.String()
	}
	fmt.Fprintf(&sb, "До %s: %s\n", res.Next.Title, common.FormatPoints(*res.PointsToNext))
	fmt.Fprintf(&sb, "%s %.0f%%", common.ProgressBar(*res.ProgressPercent, 10), *res.ProgressPercent)
	return sb.String()
}

// FormatPrices собирает текст с ценами. quotes идут в порядке plans.
func FormatPrices(tier Tier, plans []Plan, quotes []PlanQuote) string {
	var sb strings.Builder
	if tier.DiscountPercent > 0 {
		fmt.Fprintf(&sb, "💳 Цены для уровня %s (−%d%%):\n\n", tier.Title, tier.DiscountPercent)
	} else {
		sb.WriteString("💳 Тарифы:\n\n")
	}
	for i, q := range quotes {
		title := q.ID
		if i < len(plans) {
			title = plans[i].Title
		}
		if q.Savings > 0 {
			fmt.Fprintf(&sb, "• %s: %s → %s (выгода %s)\n",
				title, common.FormatRub(q.BasePrice), common.FormatRub(q.DiscountedPrice), common.FormatRub(q.Savings))
		} else {
			fmt.Fprintf(&sb, "• %s: %s\n", title, common.FormatRub(q.BasePrice))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatStatusChange - уведомление о повышении уровня.
func FormatStatusChange(c StatusChange) string {
	return fmt.Sprintf("🎉 Новый уровень лояльности: %s!\nТеперь ваша скидка - %d%%.\nБаллов на счёте: %s",
		c.Current.Title, c.Current.DiscountPercent, common.FormatNumber(c.Points))
}

// NotifyStatusChanges присылает пользователям поздравления с повышением.
// Понижения молча применяются без сообщения.
func (h *Handler) NotifyStatusChanges(changes []StatusChange) {
	for _, c := range changes {
		if c.Upgraded() {
			h.sendMessage(c.UserID, FormatStatusChange(c))
		}
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
