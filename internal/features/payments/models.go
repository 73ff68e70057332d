// Package payments принимает оплату подписки звёздами Telegram и ведёт
// историю платежей. models.go описывает платежи и payload инвойса.
package payments

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"shft.ru/secure-bot/internal/common"
	"shft.ru/secure-bot/internal/features/loyalty"
)

// Способы оплаты
const (
	MethodStars = "stars" // Telegram Stars (валюта XTR)
)

// StatusCompleted - платёж проведён.
const StatusCompleted = "completed"

// CurrencyStars - код валюты Telegram Stars.
const CurrencyStars = "XTR"

// Payment - строка таблицы payments.
type Payment struct {
	ID        int64            `db:"id"`
	UserID    int64            `db:"user_id"`    // Telegram user ID плательщика
	PlanID    string           `db:"plan_id"`    // ID тарифа из каталога
	Months    int              `db:"months"`     // Срок подписки
	AmountRub int64            `db:"amount_rub"` // Цена в рублях со скидкой (идёт в баллы)
	Stars     int64            `db:"stars"`      // Сколько звёзд списано
	Method    string           `db:"method"`     // stars
	Status    string           `db:"status"`     // completed / refunded
	Tier      loyalty.TierName `db:"tier"`       // Уровень, по которому считалась скидка
	Payload   string           `db:"invoice_payload"`
	ChargeID  string           `db:"charge_id"` // telegram_payment_charge_id, уникальный
	CreatedAt time.Time        `db:"created_at"`
}

// InvoicePayload - данные, зашитые в payload инвойса: "sub:<months>:<rub>:<stars>".
type InvoicePayload struct {
	Months    int
	AmountRub int64
	Stars     int64
}

// String кодирует payload. Telegram ограничивает его 128 байтами.
func (p InvoicePayload) String() string {
	return fmt.Sprintf("sub:%d:%d:%d", p.Months, p.AmountRub, p.Stars)
}

// ParsePayload разбирает payload инвойса.
func ParsePayload(s string) (InvoicePayload, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 || parts[0] != "sub" {
		return InvoicePayload{}, fmt.Errorf("%w: %q", common.ErrInvalidPayload, s)
	}
	months, err := strconv.Atoi(parts[1])
	if err != nil || months <= 0 {
		return InvoicePayload{}, fmt.Errorf("%w: срок %q", common.ErrInvalidPayload, parts[1])
	}
	rub, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || rub < 0 {
		return InvoicePayload{}, fmt.Errorf("%w: сумма %q", common.ErrInvalidPayload, parts[2])
	}
	stars, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil || stars <= 0 {
		return InvoicePayload{}, fmt.Errorf("%w: звёзды %q", common.ErrInvalidPayload, parts[3])
	}
	return InvoicePayload{Months: months, AmountRub: rub, Stars: stars}, nil
}

// Invoice - подготовленный к отправке инвойс.
type Invoice struct {
	Plan    loyalty.Plan
	Tier    loyalty.Tier
	Rub     loyalty.Quote
	Stars   loyalty.Quote
	Payload InvoicePayload
}

// Title - заголовок инвойса в Telegram.
func (i Invoice) Title() string {
	return fmt.Sprintf("SHFT Secure: %d %s", i.Plan.Months, common.PluralizeMonths(i.Plan.Months))
}

// Description - описание инвойса, со скидкой, если она есть.
func (i Invoice) Description() string {
	if i.Stars.Savings > 0 {
		return fmt.Sprintf("Подписка на %s. Скидка уровня %s: −%d%% (%s вместо %s)",
			i.Plan.Title, i.Tier.Title, i.Tier.DiscountPercent,
			common.FormatStars(i.Stars.DiscountedPrice), common.FormatStars(i.Stars.BasePrice))
	}
	return fmt.Sprintf("Подписка на %s", i.Plan.Title)
}
