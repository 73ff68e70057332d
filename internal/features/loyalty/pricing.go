// Package loyalty - pricing.go применяет скидку уровня к базовой цене тарифа.
package loyalty

import (
	"fmt"

	"github.com/shopspring/decimal"

	"shft.ru/secure-bot/internal/common"
)

var hundred = decimal.NewFromInt(100)

// Quote - цена одного тарифа под конкретный уровень.
type Quote struct {
	BasePrice       int64 `json:"basePrice"`
	DiscountedPrice int64 `json:"discountedPrice"`
	Savings         int64 `json:"savings"`
}

// PlanQuote - цена тарифа в формате ответа API.
type PlanQuote struct {
	ID                  string   `json:"id"`
	BasePrice           int64    `json:"basePrice"`
	DiscountedPrice     int64    `json:"discountedPrice"`
	Savings             int64    `json:"savings"`
	TierName            TierName `json:"tierName"`
	TierDiscountPercent int64    `json:"tierDiscountPercent"`
}

// QuoteInput - запрос на расчёт: баллы пользователя и список базовых цен.
type QuoteInput struct {
	TotalPoints int64       `json:"totalPoints"`
	Plans       []PlanPrice `json:"plans"`
}

// QuotePrice считает цену со скидкой.
//
// discountedPrice = ceil(basePrice * (100 - discount) / 100)
//
// Округляем только вверх: клиент не получает скидку больше заявленной.
// 299₽ при 5% → 284.05 → 285₽. Считаем в decimal, без float.
func QuotePrice(basePrice int64, tier Tier) (Quote, error) {
	if basePrice < 0 {
		return Quote{}, fmt.Errorf("%w: цена %d < 0", common.ErrInvalidInput, basePrice)
	}
	if tier.DiscountPercent < 0 || tier.DiscountPercent > 100 {
		return Quote{}, fmt.Errorf("%w: скидка %d%%", common.ErrInvalidInput, tier.DiscountPercent)
	}

	discounted := decimal.NewFromInt(basePrice).
		Mul(decimal.NewFromInt(100 - tier.DiscountPercent)).
		Div(hundred).
		Ceil().
		IntPart()

	return Quote{
		BasePrice:       basePrice,
		DiscountedPrice: discounted,
		Savings:         basePrice - discounted,
	}, nil
}

// QuotePlans считает цены для списка тарифов. Ошибка по любому тарифу -
// ошибка всего вызова, частичных результатов нет.
func QuotePlans(plans []PlanPrice, tier Tier) ([]PlanQuote, error) {
	quotes := make([]PlanQuote, 0, len(plans))
	for _, p := range plans {
		q, err := QuotePrice(p.BasePrice, tier)
		if err != nil {
			return nil, fmt.Errorf("тариф %q: %w", p.ID, err)
		}
		quotes = append(quotes, PlanQuote{
			ID:                  p.ID,
			BasePrice:           q.BasePrice,
			DiscountedPrice:     q.DiscountedPrice,
			Savings:             q.Savings,
			TierName:            tier.Name,
			TierDiscountPercent: tier.DiscountPercent,
		})
	}
	return quotes, nil
}

// QuoteRequest - полный конвейер: баллы → уровень → цена по каждому тарифу.
func (t *Table) QuoteRequest(in QuoteInput) (Resolution, []PlanQuote, error) {
	res, err := t.Resolve(in.TotalPoints)
	if err != nil {
		return Resolution{}, nil, err
	}
	quotes, err := QuotePlans(in.Plans, res.Current)
	if err != nil {
		return Resolution{}, nil, err
	}
	return res, quotes, nil
}
