// Package loyalty реализует программу лояльности: таблицу уровней,
// определение уровня по баллам и расчёт цены тарифа со скидкой.
//
// tiers.go описывает неизменяемую таблицу уровней. Таблица проверяется
// один раз при сборке; после этого ею можно пользоваться из любых горутин.
package loyalty

import (
	"fmt"
	"iter"

	"shft.ru/secure-bot/internal/common"
)

// TierName - идентификатор уровня лояльности.
type TierName string

const (
	TierBronze   TierName = "bronze"
	TierSilver   TierName = "silver"
	TierGold     TierName = "gold"
	TierPlatinum TierName = "platinum"
)

// Tier - один уровень программы лояльности.
type Tier struct {
	Name            TierName `json:"name" yaml:"name"`
	Title           string   `json:"title" yaml:"title"`                      // Название для пользователя ("🥈 Серебро")
	MinPoints       int64    `json:"minPoints" yaml:"min_points"`             // Порог входа, включительно
	DiscountPercent int64    `json:"discountPercent" yaml:"discount_percent"` // Скидка, 0..100
	Color           string   `json:"color" yaml:"color"`                      // Цвет бейджа в Mini App
}

// DefaultTiers - каноничная таблица: 0/250/1000/2500 баллов → 0/5/10/15%.
// 1 балл = 1 рубль оплаты.
var DefaultTiers = []Tier{
	{Name: TierBronze, Title: "🥉 Бронза", MinPoints: 0, DiscountPercent: 0, Color: "#CD7F32"},
	{Name: TierSilver, Title: "🥈 Серебро", MinPoints: 250, DiscountPercent: 5, Color: "#C0C0C0"},
	{Name: TierGold, Title: "🥇 Золото", MinPoints: 1000, DiscountPercent: 10, Color: "#FFD700"},
	{Name: TierPlatinum, Title: "💎 Платина", MinPoints: 2500, DiscountPercent: 15, Color: "#E5E4E2"},
}

// Table - упорядоченная по MinPoints таблица уровней.
type Table struct {
	tiers []Tier
}

// NewTable проверяет и собирает таблицу уровней.
//
// Требования:
//   - таблица не пустая, первый уровень начинается с 0 баллов
//   - MinPoints строго возрастают
//   - DiscountPercent в [0, 100] и не убывают
//   - имена непустые и уникальные
//
// Любое нарушение - ошибка конфигурации (common.ErrInvalidTierTable),
// приложение с такой таблицей не должно стартовать.
func NewTable(tiers []Tier) (*Table, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: пустая таблица", common.ErrInvalidTierTable)
	}
	if tiers[0].MinPoints != 0 {
		return nil, fmt.Errorf("%w: первый уровень %q начинается с %d, нужно 0",
			common.ErrInvalidTierTable, tiers[0].Name, tiers[0].MinPoints)
	}

	seen := make(map[TierName]struct{}, len(tiers))
	for i, t := range tiers {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: уровень #%d без имени", common.ErrInvalidTierTable, i)
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("%w: уровень %q повторяется", common.ErrInvalidTierTable, t.Name)
		}
		seen[t.Name] = struct{}{}

		if t.DiscountPercent < 0 || t.DiscountPercent > 100 {
			return nil, fmt.Errorf("%w: скидка уровня %q = %d%%, нужно 0..100",
				common.ErrInvalidTierTable, t.Name, t.DiscountPercent)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if t.MinPoints <= prev.MinPoints {
			return nil, fmt.Errorf("%w: порог %q (%d) не больше порога %q (%d)",
				common.ErrInvalidTierTable, t.Name, t.MinPoints, prev.Name, prev.MinPoints)
		}
		if t.DiscountPercent < prev.DiscountPercent {
			return nil, fmt.Errorf("%w: скидка %q (%d%%) меньше скидки %q (%d%%)",
				common.ErrInvalidTierTable, t.Name, t.DiscountPercent, prev.Name, prev.DiscountPercent)
		}
	}

	// Копируем, чтобы вызывающий не мог изменить таблицу задним числом
	own := make([]Tier, len(tiers))
	copy(own, tiers)
	return &Table{tiers: own}, nil
}

// MustDefaultTable возвращает таблицу из DefaultTiers.
func MustDefaultTable() *Table {
	t, err := NewTable(DefaultTiers)
	if err != nil {
		panic(err)
	}
	return t
}

// Len возвращает количество уровней.
func (t *Table) Len() int {
	return len(t.tiers)
}

// All перебирает уровни по возрастанию порога. Последовательность можно
// обходить повторно.
func (t *Table) All() iter.Seq[Tier] {
	return func(yield func(Tier) bool) {
		for _, tier := range t.tiers {
			if !yield(tier) {
				return
			}
		}
	}
}

// Tiers возвращает копию всех уровней (для JSON-ответов).
func (t *Table) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// TierAt возвращает уровень по позиции или common.ErrOutOfRange.
func (t *Table) TierAt(index int) (Tier, error) {
	if index < 0 || index >= len(t.tiers) {
		return Tier{}, fmt.Errorf("%w: %d (уровней %d)", common.ErrOutOfRange, index, len(t.tiers))
	}
	return t.tiers[index], nil
}

// ByName ищет уровень по имени.
func (t *Table) ByName(name TierName) (Tier, bool) {
	for _, tier := range t.tiers {
		if tier.Name == name {
			return tier, true
		}
	}
	return Tier{}, false
}

// Top возвращает верхний уровень.
func (t *Table) Top() Tier {
	return t.tiers[len(t.tiers)-1]
}
