// Package loyalty - models.go описывает тарифы и записи лояльности в БД.
package loyalty

import "time"

// Plan - тариф подписки из каталога. Months, Stars и трафик - только для
// отображения и инвойсов, на расчёт скидки не влияют.
type Plan struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Months    int    `json:"months" yaml:"months"`
	BasePrice int64  `json:"basePrice" yaml:"base_price"` // Рубли, целые
	Stars     int64  `json:"stars" yaml:"stars"`          // Цена в Telegram Stars
	TrafficGB int    `json:"trafficGb" yaml:"traffic_gb"`
	Badge     string `json:"badge,omitempty" yaml:"badge"`
}

// PlanPrice - минимальные данные тарифа, нужные калькулятору.
type PlanPrice struct {
	ID        string `json:"id"`
	BasePrice int64  `json:"basePrice"`
}

// Price возвращает пару (id, цена) для калькулятора.
func (p Plan) Price() PlanPrice {
	return PlanPrice{ID: p.ID, BasePrice: p.BasePrice}
}

// Account - строка таблицы loyalty_accounts.
type Account struct {
	UserID     int64     `db:"user_id"`     // Telegram user ID
	Points     int64     `db:"points"`      // Накопленные баллы (1₽ = 1 балл)
	Status     TierName  `db:"status"`      // Сохранённый уровень
	TotalSpent int64     `db:"total_spent"` // Сколько всего оплачено, ₽
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Profile - профиль лояльности для бота и Mini App.
type Profile struct {
	Account    Account
	Resolution Resolution
}

// StatusChange - смена уровня после начисления или пересчёта.
type StatusChange struct {
	UserID   int64
	Previous Tier
	Current  Tier
	Points   int64
}

// Upgraded сообщает, что уровень вырос (а не упал после смены порогов).
func (c StatusChange) Upgraded() bool {
	return c.Current.MinPoints > c.Previous.MinPoints
}
