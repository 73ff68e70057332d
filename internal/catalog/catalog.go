// Package catalog загружает статическую конфигурацию магазина:
// таблицу уровней лояльности и список тарифов.
//
// Каталог читается один раз при старте. По умолчанию используется встроенный
// default.yaml, путь к своему файлу задаётся через CATALOG_PATH.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"shft.ru/secure-bot/internal/common"
	"shft.ru/secure-bot/internal/features/loyalty"
)

//go:embed default.yaml
var defaultYAML []byte

// rawCatalog - структура YAML-файла как есть.
type rawCatalog struct {
	Currency string         `yaml:"currency"`
	Tiers    []loyalty.Tier `yaml:"tiers"`
	Plans    []loyalty.Plan `yaml:"plans"`
}

// Catalog - проверенный каталог.
type Catalog struct {
	Currency string
	Tiers    *loyalty.Table
	Plans    []loyalty.Plan
}

// Load читает каталог из path, а если path пустой - встроенный default.yaml.
func Load(path string) (*Catalog, error) {
	data := defaultYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("чтение каталога %s: %w", path, err)
		}
		data = b
	}
	return Parse(data)
}

// Parse разбирает и проверяет YAML каталога.
func Parse(data []byte) (*Catalog, error) {
	var raw rawCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidCatalog, err)
	}

	table, err := loyalty.NewTable(raw.Tiers)
	if err != nil {
		return nil, err
	}
	if err := validatePlans(raw.Plans); err != nil {
		return nil, err
	}

	currency := raw.Currency
	if currency == "" {
		currency = "RUB"
	}
	return &Catalog{Currency: currency, Tiers: table, Plans: raw.Plans}, nil
}

func validatePlans(plans []loyalty.Plan) error {
	if len(plans) == 0 {
		return fmt.Errorf("%w: нет тарифов", common.ErrInvalidCatalog)
	}
	if dups := lo.FindDuplicatesBy(plans, func(p loyalty.Plan) string { return p.ID }); len(dups) > 0 {
		return fmt.Errorf("%w: тариф %q повторяется", common.ErrInvalidCatalog, dups[0].ID)
	}
	if dups := lo.FindDuplicatesBy(plans, func(p loyalty.Plan) int { return p.Months }); len(dups) > 0 {
		return fmt.Errorf("%w: два тарифа на %d мес.", common.ErrInvalidCatalog, dups[0].Months)
	}
	for _, p := range plans {
		switch {
		case p.ID == "":
			return fmt.Errorf("%w: тариф без id", common.ErrInvalidCatalog)
		case p.Months <= 0:
			return fmt.Errorf("%w: тариф %q: months=%d", common.ErrInvalidCatalog, p.ID, p.Months)
		case p.BasePrice <= 0:
			return fmt.Errorf("%w: тариф %q: base_price=%d", common.ErrInvalidCatalog, p.ID, p.BasePrice)
		case p.Stars <= 0:
			return fmt.Errorf("%w: тариф %q: stars=%d", common.ErrInvalidCatalog, p.ID, p.Stars)
		}
	}
	return nil
}

// PlanByID ищет тариф по id.
func (c *Catalog) PlanByID(id string) (loyalty.Plan, error) {
	p, ok := lo.Find(c.Plans, func(p loyalty.Plan) bool { return p.ID == id })
	if !ok {
		return loyalty.Plan{}, fmt.Errorf("%w: id=%q", common.ErrPlanNotFound, id)
	}
	return p, nil
}

// PlanByMonths ищет тариф по сроку в месяцах (так его присылает Mini App).
func (c *Catalog) PlanByMonths(months int) (loyalty.Plan, error) {
	p, ok := lo.Find(c.Plans, func(p loyalty.Plan) bool { return p.Months == months })
	if !ok {
		return loyalty.Plan{}, fmt.Errorf("%w: %d мес.", common.ErrPlanNotFound, months)
	}
	return p, nil
}
