// Package common - pluralize.go содержит вспомогательные функции
// для форматирования чисел и изменений баланса баллов.
package common

import (
	"fmt"
	"strings"
)

// FormatPointsAmount создаёт строку вида "+100 баллов" или "-50 баллов".
// Знак «+» или «-» добавляется автоматически.
//
// Примеры:
//
//	FormatPointsAmount(100)  → "+100 баллов"
//	FormatPointsAmount(-50)  → "-50 баллов"
//	FormatPointsAmount(1)    → "+1 балл"
func FormatPointsAmount(amount int64) string {
	if amount >= 0 {
		return fmt.Sprintf("+%s", FormatPoints(amount))
	}
	return fmt.Sprintf("-%s", FormatPoints(-amount))
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}

// ProgressBar рисует полоску прогресса из width клеток: ProgressBar(50, 10) → "▓▓▓▓▓░░░░░".
func ProgressBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100 * float64(width))
	return strings.Repeat("▓", filled) + strings.Repeat("░", width-filled)
}
