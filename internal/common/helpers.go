// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование сумм, работа с временем.
package common

import (
	"fmt"
	"time"
)

// pluralize выбирает форму слова для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → many (0, 5-20, 25-30, 100, ...)
func pluralize(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizePoints возвращает правильную форму слова «балл» для числа n.
//
// Примеры:
//
//	PluralizePoints(1)  → "балл"
//	PluralizePoints(3)  → "балла"
//	PluralizePoints(11) → "баллов"
func PluralizePoints(n int64) string {
	return pluralize(n, "балл", "балла", "баллов")
}

// PluralizeMonths возвращает правильную форму слова «месяц».
func PluralizeMonths(n int) string {
	return pluralize(int64(n), "месяц", "месяца", "месяцев")
}

// FormatPoints форматирует баллы в читабельную строку.
// Пример: FormatPoints(150) → "150 баллов"
func FormatPoints(points int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(points), PluralizePoints(points))
}

// FormatRub форматирует сумму в рублях: FormatRub(1299) → "1 299₽".
func FormatRub(amount int64) string {
	return FormatNumber(amount) + "₽"
}

// FormatStars форматирует сумму в звёздах Telegram.
func FormatStars(amount int64) string {
	return FormatNumber(amount) + "⭐"
}

// MoscowLocation загружает Europe/Moscow, при ошибке - фиксированный UTC+3.
func MoscowLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		loc = time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// FormatDate форматирует время как "2006-01-02" (формат, который ждёт Mini App).
func FormatDate(t time.Time) string {
	return t.In(MoscowLocation()).Format("2006-01-02")
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04".
// Используется для истории платежей в чате.
func FormatDateTime(t time.Time) string {
	return t.In(MoscowLocation()).Format("02.01.2006 15:04")
}
