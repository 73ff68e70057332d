// Package common - errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота и Mini App API.
// Обработчики различают их через errors.Is и отвечают понятным сообщением.
package common

import "errors"

// Ошибки движка лояльности
var (
	// ErrInvalidInput - отрицательные баллы или отрицательная цена
	ErrInvalidInput = errors.New("некорректные входные данные")
	// ErrOutOfRange - индекс уровня за пределами таблицы
	ErrOutOfRange = errors.New("индекс уровня вне диапазона")
	// ErrInvalidTierTable - таблица уровней собрана неправильно (ошибка конфигурации)
	ErrInvalidTierTable = errors.New("некорректная таблица уровней лояльности")
)

// Ошибки каталога и платежей
var (
	// ErrInvalidCatalog - каталог тарифов не прошёл проверку при загрузке
	ErrInvalidCatalog = errors.New("некорректный каталог тарифов")
	// ErrPlanNotFound - тариф с таким ID или сроком не найден
	ErrPlanNotFound = errors.New("тариф не найден")
	// ErrInvalidPayload - payload инвойса не распознан
	ErrInvalidPayload = errors.New("некорректный payload платежа")
	// ErrPaymentMethod - способ оплаты не поддерживается
	ErrPaymentMethod = errors.New("способ оплаты не поддерживается")
	// ErrStarsDisabled - оплата звёздами отключена в настройках
	ErrStarsDisabled = errors.New("оплата звёздами временно отключена")
)

// Ошибки пользователей и авторизации Mini App
var (
	// ErrUserNotFound - пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrInvalidInitData - подпись initData не сошлась или данные неполные
	ErrInvalidInitData = errors.New("некорректные initData")
	// ErrInitDataExpired - initData слишком старые
	ErrInitDataExpired = errors.New("initData устарели")
)

// Ошибки админки
var (
	// ErrNotAdmin - пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword - неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts - слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired - сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)
