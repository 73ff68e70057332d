// Package members управляет пользователями бота: регистрацией и рефералами.
// models.go описывает структуры данных для работы с таблицей bot_users.
package members

import "time"

// Member представляет пользователя бота в базе данных.
// Запись создаётся при первом сообщении боту или первом запросе из Mini App.
type Member struct {
	ID         int64     `db:"id"`          // Автоинкрементный ID записи в БД
	UserID     int64     `db:"telegram_id"` // Telegram user ID (уникальный)
	Username   string    `db:"username"`    // @username (может быть пустым)
	FirstName  string    `db:"first_name"`  // Имя пользователя
	LastName   string    `db:"last_name"`   // Фамилия (может быть пустой)
	ReferrerID *int64    `db:"referrer_id"` // Кто пригласил (/start <id>), может быть nil
	IsBanned   bool      `db:"is_banned"`   // Флаг бана
	CreatedAt  time.Time `db:"created_at"`  // Когда запись создана в БД
	UpdatedAt  time.Time `db:"updated_at"`  // Последнее обновление записи
}

// DisplayName возвращает отображаемое имя пользователя.
// Если есть @username - возвращает его, иначе - имя + фамилию.
func (m *Member) DisplayName() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	name := m.FirstName
	if m.LastName != "" {
		name += " " + m.LastName
	}
	return name
}
