// Package members - repository.go отвечает за все операции с таблицей bot_users.
// Каждая функция выполняет один SQL-запрос и возвращает результат или ошибку.
package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shft.ru/secure-bot/internal/common"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const memberColumns = `id, telegram_id, COALESCE(username, ''), first_name, COALESCE(last_name, ''),
	referrer_id, is_banned, created_at, updated_at`

// Upsert добавляет пользователя или обновляет имя/username, если он уже есть.
// referrer_id и бан не трогаются.
func (r *Repository) Upsert(ctx context.Context, m *Member) error {
	query := `
		INSERT INTO bot_users (telegram_id, username, first_name, last_name)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''))
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, m.UserID, m.Username, m.FirstName, m.LastName)
	if err != nil {
		return fmt.Errorf("ошибка создания/обновления пользователя: %w", err)
	}
	return nil
}

// GetByUserID: если не найден - ошибка с common.ErrUserNotFound.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Member, error) {
	query := `SELECT ` + memberColumns + ` FROM bot_users WHERE telegram_id = $1`
	var m Member
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&m.ID, &m.UserID, &m.Username, &m.FirstName, &m.LastName,
		&m.ReferrerID, &m.IsBanned, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("пользователь user_id=%d: %w", userID, common.ErrUserNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения пользователя (user_id=%d): %w", userID, err)
	}
	return &m, nil
}

func (r *Repository) Exists(ctx context.Context, userID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM bot_users WHERE telegram_id = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки существования: %w", err)
	}
	return exists, nil
}

// SetReferrer записывает пригласившего, только если он ещё не записан.
// Возвращает true, если запись обновилась.
func (r *Repository) SetReferrer(ctx context.Context, userID, referrerID int64) (bool, error) {
	query := `
		UPDATE bot_users SET referrer_id = $2, updated_at = NOW()
		WHERE telegram_id = $1 AND referrer_id IS NULL AND telegram_id <> $2
	`
	tag, err := r.db.Exec(ctx, query, userID, referrerID)
	if err != nil {
		return false, fmt.Errorf("ошибка записи реферера: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountReferrals возвращает число приглашённых пользователем.
func (r *Repository) CountReferrals(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bot_users WHERE referrer_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта рефералов: %w", err)
	}
	return n, nil
}

func (r *Repository) SetBanned(ctx context.Context, userID int64, banned bool) error {
	query := `UPDATE bot_users SET is_banned = $2, updated_at = NOW() WHERE telegram_id = $1`
	if _, err := r.db.Exec(ctx, query, userID, banned); err != nil {
		return fmt.Errorf("ошибка обновления бана: %w", err)
	}
	return nil
}
