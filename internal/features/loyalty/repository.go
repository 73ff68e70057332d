// Package loyalty - repository.go работает с таблицей loyalty_accounts.
// Начисление баллов выполняется в транзакции с блокировкой строки.
package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shft.ru/secure-bot/internal/common"
)

// Repository предоставляет методы для работы со счетами лояльности.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий лояльности.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnsureAccount создаёт пустой счёт (0 баллов, бронза), если его ещё нет.
func (r *Repository) EnsureAccount(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO loyalty_accounts (user_id, points, status, total_spent)
		VALUES ($1, 0, $2, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, string(TierBronze))
	if err != nil {
		return fmt.Errorf("ошибка создания счёта лояльности: %w", err)
	}
	return nil
}

// GetAccount возвращает счёт пользователя или common.ErrUserNotFound.
func (r *Repository) GetAccount(ctx context.Context, userID int64) (*Account, error) {
	var a Account
	var status string
	err := r.db.QueryRow(ctx, `
		SELECT user_id, points, status, total_spent, created_at, updated_at
		FROM loyalty_accounts
		WHERE user_id = $1
	`, userID).Scan(&a.UserID, &a.Points, &status, &a.TotalSpent, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("счёт лояльности (user_id=%d): %w", userID, common.ErrUserNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения счёта лояльности (user_id=%d): %w", userID, err)
	}
	a.Status = TierName(status)
	return &a, nil
}

// AddPoints начисляет баллы и пересчитывает статус атомарно.
//
// Параметры:
//   - points: сколько баллов добавить (> 0)
//   - spent: на сколько рублей увеличить total_spent (0 для ручного начисления)
//   - resolve: функция «баллы → уровень», вызывается под блокировкой строки
//
// Возвращает состояние счёта до и после.
func (r *Repository) AddPoints(
	ctx context.Context,
	userID, points, spent int64,
	resolve func(total int64) (TierName, error),
) (before, after Account, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return before, after, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Счёт мог ещё не существовать (первая оплата)
	if _, err = tx.Exec(ctx, `
		INSERT INTO loyalty_accounts (user_id, points, status, total_spent)
		VALUES ($1, 0, $2, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, string(TierBronze)); err != nil {
		return before, after, fmt.Errorf("ошибка создания счёта: %w", err)
	}

	var status string
	err = tx.QueryRow(ctx, `
		SELECT user_id, points, status, total_spent, created_at, updated_at
		FROM loyalty_accounts WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&before.UserID, &before.Points, &status, &before.TotalSpent, &before.CreatedAt, &before.UpdatedAt)
	if err != nil {
		return before, after, fmt.Errorf("ошибка блокировки счёта: %w", err)
	}
	before.Status = TierName(status)

	after = before
	after.Points += points
	after.TotalSpent += spent
	after.Status, err = resolve(after.Points)
	if err != nil {
		return before, after, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE loyalty_accounts
		SET points = $2, status = $3, total_spent = $4, updated_at = NOW()
		WHERE user_id = $1
		RETURNING updated_at
	`, userID, after.Points, string(after.Status), after.TotalSpent).Scan(&after.UpdatedAt)
	if err != nil {
		return before, after, fmt.Errorf("ошибка начисления баллов: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return before, after, fmt.Errorf("ошибка фиксации начисления: %w", err)
	}
	return before, after, nil
}

// SetStatus сохраняет пересчитанный статус, если баллы не изменились с момента
// чтения. false - счёт успели обновить (начисление уже выставило свежий статус).
func (r *Repository) SetStatus(ctx context.Context, userID, points int64, status TierName) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE loyalty_accounts SET status = $2, updated_at = NOW()
		WHERE user_id = $1 AND points = $3
	`, userID, string(status), points)
	if err != nil {
		return false, fmt.Errorf("ошибка обновления статуса (user_id=%d): %w", userID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListAccounts возвращает все счета (для ночного пересчёта статусов).
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, points, status, total_spent, created_at, updated_at
		FROM loyalty_accounts
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения счетов: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		var status string
		if err := rows.Scan(&a.UserID, &a.Points, &status, &a.TotalSpent, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования счёта: %w", err)
		}
		a.Status = TierName(status)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
