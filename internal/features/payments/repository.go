// Package payments - repository.go работает с таблицей payments.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shft.ru/secure-bot/internal/features/loyalty"
)

// Repository предоставляет методы для работы с платежами.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий платежей.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create сохраняет платёж. Повтор с тем же charge_id ничего не пишет
// и возвращает created=false: Telegram может прислать апдейт дважды.
func (r *Repository) Create(ctx context.Context, p *Payment) (bool, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO payments (user_id, plan_id, months, amount_rub, stars, method, status, tier, invoice_payload, charge_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (charge_id) DO NOTHING
		RETURNING id, created_at
	`, p.UserID, p.PlanID, p.Months, p.AmountRub, p.Stars, p.Method, p.Status,
		string(p.Tier), p.Payload, p.ChargeID,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка записи платежа: %w", err)
	}
	return true, nil
}

// ListByUser возвращает последние limit платежей пользователя, новые первыми.
func (r *Repository) ListByUser(ctx context.Context, userID int64, limit int) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, plan_id, months, amount_rub, stars, method, status, tier,
		       invoice_payload, charge_id, created_at
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения платежей: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		var tier string
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.PlanID, &p.Months, &p.AmountRub, &p.Stars,
			&p.Method, &p.Status, &tier, &p.Payload, &p.ChargeID, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования платежа: %w", err)
		}
		p.Tier = loyalty.TierName(tier)
		out = append(out, p)
	}
	return out, rows.Err()
}
