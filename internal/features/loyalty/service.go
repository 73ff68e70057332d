// Package loyalty - service.go содержит бизнес-логику программы лояльности:
// профиль, цены для пользователя, начисление баллов и пересчёт статусов.
package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"shft.ru/secure-bot/internal/common"
)

// Store - хранилище счетов. Реализуется *Repository.
type Store interface {
	EnsureAccount(ctx context.Context, userID int64) error
	GetAccount(ctx context.Context, userID int64) (*Account, error)
	AddPoints(ctx context.Context, userID, points, spent int64, resolve func(int64) (TierName, error)) (Account, Account, error)
	SetStatus(ctx context.Context, userID, points int64, status TierName) (bool, error)
	ListAccounts(ctx context.Context) ([]Account, error)
}

// Service управляет программой лояльности.
type Service struct {
	store Store
	table *Table
	plans []Plan
}

// NewService создаёт сервис лояльности поверх проверенной таблицы и каталога тарифов.
func NewService(store Store, table *Table, plans []Plan) *Service {
	return &Service{store: store, table: table, plans: plans}
}

// Table возвращает таблицу уровней.
func (s *Service) Table() *Table {
	return s.table
}

// Plans возвращает тарифы каталога.
func (s *Service) Plans() []Plan {
	return s.plans
}

// CreateAccount заводит пустой счёт новому пользователю.
func (s *Service) CreateAccount(ctx context.Context, userID int64) error {
	return s.store.EnsureAccount(ctx, userID)
}

// GetProfile возвращает счёт и рассчитанный уровень.
// Пользователь без счёта получает пустой профиль (0 баллов), а не ошибку.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	acc, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		if !errors.Is(err, common.ErrUserNotFound) {
			return nil, err
		}
		acc = &Account{UserID: userID, Status: s.table.tiers[0].Name}
	}

	res, err := s.table.Resolve(acc.Points)
	if err != nil {
		return nil, fmt.Errorf("user_id=%d: %w", userID, err)
	}
	return &Profile{Account: *acc, Resolution: res}, nil
}

// QuotesForUser считает цены всех тарифов под уровень пользователя.
func (s *Service) QuotesForUser(ctx context.Context, userID int64) (*Profile, []PlanQuote, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	quotes, err := QuotePlans(lo.Map(s.plans, func(p Plan, _ int) PlanPrice { return p.Price() }), profile.Resolution.Current)
	if err != nil {
		return nil, nil, err
	}
	return profile, quotes, nil
}

// QuotePlanForUser считает цену одного тарифа (в рублях и звёздах).
func (s *Service) QuotePlanForUser(ctx context.Context, userID int64, plan Plan) (rub, stars Quote, tier Tier, err error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return rub, stars, tier, err
	}
	tier = profile.Resolution.Current
	if rub, err = QuotePrice(plan.BasePrice, tier); err != nil {
		return rub, stars, tier, err
	}
	if stars, err = QuotePrice(plan.Stars, tier); err != nil {
		return rub, stars, tier, err
	}
	return rub, stars, tier, nil
}

// Accrue начисляет баллы за оплату (1₽ = 1 балл).
// Возвращает смену уровня или nil, если уровень не изменился.
func (s *Service) Accrue(ctx context.Context, userID, amountRub int64) (*StatusChange, error) {
	if amountRub <= 0 {
		return nil, fmt.Errorf("%w: сумма оплаты %d", common.ErrInvalidInput, amountRub)
	}
	return s.addPoints(ctx, userID, amountRub, amountRub)
}

// GrantPoints начисляет баллы вручную (админка). total_spent не меняется.
func (s *Service) GrantPoints(ctx context.Context, userID, points int64) (*StatusChange, error) {
	if points <= 0 {
		return nil, fmt.Errorf("%w: баллы %d", common.ErrInvalidInput, points)
	}
	return s.addPoints(ctx, userID, points, 0)
}

func (s *Service) addPoints(ctx context.Context, userID, points, spent int64) (*StatusChange, error) {
	before, after, err := s.store.AddPoints(ctx, userID, points, spent, s.resolveName)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"points":  points,
		"total":   after.Points,
		"status":  after.Status,
	}).Info("Баллы лояльности начислены")

	if before.Status == after.Status {
		return nil, nil
	}
	return s.statusChange(userID, before.Status, after.Status, after.Points), nil
}

// ResyncStatuses пересчитывает сохранённые статусы по текущей таблице.
// Нужен после изменения порогов в каталоге. Ошибка одного счёта не
// останавливает пересчёт остальных.
func (s *Service) ResyncStatuses(ctx context.Context) ([]StatusChange, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	var changes []StatusChange
	for _, acc := range accounts {
		name, err := s.resolveName(acc.Points)
		if err != nil {
			log.WithError(err).WithField("user_id", acc.UserID).Warn("Пропускаем счёт с некорректными баллами")
			continue
		}
		if name == acc.Status {
			continue
		}
		updated, err := s.store.SetStatus(ctx, acc.UserID, acc.Points, name)
		if err != nil {
			log.WithError(err).WithField("user_id", acc.UserID).Error("Не удалось обновить статус")
			continue
		}
		if !updated {
			log.WithField("user_id", acc.UserID).Debug("Баллы изменились во время пересчёта, статус уже актуален")
			continue
		}
		changes = append(changes, *s.statusChange(acc.UserID, acc.Status, name, acc.Points))
	}

	log.WithFields(log.Fields{
		"accounts": len(accounts),
		"changed":  len(changes),
	}).Info("Пересчёт статусов лояльности завершён")
	return changes, nil
}

func (s *Service) resolveName(total int64) (TierName, error) {
	res, err := s.table.Resolve(total)
	if err != nil {
		return "", err
	}
	return res.Current.Name, nil
}

// statusChange собирает StatusChange; неизвестный старый статус считается нижним уровнем.
func (s *Service) statusChange(userID int64, prev, cur TierName, points int64) *StatusChange {
	prevTier, ok := s.table.ByName(prev)
	if !ok {
		prevTier = s.table.tiers[0]
	}
	curTier, _ := s.table.ByName(cur)
	return &StatusChange{UserID: userID, Previous: prevTier, Current: curTier, Points: points}
}
