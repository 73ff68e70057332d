// Package payments - service.go: подготовка инвойсов со скидкой лояльности,
// проверка pre-checkout и проведение успешной оплаты.
package payments

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"shft.ru/secure-bot/internal/common"
	"shft.ru/secure-bot/internal/features/loyalty"
)

// Store - хранилище платежей. Реализуется *Repository.
type Store interface {
	Create(ctx context.Context, p *Payment) (bool, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]Payment, error)
}

// Pricer - то, что нужно платежам от программы лояльности.
type Pricer interface {
	QuotePlanForUser(ctx context.Context, userID int64, plan loyalty.Plan) (rub, stars loyalty.Quote, tier loyalty.Tier, err error)
	Accrue(ctx context.Context, userID, amountRub int64) (*loyalty.StatusChange, error)
}

// Plans - поиск тарифа по сроку.
type Plans interface {
	PlanByMonths(months int) (loyalty.Plan, error)
}

// Service проводит платежи.
type Service struct {
	store        Store
	pricer       Pricer
	plans        Plans
	starsEnabled bool
}

// NewService создаёт сервис платежей.
func NewService(store Store, pricer Pricer, plans Plans, starsEnabled bool) *Service {
	return &Service{store: store, pricer: pricer, plans: plans, starsEnabled: starsEnabled}
}

// PrepareInvoice считает цену тарифа для пользователя и собирает инвойс.
// Скидка берётся по текущему уровню; одинаковое правило округления для ₽ и ⭐.
func (s *Service) PrepareInvoice(ctx context.Context, userID int64, months int, method string) (*Invoice, error) {
	if method != MethodStars {
		return nil, fmt.Errorf("%w: %q", common.ErrPaymentMethod, method)
	}
	if !s.starsEnabled {
		return nil, common.ErrStarsDisabled
	}

	plan, err := s.plans.PlanByMonths(months)
	if err != nil {
		return nil, err
	}
	rub, stars, tier, err := s.pricer.QuotePlanForUser(ctx, userID, plan)
	if err != nil {
		return nil, err
	}

	return &Invoice{
		Plan:  plan,
		Tier:  tier,
		Rub:   rub,
		Stars: stars,
		Payload: InvoicePayload{
			Months:    plan.Months,
			AmountRub: rub.DiscountedPrice,
			Stars:     stars.DiscountedPrice,
		},
	}, nil
}

// ValidatePreCheckout проверяет запрос перед списанием звёзд:
// payload наш, тариф существует, сумма совпадает с payload.
func (s *Service) ValidatePreCheckout(payload, currency string, totalAmount int) error {
	if currency != CurrencyStars {
		return fmt.Errorf("%w: валюта %s", common.ErrPaymentMethod, currency)
	}
	p, err := ParsePayload(payload)
	if err != nil {
		return err
	}
	if _, err := s.plans.PlanByMonths(p.Months); err != nil {
		return err
	}
	if int64(totalAmount) != p.Stars {
		return fmt.Errorf("%w: сумма %d не совпадает с %d", common.ErrInvalidPayload, totalAmount, p.Stars)
	}
	return nil
}

// SuccessfulPayment - поля successful_payment, нужные для проведения.
type SuccessfulPayment struct {
	Currency    string
	TotalAmount int
	Payload     string
	ChargeID    string
}

// CompleteStarsPayment сохраняет оплату и начисляет баллы за рублёвую цену.
//
// Повторный апдейт с тем же ChargeID возвращает (nil, nil, nil): баллы не
// начисляются второй раз.
func (s *Service) CompleteStarsPayment(ctx context.Context, userID int64, sp SuccessfulPayment) (*Payment, *loyalty.StatusChange, error) {
	if sp.Currency != CurrencyStars {
		return nil, nil, fmt.Errorf("%w: валюта %s", common.ErrPaymentMethod, sp.Currency)
	}
	p, err := ParsePayload(sp.Payload)
	if err != nil {
		return nil, nil, err
	}
	plan, err := s.plans.PlanByMonths(p.Months)
	if err != nil {
		return nil, nil, err
	}

	payment := &Payment{
		UserID:    userID,
		PlanID:    plan.ID,
		Months:    p.Months,
		AmountRub: p.AmountRub,
		Stars:     int64(sp.TotalAmount),
		Method:    MethodStars,
		Status:    StatusCompleted,
		Payload:   sp.Payload,
		ChargeID:  sp.ChargeID,
	}
	if _, _, tier, err := s.pricer.QuotePlanForUser(ctx, userID, plan); err == nil {
		payment.Tier = tier.Name
	}

	created, err := s.store.Create(ctx, payment)
	if err != nil {
		return nil, nil, err
	}
	if !created {
		log.WithFields(log.Fields{
			"user_id":   userID,
			"charge_id": sp.ChargeID,
		}).Warn("Повторный successful_payment, пропускаем")
		return nil, nil, nil
	}

	log.WithFields(log.Fields{
		"user_id":    userID,
		"plan_id":    plan.ID,
		"amount_rub": p.AmountRub,
		"stars":      sp.TotalAmount,
	}).Info("Оплата звёздами проведена")

	var change *loyalty.StatusChange
	if p.AmountRub > 0 {
		change, err = s.pricer.Accrue(ctx, userID, p.AmountRub)
		if err != nil {
			// Платёж уже записан; баллы можно начислить вручную через /grant
			log.WithError(err).WithField("user_id", userID).Error("Не удалось начислить баллы за оплату")
		}
	}
	return payment, change, nil
}

// History возвращает последние платежи пользователя.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.ListByUser(ctx, userID, limit)
}
