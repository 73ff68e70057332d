package webapp

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/samber/lo"

	"shft.ru/secure-bot/internal/common"
	"shft.ru/secure-bot/internal/features/loyalty"
	"shft.ru/secure-bot/internal/features/payments"
)

// Максимальный размер тела запроса
const maxBodyBytes = 16 << 10

type loyaltyBlock struct {
	Points     int64            `json:"points"`
	Status     loyalty.TierName `json:"status"`
	Discount   int64            `json:"discount"`
	TotalSpent int64            `json:"totalSpent"`
	JoinedAt   string           `json:"joinedAt,omitempty"`
}

type profileResponse struct {
	TelegramID    int64              `json:"telegramId"`
	Username      string             `json:"username,omitempty"`
	FirstName     string             `json:"firstName"`
	Loyalty       loyaltyBlock       `json:"loyalty"`
	Resolution    loyalty.Resolution `json:"resolution"`
	ReferralLink  string             `json:"referralLink"`
	ReferralCount int                `json:"referralCount"`
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	profile, err := s.loyalty.GetProfile(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	referrals, err := s.members.CountReferrals(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := profileResponse{
		TelegramID: u.ID,
		Username:   u.Username,
		FirstName:  u.FirstName,
		Loyalty: loyaltyBlock{
			Points:     profile.Account.Points,
			Status:     profile.Resolution.Current.Name,
			Discount:   profile.Resolution.Current.DiscountPercent,
			TotalSpent: profile.Account.TotalSpent,
		},
		Resolution:    profile.Resolution,
		ReferralLink:  fmt.Sprintf("https://t.me/%s?start=%d", s.opts.BotUsername, u.ID),
		ReferralCount: referrals,
	}
	if !profile.Account.CreatedAt.IsZero() {
		resp.Loyalty.JoinedAt = common.FormatDate(profile.Account.CreatedAt)
	}
	respond(w, http.StatusOK, resp)
}

func (s *Server) getTiers(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]any{"tiers": s.loyalty.Table().Tiers()})
}

type planView struct {
	loyalty.Plan
	DiscountedPrice int64 `json:"discountedPrice"`
	Savings         int64 `json:"savings"`
	PricePerMonth   int64 `json:"pricePerMonth"`
}

func (s *Server) getPlans(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	profile, quotes, err := s.loyalty.QuotesForUser(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	byID := lo.KeyBy(quotes, func(q loyalty.PlanQuote) string { return q.ID })
	plans := lo.Map(s.loyalty.Plans(), func(p loyalty.Plan, _ int) planView {
		q := byID[p.ID]
		return planView{
			Plan:            p,
			DiscountedPrice: q.DiscountedPrice,
			Savings:         q.Savings,
			PricePerMonth:   q.DiscountedPrice / int64(p.Months),
		}
	})
	respond(w, http.StatusOK, map[string]any{
		"tier":  profile.Resolution.Current,
		"plans": plans,
	})
}

type quotePlanRequest struct {
	ID        string `json:"id" validate:"required"`
	BasePrice *int64 `json:"basePrice" validate:"required"`
}

type quoteRequest struct {
	TotalPoints *int64             `json:"totalPoints" validate:"required"`
	Plans       []quotePlanRequest `json:"plans" validate:"required,min=1,max=50,dive"`
}

type quoteResponse struct {
	Resolution loyalty.Resolution  `json:"resolution"`
	Quotes     []loyalty.PlanQuote `json:"quotes"`
}

// postQuote - расчёт цен по переданным баллам и базовым ценам.
// Отрицательные значения отклоняет сам движок (400 invalid input).
func (s *Server) postQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !s.decode(w, r, &req) {
		return
	}

	in := loyalty.QuoteInput{
		TotalPoints: *req.TotalPoints,
		Plans: lo.Map(req.Plans, func(p quotePlanRequest, _ int) loyalty.PlanPrice {
			return loyalty.PlanPrice{ID: p.ID, BasePrice: *p.BasePrice}
		}),
	}
	res, quotes, err := s.loyalty.Table().QuoteRequest(in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, quoteResponse{Resolution: res, Quotes: quotes})
}

type paymentView struct {
	ID       int64  `json:"id"`
	Date     string `json:"date"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Months   int    `json:"months"`
	Method   string `json:"method"`
	Status   string `json:"status"`
	Tier     string `json:"tier,omitempty"`
}

func (s *Server) getPayments(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	list, err := s.payments.History(r.Context(), u.ID, 50)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := lo.Map(list, func(p payments.Payment, _ int) paymentView {
		return paymentView{
			ID:       p.ID,
			Date:     common.FormatDate(p.CreatedAt),
			Amount:   p.Stars,
			Currency: "⭐",
			Months:   p.Months,
			Method:   p.Method,
			Status:   p.Status,
			Tier:     string(p.Tier),
		}
	})
	respond(w, http.StatusOK, map[string]any{"payments": views})
}

type createPaymentRequest struct {
	Months int    `json:"months" validate:"required,gt=0"`
	Method string `json:"method" validate:"required"`
}

type createPaymentResponse struct {
	Success         bool   `json:"success"`
	Method          string `json:"method"`
	PaymentURL      string `json:"paymentUrl"`
	Stars           int64  `json:"stars"`
	AmountRub       int64  `json:"amountRub"`
	DiscountPercent int64  `json:"discountPercent"`
}

func (s *Server) postPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Method != payments.MethodStars {
		respondError(w, http.StatusBadRequest, "invalid payment method")
		return
	}

	u := userFromContext(r.Context())
	inv, link, err := s.invoicer.CreateStarsInvoiceLink(r.Context(), u.ID, req.Months)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, createPaymentResponse{
		Success:         true,
		Method:          payments.MethodStars,
		PaymentURL:      link,
		Stars:           inv.Stars.DiscountedPrice,
		AmountRub:       inv.Rub.DiscountedPrice,
		DiscountPercent: inv.Tier.DiscountPercent,
	})
}

// decode читает JSON и проверяет его тегами validate. При ошибке сам отвечает 400.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}
