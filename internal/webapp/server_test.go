package webapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shft.ru/secure-bot/internal/bot/middleware"
	"shft.ru/secure-bot/internal/common"
	"shft.ru/secure-bot/internal/features/loyalty"
	"shft.ru/secure-bot/internal/features/payments"
)

var testPlans = []loyalty.Plan{
	{ID: "1m", Title: "1 месяц", Months: 1, BasePrice: 129, Stars: 70},
	{ID: "3m", Title: "3 месяца", Months: 3, BasePrice: 299, Stars: 162},
}

// fakeLoyalty отдаёт профиль по заранее заданным баллам.
type fakeLoyalty struct {
	table  *loyalty.Table
	points map[int64]int64
}

func (f *fakeLoyalty) GetProfile(_ context.Context, userID int64) (*loyalty.Profile, error) {
	pts := f.points[userID]
	res, err := f.table.Resolve(pts)
	if err != nil {
		return nil, err
	}
	return &loyalty.Profile{
		Account:    loyalty.Account{UserID: userID, Points: pts, TotalSpent: pts, Status: res.Current.Name},
		Resolution: res,
	}, nil
}

func (f *fakeLoyalty) QuotesForUser(ctx context.Context, userID int64) (*loyalty.Profile, []loyalty.PlanQuote, error) {
	p, err := f.GetProfile(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	prices := make([]loyalty.PlanPrice, 0, len(testPlans))
	for _, pl := range testPlans {
		prices = append(prices, pl.Price())
	}
	quotes, err := loyalty.QuotePlans(prices, p.Resolution.Current)
	return p, quotes, err
}

func (f *fakeLoyalty) Table() *loyalty.Table { return f.table }
func (f *fakeLoyalty) Plans() []loyalty.Plan { return testPlans }

type fakeMembers struct {
	banned map[int64]bool
	seen   map[int64]bool
}

func (f *fakeMembers) EnsureMember(_ context.Context, userID int64, _, _, _ string) error {
	f.seen[userID] = true
	return nil
}

func (f *fakeMembers) IsBanned(_ context.Context, userID int64) (bool, error) {
	return f.banned[userID], nil
}

func (f *fakeMembers) CountReferrals(context.Context, int64) (int, error) { return 2, nil }

type fakePayments struct{}

func (fakePayments) History(_ context.Context, userID int64, _ int) ([]payments.Payment, error) {
	return []payments.Payment{{
		ID: 1, UserID: userID, Months: 3, AmountRub: 285, Stars: 154,
		Method: payments.MethodStars, Status: payments.StatusCompleted, Tier: loyalty.TierSilver,
		CreatedAt: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}}, nil
}

type fakeInvoicer struct {
	table *loyalty.Table
}

func (f fakeInvoicer) CreateStarsInvoiceLink(_ context.Context, _ int64, months int) (*payments.Invoice, string, error) {
	for _, p := range testPlans {
		if p.Months == months {
			tier, _ := f.table.ByName(loyalty.TierBronze)
			rub, _ := loyalty.QuotePrice(p.BasePrice, tier)
			stars, _ := loyalty.QuotePrice(p.Stars, tier)
			return &payments.Invoice{Plan: p, Tier: tier, Rub: rub, Stars: stars}, "https://t.me/$invoice", nil
		}
	}
	return nil, "", fmt.Errorf("%w: %d мес.", common.ErrPlanNotFound, months)
}

type testEnv struct {
	server  *Server
	handler http.Handler
	members *fakeMembers
	now     time.Time
}

func newTestEnv(t *testing.T, limit int) *testEnv {
	t.Helper()
	table := loyalty.MustDefaultTable()
	limiter := middleware.NewRateLimiter(limit, time.Minute)
	t.Cleanup(limiter.Close)

	members := &fakeMembers{banned: map[int64]bool{}, seen: map[int64]bool{}}
	srv := NewServer(
		&fakeLoyalty{table: table, points: map[int64]int64{42: 850, 7: 3000}},
		members,
		fakePayments{},
		fakeInvoicer{table: table},
		limiter,
		Options{BotToken: testToken, BotUsername: "shft_bot", InitDataTTL: time.Hour, AllowedOrigin: "https://app.example"},
	)
	now := time.Unix(1_700_000_000, 0)
	srv.now = func() time.Time { return now }
	return &testEnv{server: srv, handler: srv.Handler(), members: members, now: now}
}

func (e *testEnv) do(t *testing.T, method, path string, userID int64, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != 0 {
		req.Header.Set("X-Telegram-Init-Data", signedInitData(t, userID, e.now))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, 10)
	rec := env.do(t, http.MethodGet, "/healthz", 0, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, 10)
	rec := env.do(t, http.MethodGet, "/api/mini-app/user/profile", 0, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestPreflight(t *testing.T) {
	env := newTestEnv(t, 10)
	rec := env.do(t, http.MethodOptions, "/api/mini-app/plans", 0, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t, 10)
	rec := env.do(t, http.MethodGet, "/api/mini-app/user/profile", 42, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.members.seen[42])

	body := decodeBody(t, rec)
	assert.Equal(t, "https://t.me/shft_bot?start=42", body["referralLink"])

	ly := body["loyalty"].(map[string]any)
	assert.Equal(t, "silver", ly["status"])
	assert.EqualValues(t, 5, ly["discount"])

	res := body["resolution"].(map[string]any)
	assert.EqualValues(t, 150, res["pointsToNext"])
	assert.EqualValues(t, 80, res["progressPercent"])
}

func TestProfile_TopTierOmitsNext(t *testing.T) {
	env := newTestEnv(t, 10)
	rec := env.do(t, http.MethodGet, "/api/mini-app/user/profile", 7, "")
	require.Equal(t, http.StatusOK, rec.Code)

	res := decodeBody(t, rec)["resolution"].(map[string]any)
	assert.NotContains(t, res, "next")
	assert.NotContains(t, res, "pointsToNext")
	assert.NotContains(t, res, "progressPercent")
}

func TestBannedUser(t *testing.T) {
	env := newTestEnv(t, 10)
	env.members.banned[42] = true
	rec := env.do(t, http.MethodGet, "/api/mini-app/plans", 42, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTiersAndPlans(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodGet, "/api/mini-app/loyalty/tiers", 42, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["tiers"], 4)

	rec = env.do(t, http.MethodGet, "/api/mini-app/plans", 42, "")
	require.Equal(t, http.StatusOK, rec.Code)
	plans := decodeBody(t, rec)["plans"].([]any)
	require.Len(t, plans, 2)
	p3 := plans[1].(map[string]any)
	assert.Equal(t, "3m", p3["id"])
	assert.EqualValues(t, 299, p3["basePrice"])
	assert.EqualValues(t, 285, p3["discountedPrice"])
	assert.EqualValues(t, 95, p3["pricePerMonth"])
}

func TestQuote(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodPost, "/api/mini-app/pricing/quote", 42,
		`{"totalPoints":1000,"plans":[{"id":"6m","basePrice":549},{"id":"free","basePrice":0}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp quoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, loyalty.TierGold, resp.Resolution.Current.Name)
	require.Len(t, resp.Quotes, 2)
	assert.Equal(t, int64(495), resp.Quotes[0].DiscountedPrice)
	assert.Equal(t, int64(54), resp.Quotes[0].Savings)
	assert.Equal(t, int64(0), resp.Quotes[1].DiscountedPrice)
}

func TestQuote_BadInput(t *testing.T) {
	env := newTestEnv(t, 20)
	tests := []struct {
		name string
		body string
		want string
	}{
		{"negative points", `{"totalPoints":-1,"plans":[{"id":"1m","basePrice":129}]}`, "invalid input"},
		{"negative price", `{"totalPoints":10,"plans":[{"id":"1m","basePrice":-129}]}`, "invalid input"},
		{"no plans", `{"totalPoints":10,"plans":[]}`, "invalid request"},
		{"no points", `{"plans":[{"id":"1m","basePrice":129}]}`, "invalid request"},
		{"plan without id", `{"totalPoints":10,"plans":[{"basePrice":129}]}`, "invalid request"},
		{"not json", `{`, "invalid request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/mini-app/pricing/quote", 42, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decodeBody(t, rec)["error"])
		})
	}
}

func TestPayments(t *testing.T) {
	env := newTestEnv(t, 10)
	rec := env.do(t, http.MethodGet, "/api/mini-app/user/payments", 42, "")
	require.Equal(t, http.StatusOK, rec.Code)

	list := decodeBody(t, rec)["payments"].([]any)
	require.Len(t, list, 1)
	p := list[0].(map[string]any)
	assert.EqualValues(t, 154, p["amount"])
	assert.Equal(t, "⭐", p["currency"])
	assert.Equal(t, "2025-05-01", p["date"])
}

func TestCreatePayment(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodPost, "/api/mini-app/payment/create", 42, `{"months":3,"method":"stars"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "https://t.me/$invoice", body["paymentUrl"])
	assert.EqualValues(t, 162, body["stars"])

	rec = env.do(t, http.MethodPost, "/api/mini-app/payment/create", 42, `{"months":3,"method":"card"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/mini-app/payment/create", 42, `{"months":2,"method":"stars"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid subscription period", decodeBody(t, rec)["error"])
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, 2)

	for range 2 {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/mini-app/loyalty/tiers", 42, "").Code)
	}
	rec := env.do(t, http.MethodGet, "/api/mini-app/loyalty/tiers", 42, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/mini-app/loyalty/tiers", 7, "").Code)
}
