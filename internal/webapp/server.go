// Package webapp - server.go собирает chi-роутер Mini App API:
// request id, access log, recovery, CORS, авторизация initData и rate limit.
package webapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"shft.ru/secure-bot/internal/bot/middleware"
	"shft.ru/secure-bot/internal/common"
	"shft.ru/secure-bot/internal/features/loyalty"
	"shft.ru/secure-bot/internal/features/payments"
)

// Loyalty - то, что API нужно от программы лояльности.
type Loyalty interface {
	GetProfile(ctx context.Context, userID int64) (*loyalty.Profile, error)
	QuotesForUser(ctx context.Context, userID int64) (*loyalty.Profile, []loyalty.PlanQuote, error)
	Table() *loyalty.Table
	Plans() []loyalty.Plan
}

// Members - регистрация и проверка пользователей.
type Members interface {
	EnsureMember(ctx context.Context, userID int64, username, firstName, lastName string) error
	IsBanned(ctx context.Context, userID int64) (bool, error)
	CountReferrals(ctx context.Context, userID int64) (int, error)
}

// Payments - история платежей.
type Payments interface {
	History(ctx context.Context, userID int64, limit int) ([]payments.Payment, error)
}

// Invoicer выставляет инвойсы в Telegram.
type Invoicer interface {
	CreateStarsInvoiceLink(ctx context.Context, userID int64, months int) (*payments.Invoice, string, error)
}

// Options - настройки API из конфига.
type Options struct {
	BotToken      string
	BotUsername   string
	InitDataTTL   time.Duration
	AllowedOrigin string
}

// Server - HTTP API Mini App.
type Server struct {
	loyalty  Loyalty
	members  Members
	payments Payments
	invoicer Invoicer
	limiter  *middleware.RateLimiter
	validate *validator.Validate
	opts     Options
	now      func() time.Time
}

// NewServer создаёт API. limiter общий с ботом.
func NewServer(ly Loyalty, mb Members, pm Payments, inv Invoicer, limiter *middleware.RateLimiter, opts Options) *Server {
	return &Server{
		loyalty:  ly,
		members:  mb,
		payments: pm,
		invoicer: inv,
		limiter:  limiter,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
		now:      time.Now,
	}
}

// Handler возвращает корневой http.Handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/mini-app", func(r chi.Router) {
		r.Use(s.auth)
		r.Use(s.rateLimit)

		r.Get("/user/profile", s.getProfile)
		r.Get("/user/payments", s.getPayments)
		r.Get("/loyalty/tiers", s.getTiers)
		r.Get("/plans", s.getPlans)
		r.Post("/pricing/quote", s.postQuote)
		r.Post("/payment/create", s.postPayment)
	})
	return r
}

type ctxKey struct{}

// userFromContext возвращает пользователя, положенного middleware auth.
func userFromContext(ctx context.Context) TelegramUser {
	u, _ := ctx.Value(ctxKey{}).(TelegramUser)
	return u
}

// auth проверяет заголовок X-Telegram-Init-Data и отсекает забаненных.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := ValidateInitData(r.Header.Get("X-Telegram-Init-Data"), s.opts.BotToken, s.opts.InitDataTTL, s.now())
		if err != nil {
			log.WithError(err).WithField("component", "webapp").Debug("initData отклонены")
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		u := data.User
		ctx := r.Context()
		if err := s.members.EnsureMember(ctx, u.ID, u.Username, u.FirstName, u.LastName); err != nil {
			s.internalError(w, r, err)
			return
		}
		banned, err := s.members.IsBanned(ctx, u.ID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if banned {
			respondError(w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, ctxKey{}, u)))
	})
}

// rateLimit - лимит на пользователя, общий с ботом.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := userFromContext(r.Context()).ID
		if !s.limiter.Allow(userID) {
			retry := s.limiter.RetryAfter(userID)
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			respondError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.opts.AllowedOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Telegram-Init-Data")
		h.Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusFor переводит доменные ошибки в HTTP-статусы.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, common.ErrPlanNotFound):
		return http.StatusBadRequest, "invalid subscription period"
	case errors.Is(err, common.ErrPaymentMethod):
		return http.StatusBadRequest, "invalid payment method"
	case errors.Is(err, common.ErrStarsDisabled):
		return http.StatusForbidden, "stars payments disabled"
	case errors.Is(err, common.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		s.internalError(w, r, err)
		return
	}
	respondError(w, status, msg)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	log.WithError(err).WithFields(log.Fields{
		"component":  "webapp",
		"request_id": chimw.GetReqID(r.Context()),
		"path":       r.URL.Path,
	}).Error("Ошибка обработки запроса")
	respondError(w, http.StatusInternalServerError, "internal error")
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("Ошибка записи ответа")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}
