// Package app инициализирует все компоненты приложения.
// app.go - точка сборки: создаёт БД-пул, репозитории, сервисы, обработчики,
// бота, HTTP API Mini App и планировщик.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"shft.ru/secure-bot/internal/bot"
	"shft.ru/secure-bot/internal/bot/filters"
	"shft.ru/secure-bot/internal/bot/middleware"
	"shft.ru/secure-bot/internal/catalog"
	"shft.ru/secure-bot/internal/config"
	"shft.ru/secure-bot/internal/db/postgres"
	"shft.ru/secure-bot/internal/features/admin"
	"shft.ru/secure-bot/internal/features/loyalty"
	"shft.ru/secure-bot/internal/features/members"
	"shft.ru/secure-bot/internal/features/payments"
	"shft.ru/secure-bot/internal/jobs"
	"shft.ru/secure-bot/internal/webapp"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
	BotAPI    *tgbotapi.BotAPI
	// HTTP - сервер Mini App API, nil при FEATURE_WEBAPP_ENABLED=false
	HTTP *http.Server

	limiter *middleware.RateLimiter
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен - компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. Каталог тарифов и уровней ===
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки каталога: %w", err)
	}
	log.WithFields(log.Fields{
		"tiers": cat.Tiers.Len(),
		"plans": len(cat.Plans),
		"path":  cfg.CatalogPath,
	}).Info("Каталог загружен")

	// === 2. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool, migrations); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 3. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 4. Репозитории ===
	memberRepo := members.NewRepository(pool)
	loyaltyRepo := loyalty.NewRepository(pool)
	paymentRepo := payments.NewRepository(pool)
	adminRepo := admin.NewRepository(pool)

	// === 5. Сервисы ===
	memberService := members.NewService(memberRepo)
	loyaltyService := loyalty.NewService(loyaltyRepo, cat.Tiers, cat.Plans)
	paymentService := payments.NewService(paymentRepo, loyaltyService, cat, cfg.FeatureStarsEnabled)
	adminService := admin.NewService(adminRepo, loyaltyService, memberService, cfg.AdminIDs, cfg.AdminPasswordHash)

	// === 6. Обработчики ===
	memberHandler := members.NewHandler(memberService, botAPI, cfg.WebAppURL)
	loyaltyHandler := loyalty.NewHandler(loyaltyService, botAPI)
	paymentHandler := payments.NewHandler(paymentService, botAPI)
	adminHandler := admin.NewHandler(adminService, loyaltyHandler, botAPI)

	// === 7. Фильтры и лимиты ===
	chatFilter := filters.NewChatFilter(memberService, botAPI)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)

	// === 8. Собираем бота ===
	b := bot.New(
		botAPI, cfg,
		memberService, loyaltyService,
		bot.Handlers{
			Members:  memberHandler,
			Loyalty:  loyaltyHandler,
			Payments: paymentHandler,
			Admin:    adminHandler,
		},
		chatFilter,
		limiter,
	)

	// === 9. Mini App API ===
	var httpServer *http.Server
	if cfg.FeatureWebAppEnabled {
		username := botAPI.Self.UserName
		if username == "" {
			username = cfg.BotUsername
		}
		api := webapp.NewServer(loyaltyService, memberService, paymentService, paymentHandler, limiter, webapp.Options{
			BotToken:      cfg.TelegramBotToken,
			BotUsername:   username,
			InitDataTTL:   cfg.WebAppInitDataTTL,
			AllowedOrigin: cfg.WebAppAllowedOrigin,
		})
		httpServer = &http.Server{
			Addr:              cfg.WebAppAddr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}

	// === 10. Планировщик задач ===
	scheduler, err := jobs.NewScheduler(cfg, loyaltyService, loyaltyHandler, adminService)
	if err != nil {
		limiter.Close()
		pool.Close()
		return nil, fmt.Errorf("ошибка создания планировщика: %w", err)
	}

	return &App{
		Bot:       b,
		Scheduler: scheduler,
		DB:        pool,
		BotAPI:    botAPI,
		HTTP:      httpServer,
		limiter:   limiter,
	}, nil
}

// Close освобождает ресурсы: лимитер и пул соединений.
func (a *App) Close() {
	a.limiter.Close()
	a.DB.Close()
}
