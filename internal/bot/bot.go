// Package bot содержит главный модуль бота: polling апдейтов и маршрутизацию команд.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"shft.ru/secure-bot/internal/bot/filters"
	"shft.ru/secure-bot/internal/bot/middleware"
	"shft.ru/secure-bot/internal/config"
	"shft.ru/secure-bot/internal/features/admin"
	"shft.ru/secure-bot/internal/features/loyalty"
	"shft.ru/secure-bot/internal/features/members"
	"shft.ru/secure-bot/internal/features/payments"
)

// Bot - главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter

	memberHandler   *members.Handler
	loyaltyHandler  *loyalty.Handler
	paymentsHandler *payments.Handler
	adminHandler    *admin.Handler

	memberService  *members.Service
	loyaltyService *loyalty.Service

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// Handlers - обработчики фич, которые подключаются к боту.
type Handlers struct {
	Members  *members.Handler
	Loyalty  *loyalty.Handler
	Payments *payments.Handler
	Admin    *admin.Handler
}

// New создаёт новый экземпляр бота со всеми зависимостями.
// rateLimiter общий с Mini App API: лимит считается на пользователя, а не на канал.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	memberService *members.Service,
	loyaltyService *loyalty.Service,
	handlers Handlers,
	chatFilter *filters.ChatFilter,
	rateLimiter *middleware.RateLimiter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:             api,
		cfg:             cfg,
		chatFilter:      chatFilter,
		rateLimiter:     rateLimiter,
		memberHandler:   handlers.Members,
		loyaltyHandler:  handlers.Loyalty,
		paymentsHandler: handlers.Payments,
		adminHandler:    handlers.Admin,
		memberService:   memberService,
		loyaltyService:  loyaltyService,
		parser:          NewCommandParser(api.Self.UserName),
		inflight:        make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds
	u.AllowedUpdates = []string{"message", "pre_checkout_query"}

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic()

	middleware.LogUpdate(update)

	// pre_checkout_query нужно подтвердить за 10 секунд, без фильтров и лимитов
	if update.PreCheckoutQuery != nil {
		b.paymentsHandler.HandlePreCheckout(update.PreCheckoutQuery)
		return
	}

	message := update.Message
	if message == nil {
		return
	}

	// Успешная оплата: звёзды уже списаны, обрабатываем даже у забаненных
	if message.SuccessfulPayment != nil && message.From != nil {
		b.paymentsHandler.HandleSuccessfulPayment(ctx, message.Chat.ID, message.From.ID, message.SuccessfulPayment)
		return
	}

	if message.Text == "" {
		return
	}

	// Только личка и без бана
	if !b.chatFilter.CheckAccess(ctx, message) {
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	// Rate limiting
	if !b.rateLimiter.Allow(userID) {
		log.WithField("user_id", userID).Debug("rate limited")
		return
	}

	if err := b.memberService.EnsureMember(ctx, userID,
		message.From.UserName, message.From.FirstName, message.From.LastName,
	); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("EnsureMember failed")
	}

	// Админ-команды и ввод пароля
	if b.adminHandler.HandleAdminMessage(ctx, chatID, userID, message.MessageID, message.Text) {
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	log.WithFields(log.Fields{
		"isCommand": isCommand,
		"cmd":       cmd,
		"args":      args,
	}).Debug("parsed command")

	if isCommand {
		b.routeCommand(ctx, chatID, userID, message.From.FirstName, cmd, args)
	}
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID, userID int64, firstName, cmd string, args []string) {
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")

	switch cmd {
	case "start", "help":
		if err := b.loyaltyService.CreateAccount(ctx, userID); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("CreateAccount failed")
		}
		b.memberHandler.HandleStart(ctx, chatID, userID, firstName, args)

	case "loyalty", "лояльность", "статус":
		b.loyaltyHandler.HandleLoyalty(ctx, chatID, userID)

	case "prices", "цены":
		b.loyaltyHandler.HandlePrices(ctx, chatID, userID)

	case "buy", "купить":
		if !b.cfg.FeatureStarsEnabled {
			b.sendMessage(chatID, "⭐ Оплата звёздами временно отключена")
			return
		}
		b.paymentsHandler.HandleBuy(ctx, chatID, userID, args)

	case "payments", "платежи":
		b.paymentsHandler.HandlePayments(ctx, chatID, userID)

	default:
		b.sendMessage(chatID, "🤔 Не знаю такой команды. Список команд: /help")
	}
}

// sendMessage - утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// CommandParser разбирает команды с префиксами /, ! и .
type CommandParser struct {
	validPrefixes []string
	botUsername   string
}

// NewCommandParser создаёт парсер команд.
// botUsername нужен, чтобы срезать суффикс /cmd@bot_name.
func NewCommandParser(botUsername string) *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/", "!", "."},
		botUsername:   strings.ToLower(botUsername),
	}
}

// ParseCommand разбирает текст на команду и аргументы.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	if name, mention, ok := strings.Cut(command, "@"); ok {
		if p.botUsername != "" && mention != p.botUsername {
			// команда адресована другому боту
			return "", nil, false
		}
		command = name
	}
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}
