// Package admin - handlers.go обрабатывает админские команды в личных сообщениях.
// Поток: /login → ввод пароля → команды /grant, /resync, /ban, /unban → /logout.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"shft.ru/secure-bot/internal/common"
	"shft.ru/secure-bot/internal/features/loyalty"
)

// Notifier рассылает уведомления о смене уровня.
type Notifier interface {
	NotifyStatusChanges(changes []loyalty.StatusChange)
}

// Handler обрабатывает админ-команды.
type Handler struct {
	service  *Service
	notifier Notifier
	bot      *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик админки.
func NewHandler(service *Service, notifier Notifier, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, notifier: notifier, bot: bot}
}

// HandleAdminMessage обрабатывает сообщение от администратора в личке.
// Возвращает false, если сообщение не относится к админке.
func (h *Handler) HandleAdminMessage(ctx context.Context, chatID, userID int64, msgID int, text string) bool {
	if !h.service.IsAdmin(userID) {
		return false
	}

	if state := h.service.GetState(userID); state != nil && state.State == StateAwaitingPassword {
		h.handlePasswordInput(ctx, chatID, userID, msgID, text)
		return true
	}

	cmd, args := splitCommand(text)
	switch cmd {
	case "/login":
		if len(args) > 0 {
			h.handlePasswordInput(ctx, chatID, userID, msgID, strings.Join(args, " "))
			return true
		}
		h.sendMessage(chatID, "🔐 Введите пароль для доступа к админке:")
		h.service.SetState(userID, StateAwaitingPassword)
	case "/logout":
		if err := h.service.Logout(ctx, userID); err != nil {
			log.WithError(err).WithField("user_id", userID).Error("Ошибка выхода")
		}
		h.sendMessage(chatID, "👋 Сессия закрыта")
	case "/grant":
		h.handleGrant(ctx, chatID, userID, args)
	case "/resync":
		h.handleResync(ctx, chatID, userID)
	case "/ban", "/unban":
		h.handleBan(ctx, chatID, userID, args, cmd == "/ban")
	default:
		return false
	}
	return true
}

// handlePasswordInput обрабатывает ввод пароля и удаляет сообщение с ним.
func (h *Handler) handlePasswordInput(ctx context.Context, chatID, userID int64, msgID int, password string) {
	h.service.ClearState(userID)
	if msgID != 0 {
		if _, err := h.bot.Request(tgbotapi.NewDeleteMessage(chatID, msgID)); err != nil {
			log.WithError(err).Debug("Не удалось удалить сообщение с паролем")
		}
	}

	if err := h.service.VerifyPassword(ctx, userID, strings.TrimSpace(password)); err != nil {
		h.sendMessage(chatID, "❌ "+err.Error())
		return
	}
	h.sendMessage(chatID, "✅ Аутентификация успешна!\n\n"+helpText)
}

const helpText = "Команды:\n" +
	"/grant <user_id> <баллы> - начислить баллы\n" +
	"/resync - пересчитать уровни\n" +
	"/ban <user_id>, /unban <user_id>\n" +
	"/logout - выйти"

func (h *Handler) handleGrant(ctx context.Context, chatID, adminID int64, args []string) {
	userID, points, err := ParseGrantArgs(args)
	if err != nil {
		h.sendMessage(chatID, "Использование: /grant <user_id> <баллы>")
		return
	}

	change, err := h.service.GrantPoints(ctx, adminID, userID, points)
	if err != nil {
		h.replyError(chatID, err)
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("✅ Пользователю %d: %s", userID, common.FormatPointsAmount(points)))
	if change != nil {
		h.sendMessage(chatID, fmt.Sprintf("Уровень: %s → %s", change.Previous.Title, change.Current.Title))
		h.notifier.NotifyStatusChanges([]loyalty.StatusChange{*change})
	}
}

func (h *Handler) handleResync(ctx context.Context, chatID, adminID int64) {
	changes, err := h.service.Resync(ctx, adminID)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("🔄 Пересчёт завершён, изменений: %d", len(changes)))
	h.notifier.NotifyStatusChanges(changes)
}

func (h *Handler) handleBan(ctx context.Context, chatID, adminID int64, args []string, banned bool) {
	if len(args) != 1 {
		h.sendMessage(chatID, "Использование: /ban <user_id>")
		return
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.sendMessage(chatID, "❌ Некорректный user_id")
		return
	}
	m, err := h.service.SetBanned(ctx, adminID, userID, banned)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if banned {
		h.sendMessage(chatID, fmt.Sprintf("🚫 %s (%d) заблокирован", m.DisplayName(), userID))
	} else {
		h.sendMessage(chatID, fmt.Sprintf("✅ %s (%d) разблокирован", m.DisplayName(), userID))
	}
}

// userErrors показываются админу как есть, остальные только в логах.
var userErrors = []error{
	common.ErrSessionExpired,
	common.ErrNotAdmin,
	common.ErrInvalidInput,
	common.ErrUserNotFound,
}

func (h *Handler) replyError(chatID int64, err error) {
	for _, known := range userErrors {
		if errors.Is(err, known) {
			h.sendMessage(chatID, "❌ "+known.Error())
			return
		}
	}
	log.WithError(err).Error("Ошибка админ-команды")
	h.sendMessage(chatID, "❌ Внутренняя ошибка, см. логи")
}

// ParseGrantArgs разбирает аргументы /grant <user_id> <баллы>.
func ParseGrantArgs(args []string) (userID, points int64, err error) {
	if len(args) != 2 {
		return 0, 0, common.ErrInvalidInput
	}
	userID, err = strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		return 0, 0, common.ErrInvalidInput
	}
	points, err = strconv.ParseInt(args[1], 10, 64)
	if err != nil || points <= 0 {
		return 0, 0, common.ErrInvalidInput
	}
	return userID, points, nil
}

// splitCommand отделяет команду от аргументов и отрезает @botname.
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd), fields[1:]
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
