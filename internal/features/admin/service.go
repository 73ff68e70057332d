// Package admin - service.go содержит логику аутентификации, управления сессиями
// и админские операции над баллами и пользователями.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"shft.ru/secure-bot/internal/common"
	"shft.ru/secure-bot/internal/features/loyalty"
	"shft.ru/secure-bot/internal/features/members"
)

// SessionStore - хранилище сессий и попыток входа. Реализуется *Repository.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetActiveSession(ctx context.Context, userID int64) (*Session, error)
	DeactivateSession(ctx context.Context, userID int64) error
	UpdateActivity(ctx context.Context, userID int64) error
	ExpireSessions(ctx context.Context) (int64, error)
	LogAttempt(ctx context.Context, userID int64, success bool) error
	CountFailedAttempts(ctx context.Context, userID int64, period time.Duration) (int, error)
}

// Loyalty - операции программы лояльности, доступные админу.
type Loyalty interface {
	GrantPoints(ctx context.Context, userID, points int64) (*loyalty.StatusChange, error)
	ResyncStatuses(ctx context.Context) ([]loyalty.StatusChange, error)
}

// Members - управление пользователями.
type Members interface {
	SetBanned(ctx context.Context, userID int64, banned bool) (*members.Member, error)
}

// Service управляет админкой.
type Service struct {
	repo         SessionStore
	loyalty      Loyalty
	members      Members
	adminIDs     []int64
	passwordHash string
	states       map[int64]*State // Состояния диалогов (in-memory)
	statesMu     sync.RWMutex
}

// NewService создаёт сервис админки.
func NewService(repo SessionStore, loyaltySvc Loyalty, memberSvc Members, adminIDs []int64, passwordHash string) *Service {
	return &Service{
		repo:         repo,
		loyalty:      loyaltySvc,
		members:      memberSvc,
		adminIDs:     adminIDs,
		passwordHash: passwordHash,
		states:       make(map[int64]*State),
	}
}

// IsAdmin проверяет, входит ли пользователь в ADMIN_IDS.
func (s *Service) IsAdmin(userID int64) bool {
	return slices.Contains(s.adminIDs, userID)
}

// VerifyPassword проверяет пароль администратора с использованием Argon2id.
// 3 неудачные попытки за час = блокировка. При успехе создаётся сессия на 24 часа.
func (s *Service) VerifyPassword(ctx context.Context, userID int64, password string) error {
	if !s.IsAdmin(userID) {
		return common.ErrNotAdmin
	}

	attempts, err := s.repo.CountFailedAttempts(ctx, userID, AttemptsWindow)
	if err != nil {
		return err
	}
	if attempts >= MaxFailedAttempts {
		return common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.passwordHash)
	if err := s.repo.LogAttempt(ctx, userID, match); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось записать попытку входа")
	}
	if !match {
		log.WithField("user_id", userID).Warn("Неверный пароль администратора")
		return common.ErrWrongPassword
	}

	session := &Session{
		UserID:       userID,
		SessionToken: generateSecureToken(),
		ExpiresAt:    time.Now().Add(SessionTTL),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return err
	}
	log.WithField("user_id", userID).Info("Администратор вошёл")
	return nil
}

// Logout закрывает сессию.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	s.ClearState(userID)
	return s.repo.DeactivateSession(ctx, userID)
}

// RequireSession проверяет права и активную сессию, продлевая last_activity.
func (s *Service) RequireSession(ctx context.Context, userID int64) error {
	if !s.IsAdmin(userID) {
		return common.ErrNotAdmin
	}
	if _, err := s.repo.GetActiveSession(ctx, userID); err != nil {
		if errors.Is(err, common.ErrSessionExpired) {
			return err
		}
		return fmt.Errorf("проверка сессии: %w", err)
	}
	if err := s.repo.UpdateActivity(ctx, userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось обновить активность сессии")
	}
	return nil
}

// ExpireSessions закрывает просроченные сессии. Вызывается планировщиком.
func (s *Service) ExpireSessions(ctx context.Context) (int64, error) {
	return s.repo.ExpireSessions(ctx)
}

// GrantPoints начисляет баллы вручную от имени администратора.
func (s *Service) GrantPoints(ctx context.Context, adminID, userID, points int64) (*loyalty.StatusChange, error) {
	if err := s.RequireSession(ctx, adminID); err != nil {
		return nil, err
	}
	change, err := s.loyalty.GrantPoints(ctx, userID, points)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"user_id":  userID,
		"points":   points,
	}).Info("Баллы начислены администратором")
	return change, nil
}

// Resync пересчитывает статусы всех пользователей.
func (s *Service) Resync(ctx context.Context, adminID int64) ([]loyalty.StatusChange, error) {
	if err := s.RequireSession(ctx, adminID); err != nil {
		return nil, err
	}
	return s.loyalty.ResyncStatuses(ctx)
}

// SetBanned блокирует или разблокирует пользователя.
func (s *Service) SetBanned(ctx context.Context, adminID, userID int64, banned bool) (*members.Member, error) {
	if err := s.RequireSession(ctx, adminID); err != nil {
		return nil, err
	}
	m, err := s.members.SetBanned(ctx, userID, banned)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"user_id":  userID,
		"banned":   banned,
	}).Info("Статус блокировки изменён")
	return m, nil
}

// GetState возвращает текущее состояние диалога.
func (s *Service) GetState(userID int64) *State {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	state, ok := s.states[userID]
	if !ok || time.Now().After(state.ExpiresAt) {
		return nil
	}
	return state
}

// SetState устанавливает состояние диалога с 5-минутным таймаутом.
func (s *Service) SetState(userID int64, name string) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	s.states[userID] = &State{State: name, ExpiresAt: time.Now().Add(stateTTL)}
}

// ClearState сбрасывает состояние диалога.
func (s *Service) ClearState(userID int64) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, userID)
}

// --- Криптографические утилиты ---

// Параметры Argon2id для новых хешей.
const (
	argonMemory      uint32 = 64 * 1024
	argonIterations  uint32 = 3
	argonParallelism uint8  = 2
	argonKeyLength   uint32 = 32
	argonSaltLength         = 16
)

// HashPassword возвращает хеш пароля в формате
// $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	return encodeArgon2id(password, salt, argonMemory, argonIterations, argonParallelism, argonKeyLength), nil
}

func encodeArgon2id(password string, salt []byte, memory, iterations uint32, parallelism uint8, keyLen uint32) string {
	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

// verifyArgon2id проверяет пароль по хешу Argon2id.
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравнение в постоянном времени
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}

// generateSecureToken генерирует токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
