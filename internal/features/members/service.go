// Package members - service.go содержит бизнес-логику управления пользователями.
// Сервис регистрирует пользователей бота и Mini App и ведёт рефералов.
package members

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"shft.ru/secure-bot/internal/common"
)

// Service управляет пользователями бота.
type Service struct {
	repo *Repository // Репозиторий для работы с таблицей bot_users
}

// NewService создаёт новый сервис пользователей.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// EnsureMember гарантирует, что пользователь есть в базе, и освежает имя/username.
// Вызывается на каждое сообщение боту и на каждый авторизованный запрос Mini App.
func (s *Service) EnsureMember(ctx context.Context, userID int64, username, firstName, lastName string) error {
	m := &Member{
		UserID:    userID,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
	}
	if err := s.repo.Upsert(ctx, m); err != nil {
		return fmt.Errorf("регистрация пользователя %d: %w", userID, err)
	}
	return nil
}

// IsBanned проверяет бан. Неизвестный пользователь не забанен.
func (s *Service) IsBanned(ctx context.Context, userID int64) (bool, error) {
	m, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return m.IsBanned, nil
}

// RegisterReferral привязывает пригласившего к новому пользователю.
// Пригласивший должен существовать; повторная привязка игнорируется.
func (s *Service) RegisterReferral(ctx context.Context, userID, referrerID int64) error {
	if userID == referrerID {
		return nil
	}
	exists, err := s.repo.Exists(ctx, referrerID)
	if err != nil {
		return err
	}
	if !exists {
		log.WithField("referrer_id", referrerID).Debug("Реферер не найден, пропускаем")
		return nil
	}

	updated, err := s.repo.SetReferrer(ctx, userID, referrerID)
	if err != nil {
		return err
	}
	if updated {
		log.WithFields(log.Fields{
			"user_id":     userID,
			"referrer_id": referrerID,
		}).Info("Новый реферал")
	}
	return nil
}

// CountReferrals возвращает число приглашённых.
func (s *Service) CountReferrals(ctx context.Context, userID int64) (int, error) {
	return s.repo.CountReferrals(ctx, userID)
}

// SetBanned банит или разбанивает пользователя (админка).
// Возвращает обновлённую запись или common.ErrUserNotFound.
func (s *Service) SetBanned(ctx context.Context, userID int64, banned bool) (*Member, error) {
	if err := s.repo.SetBanned(ctx, userID, banned); err != nil {
		return nil, err
	}
	return s.repo.GetByUserID(ctx, userID)
}
