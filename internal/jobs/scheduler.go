// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: пересчёт статусов лояльности
// и ежечасное закрытие просроченных админ-сессий.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"shft.ru/secure-bot/internal/config"
	"shft.ru/secure-bot/internal/features/loyalty"
)

// Resyncer пересчитывает статусы лояльности. Реализуется *loyalty.Service.
type Resyncer interface {
	ResyncStatuses(ctx context.Context) ([]loyalty.StatusChange, error)
}

// Notifier сообщает пользователям о смене уровня. Реализуется *loyalty.Handler.
type Notifier interface {
	NotifyStatusChanges(changes []loyalty.StatusChange)
}

// SessionExpirer закрывает просроченные сессии. Реализуется *admin.Service.
type SessionExpirer interface {
	ExpireSessions(ctx context.Context) (int64, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron       *cron.Cron
	resyncSpec string
	loyalty    Resyncer
	notifier   Notifier
	sessions   SessionExpirer
}

// NewScheduler создаёт планировщик в часовом поясе APP_TIMEZONE.
func NewScheduler(cfg *config.Config, resyncer Resyncer, notifier Notifier, sessions SessionExpirer) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.AppTimezone)
	if err != nil {
		log.WithError(err).Warn("Не удалось загрузить часовой пояс, используем UTC+3")
		loc = time.FixedZone("MSK", 3*60*60)
	}

	logger := cron.PrintfLogger(log.WithField("component", "cron"))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := cron.ParseStandard(cfg.LoyaltyResyncCron); err != nil {
		return nil, fmt.Errorf("LOYALTY_RESYNC_CRON: %w", err)
	}

	return &Scheduler{
		cron:       c,
		resyncSpec: cfg.LoyaltyResyncCron,
		loyalty:    resyncer,
		notifier:   notifier,
		sessions:   sessions,
	}, nil
}

// Start регистрирует и запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.resyncSpec, func() { s.resyncStatuses(ctx) }); err != nil {
		return fmt.Errorf("задача пересчёта статусов: %w", err)
	}

	// Каждый час
	if _, err := s.cron.AddFunc("0 * * * *", func() { s.expireSessions(ctx) }); err != nil {
		return fmt.Errorf("задача закрытия сессий: %w", err)
	}

	s.cron.Start()
	log.WithField("resync", s.resyncSpec).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт завершения текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

func (s *Scheduler) resyncStatuses(ctx context.Context) {
	log.Info("[CRON] Пересчёт статусов лояльности")
	changes, err := s.loyalty.ResyncStatuses(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка пересчёта статусов")
		return
	}
	if len(changes) > 0 {
		s.notifier.NotifyStatusChanges(changes)
	}
}

func (s *Scheduler) expireSessions(ctx context.Context) {
	n, err := s.sessions.ExpireSessions(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка закрытия админ-сессий")
		return
	}
	if n > 0 {
		log.WithField("count", n).Info("[CRON] Просроченные админ-сессии закрыты")
	}
}
