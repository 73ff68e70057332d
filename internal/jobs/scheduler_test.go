package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shft.ru/secure-bot/internal/config"
	"shft.ru/secure-bot/internal/features/loyalty"
)

type fakeResyncer struct {
	changes []loyalty.StatusChange
	err     error
}

func (f fakeResyncer) ResyncStatuses(context.Context) ([]loyalty.StatusChange, error) {
	return f.changes, f.err
}

type fakeNotifier struct {
	got [][]loyalty.StatusChange
}

func (f *fakeNotifier) NotifyStatusChanges(changes []loyalty.StatusChange) {
	f.got = append(f.got, changes)
}

type fakeSessions struct {
	calls int
}

func (f *fakeSessions) ExpireSessions(context.Context) (int64, error) {
	f.calls++
	return 2, nil
}

func testConfig() *config.Config {
	return &config.Config{AppTimezone: "Europe/Moscow", LoyaltyResyncCron: "0 3 * * *"}
}

func TestNewScheduler_BadCron(t *testing.T) {
	cfg := testConfig()
	cfg.LoyaltyResyncCron = "каждый день"
	_, err := NewScheduler(cfg, fakeResyncer{}, &fakeNotifier{}, &fakeSessions{})
	assert.Error(t, err)
}

func TestResyncStatuses_NotifiesChanges(t *testing.T) {
	changes := []loyalty.StatusChange{{
		UserID:   1,
		Previous: loyalty.Tier{Name: loyalty.TierBronze},
		Current:  loyalty.Tier{Name: loyalty.TierSilver, MinPoints: 250, DiscountPercent: 5},
		Points:   300,
	}}
	n := &fakeNotifier{}
	s, err := NewScheduler(testConfig(), fakeResyncer{changes: changes}, n, &fakeSessions{})
	require.NoError(t, err)

	s.resyncStatuses(context.Background())
	require.Len(t, n.got, 1)
	assert.Equal(t, changes, n.got[0])
}

func TestResyncStatuses_ErrorSkipsNotify(t *testing.T) {
	n := &fakeNotifier{}
	s, err := NewScheduler(testConfig(), fakeResyncer{err: errors.New("db down")}, n, &fakeSessions{})
	require.NoError(t, err)

	s.resyncStatuses(context.Background())
	assert.Empty(t, n.got)
}

func TestExpireSessions(t *testing.T) {
	sessions := &fakeSessions{}
	s, err := NewScheduler(testConfig(), fakeResyncer{}, &fakeNotifier{}, sessions)
	require.NoError(t, err)

	s.expireSessions(context.Background())
	assert.Equal(t, 1, sessions.calls)
}

func TestStartStop(t *testing.T) {
	s, err := NewScheduler(testConfig(), fakeResyncer{}, &fakeNotifier{}, &fakeSessions{})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, s.cron.Entries(), 2)
	s.Stop()
}
