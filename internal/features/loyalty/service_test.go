package loyalty

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shft.ru/secure-bot/internal/common"
)

// memStore - хранилище в памяти для тестов сервиса.
type memStore struct {
	mu       sync.Mutex
	accounts map[int64]*Account
	listErr  error
	// afterList вызывается после снимка ListAccounts (имитация параллельного начисления)
	afterList func()
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[int64]*Account)}
}

func (m *memStore) EnsureAccount(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[userID]; !ok {
		m.accounts[userID] = &Account{UserID: userID, Status: TierBronze}
	}
	return nil
}

func (m *memStore) GetAccount(_ context.Context, userID int64) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("user_id=%d: %w", userID, common.ErrUserNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) AddPoints(_ context.Context, userID, points, spent int64, resolve func(int64) (TierName, error)) (Account, Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		a = &Account{UserID: userID, Status: TierBronze}
		m.accounts[userID] = a
	}
	before := *a
	after := before
	after.Points += points
	after.TotalSpent += spent
	status, err := resolve(after.Points)
	if err != nil {
		return before, before, err
	}
	after.Status = status
	*a = after
	return before, after, nil
}

func (m *memStore) SetStatus(_ context.Context, userID, points int64, status TierName) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok || a.Points != points {
		return false, nil
	}
	a.Status = status
	return true, nil
}

func (m *memStore) ListAccounts(context.Context) ([]Account, error) {
	m.mu.Lock()
	if m.listErr != nil {
		m.mu.Unlock()
		return nil, m.listErr
	}
	out := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, *a)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if m.afterList != nil {
		m.afterList()
	}
	return out, nil
}

var testPlans = []Plan{
	{ID: "1m", Title: "1 месяц", Months: 1, BasePrice: 129, Stars: 70},
	{ID: "3m", Title: "3 месяца", Months: 3, BasePrice: 299, Stars: 162},
}

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	return NewService(store, MustDefaultTable(), testPlans), store
}

func TestService_GetProfile_NoAccount(t *testing.T) {
	svc, _ := newTestService()

	profile, err := svc.GetProfile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), profile.Account.Points)
	assert.Equal(t, TierBronze, profile.Resolution.Current.Name)
}

func TestService_AccrueUpgrades(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	change, err := svc.Accrue(ctx, 7, 129)
	require.NoError(t, err)
	assert.Nil(t, change, "129 баллов - всё ещё бронза")

	change, err = svc.Accrue(ctx, 7, 299)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, TierBronze, change.Previous.Name)
	assert.Equal(t, TierSilver, change.Current.Name)
	assert.Equal(t, int64(428), change.Points)
	assert.True(t, change.Upgraded())

	acc, err := store.GetAccount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(428), acc.TotalSpent)
	assert.Equal(t, TierSilver, acc.Status)
}

func TestService_AccrueRejectsNonPositive(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Accrue(context.Background(), 1, 0)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = svc.GrantPoints(context.Background(), 1, -5)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestService_GrantPointsKeepsSpent(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	change, err := svc.GrantPoints(ctx, 3, 2500)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, TierPlatinum, change.Current.Name)

	acc, err := store.GetAccount(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.TotalSpent)
}

func TestService_QuotesForUser(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, err := svc.GrantPoints(ctx, 5, 850)
	require.NoError(t, err)

	profile, quotes, err := svc.QuotesForUser(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, TierSilver, profile.Resolution.Current.Name)
	require.Len(t, quotes, 2)
	assert.Equal(t, int64(123), quotes[0].DiscountedPrice)
	assert.Equal(t, int64(285), quotes[1].DiscountedPrice)

	rub, stars, tr, err := svc.QuotePlanForUser(ctx, 5, testPlans[1])
	require.NoError(t, err)
	assert.Equal(t, TierSilver, tr.Name)
	assert.Equal(t, int64(285), rub.DiscountedPrice)
	assert.Equal(t, int64(154), stars.DiscountedPrice) // 153.9 → 154
}

func TestService_ResyncStatuses(t *testing.T) {
	store := newMemStore()
	store.accounts[1] = &Account{UserID: 1, Points: 300, Status: TierBronze} // повышение
	store.accounts[2] = &Account{UserID: 2, Points: 100, Status: TierGold}   // понижение
	store.accounts[3] = &Account{UserID: 3, Points: 1000, Status: TierGold}  // без изменений
	store.accounts[4] = &Account{UserID: 4, Points: -3, Status: TierBronze}  // битые данные
	store.accounts[5] = &Account{UserID: 5, Points: 2600, Status: "legacy"}  // неизвестный статус
	svc := NewService(store, MustDefaultTable(), testPlans)

	changes, err := svc.ResyncStatuses(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 3)

	assert.Equal(t, int64(1), changes[0].UserID)
	assert.True(t, changes[0].Upgraded())
	assert.Equal(t, int64(2), changes[1].UserID)
	assert.False(t, changes[1].Upgraded())
	assert.Equal(t, TierBronze, changes[2].Previous.Name)
	assert.Equal(t, TierPlatinum, changes[2].Current.Name)

	assert.Equal(t, TierSilver, store.accounts[1].Status)
	assert.Equal(t, TierBronze, store.accounts[2].Status)
	assert.Equal(t, TierBronze, store.accounts[4].Status)
}

func TestService_ResyncStatusesKeepsConcurrentAccrual(t *testing.T) {
	store := newMemStore()
	store.accounts[1] = &Account{UserID: 1, Points: 300, Status: TierBronze}
	svc := NewService(store, MustDefaultTable(), testPlans)

	// между чтением и записью пришла оплата: 300 → 1300, золото
	store.afterList = func() {
		_, err := svc.Accrue(context.Background(), 1, 1000)
		require.NoError(t, err)
	}

	changes, err := svc.ResyncStatuses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, TierGold, store.accounts[1].Status, "устаревший статус не должен затирать новый")
}

func TestService_ResyncStatusesListError(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("db down")
	svc := NewService(store, MustDefaultTable(), testPlans)

	_, err := svc.ResyncStatuses(context.Background())
	assert.Error(t, err)
}

func TestFormatProfile(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Accrue(ctx, 9, 850)
	require.NoError(t, err)

	profile, err := svc.GetProfile(ctx, 9)
	require.NoError(t, err)
	text := FormatProfile(profile)
	assert.Contains(t, text, "🥈 Серебро · скидка 5%")
	assert.Contains(t, text, "До 🥇 Золото: 150 баллов")
	assert.Contains(t, text, "▓▓▓▓▓▓▓▓░░ 80%")

	_, err = svc.GrantPoints(ctx, 9, 5000)
	require.NoError(t, err)
	profile, err = svc.GetProfile(ctx, 9)
	require.NoError(t, err)
	assert.Contains(t, FormatProfile(profile), "максимальный уровень")
}

func TestFormatPrices(t *testing.T) {
	silver, _ := MustDefaultTable().ByName(TierSilver)
	quotes, err := QuotePlans([]PlanPrice{testPlans[0].Price(), testPlans[1].Price()}, silver)
	require.NoError(t, err)

	text := FormatPrices(silver, testPlans, quotes)
	assert.Contains(t, text, "−5%")
	assert.Contains(t, text, "• 3 месяца: 299₽ → 285₽ (выгода 14₽)")
}
