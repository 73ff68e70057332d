package admin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shft.ru/secure-bot/internal/common"
	"shft.ru/secure-bot/internal/features/loyalty"
	"shft.ru/secure-bot/internal/features/members"
)

type fakeSessions struct {
	sessions map[int64]*Session
	failed   map[int64]int
	expired  int64
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[int64]*Session{}, failed: map[int64]int{}}
}

func (f *fakeSessions) CreateSession(_ context.Context, s *Session) error {
	s.IsActive = true
	f.sessions[s.UserID] = s
	return nil
}

func (f *fakeSessions) GetActiveSession(_ context.Context, userID int64) (*Session, error) {
	s, ok := f.sessions[userID]
	if !ok || !s.IsActive || time.Now().After(s.ExpiresAt) {
		return nil, common.ErrSessionExpired
	}
	return s, nil
}

func (f *fakeSessions) DeactivateSession(_ context.Context, userID int64) error {
	delete(f.sessions, userID)
	return nil
}

func (f *fakeSessions) UpdateActivity(context.Context, int64) error { return nil }

func (f *fakeSessions) ExpireSessions(context.Context) (int64, error) { return f.expired, nil }

func (f *fakeSessions) LogAttempt(_ context.Context, userID int64, success bool) error {
	if !success {
		f.failed[userID]++
	}
	return nil
}

func (f *fakeSessions) CountFailedAttempts(_ context.Context, userID int64, _ time.Duration) (int, error) {
	return f.failed[userID], nil
}

type fakeLoyalty struct {
	granted map[int64]int64
}

func (f *fakeLoyalty) GrantPoints(_ context.Context, userID, points int64) (*loyalty.StatusChange, error) {
	if points <= 0 {
		return nil, common.ErrInvalidInput
	}
	f.granted[userID] += points
	return nil, nil
}

func (f *fakeLoyalty) ResyncStatuses(context.Context) ([]loyalty.StatusChange, error) {
	return []loyalty.StatusChange{{UserID: 1}}, nil
}

type fakeMembers struct {
	banned map[int64]bool
}

func (f *fakeMembers) SetBanned(_ context.Context, userID int64, banned bool) (*members.Member, error) {
	if userID == 404 {
		return nil, common.ErrUserNotFound
	}
	f.banned[userID] = banned
	return &members.Member{UserID: userID, FirstName: "Иван", IsBanned: banned}, nil
}

const adminID = 100

// testHash - хеш пароля "secret" с облегчёнными параметрами, чтобы тесты шли быстро.
var testHash = encodeArgon2id("secret", []byte("0123456789abcdef"), 1024, 1, 1, 32)

func newTestService() (*Service, *fakeSessions, *fakeLoyalty, *fakeMembers) {
	sessions := newFakeSessions()
	ly := &fakeLoyalty{granted: map[int64]int64{}}
	mb := &fakeMembers{banned: map[int64]bool{}}
	return NewService(sessions, ly, mb, []int64{adminID}, testHash), sessions, ly, mb
}

func TestVerifyArgon2id(t *testing.T) {
	assert.True(t, verifyArgon2id("secret", testHash))
	assert.False(t, verifyArgon2id("Secret", testHash))
	assert.False(t, verifyArgon2id("secret", "not-a-hash"))
	assert.False(t, verifyArgon2id("secret", "$argon2id$v=19$m=x$a$b"))
}

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("p@ss")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$v=19$m=65536,t=3,p=2$")
	assert.True(t, verifyArgon2id("p@ss", hash))
}

func TestVerifyPassword_Flow(t *testing.T) {
	svc, _, ly, _ := newTestService()
	ctx := context.Background()

	_, err := svc.GrantPoints(ctx, adminID, 5, 100)
	assert.ErrorIs(t, err, common.ErrSessionExpired, "без входа команды недоступны")

	require.NoError(t, svc.VerifyPassword(ctx, adminID, "secret"))
	_, err = svc.GrantPoints(ctx, adminID, 5, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), ly.granted[5])

	require.NoError(t, svc.Logout(ctx, adminID))
	_, err = svc.Resync(ctx, adminID)
	assert.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestVerifyPassword_NotAdmin(t *testing.T) {
	svc, _, _, _ := newTestService()
	assert.ErrorIs(t, svc.VerifyPassword(context.Background(), 1, "secret"), common.ErrNotAdmin)
}

func TestVerifyPassword_TooManyAttempts(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	for range MaxFailedAttempts {
		assert.ErrorIs(t, svc.VerifyPassword(ctx, adminID, "wrong"), common.ErrWrongPassword)
	}
	assert.ErrorIs(t, svc.VerifyPassword(ctx, adminID, "secret"), common.ErrTooManyAttempts)
}

func TestSetBannedAndResync(t *testing.T) {
	svc, _, _, mb := newTestService()
	ctx := context.Background()
	require.NoError(t, svc.VerifyPassword(ctx, adminID, "secret"))

	m, err := svc.SetBanned(ctx, adminID, 7, true)
	require.NoError(t, err)
	assert.True(t, mb.banned[7])
	assert.Equal(t, "Иван", m.DisplayName())

	_, err = svc.SetBanned(ctx, adminID, 404, true)
	assert.ErrorIs(t, err, common.ErrUserNotFound)

	changes, err := svc.Resync(ctx, adminID)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestState(t *testing.T) {
	svc, _, _, _ := newTestService()
	assert.Nil(t, svc.GetState(adminID))

	svc.SetState(adminID, StateAwaitingPassword)
	require.NotNil(t, svc.GetState(adminID))
	assert.Equal(t, StateAwaitingPassword, svc.GetState(adminID).State)

	svc.ClearState(adminID)
	assert.Nil(t, svc.GetState(adminID))
}

func TestParseGrantArgs(t *testing.T) {
	userID, points, err := ParseGrantArgs([]string{"42", "500"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.Equal(t, int64(500), points)

	for _, args := range [][]string{nil, {"42"}, {"x", "1"}, {"42", "0"}, {"42", "-5"}, {"-1", "5"}} {
		_, _, err := ParseGrantArgs(args)
		assert.ErrorIs(t, err, common.ErrInvalidInput, args)
	}
}

func TestSplitCommand(t *testing.T) {
	cmd, args := splitCommand("/Grant@shft_bot 1 2")
	assert.Equal(t, "/grant", cmd)
	assert.Equal(t, []string{"1", "2"}, args)

	cmd, args = splitCommand("   ")
	assert.Empty(t, cmd)
	assert.Nil(t, args)
}
