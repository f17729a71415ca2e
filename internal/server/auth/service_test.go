package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/authkeeper/internal/kvstore"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/users"
)

func newTestService(t *testing.T) (*Service, *users.Service, *mail.CaptureSender) {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	cfg.ResetEmailBody = "code={reset_code} minutes={reset_code_expire_minutes}"

	factory := kvstore.NewInMemoryFactory()
	userSvc := users.NewService(factory)
	sender := mail.NewCaptureSender()

	return NewService(userSvc, factory, sender, logging.NewDefault(), cfg), userSvc, sender
}

func registerAlice(t *testing.T, userSvc *users.Service) {
	t.Helper()
	err := userSvc.Register(context.Background(), &models.User{
		Username: "alice",
		Email:    "alice@example.com",
		Name:     "Alice",
		Password: "password1",
		Roles:    []string{"user"},
	})
	require.NoError(t, err)
}

func TestAuthorizeAndDecode(t *testing.T) {
	ctx := context.Background()
	svc, userSvc, _ := newTestService(t)
	registerAlice(t, userSvc)

	pair, err := svc.Authorize(ctx, "alice", "password1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := svc.Decode(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, []string{"user"}, claims.Roles)
}

func TestAuthorizeIncorrectCredentials(t *testing.T) {
	ctx := context.Background()
	svc, userSvc, _ := newTestService(t)
	registerAlice(t, userSvc)

	_, err := svc.Authorize(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, users.ErrIncorrectCredentials)

	_, err = svc.Authorize(ctx, "nobody", "password1")
	assert.ErrorIs(t, err, users.ErrIncorrectCredentials)
}

func TestRefreshIsSingleUse(t *testing.T) {
	ctx := context.Background()
	svc, userSvc, _ := newTestService(t)
	registerAlice(t, userSvc)

	pair, err := svc.Authorize(ctx, "alice", "password1")
	require.NoError(t, err)

	fresh, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)
	assert.NotEqual(t, pair.RefreshToken, fresh.RefreshToken)

	claims, err := svc.Decode(fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	// replaying the consumed token must fail
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// the new token is unaffected by the replay attempt
	_, err = svc.Refresh(ctx, fresh.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Refresh(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	svc, userSvc, _ := newTestService(t)
	registerAlice(t, userSvc)

	pair, err := svc.Authorize(ctx, "alice", "password1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// logging out twice hits the existing blacklist entry
	err = svc.Logout(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestLogoutExpiredTokenIsNoop(t *testing.T) {
	svc, _, _ := newTestService(t)

	token, err := generateToken(Claims{}, svc.secretKey, -time.Minute)
	require.NoError(t, err)

	assert.NoError(t, svc.Logout(context.Background(), token))
}

func TestSeedDefaultUser(t *testing.T) {
	ctx := context.Background()
	svc, userSvc, _ := newTestService(t)

	admin := &models.User{Username: "admin", Password: "admin", Roles: []string{"admin"}}
	require.NoError(t, svc.SeedDefaultUser(ctx, admin))

	_, err := svc.Authorize(ctx, "admin", "admin")
	require.NoError(t, err)

	// a non-empty store is left alone
	require.NoError(t, svc.SeedDefaultUser(ctx, &models.User{Username: "admin2", Password: "x"}))
	_, err = userSvc.Get(ctx, "admin2")
	assert.ErrorIs(t, err, users.ErrUserNotFound)
}

func capturedResetCode(t *testing.T, sender *mail.CaptureSender) string {
	t.Helper()
	msg, ok := sender.Last()
	require.True(t, ok)
	body, _, found := strings.Cut(strings.TrimPrefix(msg.Body, "code="), " ")
	require.True(t, found)
	return body
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	svc, userSvc, sender := newTestService(t)
	registerAlice(t, userSvc)

	require.NoError(t, svc.RequestPasswordReset(ctx, "alice@example.com"))

	msg, ok := sender.Last()
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", msg.Recipient)
	assert.Contains(t, msg.Body, "minutes=15")

	code := capturedResetCode(t, sender)
	require.NoError(t, svc.ResetPassword(ctx, "alice@example.com", code, "password2"))

	_, err := svc.Authorize(ctx, "alice", "password1")
	assert.ErrorIs(t, err, users.ErrIncorrectCredentials)
	_, err = svc.Authorize(ctx, "alice", "password2")
	assert.NoError(t, err)

	// a consumed code cannot be used again
	err = svc.ResetPassword(ctx, "alice@example.com", code, "password3")
	assert.ErrorIs(t, err, ErrResetCode)
}

func TestRequestPasswordResetReplacesCode(t *testing.T) {
	ctx := context.Background()
	svc, userSvc, sender := newTestService(t)
	registerAlice(t, userSvc)

	require.NoError(t, svc.RequestPasswordReset(ctx, "alice@example.com"))
	first := capturedResetCode(t, sender)

	require.NoError(t, svc.RequestPasswordReset(ctx, "alice@example.com"))
	second := capturedResetCode(t, sender)
	require.NotEqual(t, first, second)

	err := svc.ResetPassword(ctx, "alice@example.com", first, "password2")
	assert.ErrorIs(t, err, ErrResetCode)
	assert.NoError(t, svc.ResetPassword(ctx, "alice@example.com", second, "password2"))
}

func TestResetPasswordWrongCode(t *testing.T) {
	ctx := context.Background()
	svc, userSvc, _ := newTestService(t)
	registerAlice(t, userSvc)

	require.NoError(t, svc.RequestPasswordReset(ctx, "alice@example.com"))

	err := svc.ResetPassword(ctx, "alice@example.com", "bogus", "password2")
	assert.ErrorIs(t, err, ErrResetCode)

	// no code pending at all
	err = svc.ResetPassword(ctx, "alice@example.com", "", "password2")
	assert.ErrorIs(t, err, ErrResetCode)
}

func TestResetPasswordExpiredCode(t *testing.T) {
	ctx := context.Background()
	svc, userSvc, _ := newTestService(t)
	registerAlice(t, userSvc)

	require.NoError(t, userSvc.SetResetCode(ctx, "alice", "stale-code", time.Now().Add(-time.Minute)))

	err := svc.ResetPassword(ctx, "alice@example.com", "stale-code", "password2")
	assert.ErrorIs(t, err, ErrResetCodeExpired)

	// the credential is untouched by the failed attempt
	_, err = svc.Authorize(ctx, "alice", "password1")
	assert.NoError(t, err)
	_, err = svc.Authorize(ctx, "alice", "password2")
	assert.ErrorIs(t, err, users.ErrIncorrectCredentials)
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	svc, _, sender := newTestService(t)

	err := svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, users.ErrUserNotFound)
	assert.Empty(t, sender.Messages())
}

func TestSweepBlacklist(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	require.NoError(t, svc.blacklist.Create(ctx, "stale", &models.BlacklistEntry{Token: "stale", Exp: past}))
	require.NoError(t, svc.blacklist.Create(ctx, "live", &models.BlacklistEntry{Token: "live", Exp: future}))

	require.NoError(t, svc.SweepBlacklist(ctx))

	all, err := svc.blacklist.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "live")
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, userSvc, _ := newTestService(t)
	registerAlice(t, userSvc)

	err := svc.ChangePassword(ctx, "alice", "wrong", "password2")
	assert.ErrorIs(t, err, users.ErrIncorrectOldPassword)

	require.NoError(t, svc.ChangePassword(ctx, "alice", "password1", "password2"))
	_, err = svc.Authorize(ctx, "alice", "password2")
	assert.NoError(t, err)
}
