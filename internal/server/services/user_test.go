package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/server/auth"
	"github.com/plainlyhq/plainly-core/internal/server/config"
	"github.com/plainlyhq/plainly-core/internal/server/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T) *UserService {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.db")
	e, err := engine.Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	cfg := &config.Config{
		SecretKey:                    "test-secret",
		AccessTokenValidityDuration:  time.Minute,
		RefreshTokenValidityDuration: time.Hour,
	}
	return NewUserService(e.DB(), sq.StatementBuilder.PlaceholderFormat(sq.Question), cfg, nil)
}

func TestRegister(t *testing.T) {
	s := newUserService(t)
	ctx := context.Background()

	user, err := s.Register(ctx, "alice", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Account)
	assert.Equal(t, int64(1), user.TokenVersion)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotEqual(t, "correct horse battery", user.PasswordHash)

	_, err = s.Register(ctx, "alice", "another password")
	assert.ErrorIs(t, err, common.ErrAccountExists)

	_, err = s.Register(ctx, "", "long enough pw")
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = s.Register(ctx, "bob", "short")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestLogin(t *testing.T) {
	s := newUserService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "alice", "correct horse battery")
	require.NoError(t, err)

	pair, user, err := s.Login(ctx, "alice", "correct horse battery", SessionMeta{IP: "10.0.0.1", UserAgent: "cli"})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEmpty(t, pair.SessionID)
	assert.True(t, user.LastLoginAt.Valid)
	assert.Equal(t, "10.0.0.1", user.LastLoginIP.String)

	at, err := auth.ParseAccessToken(pair.AccessToken, []byte("test-secret"))
	require.NoError(t, err)
	assert.Equal(t, user.ID, at.UID)
	assert.Equal(t, int64(1), at.Ver)

	_, _, err = s.Login(ctx, "alice", "wrong password!", SessionMeta{})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	_, _, err = s.Login(ctx, "nobody", "whatever it is", SessionMeta{})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestRefresh_RotatesToken(t *testing.T) {
	s := newUserService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "alice", "correct horse battery")
	require.NoError(t, err)
	pair, _, err := s.Login(ctx, "alice", "correct horse battery", SessionMeta{})
	require.NoError(t, err)

	rotated, err := s.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.SessionID, rotated.SessionID)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// replaying the rotated-away token kills the session
	_, err = s.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	_, err = s.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestRefresh_RejectsGarbage(t *testing.T) {
	s := newUserService(t)
	_, err := s.Refresh(context.Background(), "not a token")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestLogout(t *testing.T) {
	s := newUserService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "alice", "correct horse battery")
	require.NoError(t, err)
	pair, _, err := s.Login(ctx, "alice", "correct horse battery", SessionMeta{})
	require.NoError(t, err)

	require.NoError(t, s.Logout(ctx, pair.RefreshToken))
	_, err = s.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	// logging out twice or with garbage is fine
	require.NoError(t, s.Logout(ctx, pair.RefreshToken))
	require.NoError(t, s.Logout(ctx, "not a token"))
}

func TestLogoutAll_BumpsTokenVersion(t *testing.T) {
	s := newUserService(t)
	ctx := context.Background()

	user, err := s.Register(ctx, "alice", "correct horse battery")
	require.NoError(t, err)
	a, _, err := s.Login(ctx, "alice", "correct horse battery", SessionMeta{DeviceID: "laptop"})
	require.NoError(t, err)
	b, _, err := s.Login(ctx, "alice", "correct horse battery", SessionMeta{DeviceID: "phone"})
	require.NoError(t, err)

	require.NoError(t, s.LogoutAll(ctx, user.ID))

	_, err = s.Refresh(ctx, a.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	_, err = s.Refresh(ctx, b.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	fresh, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fresh.TokenVersion)
}

func TestChangePassword(t *testing.T) {
	s := newUserService(t)
	ctx := context.Background()

	user, err := s.Register(ctx, "alice", "correct horse battery")
	require.NoError(t, err)

	err = s.ChangePassword(ctx, user.ID, "wrong current pw", "a whole new password")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	err = s.ChangePassword(ctx, user.ID, "correct horse battery", "tiny")
	assert.ErrorIs(t, err, common.ErrValidation)

	require.NoError(t, s.ChangePassword(ctx, user.ID, "correct horse battery", "a whole new password"))

	_, _, err = s.Login(ctx, "alice", "correct horse battery", SessionMeta{})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	_, _, err = s.Login(ctx, "alice", "a whole new password", SessionMeta{})
	require.NoError(t, err)

	fresh, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fresh.TokenVersion)
	assert.True(t, fresh.PasswordChangedAt.Valid)
}
