// Package services contains server-side business logic. This file implements
// UserService: registration, login, refresh-token rotation and the account
// operations that invalidate issued tokens.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/dbx"
	"github.com/plainlyhq/plainly-core/internal/logging"
	"github.com/plainlyhq/plainly-core/internal/server/auth"
	"github.com/plainlyhq/plainly-core/internal/server/config"
	"github.com/plainlyhq/plainly-core/internal/server/models"
	"github.com/plainlyhq/plainly-core/internal/server/sessions"
	"github.com/plainlyhq/plainly-core/internal/server/users"
)

// TokenPair bundles a short-lived access token with the refresh token (and
// the id of the session the refresh token belongs to).
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
}

// SessionMeta is the request context recorded on the session row.
type SessionMeta struct {
	IP        string
	UserAgent string
	DeviceID  string
}

// UserService provides authentication operations on top of the users and
// sessions repositories.
type UserService struct {
	db                           *sqlx.DB
	sb                           sq.StatementBuilderType
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	log                          logging.Logger
}

func NewUserService(db *sqlx.DB, sb sq.StatementBuilderType, cfg *config.Config, log logging.Logger) *UserService {
	if log == nil {
		log = logging.Nop()
	}
	return &UserService{
		db:                           db,
		sb:                           sb,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		log:                          log,
	}
}

// Register creates a new account. A taken account name yields
// ErrAccountExists.
func (s *UserService) Register(ctx context.Context, account, password string) (*models.User, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, fmt.Errorf("%w: account is empty", common.ErrValidation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", common.ErrValidation)
	}

	salt := auth.NewSalt()
	hash, err := auth.HashPassword(password, salt)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = dbx.WithTxx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		repo := users.New(tx, s.sb)
		if _, err := repo.GetByAccount(ctx, account); err == nil {
			return fmt.Errorf("%w: %s", common.ErrAccountExists, account)
		} else if !errorsIsNotFound(err) {
			return err
		}

		user, err = repo.Create(ctx, &models.User{
			Account:      account,
			PasswordHash: hash,
			Salt:         salt,
			TokenVersion: 1,
			Status:       models.UserStatusActive,
			RegisteredAt: time.Now().UnixMilli(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "user registered", "uid", user.ID)
	return user, nil
}

// Login verifies credentials and opens a session. Unknown accounts and wrong
// passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, account, password string, meta SessionMeta) (*TokenPair, *models.User, error) {
	repo := users.New(s.db, s.sb)
	user, err := repo.GetByAccount(ctx, strings.TrimSpace(account))
	if err != nil {
		if errorsIsNotFound(err) {
			// burn the same work as a real check
			_ = auth.VerifyPassword(password, auth.NewSalt(), "")
			return nil, nil, common.ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !auth.VerifyPassword(password, user.Salt, user.PasswordHash) {
		return nil, nil, common.ErrInvalidCredentials
	}
	if user.Status != models.UserStatusActive {
		return nil, nil, fmt.Errorf("%w: account disabled", common.ErrUnauthorized)
	}

	var pair *TokenPair
	err = dbx.WithTxx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		pair, err = s.openSession(ctx, tx, user, meta)
		if err != nil {
			return err
		}
		now := time.Now().UnixMilli()
		if err := users.New(tx, s.sb).TouchLogin(ctx, user.ID, meta.IP, now); err != nil {
			return err
		}
		user.LastLoginAt = sql.NullInt64{Int64: now, Valid: true}
		user.LastLoginIP = sql.NullString{String: meta.IP, Valid: true}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Info(ctx, "user logged in", "uid", user.ID, "session", pair.SessionID)
	return pair, user, nil
}

// Refresh rotates the refresh token behind a session and mints a new access
// token carrying the user's current token version. Revoked or tampered
// tokens yield ErrInvalidToken; expired ones ErrRefreshTokenExpired.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	sid, err := auth.ParseRefreshToken(refreshToken, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	var pair *TokenPair
	err = dbx.WithTxx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		repo := sessions.New(tx, s.sb)
		session, err := repo.Find(ctx, sid)
		if err != nil {
			if errorsIsNotFound(err) {
				return common.ErrInvalidToken
			}
			return err
		}
		now := time.Now().UnixMilli()
		if session.RevokedAt.Valid {
			return common.ErrInvalidToken
		}
		if session.ExpiresAt < now {
			return common.ErrRefreshTokenExpired
		}
		if auth.HashToken(refreshToken) != session.RefreshTokenHash {
			// a rotated-away token is being replayed; kill the session
			if err := repo.Revoke(ctx, sid, now); err != nil {
				return err
			}
			return common.ErrInvalidToken
		}

		user, err := users.New(tx, s.sb).GetByID(ctx, session.UID)
		if err != nil {
			return err
		}
		if user.Status != models.UserStatusActive {
			return fmt.Errorf("%w: account disabled", common.ErrUnauthorized)
		}

		newRefresh, err := auth.GenerateRefreshToken(sid, s.jwtSecret, s.refreshTokenValidityDuration)
		if err != nil {
			return err
		}
		expiresAt := time.Now().Add(s.refreshTokenValidityDuration).UnixMilli()
		if err := repo.Rotate(ctx, sid, auth.HashToken(newRefresh), expiresAt, now); err != nil {
			return err
		}
		access, err := auth.GenerateAccessToken(user.ID, user.TokenVersion, s.jwtSecret, s.accessTokenValidityDuration)
		if err != nil {
			return err
		}
		pair = &TokenPair{AccessToken: access, RefreshToken: newRefresh, SessionID: sid}

		// opportunistic cleanup of long-dead sessions
		_, _ = repo.DeleteExpired(ctx, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes the session behind the refresh token. An expired or invalid
// token has nothing left to revoke and is not an error.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	sid, err := auth.ParseRefreshToken(refreshToken, s.jwtSecret)
	if err != nil {
		return nil
	}
	return sessions.New(s.db, s.sb).Revoke(ctx, sid, time.Now().UnixMilli())
}

// LogoutAll revokes every session of the user and bumps the token version so
// outstanding access tokens die too.
func (s *UserService) LogoutAll(ctx context.Context, uid int64) error {
	return dbx.WithTxx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := sessions.New(tx, s.sb).RevokeAll(ctx, uid, time.Now().UnixMilli()); err != nil {
			return err
		}
		_, err := users.New(tx, s.sb).BumpTokenVersion(ctx, uid)
		return err
	})
}

// ChangePassword verifies the current password, stores the new hash and
// bumps the token version. Sessions stay alive; their next refresh picks up
// the new version.
func (s *UserService) ChangePassword(ctx context.Context, uid int64, current, next string) error {
	if len(next) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", common.ErrValidation)
	}
	return dbx.WithTxx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		repo := users.New(tx, s.sb)
		user, err := repo.GetByID(ctx, uid)
		if err != nil {
			return err
		}
		if !auth.VerifyPassword(current, user.Salt, user.PasswordHash) {
			return common.ErrInvalidCredentials
		}

		salt := auth.NewSalt()
		hash, err := auth.HashPassword(next, salt)
		if err != nil {
			return err
		}
		if err := repo.UpdatePassword(ctx, uid, hash, salt, time.Now().UnixMilli()); err != nil {
			return err
		}
		_, err = repo.BumpTokenVersion(ctx, uid)
		return err
	})
}

// GetUser loads a user by id, for middleware validating access tokens.
func (s *UserService) GetUser(ctx context.Context, uid int64) (*models.User, error) {
	return users.New(s.db, s.sb).GetByID(ctx, uid)
}

func (s *UserService) openSession(ctx context.Context, tx *sqlx.Tx, user *models.User, meta SessionMeta) (*TokenPair, error) {
	sid := uuid.NewString()
	refresh, err := auth.GenerateRefreshToken(sid, s.jwtSecret, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	session := &models.Session{
		ID:               sid,
		UID:              user.ID,
		RefreshTokenHash: auth.HashToken(refresh),
		CreatedAt:        now.UnixMilli(),
		ExpiresAt:        now.Add(s.refreshTokenValidityDuration).UnixMilli(),
		LastSeenAt:       sql.NullInt64{Int64: now.UnixMilli(), Valid: true},
	}
	if meta.IP != "" {
		session.IP = sql.NullString{String: meta.IP, Valid: true}
	}
	if meta.UserAgent != "" {
		session.UserAgent = sql.NullString{String: meta.UserAgent, Valid: true}
	}
	if meta.DeviceID != "" {
		session.DeviceID = sql.NullString{String: meta.DeviceID, Valid: true}
	}
	if err := sessions.New(tx, s.sb).Create(ctx, session); err != nil {
		return nil, err
	}

	access, err := auth.GenerateAccessToken(user.ID, user.TokenVersion, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, SessionID: sid}, nil
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
