// Package sessions is the repository over the user_sessions table. Sessions
// back refresh tokens: the row stores only the SHA-256 of the current token,
// and rotation swaps that hash in place while keeping the session id.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/server/models"
)

type Repository struct {
	q  sqlx.ExtContext
	sb sq.StatementBuilderType
}

func New(q sqlx.ExtContext, sb sq.StatementBuilderType) *Repository {
	return &Repository{q: q, sb: sb}
}

func (r *Repository) Create(ctx context.Context, s *models.Session) error {
	query, args, err := r.sb.Insert("user_sessions").
		Columns("id", "user_id", "refresh_token_hash", "created_at", "expires_at",
			"last_seen_at", "ip", "ua", "device_id").
		Values(s.ID, s.UID, s.RefreshTokenHash, s.CreatedAt, s.ExpiresAt,
			s.LastSeenAt, s.IP, s.UserAgent, s.DeviceID).ToSql()
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *Repository) Find(ctx context.Context, id string) (*models.Session, error) {
	query, args, err := r.sb.Select("*").From("user_sessions").
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	var s models.Session
	if err := sqlx.GetContext(ctx, r.q, &s, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &s, nil
}

// Rotate swaps in the hash of a freshly issued refresh token and extends the
// session's lifetime.
func (r *Repository) Rotate(ctx context.Context, id, tokenHash string, expiresAt, seenAt int64) error {
	query, args, err := r.sb.Update("user_sessions").
		Set("refresh_token_hash", tokenHash).
		Set("expires_at", expiresAt).
		Set("last_seen_at", seenAt).
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Revoke marks one session revoked. Revoking an already revoked or missing
// session is a no-op.
func (r *Repository) Revoke(ctx context.Context, id string, at int64) error {
	query, args, err := r.sb.Update("user_sessions").
		Set("revoked_at", at).
		Where(sq.Eq{"id": id}).
		Where("revoked_at IS NULL").ToSql()
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RevokeAll revokes every live session of one user.
func (r *Repository) RevokeAll(ctx context.Context, uid, at int64) error {
	query, args, err := r.sb.Update("user_sessions").
		Set("revoked_at", at).
		Where(sq.Eq{"user_id": uid}).
		Where("revoked_at IS NULL").ToSql()
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions whose expiry has passed.
func (r *Repository) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	query, args, err := r.sb.Delete("user_sessions").
		Where(sq.Lt{"expires_at": now}).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// ListByUser returns the user's sessions, newest first.
func (r *Repository) ListByUser(ctx context.Context, uid int64) ([]models.Session, error) {
	query, args, err := r.sb.Select("*").From("user_sessions").
		Where(sq.Eq{"user_id": uid}).
		OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, err
	}
	var result []models.Session
	if err := sqlx.SelectContext(ctx, r.q, &result, query, args...); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
