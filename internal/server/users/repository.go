// Package users is the repository over the users table. A Repository is
// bound to one query target (the pool or a transaction) at construction, so
// services can run several repository calls inside one transaction.
package users

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

// Create inserts the user and fills in the generated id.
func (r *Repository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query, args, err := r.sb.Insert("users").
		Columns("account", "password_hash", "salt", "token_version", "status", "registered_at").
		Values(user.Account, user.PasswordHash, user.Salt, user.TokenVersion, user.Status, user.RegisteredAt).
		Suffix("RETURNING id").ToSql()
	if err != nil {
		return nil, err
	}
	if err := sqlx.GetContext(ctx, r.q, &user.ID, query, args...); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *Repository) GetByAccount(ctx context.Context, account string) (*models.User, error) {
	query, args, err := r.sb.Select("*").From("users").
		Where(sq.Eq{"account": account}).ToSql()
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := sqlx.GetContext(ctx, r.q, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &user, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query, args, err := r.sb.Select("*").From("users").
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := sqlx.GetContext(ctx, r.q, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &user, nil
}

// TouchLogin records a successful login.
func (r *Repository) TouchLogin(ctx context.Context, id int64, ip string, at int64) error {
	query, args, err := r.sb.Update("users").
		Set("last_login_at", at).
		Set("last_login_ip", ip).
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// BumpTokenVersion advances the user's token version, invalidating every
// access token issued so far, and returns the new version.
func (r *Repository) BumpTokenVersion(ctx context.Context, id int64) (int64, error) {
	query, args, err := r.sb.Update("users").
		Set("token_version", sq.Expr("token_version + 1")).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING token_version").ToSql()
	if err != nil {
		return 0, err
	}
	var version int64
	if err := sqlx.GetContext(ctx, r.q, &version, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}

// UpdatePassword replaces the hash and salt and records when it happened.
func (r *Repository) UpdatePassword(ctx context.Context, id int64, hash, salt string, changedAt int64) error {
	query, args, err := r.sb.Update("users").
		Set("password_hash", hash).
		Set("salt", salt).
		Set("password_changed_at", changedAt).
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
