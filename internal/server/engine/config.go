package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

func (t *TenantStore) GetConfig(ctx context.Context, key string) (*string, error) {
	query, args, err := t.e.sb.Select("value").From("user_setting").
		Where(sq.Eq{"user_id": t.uid, "key": key}).ToSql()
	if err != nil {
		return nil, err
	}
	var value string
	err = sqlx.GetContext(ctx, t.e.db, &value, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &value, nil
}

func (t *TenantStore) SetConfig(ctx context.Context, key, value string) error {
	query, args, err := t.e.sb.Insert("user_setting").
		Columns("user_id", "key", "value").
		Values(t.uid, key, value).
		Suffix("ON CONFLICT(user_id, key) DO UPDATE SET value = EXCLUDED.value").ToSql()
	if err != nil {
		return err
	}
	if _, err := t.e.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert setting: %w", err)
	}
	return nil
}

func (t *TenantStore) RemoveConfig(ctx context.Context, key string) error {
	query, args, err := t.e.sb.Delete("user_setting").
		Where(sq.Eq{"user_id": t.uid, "key": key}).ToSql()
	if err != nil {
		return err
	}
	if _, err := t.e.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}

func (t *TenantStore) ListConfigKeys(ctx context.Context) ([]string, error) {
	query, args, err := t.e.sb.Select("key").From("user_setting").
		Where(sq.Eq{"user_id": t.uid}).OrderBy("key").ToSql()
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := sqlx.SelectContext(ctx, t.e.db, &keys, query, args...); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return keys, nil
}
