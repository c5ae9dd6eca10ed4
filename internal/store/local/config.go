package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Config rows are per-tenant device settings; they carry no source tag
// because a setting has no remote counterpart to mirror.

func (e *Engine) GetConfig(ctx context.Context, key string) (*string, error) {
	var value string
	err := e.db.QueryRowContext(ctx, `
		SELECT value FROM user_setting WHERE user_id = ? AND key = ?`,
		e.uid, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select setting: %w", err)
	}
	return &value, nil
}

func (e *Engine) SetConfig(ctx context.Context, key, value string) error {
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO user_setting (user_id, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value`,
		e.uid, key, value)
	if err != nil {
		return fmt.Errorf("failed to upsert setting: %w", err)
	}
	e.notify("config", key)
	return nil
}

func (e *Engine) RemoveConfig(ctx context.Context, key string) error {
	_, err := e.db.ExecContext(ctx, `
		DELETE FROM user_setting WHERE user_id = ? AND key = ?`,
		e.uid, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	e.notify("config", key)
	return nil
}

func (e *Engine) ListConfigKeys(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT key FROM user_setting WHERE user_id = ? ORDER BY key`,
		e.uid)
	if err != nil {
		return nil, fmt.Errorf("failed to select setting keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
