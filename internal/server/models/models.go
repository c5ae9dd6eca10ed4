// Package models holds the row types of the relational engine's six tables.
// Fields map 1:1 onto columns via sqlx db tags; timestamps are unix millis.
package models

import "database/sql"

// User is a row of the users table. TokenVersion starts at 1 and is bumped
// on password change and global sign-out, invalidating all issued access
// tokens at once.
type User struct {
	ID                int64          `db:"id"`
	Account           string         `db:"account"`
	PasswordHash      string         `db:"password_hash"`
	Salt              string         `db:"salt"`
	TokenVersion      int64          `db:"token_version"`
	Status            int            `db:"status"`
	RegisteredAt      int64          `db:"registered_at"`
	LastLoginAt       sql.NullInt64  `db:"last_login_at"`
	LastLoginIP       sql.NullString `db:"last_login_ip"`
	PasswordChangedAt sql.NullInt64  `db:"password_changed_at"`
}

// UserStatusActive/Disabled are the values of User.Status.
const (
	UserStatusDisabled = 0
	UserStatusActive   = 1
)

// Session is a row of the user_sessions table. The refresh token itself is
// never stored, only its SHA-256 hex. A session is rotated (new id, new
// hash) on every successful refresh and revoked on logout.
type Session struct {
	ID               string         `db:"id"`
	UID              int64          `db:"user_id"`
	RefreshTokenHash string         `db:"refresh_token_hash"`
	CreatedAt        int64          `db:"created_at"`
	ExpiresAt        int64          `db:"expires_at"`
	RevokedAt        sql.NullInt64  `db:"revoked_at"`
	LastSeenAt       sql.NullInt64  `db:"last_seen_at"`
	IP               sql.NullString `db:"ip"`
	UserAgent        sql.NullString `db:"ua"`
	DeviceID         sql.NullString `db:"device_id"`
}

// CategoryRow is a row of the categories table. RowID is the tenant-scoped
// surrogate integer used by document foreign keys; CategoryID is the public
// UUID.
type CategoryRow struct {
	RowID      int64  `db:"id"`
	UID        int64  `db:"user_id"`
	CategoryID string `db:"category_id"`
	Name       string `db:"name"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
	Version    int64  `db:"version"`
}

// DocumentRow is a row of the documents table. It carries the category
// reference twice: CategoryRowID for the integer FK and CategoryID for the
// public UUID. ContentNorm is the lower-cased visible text used for
// substring search, nullable until backfilled.
type DocumentRow struct {
	RowID         int64          `db:"id"`
	UID           int64          `db:"user_id"`
	DocumentID    string         `db:"document_id"`
	Name          string         `db:"name"`
	CategoryRowID int64          `db:"category"`
	CategoryID    string         `db:"category_id"`
	CreatedAt     int64          `db:"created_at"`
	UpdatedAt     int64          `db:"updated_at"`
	CharCount     sql.NullInt64  `db:"char_count"`
	ContentNorm   sql.NullString `db:"content_norm"`
	Version       int64          `db:"version"`
}

// ContentRow is a row of the document_content table, keyed by the document's
// surrogate row id plus the tenant.
type ContentRow struct {
	DocumentRowID int64  `db:"document_row_id"`
	UID           int64  `db:"user_id"`
	Content       string `db:"content"`
}

// SettingRow is a row of the user_setting table.
type SettingRow struct {
	UID   int64  `db:"user_id"`
	Key   string `db:"key"`
	Value string `db:"value"`
}
