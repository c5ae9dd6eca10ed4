// Package migrate upgrades relational databases that still carry the legacy
// single-tenant, integer-keyed schema to the multi-tenant UUID-keyed shape.
//
// The decision to migrate is cheap: a schema-version marker in user_setting
// is checked first, and only when it is absent does the engine fall back to
// probing live column names (pre-versioned deployments). The categories
// rebuild itself uses a shadow table: build categories_new, copy and rewrite
// every row, re-point document references, then swap the tables. The whole
// pass runs in one transaction with foreign keys suspended, and is
// re-entrant — an interrupted attempt leaves only the shadow table behind,
// which the next run drops and rebuilds.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/dbx"
	"github.com/plainlyhq/plainly-core/internal/logging"
	"github.com/plainlyhq/plainly-core/internal/store"
)

// SchemaVersionKey is the user_setting key (tenant 0) holding the schema
// version marker.
const SchemaVersionKey = "core.schema_version"

// SchemaVersion is the current marker value.
const SchemaVersion = "2"

// Run brings the database to the current schema shape. It must complete
// before the engine serves traffic; any failure is fatal.
func Run(ctx context.Context, db *sqlx.DB, dialect string, log logging.Logger) error {
	if log == nil {
		log = logging.Nop()
	}
	sb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if dialect == "postgres" {
		sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}

	marker, err := readMarker(ctx, db, sb)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrMigration, err)
	}
	if marker == SchemaVersion {
		return nil
	}

	if dialect == "postgres" {
		// postgres deployments never predate the versioned schema
		if err := writeMarker(ctx, db, sb); err != nil {
			return fmt.Errorf("%w: %v", common.ErrMigration, err)
		}
		return nil
	}

	legacy, err := probeLegacy(ctx, db)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrMigration, err)
	}
	if legacy {
		log.Info(ctx, "legacy schema detected, rebuilding", "dialect", dialect)
		if err := rebuild(ctx, db, log); err != nil {
			return fmt.Errorf("%w: %v", common.ErrMigration, err)
		}
		log.Info(ctx, "legacy schema rebuild complete")
	}

	// deferred from the base migration: a legacy documents table lacks
	// these columns until the upgrade pass above has run
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_documents_user_created ON documents (user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_user_category ON documents (user_id, category_id)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", common.ErrMigration, err)
		}
	}

	if err := writeMarker(ctx, db, sb); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMigration, err)
	}
	return nil
}

func readMarker(ctx context.Context, db *sqlx.DB, sb sq.StatementBuilderType) (string, error) {
	query, args, err := sb.Select("value").From("user_setting").
		Where(sq.Eq{"user_id": 0, "key": SchemaVersionKey}).ToSql()
	if err != nil {
		return "", err
	}
	var value string
	err = sqlx.GetContext(ctx, db, &value, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func writeMarker(ctx context.Context, db *sqlx.DB, sb sq.StatementBuilderType) error {
	query, args, err := sb.Insert("user_setting").
		Columns("user_id", "key", "value").
		Values(0, SchemaVersionKey, SchemaVersion).
		Suffix("ON CONFLICT(user_id, key) DO UPDATE SET value = EXCLUDED.value").ToSql()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, query, args...)
	return err
}

// probeLegacy inspects live column names. The legacy shape is integer-only:
// categories without a category_id (or user_id) column.
func probeLegacy(ctx context.Context, db *sqlx.DB) (bool, error) {
	cols, err := tableColumns(ctx, db, "categories")
	if err != nil {
		return false, err
	}
	if len(cols) == 0 {
		return false, nil
	}
	return !cols["category_id"] || !cols["user_id"], nil
}

func tableColumns(ctx context.Context, q dbx.DBTX, name string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var colName, colType string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[colName] = true
	}
	return cols, rows.Err()
}

type catKey struct {
	uid   int64
	oldID int64
}

type catRef struct {
	rowID int64
	uuid  string
}

func rebuild(ctx context.Context, db *sqlx.DB, log logging.Logger) error {
	// sqlite cannot toggle foreign_keys inside a transaction
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
		return err
	}
	defer func() {
		_, _ = db.ExecContext(context.WithoutCancel(ctx), `PRAGMA foreign_keys = ON`)
	}()

	return dbx.WithTxx(ctx, db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		remap, err := rebuildCategories(ctx, tx)
		if err != nil {
			return err
		}
		if err := ensureMigrationUser(ctx, tx); err != nil {
			return err
		}
		defaults, err := ensureDefaultCategories(ctx, tx, remap)
		if err != nil {
			return err
		}
		if err := upgradeDocuments(ctx, tx, remap, defaults, log); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DROP TABLE categories`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `ALTER TABLE categories_new RENAME TO categories`); err != nil {
			return err
		}
		return nil
	})
}

// rebuildCategories builds the shadow table and copies every legacy row into
// it, synthesizing tenant ids and UUIDs, deduplicating by (tenant, name) and
// returning the (tenant, old id) → new reference map.
func rebuildCategories(ctx context.Context, tx *sqlx.Tx) (map[catKey]catRef, error) {
	// drop leftovers of an interrupted attempt rather than trusting them
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS categories_new`); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE categories_new (
			id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			category_id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (user_id, id),
			UNIQUE (user_id, category_id),
			UNIQUE (user_id, name)
		)`); err != nil {
		return nil, err
	}

	cols, err := tableColumns(ctx, tx, "categories")
	if err != nil {
		return nil, err
	}

	query := `SELECT id, name`
	if cols["user_id"] {
		query += `, user_id`
	}
	if cols["category_id"] {
		query += `, category_id`
	}
	if cols["created_at"] {
		query += `, created_at`
	}
	if cols["updated_at"] {
		query += `, updated_at`
	}
	query += ` FROM categories ORDER BY id`

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type legacyCat struct {
		id        int64
		name      string
		uid       int64
		uuid      string
		createdAt int64
		updatedAt int64
	}
	var cats []legacyCat
	for rows.Next() {
		var c legacyCat
		var name sql.NullString
		var uid, createdAt, updatedAt sql.NullInt64
		var uuid sql.NullString

		dest := []any{&c.id, &name}
		if cols["user_id"] {
			dest = append(dest, &uid)
		}
		if cols["category_id"] {
			dest = append(dest, &uuid)
		}
		if cols["created_at"] {
			dest = append(dest, &createdAt)
		}
		if cols["updated_at"] {
			dest = append(dest, &updatedAt)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		c.name = name.String
		c.uid = uid.Int64
		if !uid.Valid || c.uid == 0 {
			c.uid = common.MigrationUserID
		}
		c.uuid = store.CanonicalID(uuid.String)
		c.createdAt = createdAt.Int64
		c.updatedAt = updatedAt.Int64
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	remap := make(map[catKey]catRef)
	type nameKey struct {
		uid  int64
		name string
	}
	seen := make(map[nameKey]catRef)
	nextID := make(map[int64]int64)

	for _, c := range cats {
		if c.name == "" {
			c.name = fmt.Sprintf("Category %d", c.id)
		}
		if ref, ok := seen[nameKey{c.uid, c.name}]; ok {
			remap[catKey{c.uid, c.id}] = ref
			continue
		}

		nextID[c.uid]++
		ref := catRef{rowID: nextID[c.uid], uuid: c.uuid}
		if ref.uuid == "" {
			ref.uuid = store.NewID()
		}
		createdAt := c.createdAt
		if createdAt == 0 {
			createdAt = now
		}
		updatedAt := c.updatedAt
		if updatedAt == 0 {
			updatedAt = createdAt
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO categories_new (id, user_id, category_id, name, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?, 1)`,
			ref.rowID, c.uid, ref.uuid, c.name, createdAt, updatedAt); err != nil {
			return nil, fmt.Errorf("failed to copy category %d: %w", c.id, err)
		}
		seen[nameKey{c.uid, c.name}] = ref
		remap[catKey{c.uid, c.id}] = ref
	}
	return remap, nil
}

func ensureMigrationUser(ctx context.Context, tx *sqlx.Tx) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO users (id, account, password_hash, salt, token_version, status, registered_at)
		VALUES (?, 'migrated', '', '', 1, 0, ?)`,
		common.MigrationUserID, time.Now().UnixMilli())
	return err
}

// ensureDefaultCategories guarantees every tenant seen during the rebuild
// (plus the migration tenant) owns the canonical default category in the
// shadow table, and returns the per-tenant default reference.
func ensureDefaultCategories(ctx context.Context, tx *sqlx.Tx, remap map[catKey]catRef) (map[int64]catRef, error) {
	uids := map[int64]bool{common.MigrationUserID: true}
	for key := range remap {
		uids[key.uid] = true
	}

	now := time.Now().UnixMilli()
	defaults := make(map[int64]catRef)
	for uid := range uids {
		var ref catRef
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM categories_new WHERE user_id = ? AND category_id = ?`,
			uid, store.DefaultCategoryID).Scan(&ref.rowID)
		if err == nil {
			ref.uuid = store.DefaultCategoryID
			defaults[uid] = ref
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		var next int64
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(id), 0) + 1 FROM categories_new WHERE user_id = ?`, uid).Scan(&next); err != nil {
			return nil, err
		}
		name := store.DefaultCategoryName
		for i := 2; ; i++ {
			var n int
			if err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM categories_new WHERE user_id = ? AND name = ?`, uid, name).Scan(&n); err != nil {
				return nil, err
			}
			if n == 0 {
				break
			}
			name = fmt.Sprintf("%s (%d)", store.DefaultCategoryName, i)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO categories_new (id, user_id, category_id, name, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?, 1)`,
			next, uid, store.DefaultCategoryID, name, now, now); err != nil {
			return nil, err
		}
		defaults[uid] = catRef{rowID: next, uuid: store.DefaultCategoryID}
	}
	return defaults, nil
}

// upgradeDocuments adds the multi-tenant columns the legacy documents table
// lacks, mints document UUIDs, re-points category references through remap
// (default category when a mapping is missing) and moves inline content into
// document_content.
func upgradeDocuments(ctx context.Context, tx *sqlx.Tx, remap map[catKey]catRef, defaults map[int64]catRef, log logging.Logger) error {
	cols, err := tableColumns(ctx, tx, "documents")
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}

	alters := []struct {
		col  string
		stmt string
	}{
		{"user_id", `ALTER TABLE documents ADD COLUMN user_id INTEGER NOT NULL DEFAULT 1`},
		{"document_id", `ALTER TABLE documents ADD COLUMN document_id TEXT NOT NULL DEFAULT ''`},
		{"category", `ALTER TABLE documents ADD COLUMN category INTEGER NOT NULL DEFAULT 0`},
		{"category_id", `ALTER TABLE documents ADD COLUMN category_id TEXT NOT NULL DEFAULT ''`},
		{"created_at", `ALTER TABLE documents ADD COLUMN created_at INTEGER NOT NULL DEFAULT 0`},
		{"updated_at", `ALTER TABLE documents ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0`},
		{"char_count", `ALTER TABLE documents ADD COLUMN char_count INTEGER`},
		{"content_norm", `ALTER TABLE documents ADD COLUMN content_norm TEXT`},
		{"version", `ALTER TABLE documents ADD COLUMN version INTEGER NOT NULL DEFAULT 1`},
	}
	for _, a := range alters {
		if cols[a.col] {
			continue
		}
		if _, err := tx.ExecContext(ctx, a.stmt); err != nil {
			return fmt.Errorf("failed to add %s: %w", a.col, err)
		}
	}

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET created_at = ? WHERE created_at = 0`, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET updated_at = created_at WHERE updated_at = 0`); err != nil {
		return err
	}

	// mint UUIDs row by row; each write re-checks shape so reruns are safe
	rows, err := tx.QueryContext(ctx, `SELECT id FROM documents WHERE document_id = ''`)
	if err != nil {
		return err
	}
	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		missing = append(missing, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range missing {
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET document_id = ? WHERE id = ?`, store.NewID(), id); err != nil {
			return err
		}
	}

	// re-point category references
	type docRef struct {
		id     int64
		uid    int64
		oldCat int64
	}
	rows, err = tx.QueryContext(ctx, `SELECT id, user_id, category FROM documents WHERE category_id = ''`)
	if err != nil {
		return err
	}
	var docs []docRef
	for rows.Next() {
		var d docRef
		if err := rows.Scan(&d.id, &d.uid, &d.oldCat); err != nil {
			rows.Close()
			return err
		}
		docs = append(docs, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range docs {
		ref, ok := remap[catKey{d.uid, d.oldCat}]
		if !ok {
			ref, ok = defaults[d.uid]
			if !ok {
				// tenant unseen during the category walk
				defs, err := ensureDefaultCategories(ctx, tx, map[catKey]catRef{{uid: d.uid}: {}})
				if err != nil {
					return err
				}
				ref = defs[d.uid]
				defaults[d.uid] = ref
			}
			log.Debug(ctx, "document re-pointed to default category", "document", d.id, "old_category", d.oldCat)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET category = ?, category_id = ? WHERE id = ?`,
			ref.rowID, ref.uuid, d.id); err != nil {
			return err
		}
	}

	// legacy inline content moves to document_content
	if cols["content"] {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_content (document_row_id, user_id, content)
			SELECT id, user_id, COALESCE(content, '') FROM documents WHERE true
			ON CONFLICT(document_row_id, user_id) DO UPDATE SET content = EXCLUDED.content`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `ALTER TABLE documents DROP COLUMN content`); err != nil {
			return err
		}
	}
	return nil
}
