package local

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/plainlyhq/plainly-core/internal/dbx"
	"github.com/plainlyhq/plainly-core/internal/mdtext"
	"github.com/plainlyhq/plainly-core/internal/store"
)

// Legacy databases predate multi-tenancy and UUID keys: a `categories` table
// keyed by an autoincrement integer and an `articles` table holding both
// document metadata and content, referencing categories by that integer.
// Upgrading happens in two steps around the schema migrations: the legacy
// tables are first renamed out of the way, then — once the current tables
// exist — their rows are imported in a single transaction that ends by
// dropping them. An interrupted import therefore leaves the renamed tables
// behind and the next open redoes the whole import.

func (e *Engine) prepareLegacy(ctx context.Context) error {
	legacyCats, err := isLegacyCategoriesTable(ctx, e.db)
	if err != nil {
		return err
	}
	if legacyCats {
		if _, err := e.db.ExecContext(ctx, `ALTER TABLE categories RENAME TO legacy_categories`); err != nil {
			return fmt.Errorf("failed to stash legacy categories: %w", err)
		}
	}

	hasArticles, err := tableExists(ctx, e.db, "articles")
	if err != nil {
		return err
	}
	if hasArticles {
		hasStash, err := tableExists(ctx, e.db, "legacy_articles")
		if err != nil {
			return err
		}
		if !hasStash {
			if _, err := e.db.ExecContext(ctx, `ALTER TABLE articles RENAME TO legacy_articles`); err != nil {
				return fmt.Errorf("failed to stash legacy articles: %w", err)
			}
		}
	}
	return nil
}

func (e *Engine) importLegacy(ctx context.Context) error {
	hasCats, err := tableExists(ctx, e.db, "legacy_categories")
	if err != nil {
		return err
	}
	hasArts, err := tableExists(ctx, e.db, "legacy_articles")
	if err != nil {
		return err
	}
	if !hasCats && !hasArts {
		return nil
	}

	e.log.Info(ctx, "importing legacy local data", "categories", hasCats, "articles", hasArts)

	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		remap := make(map[int64]string)

		if hasCats {
			if err := e.importLegacyCategories(ctx, tx, remap); err != nil {
				return err
			}
		}
		def, err := e.ensureDefaultCategory(ctx, tx)
		if err != nil {
			return err
		}
		if hasArts {
			if err := e.importLegacyArticles(ctx, tx, remap, def.ID); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS legacy_categories`); err != nil {
			return fmt.Errorf("failed to drop legacy categories: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS legacy_articles`); err != nil {
			return fmt.Errorf("failed to drop legacy articles: %w", err)
		}
		return nil
	})
}

// importLegacyCategories walks the legacy rows in id order, minting a UUID
// per category and recording old-id→new-id in remap. Categories whose name
// collides with one already imported are merged into that record.
func (e *Engine) importLegacyCategories(ctx context.Context, tx dbx.DBTX, remap map[int64]string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, name FROM legacy_categories ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to select legacy categories: %w", err)
	}
	defer rows.Close()

	type legacyCat struct {
		id   int64
		name string
	}
	var cats []legacyCat
	for rows.Next() {
		var c legacyCat
		var name sql.NullString
		if err := rows.Scan(&c.id, &name); err != nil {
			return err
		}
		c.name = strings.TrimSpace(name.String)
		if c.name == "" {
			c.name = fmt.Sprintf("Category %d", c.id)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	now := nowMillis()
	byName := make(map[string]string)
	for _, c := range cats {
		if id, ok := byName[c.name]; ok {
			remap[c.id] = id
			continue
		}
		id := store.NewID()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categories
				(user_id, source, category_id, name, legacy_id, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.uid, e.source, id, c.name, c.id, now, now, e.nextVersion(0))
		if err != nil {
			return fmt.Errorf("failed to import legacy category %d: %w", c.id, err)
		}
		byName[c.name] = id
		remap[c.id] = id
	}
	return nil
}

// importLegacyArticles copies each article into the documents and
// document_content tables, re-pointing its category reference through remap
// and falling back to the default category when the reference is unknown.
// Timestamp columns are optional in the legacy shape.
func (e *Engine) importLegacyArticles(ctx context.Context, tx dbx.DBTX, remap map[int64]string, defaultCategoryID string) error {
	cols, err := tableColumns(ctx, tx, "legacy_articles")
	if err != nil {
		return err
	}

	query := `SELECT id, name, category, content`
	if cols["created_at"] {
		query += `, created_at`
	}
	if cols["updated_at"] {
		query += `, updated_at`
	}
	query += ` FROM legacy_articles ORDER BY id`

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to select legacy articles: %w", err)
	}
	defer rows.Close()

	type legacyArticle struct {
		id        int64
		name      string
		category  int64
		content   string
		createdAt int64
		updatedAt int64
	}
	var articles []legacyArticle
	for rows.Next() {
		var a legacyArticle
		var name, content sql.NullString
		var category, createdAt, updatedAt sql.NullInt64

		dest := []any{&a.id, &name, &category, &content}
		if cols["created_at"] {
			dest = append(dest, &createdAt)
		}
		if cols["updated_at"] {
			dest = append(dest, &updatedAt)
		}
		if err := rows.Scan(dest...); err != nil {
			return err
		}

		a.name = strings.TrimSpace(name.String)
		if a.name == "" {
			a.name = fmt.Sprintf("Untitled %d", a.id)
		}
		a.category = category.Int64
		a.content = content.String
		a.createdAt = createdAt.Int64
		a.updatedAt = updatedAt.Int64
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	now := nowMillis()
	for _, a := range articles {
		categoryID, ok := remap[a.category]
		if !ok {
			categoryID = defaultCategoryID
		}
		createdAt := a.createdAt
		if createdAt == 0 {
			createdAt = now
		}
		updatedAt := a.updatedAt
		if updatedAt == 0 {
			updatedAt = createdAt
		}

		id := store.NewID()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents
				(user_id, source, document_id, name, category_id, legacy_id, created_at, updated_at, char_count, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.uid, e.source, id, a.name, categoryID, a.id, createdAt, updatedAt,
			mdtext.CountVisibleChars(a.content), e.nextVersion(0))
		if err != nil {
			return fmt.Errorf("failed to import legacy article %d: %w", a.id, err)
		}
		if err := upsertContent(ctx, tx, e.uid, e.source, id, a.content); err != nil {
			return err
		}
	}
	return nil
}

func tableExists(ctx context.Context, q dbx.DBTX, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return n > 0, nil
}

func tableColumns(ctx context.Context, q dbx.DBTX, name string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, name))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", name, err)
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

// isLegacyCategoriesTable reports whether a categories table exists in the
// pre-UUID shape, i.e. without the category_id column.
func isLegacyCategoriesTable(ctx context.Context, q dbx.DBTX) (bool, error) {
	exists, err := tableExists(ctx, q, "categories")
	if err != nil || !exists {
		return false, err
	}
	cols, err := tableColumns(ctx, q, "categories")
	if err != nil {
		return false, err
	}
	return !cols["category_id"], nil
}
