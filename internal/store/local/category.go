package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/dbx"
	"github.com/plainlyhq/plainly-core/internal/store"
)

const categoryColumns = `user_id, category_id, name, created_at, updated_at, source, version`

func scanCategory(row *sql.Row) (*store.Category, error) {
	var c store.Category
	err := row.Scan(&c.UID, &c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt, &c.Source, &c.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	return &c, nil
}

// findCategory resolves an id in two phases: canonical UUID first, then the
// explicit legacy numeric key kept from the pre-UUID schema.
func (e *Engine) findCategory(ctx context.Context, q dbx.DBTX, id string) (*store.Category, error) {
	canon := store.CanonicalID(id)
	c, err := scanCategory(q.QueryRowContext(ctx, `
		SELECT `+categoryColumns+` FROM categories
		WHERE user_id = ? AND source = ? AND category_id = ?`,
		e.uid, e.source, canon))
	if err != nil || c != nil {
		return c, err
	}
	if n, ok := store.LegacyNumericID(id); ok {
		return scanCategory(q.QueryRowContext(ctx, `
			SELECT `+categoryColumns+` FROM categories
			WHERE user_id = ? AND source = ? AND legacy_id = ?`,
			e.uid, e.source, n))
	}
	return nil, nil
}

func (e *Engine) ListCategories(ctx context.Context) ([]store.Category, error) {
	var result []store.Category
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := e.ensureDefaultCategory(ctx, tx); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, `
			SELECT `+categoryColumns+` FROM categories
			WHERE user_id = ? AND source = ?
			ORDER BY created_at, category_id`,
			e.uid, e.source)
		if err != nil {
			return fmt.Errorf("failed to select categories: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var c store.Category
			if err := rows.Scan(&c.UID, &c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt, &c.Source, &c.Version); err != nil {
				return err
			}
			result = append(result, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) ListCategoriesWithCount(ctx context.Context) ([]store.CategoryWithCount, error) {
	var result []store.CategoryWithCount
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := e.ensureDefaultCategory(ctx, tx); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, `
			SELECT c.user_id, c.category_id, c.name, c.created_at, c.updated_at, c.source, c.version,
			       COUNT(d.document_id) AS document_count
			FROM categories c
			LEFT JOIN documents d
			  ON d.user_id = c.user_id AND d.source = c.source AND d.category_id = c.category_id
			WHERE c.user_id = ? AND c.source = ?
			GROUP BY c.user_id, c.source, c.category_id
			ORDER BY c.created_at, c.category_id`,
			e.uid, e.source)
		if err != nil {
			return fmt.Errorf("failed to select categories with counts: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var c store.CategoryWithCount
			if err := rows.Scan(&c.UID, &c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt, &c.Source, &c.Version, &c.DocumentCount); err != nil {
				return err
			}
			result = append(result, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateCategory creates a category, or returns the existing record when a
// category with the same name already exists for this tenant.
func (e *Engine) CreateCategory(ctx context.Context, name string, opts *store.CategoryOptions) (*store.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is empty", common.ErrValidation)
	}
	if opts == nil {
		opts = &store.CategoryOptions{}
	}

	var created *store.Category
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		existing, err := scanCategory(tx.QueryRowContext(ctx, `
			SELECT `+categoryColumns+` FROM categories
			WHERE user_id = ? AND source = ? AND name = ?`,
			e.uid, e.source, name))
		if err != nil {
			return err
		}
		if existing != nil {
			created = existing
			return nil
		}

		now := nowMillis()
		c := &store.Category{
			UID:       e.uid,
			ID:        store.CanonicalID(opts.ID),
			Name:      name,
			CreatedAt: opts.CreatedAt,
			UpdatedAt: opts.UpdatedAt,
			Source:    e.source,
			Version:   opts.Version,
		}
		if c.ID == "" {
			c.ID = store.NewID()
		}
		if c.CreatedAt == 0 {
			c.CreatedAt = now
		}
		if c.UpdatedAt == 0 {
			c.UpdatedAt = now
		}
		if c.Version == 0 {
			c.Version = e.nextVersion(0)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO categories
				(user_id, source, category_id, name, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.UID, c.Source, c.ID, c.Name, c.CreatedAt, c.UpdatedAt, c.Version)
		if err != nil {
			return fmt.Errorf("failed to insert category: %w", err)
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notify("category", created.ID)
	return created, nil
}

func (e *Engine) RenameCategory(ctx context.Context, id, name string) (*store.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is empty", common.ErrValidation)
	}

	var renamed *store.Category
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		c, err := e.findCategory(ctx, tx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("%w: category %s", common.ErrNotFound, id)
		}
		taken, err := e.categoryNameTaken(ctx, tx, name, c.ID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: category name %q already exists", common.ErrValidation, name)
		}

		c.Name = name
		c.UpdatedAt = nowMillis()
		c.Version = e.nextVersion(c.Version)
		_, err = tx.ExecContext(ctx, `
			UPDATE categories SET name = ?, updated_at = ?, version = ?
			WHERE user_id = ? AND source = ? AND category_id = ?`,
			c.Name, c.UpdatedAt, c.Version, e.uid, e.source, c.ID)
		if err != nil {
			return fmt.Errorf("failed to rename category: %w", err)
		}
		renamed = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notify("category", renamed.ID)
	return renamed, nil
}

// DeleteCategory moves the category's documents to reassignTo (default
// category when empty) and removes the category row, in one transaction.
// Deleting an id that does not exist is a no-op.
func (e *Engine) DeleteCategory(ctx context.Context, id, reassignTo string) error {
	if store.CanonicalID(id) == store.DefaultCategoryID {
		return fmt.Errorf("%w: the default category cannot be deleted", common.ErrValidation)
	}

	deleted := ""
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		c, err := e.findCategory(ctx, tx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return nil
		}

		target := store.CanonicalID(reassignTo)
		if target == "" || target == c.ID {
			def, err := e.ensureDefaultCategory(ctx, tx)
			if err != nil {
				return err
			}
			target = def.ID
		} else {
			t, err := e.findCategory(ctx, tx, target)
			if err != nil {
				return err
			}
			if t == nil {
				return fmt.Errorf("%w: reassign target %s", common.ErrNotFound, reassignTo)
			}
			target = t.ID
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET category_id = ?, updated_at = ?
			WHERE user_id = ? AND source = ? AND category_id = ?`,
			target, nowMillis(), e.uid, e.source, c.ID)
		if err != nil {
			return fmt.Errorf("failed to reassign documents: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM categories
			WHERE user_id = ? AND source = ? AND category_id = ?`,
			e.uid, e.source, c.ID)
		if err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		deleted = c.ID
		return nil
	})
	if err != nil {
		return err
	}
	if deleted != "" {
		e.notify("category", deleted)
	}
	return nil
}
