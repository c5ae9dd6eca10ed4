package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/dbx"
	"github.com/plainlyhq/plainly-core/internal/server/models"
	"github.com/plainlyhq/plainly-core/internal/store"
)

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func toCategory(row *models.CategoryRow) *store.Category {
	return &store.Category{
		UID:       row.UID,
		ID:        row.CategoryID,
		Name:      row.Name,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		Version:   row.Version,
	}
}

// findCategoryRow resolves an id in two phases: the canonical UUID first,
// then the tenant-scoped surrogate integer kept for legacy callers.
func (t *TenantStore) findCategoryRow(ctx context.Context, q sqlx.ExtContext, id string) (*models.CategoryRow, error) {
	canon := store.CanonicalID(id)

	query, args, err := t.e.sb.Select("*").From("categories").
		Where(sq.Eq{"user_id": t.uid, "category_id": canon}).ToSql()
	if err != nil {
		return nil, err
	}
	var row models.CategoryRow
	err = sqlx.GetContext(ctx, q, &row, query, args...)
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if n, ok := store.LegacyNumericID(id); ok {
		query, args, err := t.e.sb.Select("*").From("categories").
			Where(sq.Eq{"user_id": t.uid, "id": n}).ToSql()
		if err != nil {
			return nil, err
		}
		err = sqlx.GetContext(ctx, q, &row, query, args...)
		if err == nil {
			return &row, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("db error: %w", err)
		}
	}
	return nil, nil
}

// nextCategoryRowID allocates the next tenant-scoped surrogate id. Callers
// hold a transaction, so the read-increment cannot race.
func (t *TenantStore) nextCategoryRowID(ctx context.Context, q sqlx.ExtContext) (int64, error) {
	query, args, err := t.e.sb.Select("COALESCE(MAX(id), 0) + 1").From("categories").
		Where(sq.Eq{"user_id": t.uid}).ToSql()
	if err != nil {
		return 0, err
	}
	var next int64
	if err := sqlx.GetContext(ctx, q, &next, query, args...); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return next, nil
}

// ensureDefaultCategory inserts the canonical default category for the
// tenant when absent. Idempotent; keyed by (tenant, canonical UUID).
func (t *TenantStore) ensureDefaultCategory(ctx context.Context, q sqlx.ExtContext) (*models.CategoryRow, error) {
	existing, err := t.findCategoryRow(ctx, q, store.DefaultCategoryID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	rowID, err := t.nextCategoryRowID(ctx, q)
	if err != nil {
		return nil, err
	}
	name := store.DefaultCategoryName
	for i := 2; ; i++ {
		taken, err := t.categoryNameTaken(ctx, q, name, store.DefaultCategoryID)
		if err != nil {
			return nil, err
		}
		if !taken {
			break
		}
		name = fmt.Sprintf("%s (%d)", store.DefaultCategoryName, i)
	}

	now := nowMillis()
	row := &models.CategoryRow{
		RowID:      rowID,
		UID:        t.uid,
		CategoryID: store.DefaultCategoryID,
		Name:       name,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	query, args, err := t.e.sb.Insert("categories").
		Columns("id", "user_id", "category_id", "name", "created_at", "updated_at", "version").
		Values(row.RowID, row.UID, row.CategoryID, row.Name, row.CreatedAt, row.UpdatedAt, row.Version).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to ensure default category: %w", err)
	}
	return row, nil
}

func (t *TenantStore) categoryNameTaken(ctx context.Context, q sqlx.ExtContext, name, excludeID string) (bool, error) {
	query, args, err := t.e.sb.Select("COUNT(*)").From("categories").
		Where(sq.Eq{"user_id": t.uid, "name": name}).
		Where(sq.NotEq{"category_id": excludeID}).ToSql()
	if err != nil {
		return false, err
	}
	var n int
	if err := sqlx.GetContext(ctx, q, &n, query, args...); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (t *TenantStore) ListCategories(ctx context.Context) ([]store.Category, error) {
	var result []store.Category
	err := dbx.WithTxx(ctx, t.e.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := t.ensureDefaultCategory(ctx, tx); err != nil {
			return err
		}
		query, args, err := t.e.sb.Select("*").From("categories").
			Where(sq.Eq{"user_id": t.uid}).
			OrderBy("created_at", "id").ToSql()
		if err != nil {
			return err
		}
		var rows []models.CategoryRow
		if err := sqlx.SelectContext(ctx, tx, &rows, query, args...); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		for i := range rows {
			result = append(result, *toCategory(&rows[i]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (t *TenantStore) ListCategoriesWithCount(ctx context.Context) ([]store.CategoryWithCount, error) {
	var result []store.CategoryWithCount
	err := dbx.WithTxx(ctx, t.e.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := t.ensureDefaultCategory(ctx, tx); err != nil {
			return err
		}
		query, args, err := t.e.sb.
			Select("c.id", "c.user_id", "c.category_id", "c.name", "c.created_at", "c.updated_at", "c.version",
				"COUNT(d.id) AS document_count").
			From("categories c").
			LeftJoin("documents d ON d.user_id = c.user_id AND d.category = c.id").
			Where(sq.Eq{"c.user_id": t.uid}).
			GroupBy("c.id", "c.user_id", "c.category_id", "c.name", "c.created_at", "c.updated_at", "c.version").
			OrderBy("c.created_at", "c.id").ToSql()
		if err != nil {
			return err
		}

		rows, err := tx.QueryxContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var row models.CategoryRow
			var count int64
			if err := rows.Scan(&row.RowID, &row.UID, &row.CategoryID, &row.Name,
				&row.CreatedAt, &row.UpdatedAt, &row.Version, &count); err != nil {
				return err
			}
			result = append(result, store.CategoryWithCount{
				Category:      *toCategory(&row),
				DocumentCount: count,
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateCategory creates a category; a name that already exists for the
// tenant returns the existing record.
func (t *TenantStore) CreateCategory(ctx context.Context, name string, opts *store.CategoryOptions) (*store.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is empty", common.ErrValidation)
	}
	if opts == nil {
		opts = &store.CategoryOptions{}
	}

	var created *store.Category
	err := dbx.WithTxx(ctx, t.e.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		c, err := t.createCategoryInTx(ctx, tx, name, opts)
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (t *TenantStore) RenameCategory(ctx context.Context, id, name string) (*store.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is empty", common.ErrValidation)
	}

	var renamed *store.Category
	err := dbx.WithTxx(ctx, t.e.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		row, err := t.findCategoryRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("%w: category %s", common.ErrNotFound, id)
		}
		taken, err := t.categoryNameTaken(ctx, tx, name, row.CategoryID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: category name %q already exists", common.ErrValidation, name)
		}

		row.Name = name
		row.UpdatedAt = nowMillis()
		row.Version++
		query, args, err := t.e.sb.Update("categories").
			Set("name", row.Name).
			Set("updated_at", row.UpdatedAt).
			Set("version", row.Version).
			Where(sq.Eq{"user_id": t.uid, "id": row.RowID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to rename category: %w", err)
		}
		renamed = toCategory(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

// DeleteCategory re-points the category's documents at reassignTo (the
// default category when empty) and removes the row, atomically. Deleting an
// unknown id is a no-op.
func (t *TenantStore) DeleteCategory(ctx context.Context, id, reassignTo string) error {
	if store.CanonicalID(id) == store.DefaultCategoryID {
		return fmt.Errorf("%w: the default category cannot be deleted", common.ErrValidation)
	}

	return dbx.WithTxx(ctx, t.e.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		row, err := t.findCategoryRow(ctx, tx, id)
		if err != nil || row == nil {
			return err
		}

		var target *models.CategoryRow
		canon := store.CanonicalID(reassignTo)
		if canon == "" || canon == row.CategoryID {
			target, err = t.ensureDefaultCategory(ctx, tx)
			if err != nil {
				return err
			}
		} else {
			target, err = t.findCategoryRow(ctx, tx, reassignTo)
			if err != nil {
				return err
			}
			if target == nil {
				return fmt.Errorf("%w: reassign target %s", common.ErrNotFound, reassignTo)
			}
		}

		query, args, err := t.e.sb.Update("documents").
			Set("category", target.RowID).
			Set("category_id", target.CategoryID).
			Set("updated_at", nowMillis()).
			Where(sq.Eq{"user_id": t.uid, "category": row.RowID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to reassign documents: %w", err)
		}

		query, args, err = t.e.sb.Delete("categories").
			Where(sq.Eq{"user_id": t.uid, "id": row.RowID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		return nil
	})
}
