package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/dbx"
	"github.com/plainlyhq/plainly-core/internal/mdtext"
	"github.com/plainlyhq/plainly-core/internal/server/models"
	"github.com/plainlyhq/plainly-core/internal/store"
)

// Batch imports (client pushing local-only records after going remote) use
// the merge rule: a snapshot with version V lands over stored version E iff
// E is absent or V > E; a tie keeps the stored row.

// MergeCategory applies one category snapshot and returns the winning record.
func (t *TenantStore) MergeCategory(ctx context.Context, cat store.Category) (*store.Category, error) {
	cat.ID = store.CanonicalID(cat.ID)
	if cat.ID == "" {
		return nil, fmt.Errorf("%w: merge category: empty id", common.ErrValidation)
	}

	var result *store.Category
	err := dbx.WithTxx(ctx, t.e.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		existing, err := t.findCategoryRow(ctx, tx, cat.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			if cat.Version <= existing.Version {
				result = toCategory(existing)
				return nil
			}
			name := cat.Name
			taken, err := t.categoryNameTaken(ctx, tx, name, existing.CategoryID)
			if err != nil {
				return err
			}
			if taken {
				// keep the stored name rather than violate (tenant, name)
				name = existing.Name
			}
			existing.Name = name
			existing.UpdatedAt = cat.UpdatedAt
			existing.Version = cat.Version
			query, args, err := t.e.sb.Update("categories").
				Set("name", existing.Name).
				Set("updated_at", existing.UpdatedAt).
				Set("version", existing.Version).
				Where(sq.Eq{"user_id": t.uid, "id": existing.RowID}).ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to merge category: %w", err)
			}
			result = toCategory(existing)
			return nil
		}

		created, err := t.createCategoryInTx(ctx, tx, cat.Name, &store.CategoryOptions{
			ID:        cat.ID,
			CreatedAt: cat.CreatedAt,
			UpdatedAt: cat.UpdatedAt,
			Version:   cat.Version,
		})
		if err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// createCategoryInTx is CreateCategory's body for callers already holding a
// transaction (merges, batch imports).
func (t *TenantStore) createCategoryInTx(ctx context.Context, tx *sqlx.Tx, name string, opts *store.CategoryOptions) (*store.Category, error) {
	query, args, err := t.e.sb.Select("*").From("categories").
		Where(sq.Eq{"user_id": t.uid, "name": name}).ToSql()
	if err != nil {
		return nil, err
	}
	var existing models.CategoryRow
	err = sqlx.GetContext(ctx, tx, &existing, query, args...)
	if err == nil {
		return toCategory(&existing), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	rowID, err := t.nextCategoryRowID(ctx, tx)
	if err != nil {
		return nil, err
	}
	now := nowMillis()
	row := &models.CategoryRow{
		RowID:      rowID,
		UID:        t.uid,
		CategoryID: store.CanonicalID(opts.ID),
		Name:       name,
		CreatedAt:  opts.CreatedAt,
		UpdatedAt:  opts.UpdatedAt,
		Version:    opts.Version,
	}
	if row.CategoryID == "" {
		row.CategoryID = store.NewID()
	}
	if row.CreatedAt == 0 {
		row.CreatedAt = now
	}
	if row.UpdatedAt == 0 {
		row.UpdatedAt = now
	}
	if row.Version == 0 {
		row.Version = 1
	}

	query, args, err = t.e.sb.Insert("categories").
		Columns("id", "user_id", "category_id", "name", "created_at", "updated_at", "version").
		Values(row.RowID, row.UID, row.CategoryID, row.Name, row.CreatedAt, row.UpdatedAt, row.Version).ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to insert category: %w", err)
	}
	return toCategory(row), nil
}

// MergeDocument applies one document snapshot (with content when present).
func (t *TenantStore) MergeDocument(ctx context.Context, meta store.DocumentMeta, content *string) (*store.DocumentMeta, error) {
	meta.ID = store.CanonicalID(meta.ID)
	if meta.ID == "" {
		return nil, fmt.Errorf("%w: merge document: empty id", common.ErrValidation)
	}

	var result *store.DocumentMeta
	err := dbx.WithTxx(ctx, t.e.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		existing, err := t.findDocumentRow(ctx, tx, meta.ID)
		if err != nil {
			return err
		}
		if existing != nil && meta.Version <= existing.Version {
			result = toDocumentMeta(existing)
			return nil
		}

		category, err := t.resolveCategoryRow(ctx, tx, meta.CategoryID)
		if err != nil {
			return err
		}

		body := ""
		if content != nil {
			body = *content
		}
		charCount := sql.NullInt64{}
		if meta.CharCount != nil {
			charCount = sql.NullInt64{Int64: *meta.CharCount, Valid: true}
		} else if content != nil {
			charCount = sql.NullInt64{Int64: mdtext.CountVisibleChars(body), Valid: true}
		}
		norm := sql.NullString{}
		if content != nil {
			norm = sql.NullString{String: mdtext.Normalize(meta.Name, body), Valid: true}
		}

		if existing == nil {
			row := &models.DocumentRow{
				UID:           t.uid,
				DocumentID:    meta.ID,
				Name:          meta.Name,
				CategoryRowID: category.RowID,
				CategoryID:    category.CategoryID,
				CreatedAt:     meta.CreatedAt,
				UpdatedAt:     meta.UpdatedAt,
				CharCount:     charCount,
				ContentNorm:   norm,
				Version:       meta.Version,
			}
			now := nowMillis()
			if row.CreatedAt == 0 {
				row.CreatedAt = now
			}
			if row.UpdatedAt == 0 {
				row.UpdatedAt = now
			}
			if row.Version == 0 {
				row.Version = 1
			}
			query, args, err := t.e.sb.Insert("documents").
				Columns("user_id", "document_id", "name", "category", "category_id",
					"created_at", "updated_at", "char_count", "content_norm", "version").
				Values(row.UID, row.DocumentID, row.Name, row.CategoryRowID, row.CategoryID,
					row.CreatedAt, row.UpdatedAt, row.CharCount, row.ContentNorm, row.Version).
				Suffix("RETURNING id").ToSql()
			if err != nil {
				return err
			}
			if err := sqlx.GetContext(ctx, tx, &row.RowID, query, args...); err != nil {
				return fmt.Errorf("failed to merge document: %w", err)
			}
			if content != nil {
				if err := t.upsertContent(ctx, tx, row.RowID, body); err != nil {
					return err
				}
			}
			result = toDocumentMeta(row)
			return nil
		}

		existing.Name = meta.Name
		existing.CategoryRowID = category.RowID
		existing.CategoryID = category.CategoryID
		existing.UpdatedAt = meta.UpdatedAt
		if charCount.Valid {
			existing.CharCount = charCount
		}
		if norm.Valid {
			existing.ContentNorm = norm
		}
		existing.Version = meta.Version

		query, args, err := t.e.sb.Update("documents").
			Set("name", existing.Name).
			Set("category", existing.CategoryRowID).
			Set("category_id", existing.CategoryID).
			Set("updated_at", existing.UpdatedAt).
			Set("char_count", existing.CharCount).
			Set("content_norm", existing.ContentNorm).
			Set("version", existing.Version).
			Where(sq.Eq{"user_id": t.uid, "id": existing.RowID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to merge document: %w", err)
		}
		if content != nil {
			if err := t.upsertContent(ctx, tx, existing.RowID, body); err != nil {
				return err
			}
		}
		result = toDocumentMeta(existing)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
