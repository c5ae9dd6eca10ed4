package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/dbx"
	"github.com/plainlyhq/plainly-core/internal/mdtext"
	"github.com/plainlyhq/plainly-core/internal/server/models"
	"github.com/plainlyhq/plainly-core/internal/store"
)

func toDocumentMeta(row *models.DocumentRow) *store.DocumentMeta {
	d := &store.DocumentMeta{
		UID:        row.UID,
		ID:         row.DocumentID,
		Name:       row.Name,
		CategoryID: row.CategoryID,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		Version:    row.Version,
	}
	if row.CharCount.Valid {
		d.CharCount = &row.CharCount.Int64
	}
	return d
}

func (t *TenantStore) findDocumentRow(ctx context.Context, q sqlx.ExtContext, id string) (*models.DocumentRow, error) {
	canon := store.CanonicalID(id)

	query, args, err := t.e.sb.Select("*").From("documents").
		Where(sq.Eq{"user_id": t.uid, "document_id": canon}).ToSql()
	if err != nil {
		return nil, err
	}
	var row models.DocumentRow
	err = sqlx.GetContext(ctx, q, &row, query, args...)
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if n, ok := store.LegacyNumericID(id); ok {
		query, args, err := t.e.sb.Select("*").From("documents").
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

func (t *TenantStore) getContentByRowID(ctx context.Context, q sqlx.ExtContext, rowID int64) (*string, error) {
	query, args, err := t.e.sb.Select("content").From("document_content").
		Where(sq.Eq{"document_row_id": rowID, "user_id": t.uid}).ToSql()
	if err != nil {
		return nil, err
	}
	var content string
	err = sqlx.GetContext(ctx, q, &content, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &content, nil
}

func (t *TenantStore) upsertContent(ctx context.Context, q sqlx.ExtContext, rowID int64, content string) error {
	// same ON CONFLICT clause works for sqlite and postgres
	query, args, err := t.e.sb.Insert("document_content").
		Columns("document_row_id", "user_id", "content").
		Values(rowID, t.uid, content).
		Suffix("ON CONFLICT(document_row_id, user_id) DO UPDATE SET content = EXCLUDED.content").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert document content: %w", err)
	}
	return nil
}

func (t *TenantStore) CreateDocument(ctx context.Context, doc store.NewDocument, content string) (*store.DocumentMeta, error) {
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: document name is empty", common.ErrValidation)
	}

	var created *store.DocumentMeta
	err := dbx.WithTxx(ctx, t.e.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		category, err := t.resolveCategoryRow(ctx, tx, doc.CategoryID)
		if err != nil {
			return err
		}

		now := nowMillis()
		charCount := mdtext.CountVisibleChars(content)
		row := &models.DocumentRow{
			UID:           t.uid,
			DocumentID:    store.CanonicalID(doc.ID),
			Name:          name,
			CategoryRowID: category.RowID,
			CategoryID:    category.CategoryID,
			CreatedAt:     doc.CreatedAt,
			UpdatedAt:     doc.UpdatedAt,
			CharCount:     sql.NullInt64{Int64: charCount, Valid: true},
			ContentNorm:   sql.NullString{String: mdtext.Normalize(name, content), Valid: true},
			Version:       doc.Version,
		}
		if row.DocumentID == "" {
			row.DocumentID = store.NewID()
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
			return fmt.Errorf("failed to insert document: %w", err)
		}
		if err := t.upsertContent(ctx, tx, row.RowID, content); err != nil {
			return err
		}
		created = toDocumentMeta(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// resolveCategoryRow maps a requested category id to an existing row,
// falling back to the default category for empty or unknown ids.
func (t *TenantStore) resolveCategoryRow(ctx context.Context, tx *sqlx.Tx, id string) (*models.CategoryRow, error) {
	if id != "" {
		row, err := t.findCategoryRow(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if row != nil {
			return row, nil
		}
	}
	return t.ensureDefaultCategory(ctx, tx)
}

func (t *TenantStore) GetDocumentMeta(ctx context.Context, id string) (*store.DocumentMeta, error) {
	row, err := t.findDocumentRow(ctx, t.e.db, id)
	if err != nil || row == nil {
		return nil, err
	}
	return toDocumentMeta(row), nil
}

func (t *TenantStore) UpdateDocumentMeta(ctx context.Context, id string, upd store.DocumentUpdate) (*store.DocumentMeta, error) {
	var updated *store.DocumentMeta
	err := dbx.WithTxx(ctx, t.e.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		row, err := t.findDocumentRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("%w: document %s", common.ErrNotFound, id)
		}

		renamed := false
		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return fmt.Errorf("%w: document name is empty", common.ErrValidation)
			}
			renamed = name != row.Name
			row.Name = name
		}
		if upd.CategoryID != nil {
			category, err := t.resolveCategoryRow(ctx, tx, *upd.CategoryID)
			if err != nil {
				return err
			}
			row.CategoryRowID = category.RowID
			row.CategoryID = category.CategoryID
		}
		if upd.CharCount != nil {
			row.CharCount = sql.NullInt64{Int64: *upd.CharCount, Valid: true}
		}
		if upd.UpdatedAt != nil {
			row.UpdatedAt = *upd.UpdatedAt
		} else {
			row.UpdatedAt = nowMillis()
		}
		if renamed {
			content, err := t.getContentByRowID(ctx, tx, row.RowID)
			if err != nil {
				return err
			}
			body := ""
			if content != nil {
				body = *content
			}
			row.ContentNorm = sql.NullString{String: mdtext.Normalize(row.Name, body), Valid: true}
		}
		row.Version++

		query, args, err := t.e.sb.Update("documents").
			Set("name", row.Name).
			Set("category", row.CategoryRowID).
			Set("category_id", row.CategoryID).
			Set("updated_at", row.UpdatedAt).
			Set("char_count", row.CharCount).
			Set("content_norm", row.ContentNorm).
			Set("version", row.Version).
			Where(sq.Eq{"user_id": t.uid, "id": row.RowID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		updated = toDocumentMeta(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (t *TenantStore) ListDocumentsPage(ctx context.Context, offset, limit int) (*store.DocumentPage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}

	page := &store.DocumentPage{Documents: []store.DocumentMeta{}}

	query, args, err := t.e.sb.Select("COUNT(*)").From("documents").
		Where(sq.Eq{"user_id": t.uid}).ToSql()
	if err != nil {
		return nil, err
	}
	if err := sqlx.GetContext(ctx, t.e.db, &page.Total, query, args...); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	query, args, err = t.e.sb.Select("*").From("documents").
		Where(sq.Eq{"user_id": t.uid}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}
	var rows []models.DocumentRow
	if err := sqlx.SelectContext(ctx, t.e.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	for i := range rows {
		page.Documents = append(page.Documents, *toDocumentMeta(&rows[i]))
	}
	page.HasMore = int64(offset+len(page.Documents)) < page.Total
	return page, nil
}

func (t *TenantStore) ListAllDocuments(ctx context.Context) ([]store.DocumentMeta, error) {
	query, args, err := t.e.sb.Select("*").From("documents").
		Where(sq.Eq{"user_id": t.uid}).
		OrderBy("created_at DESC", "id DESC").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []models.DocumentRow
	if err := sqlx.SelectContext(ctx, t.e.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	var result []store.DocumentMeta
	for i := range rows {
		result = append(result, *toDocumentMeta(&rows[i]))
	}
	return result, nil
}

func (t *TenantStore) GetDocumentContent(ctx context.Context, id string) (*string, error) {
	row, err := t.findDocumentRow(ctx, t.e.db, id)
	if err != nil || row == nil {
		return nil, err
	}
	return t.getContentByRowID(ctx, t.e.db, row.RowID)
}

func (t *TenantStore) SaveDocumentContent(ctx context.Context, id, content string, updatedAt int64) (*store.DocumentMeta, error) {
	var updated *store.DocumentMeta
	err := dbx.WithTxx(ctx, t.e.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		row, err := t.findDocumentRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("%w: document %s", common.ErrNotFound, id)
		}

		if updatedAt == 0 {
			updatedAt = nowMillis()
		}
		row.UpdatedAt = updatedAt
		row.CharCount = sql.NullInt64{Int64: mdtext.CountVisibleChars(content), Valid: true}
		row.ContentNorm = sql.NullString{String: mdtext.Normalize(row.Name, content), Valid: true}
		row.Version++

		if err := t.upsertContent(ctx, tx, row.RowID, content); err != nil {
			return err
		}
		query, args, err := t.e.sb.Update("documents").
			Set("updated_at", row.UpdatedAt).
			Set("char_count", row.CharCount).
			Set("content_norm", row.ContentNorm).
			Set("version", row.Version).
			Where(sq.Eq{"user_id": t.uid, "id": row.RowID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update document meta: %w", err)
		}
		updated = toDocumentMeta(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (t *TenantStore) DeleteDocument(ctx context.Context, id string) error {
	return dbx.WithTxx(ctx, t.e.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		row, err := t.findDocumentRow(ctx, tx, id)
		if err != nil || row == nil {
			return err
		}

		query, args, err := t.e.sb.Delete("document_content").
			Where(sq.Eq{"document_row_id": row.RowID, "user_id": t.uid}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete document content: %w", err)
		}

		query, args, err = t.e.sb.Delete("documents").
			Where(sq.Eq{"user_id": t.uid, "id": row.RowID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		return nil
	})
}

func (t *TenantStore) EnsureDocumentCharCount(ctx context.Context, meta *store.DocumentMeta) (*store.DocumentMeta, error) {
	if meta == nil {
		return nil, fmt.Errorf("%w: nil document meta", common.ErrValidation)
	}
	if meta.CharCount != nil {
		return meta, nil
	}

	updated := *meta
	err := dbx.WithTxx(ctx, t.e.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		row, err := t.findDocumentRow(ctx, tx, meta.ID)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("%w: document %s", common.ErrNotFound, meta.ID)
		}

		content, err := t.getContentByRowID(ctx, tx, row.RowID)
		if err != nil {
			return err
		}
		body := ""
		if content != nil {
			body = *content
		}
		charCount := mdtext.CountVisibleChars(body)
		updated.CharCount = &charCount

		query, args, err := t.e.sb.Update("documents").
			Set("char_count", charCount).
			Where(sq.Eq{"user_id": t.uid, "id": row.RowID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to store char count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// SearchDocuments substring-matches every token against the normalized text
// column, backfilling that column first for any row still missing it.
func (t *TenantStore) SearchDocuments(ctx context.Context, q store.SearchQuery) (*store.DocumentPage, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	page := &store.DocumentPage{Documents: []store.DocumentMeta{}}
	err := dbx.WithTxx(ctx, t.e.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := t.backfillContentNorm(ctx, tx); err != nil {
			return err
		}

		filter := sq.And{sq.Eq{"user_id": t.uid}}
		for _, token := range q.Tokens {
			token = strings.ToLower(strings.TrimSpace(token))
			if token == "" {
				continue
			}
			filter = append(filter, sq.Like{"content_norm": "%" + token + "%"})
		}
		if q.CategoryID != "" {
			filter = append(filter, sq.Eq{"category_id": store.CanonicalID(q.CategoryID)})
		}

		query, args, err := t.e.sb.Select("COUNT(*)").From("documents").Where(filter).ToSql()
		if err != nil {
			return err
		}
		if err := sqlx.GetContext(ctx, tx, &page.Total, query, args...); err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		query, args, err = t.e.sb.Select("*").From("documents").Where(filter).
			OrderBy("updated_at DESC", "id DESC").
			Limit(uint64(q.Limit)).Offset(uint64(q.Offset)).ToSql()
		if err != nil {
			return err
		}
		var rows []models.DocumentRow
		if err := sqlx.SelectContext(ctx, tx, &rows, query, args...); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		for i := range rows {
			page.Documents = append(page.Documents, *toDocumentMeta(&rows[i]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	page.HasMore = int64(q.Offset+len(page.Documents)) < page.Total
	return page, nil
}

// backfillContentNorm fills the search column for rows written before it
// existed (or imported by the legacy migration, which leaves it NULL).
func (t *TenantStore) backfillContentNorm(ctx context.Context, tx *sqlx.Tx) error {
	query, args, err := t.e.sb.Select("d.id", "d.name", "COALESCE(c.content, '') AS content").
		From("documents d").
		LeftJoin("document_content c ON c.document_row_id = d.id AND c.user_id = d.user_id").
		Where(sq.Eq{"d.user_id": t.uid}).
		Where("d.content_norm IS NULL").ToSql()
	if err != nil {
		return err
	}

	type pending struct {
		ID      int64  `db:"id"`
		Name    string `db:"name"`
		Content string `db:"content"`
	}
	var rows []pending
	if err := sqlx.SelectContext(ctx, tx, &rows, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	for _, row := range rows {
		query, args, err := t.e.sb.Update("documents").
			Set("content_norm", mdtext.Normalize(row.Name, row.Content)).
			Where(sq.Eq{"user_id": t.uid, "id": row.ID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to backfill content_norm: %w", err)
		}
	}
	return nil
}
