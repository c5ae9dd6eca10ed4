package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/dbx"
	"github.com/plainlyhq/plainly-core/internal/mdtext"
	"github.com/plainlyhq/plainly-core/internal/store"
)

const documentColumns = `user_id, document_id, name, category_id, created_at, updated_at, char_count, source, version`

func scanDocumentRow(scan func(dest ...any) error) (*store.DocumentMeta, error) {
	var d store.DocumentMeta
	var charCount sql.NullInt64
	err := scan(&d.UID, &d.ID, &d.Name, &d.CategoryID, &d.CreatedAt, &d.UpdatedAt, &charCount, &d.Source, &d.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	if charCount.Valid {
		d.CharCount = &charCount.Int64
	}
	return &d, nil
}

// findDocument resolves an id in two phases, like findCategory.
func (e *Engine) findDocument(ctx context.Context, q dbx.DBTX, id string) (*store.DocumentMeta, error) {
	canon := store.CanonicalID(id)
	d, err := scanDocumentRow(q.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE user_id = ? AND source = ? AND document_id = ?`,
		e.uid, e.source, canon).Scan)
	if err != nil || d != nil {
		return d, err
	}
	if n, ok := store.LegacyNumericID(id); ok {
		return scanDocumentRow(q.QueryRowContext(ctx, `
			SELECT `+documentColumns+` FROM documents
			WHERE user_id = ? AND source = ? AND legacy_id = ?`,
			e.uid, e.source, n).Scan)
	}
	return nil, nil
}

// resolveCategoryID maps a requested category to one that exists for the
// tenant, falling back to the default category for unknown or empty ids.
func (e *Engine) resolveCategoryID(ctx context.Context, tx dbx.DBTX, id string) (string, error) {
	if id != "" {
		c, err := e.findCategory(ctx, tx, id)
		if err != nil {
			return "", err
		}
		if c != nil {
			return c.ID, nil
		}
	}
	def, err := e.ensureDefaultCategory(ctx, tx)
	if err != nil {
		return "", err
	}
	return def.ID, nil
}

func (e *Engine) CreateDocument(ctx context.Context, doc store.NewDocument, content string) (*store.DocumentMeta, error) {
	if strings.TrimSpace(doc.Name) == "" {
		return nil, fmt.Errorf("%w: document name is empty", common.ErrValidation)
	}

	var created *store.DocumentMeta
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		categoryID, err := e.resolveCategoryID(ctx, tx, doc.CategoryID)
		if err != nil {
			return err
		}

		now := nowMillis()
		charCount := mdtext.CountVisibleChars(content)
		d := &store.DocumentMeta{
			UID:        e.uid,
			ID:         store.CanonicalID(doc.ID),
			Name:       strings.TrimSpace(doc.Name),
			CategoryID: categoryID,
			CreatedAt:  doc.CreatedAt,
			UpdatedAt:  doc.UpdatedAt,
			CharCount:  &charCount,
			Source:     e.source,
			Version:    doc.Version,
		}
		if d.ID == "" {
			d.ID = store.NewID()
		}
		if d.CreatedAt == 0 {
			d.CreatedAt = now
		}
		if d.UpdatedAt == 0 {
			d.UpdatedAt = now
		}
		if d.Version == 0 {
			d.Version = e.nextVersion(0)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents
				(user_id, source, document_id, name, category_id, created_at, updated_at, char_count, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.UID, d.Source, d.ID, d.Name, d.CategoryID, d.CreatedAt, d.UpdatedAt, charCount, d.Version)
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		if err := upsertContent(ctx, tx, e.uid, e.source, d.ID, content); err != nil {
			return err
		}
		created = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notify("document", created.ID)
	return created, nil
}

func (e *Engine) GetDocumentMeta(ctx context.Context, id string) (*store.DocumentMeta, error) {
	return e.findDocument(ctx, e.db, id)
}

func (e *Engine) UpdateDocumentMeta(ctx context.Context, id string, upd store.DocumentUpdate) (*store.DocumentMeta, error) {
	var updated *store.DocumentMeta
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		d, err := e.findDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("%w: document %s", common.ErrNotFound, id)
		}

		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return fmt.Errorf("%w: document name is empty", common.ErrValidation)
			}
			d.Name = name
		}
		if upd.CategoryID != nil {
			categoryID, err := e.resolveCategoryID(ctx, tx, *upd.CategoryID)
			if err != nil {
				return err
			}
			d.CategoryID = categoryID
		}
		if upd.CharCount != nil {
			d.CharCount = upd.CharCount
		}
		if upd.UpdatedAt != nil {
			d.UpdatedAt = *upd.UpdatedAt
		} else {
			d.UpdatedAt = nowMillis()
		}
		d.Version = e.nextVersion(d.Version)

		var charCount any
		if d.CharCount != nil {
			charCount = *d.CharCount
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE documents
			SET name = ?, category_id = ?, updated_at = ?, char_count = ?, version = ?
			WHERE user_id = ? AND source = ? AND document_id = ?`,
			d.Name, d.CategoryID, d.UpdatedAt, charCount, d.Version, e.uid, e.source, d.ID)
		if err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notify("document", updated.ID)
	return updated, nil
}

// ListDocumentsPage returns one newest-first window of the tenant's
// documents, walking the created_at index.
func (e *Engine) ListDocumentsPage(ctx context.Context, offset, limit int) (*store.DocumentPage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}

	page := &store.DocumentPage{Documents: []store.DocumentMeta{}}
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM documents WHERE user_id = ? AND source = ?`,
			e.uid, e.source).Scan(&page.Total); err != nil {
			return fmt.Errorf("failed to count documents: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT `+documentColumns+` FROM documents
			WHERE user_id = ? AND source = ?
			ORDER BY created_at DESC, document_id DESC
			LIMIT ? OFFSET ?`,
			e.uid, e.source, limit, offset)
		if err != nil {
			return fmt.Errorf("failed to select documents: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			d, err := scanDocumentRow(rows.Scan)
			if err != nil {
				return err
			}
			page.Documents = append(page.Documents, *d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	page.HasMore = int64(offset+len(page.Documents)) < page.Total
	return page, nil
}

func (e *Engine) ListAllDocuments(ctx context.Context) ([]store.DocumentMeta, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE user_id = ? AND source = ?
		ORDER BY created_at DESC, document_id DESC`,
		e.uid, e.source)
	if err != nil {
		return nil, fmt.Errorf("failed to select documents: %w", err)
	}
	defer rows.Close()

	var result []store.DocumentMeta
	for rows.Next() {
		d, err := scanDocumentRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) GetDocumentContent(ctx context.Context, id string) (*string, error) {
	var content *string
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		d, err := e.findDocument(ctx, tx, id)
		if err != nil || d == nil {
			return err
		}
		var s string
		err = tx.QueryRowContext(ctx, `
			SELECT content FROM document_content
			WHERE user_id = ? AND source = ? AND document_id = ?`,
			e.uid, e.source, d.ID).Scan(&s)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to select document content: %w", err)
		}
		content = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// SaveDocumentContent stores the content and updates the metadata row in the
// same transaction, so the two can never drift apart.
func (e *Engine) SaveDocumentContent(ctx context.Context, id, content string, updatedAt int64) (*store.DocumentMeta, error) {
	var updated *store.DocumentMeta
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		d, err := e.findDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("%w: document %s", common.ErrNotFound, id)
		}

		if updatedAt == 0 {
			updatedAt = nowMillis()
		}
		charCount := mdtext.CountVisibleChars(content)
		d.UpdatedAt = updatedAt
		d.CharCount = &charCount
		d.Version = e.nextVersion(d.Version)

		if err := upsertContent(ctx, tx, e.uid, e.source, d.ID, content); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET updated_at = ?, char_count = ?, version = ?
			WHERE user_id = ? AND source = ? AND document_id = ?`,
			d.UpdatedAt, charCount, d.Version, e.uid, e.source, d.ID)
		if err != nil {
			return fmt.Errorf("failed to update document meta: %w", err)
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notify("document", updated.ID)
	return updated, nil
}

func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	deleted := ""
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		d, err := e.findDocument(ctx, tx, id)
		if err != nil || d == nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM document_content
			WHERE user_id = ? AND source = ? AND document_id = ?`,
			e.uid, e.source, d.ID); err != nil {
			return fmt.Errorf("failed to delete document content: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM documents
			WHERE user_id = ? AND source = ? AND document_id = ?`,
			e.uid, e.source, d.ID); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		deleted = d.ID
		return nil
	})
	if err != nil {
		return err
	}
	if deleted != "" {
		e.notify("document", deleted)
	}
	return nil
}

// EnsureDocumentCharCount backfills the character count for metadata rows
// written before counting existed. Rows that already carry a count are
// returned unchanged.
func (e *Engine) EnsureDocumentCharCount(ctx context.Context, meta *store.DocumentMeta) (*store.DocumentMeta, error) {
	if meta == nil {
		return nil, fmt.Errorf("%w: nil document meta", common.ErrValidation)
	}
	if meta.CharCount != nil {
		return meta, nil
	}

	updated := *meta
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var content string
		err := tx.QueryRowContext(ctx, `
			SELECT content FROM document_content
			WHERE user_id = ? AND source = ? AND document_id = ?`,
			e.uid, e.source, store.CanonicalID(meta.ID)).Scan(&content)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to select document content: %w", err)
		}

		charCount := mdtext.CountVisibleChars(content)
		updated.CharCount = &charCount
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET char_count = ?
			WHERE user_id = ? AND source = ? AND document_id = ?`,
			charCount, e.uid, e.source, store.CanonicalID(meta.ID))
		if err != nil {
			return fmt.Errorf("failed to store char count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// SearchDocuments is not served locally: token search belongs to the search
// pipeline, which maintains its own index off the change notifications.
func (e *Engine) SearchDocuments(ctx context.Context, q store.SearchQuery) (*store.DocumentPage, error) {
	return nil, common.ErrUnsupported
}

func upsertContent(ctx context.Context, q dbx.DBTX, uid int64, source store.Source, id, content string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO document_content (user_id, source, document_id, content)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, source, document_id) DO UPDATE SET content = excluded.content`,
		uid, source, id, content)
	if err != nil {
		return fmt.Errorf("failed to upsert document content: %w", err)
	}
	return nil
}
