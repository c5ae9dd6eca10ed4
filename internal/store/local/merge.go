package local

import (
	"context"
	"fmt"

	"github.com/plainlyhq/plainly-core/internal/dbx"
	"github.com/plainlyhq/plainly-core/internal/store"
)

// Merge operations apply snapshots carrying server-assigned versions into the
// mirror. The rule: an incoming record with version V replaces a stored
// record with version E iff E is absent or V > E. A tie keeps the stored
// record — equal versions mean equal content, and keeping the older write
// makes re-application of the same snapshot a no-op. The mirror never mints
// versions of its own.

// MergeCategory applies a category snapshot and returns whichever record won.
func (e *Engine) MergeCategory(ctx context.Context, cat store.Category) (*store.Category, error) {
	cat.UID = e.uid
	cat.Source = e.source
	cat.ID = store.CanonicalID(cat.ID)
	if cat.ID == "" {
		return nil, fmt.Errorf("merge category: empty id")
	}

	var result *store.Category
	applied := false
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		existing, err := e.findCategory(ctx, tx, cat.ID)
		if err != nil {
			return err
		}
		if existing != nil && cat.Version <= existing.Version {
			result = existing
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO categories
				(user_id, source, category_id, name, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, source, category_id) DO UPDATE SET
				name = excluded.name,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at,
				version = excluded.version`,
			cat.UID, cat.Source, cat.ID, cat.Name, cat.CreatedAt, cat.UpdatedAt, cat.Version)
		if err != nil {
			return fmt.Errorf("failed to merge category: %w", err)
		}
		result = &cat
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	// a snapshot the version gate discarded changed nothing
	if applied {
		e.notify("category", result.ID)
	}
	return result, nil
}

// MergeDocument applies a document snapshot, with content when the caller
// has it (nil content leaves any mirrored content untouched).
func (e *Engine) MergeDocument(ctx context.Context, meta store.DocumentMeta, content *string) (*store.DocumentMeta, error) {
	meta.UID = e.uid
	meta.Source = e.source
	meta.ID = store.CanonicalID(meta.ID)
	if meta.ID == "" {
		return nil, fmt.Errorf("merge document: empty id")
	}

	var result *store.DocumentMeta
	applied := false
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		existing, err := e.findDocument(ctx, tx, meta.ID)
		if err != nil {
			return err
		}
		if existing != nil && meta.Version <= existing.Version {
			result = existing
			return nil
		}

		categoryID, err := e.resolveCategoryID(ctx, tx, meta.CategoryID)
		if err != nil {
			return err
		}
		meta.CategoryID = categoryID

		var charCount any
		if meta.CharCount != nil {
			charCount = *meta.CharCount
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents
				(user_id, source, document_id, name, category_id, created_at, updated_at, char_count, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, source, document_id) DO UPDATE SET
				name = excluded.name,
				category_id = excluded.category_id,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at,
				char_count = excluded.char_count,
				version = excluded.version`,
			meta.UID, meta.Source, meta.ID, meta.Name, meta.CategoryID,
			meta.CreatedAt, meta.UpdatedAt, charCount, meta.Version)
		if err != nil {
			return fmt.Errorf("failed to merge document: %w", err)
		}
		if content != nil {
			if err := upsertContent(ctx, tx, e.uid, e.source, meta.ID, *content); err != nil {
				return err
			}
		}
		result = &meta
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if applied {
		e.notify("document", result.ID)
	}
	return result, nil
}

// RemoveMirrored deletes a mirrored record after the server confirmed its
// deletion. Unlike merges, deletion is not versioned: the server is the
// system of record, so a confirmed delete always wins.
func (e *Engine) RemoveMirrored(ctx context.Context, kind, id string) error {
	switch kind {
	case "category":
		return e.DeleteCategory(ctx, id, "")
	case "document":
		return e.DeleteDocument(ctx, id)
	default:
		return fmt.Errorf("remove mirrored: unknown kind %q", kind)
	}
}
