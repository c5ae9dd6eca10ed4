// Package store defines the persistence contract shared by every backend:
// the embedded local engine, the server-side relational engine, the network
// client and the cache synchronizer all implement Store. Callers program
// against this interface and never care which backend serves them.
package store

import "context"

// Store is the operation set every backend implements.
//
// Shared guarantees:
//   - Create calls return a fully populated record, including the minted
//     version and timestamps.
//   - Writes touching metadata and content together are atomic: either both
//     land or neither does.
//   - Deletes are idempotent; deleting an id that does not exist is a no-op.
//   - Reads of a missing record return a nil value, not an error. ErrNotFound
//     is reserved for operations that need an existing target (rename, save).
type Store interface {
	ListCategories(ctx context.Context) ([]Category, error)
	ListCategoriesWithCount(ctx context.Context) ([]CategoryWithCount, error)
	CreateCategory(ctx context.Context, name string, opts *CategoryOptions) (*Category, error)
	RenameCategory(ctx context.Context, id, name string) (*Category, error)
	// DeleteCategory reassigns the category's documents to reassignTo (the
	// default category when empty) and then removes the category, in one
	// transaction. The default category itself cannot be deleted.
	DeleteCategory(ctx context.Context, id, reassignTo string) error

	CreateDocument(ctx context.Context, doc NewDocument, content string) (*DocumentMeta, error)
	GetDocumentMeta(ctx context.Context, id string) (*DocumentMeta, error)
	UpdateDocumentMeta(ctx context.Context, id string, upd DocumentUpdate) (*DocumentMeta, error)
	ListDocumentsPage(ctx context.Context, offset, limit int) (*DocumentPage, error)
	ListAllDocuments(ctx context.Context) ([]DocumentMeta, error)
	// GetDocumentContent returns nil when no content row exists for id.
	GetDocumentContent(ctx context.Context, id string) (*string, error)
	// SaveDocumentContent stores content and bumps the document's updatedAt.
	// updatedAt == 0 means "now".
	SaveDocumentContent(ctx context.Context, id, content string, updatedAt int64) (*DocumentMeta, error)
	DeleteDocument(ctx context.Context, id string) error
	// EnsureDocumentCharCount backfills CharCount from the stored content when
	// the metadata row lacks it, persists the result and returns the updated
	// metadata. Metadata that already carries a count is returned as is.
	EnsureDocumentCharCount(ctx context.Context, meta *DocumentMeta) (*DocumentMeta, error)
	// SearchDocuments matches q.Tokens as substrings of the normalized text
	// column. Backends without that column return ErrUnsupported.
	SearchDocuments(ctx context.Context, q SearchQuery) (*DocumentPage, error)

	// GetConfig returns nil when the key is not set.
	GetConfig(ctx context.Context, key string) (*string, error)
	SetConfig(ctx context.Context, key, value string) error
	RemoveConfig(ctx context.Context, key string) error
	ListConfigKeys(ctx context.Context) ([]string, error)

	Close() error
}
