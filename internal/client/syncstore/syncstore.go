// Package syncstore wraps the network client for tenants in remote mode.
// Every successful category and document operation is also applied to the
// local mirror through the merge rule, tagged with the server's version, so
// the mirror converges on what the server holds. A failed remote call always
// surfaces to the caller; the mirror is never a fallback.
package syncstore

import (
	"context"
	"errors"

	"github.com/plainlyhq/plainly-core/internal/client/netstore"
	"github.com/plainlyhq/plainly-core/internal/logging"
	"github.com/plainlyhq/plainly-core/internal/store"
	"github.com/plainlyhq/plainly-core/internal/store/local"
)

const (
	kindCategory = "category"
	kindDocument = "document"
)

// Store pairs the remote backend with its offline mirror. The mirror engine
// must be scoped to the same tenant with source=remote so it stores
// server-assigned versions verbatim.
type Store struct {
	remote *netstore.Client
	mirror *local.Engine
	log    logging.Logger
}

var _ store.Store = (*Store)(nil)

func New(remote *netstore.Client, mirror *local.Engine, log logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{remote: remote, mirror: mirror, log: log}
}

// Close closes both the remote client and the mirror.
func (s *Store) Close() error {
	return errors.Join(s.remote.Close(), s.mirror.Close())
}

// Remote exposes the underlying network client for the auth surface.
func (s *Store) Remote() *netstore.Client { return s.remote }

// mirrorCategory applies a server-confirmed category to the mirror. Mirror
// failures are logged and swallowed: the remote call already succeeded and
// the mirror will converge on a later operation.
func (s *Store) mirrorCategory(ctx context.Context, cat *store.Category) {
	if cat == nil {
		return
	}
	if _, err := s.mirror.MergeCategory(ctx, *cat); err != nil {
		s.log.Warn(ctx, "mirror category write failed", "id", cat.ID, "error", err)
	}
}

func (s *Store) mirrorDocument(ctx context.Context, meta *store.DocumentMeta, content *string) {
	if meta == nil {
		return
	}
	if _, err := s.mirror.MergeDocument(ctx, *meta, content); err != nil {
		s.log.Warn(ctx, "mirror document write failed", "id", meta.ID, "error", err)
	}
}

func (s *Store) mirrorRemove(ctx context.Context, kind, id string) {
	if err := s.mirror.RemoveMirrored(ctx, kind, id); err != nil {
		s.log.Warn(ctx, "mirror remove failed", "kind", kind, "id", id, "error", err)
	}
}

// --- categories ---

func (s *Store) ListCategories(ctx context.Context) ([]store.Category, error) {
	cats, err := s.remote.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cats {
		s.mirrorCategory(ctx, &cats[i])
	}
	return cats, nil
}

func (s *Store) ListCategoriesWithCount(ctx context.Context) ([]store.CategoryWithCount, error) {
	cats, err := s.remote.ListCategoriesWithCount(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cats {
		s.mirrorCategory(ctx, &cats[i].Category)
	}
	return cats, nil
}

func (s *Store) CreateCategory(ctx context.Context, name string, opts *store.CategoryOptions) (*store.Category, error) {
	cat, err := s.remote.CreateCategory(ctx, name, opts)
	if err != nil {
		return nil, err
	}
	s.mirrorCategory(ctx, cat)
	return cat, nil
}

func (s *Store) RenameCategory(ctx context.Context, id, name string) (*store.Category, error) {
	cat, err := s.remote.RenameCategory(ctx, id, name)
	if err != nil {
		return nil, err
	}
	s.mirrorCategory(ctx, cat)
	return cat, nil
}

// DeleteCategory removes the category remotely and drops the mirrored row.
// The server reassigns the category's documents itself; the mirrored copies
// pick the new category up on their next read.
func (s *Store) DeleteCategory(ctx context.Context, id, reassignTo string) error {
	if err := s.remote.DeleteCategory(ctx, id, reassignTo); err != nil {
		return err
	}
	s.mirrorRemove(ctx, kindCategory, id)
	return nil
}

// --- documents ---

func (s *Store) CreateDocument(ctx context.Context, doc store.NewDocument, content string) (*store.DocumentMeta, error) {
	meta, err := s.remote.CreateDocument(ctx, doc, content)
	if err != nil {
		return nil, err
	}
	s.mirrorDocument(ctx, meta, &content)
	return meta, nil
}

func (s *Store) GetDocumentMeta(ctx context.Context, id string) (*store.DocumentMeta, error) {
	meta, err := s.remote.GetDocumentMeta(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mirrorDocument(ctx, meta, nil)
	return meta, nil
}

func (s *Store) UpdateDocumentMeta(ctx context.Context, id string, upd store.DocumentUpdate) (*store.DocumentMeta, error) {
	meta, err := s.remote.UpdateDocumentMeta(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.mirrorDocument(ctx, meta, nil)
	return meta, nil
}

func (s *Store) ListDocumentsPage(ctx context.Context, offset, limit int) (*store.DocumentPage, error) {
	page, err := s.remote.ListDocumentsPage(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	for i := range page.Documents {
		s.mirrorDocument(ctx, &page.Documents[i], nil)
	}
	return page, nil
}

func (s *Store) ListAllDocuments(ctx context.Context) ([]store.DocumentMeta, error) {
	docs, err := s.remote.ListAllDocuments(ctx)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		s.mirrorDocument(ctx, &docs[i], nil)
	}
	return docs, nil
}

// GetDocumentContent mirrors the body alongside server meta so the mirrored
// content carries a version it belongs to. Meta is fetched first: a write
// landing between the two calls can then only make the body newer than its
// mirrored version, which a later sync overwrites. The other order would pin
// a stale body to the newer version, and the tie rule keeps it forever.
func (s *Store) GetDocumentContent(ctx context.Context, id string) (*string, error) {
	meta, metaErr := s.remote.GetDocumentMeta(ctx, id)
	content, err := s.remote.GetDocumentContent(ctx, id)
	if err != nil {
		return nil, err
	}
	if metaErr != nil {
		s.log.Warn(ctx, "mirror content skipped, meta fetch failed", "id", id, "error", metaErr)
		return content, nil
	}
	if content != nil && meta != nil {
		s.mirrorDocument(ctx, meta, content)
	}
	return content, nil
}

func (s *Store) SaveDocumentContent(ctx context.Context, id, content string, updatedAt int64) (*store.DocumentMeta, error) {
	meta, err := s.remote.SaveDocumentContent(ctx, id, content, updatedAt)
	if err != nil {
		return nil, err
	}
	s.mirrorDocument(ctx, meta, &content)
	return meta, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	if err := s.remote.DeleteDocument(ctx, id); err != nil {
		return err
	}
	s.mirrorRemove(ctx, kindDocument, id)
	return nil
}

func (s *Store) EnsureDocumentCharCount(ctx context.Context, meta *store.DocumentMeta) (*store.DocumentMeta, error) {
	ensured, err := s.remote.EnsureDocumentCharCount(ctx, meta)
	if err != nil {
		return nil, err
	}
	s.mirrorDocument(ctx, ensured, nil)
	return ensured, nil
}

func (s *Store) SearchDocuments(ctx context.Context, q store.SearchQuery) (*store.DocumentPage, error) {
	page, err := s.remote.SearchDocuments(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range page.Documents {
		s.mirrorDocument(ctx, &page.Documents[i], nil)
	}
	return page, nil
}

// --- config ---
// Config stays remote-only: the mirror's merge rule covers categories and
// documents, and config writes on the mirror would mint local versions.

func (s *Store) GetConfig(ctx context.Context, key string) (*string, error) {
	return s.remote.GetConfig(ctx, key)
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	return s.remote.SetConfig(ctx, key, value)
}

func (s *Store) RemoveConfig(ctx context.Context, key string) error {
	return s.remote.RemoveConfig(ctx, key)
}

func (s *Store) ListConfigKeys(ctx context.Context) ([]string, error) {
	return s.remote.ListConfigKeys(ctx)
}
