package syncstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/plainlyhq/plainly-core/internal/client/netstore"
	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/server/config"
	"github.com/plainlyhq/plainly-core/internal/server/engine"
	"github.com/plainlyhq/plainly-core/internal/server/httpapi"
	"github.com/plainlyhq/plainly-core/internal/server/services"
	"github.com/plainlyhq/plainly-core/internal/store"
	"github.com/plainlyhq/plainly-core/internal/store/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRemoteServer(t *testing.T) *httptest.Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.db")
	e, err := engine.Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	cfg := &config.Config{
		APIPrefix:                    "/api",
		SecretKey:                    "test-secret",
		AccessTokenValidityDuration:  time.Minute,
		RefreshTokenValidityDuration: time.Hour,
	}
	users := services.NewUserService(e.DB(), sq.StatementBuilder.PlaceholderFormat(sq.Question), cfg, nil)
	srv := httptest.NewServer(httpapi.New(e, users, cfg, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

// newSyncStore registers and logs a tenant in, opens the mirror under the
// tenant's server-side uid and wires both into a synchronizer.
func newSyncStore(t *testing.T, srv *httptest.Server) (*Store, *local.Engine) {
	t.Helper()
	ctx := context.Background()

	remote, err := netstore.New(srv.URL + "/api")
	require.NoError(t, err)
	require.NoError(t, remote.Register(ctx, "alice", "a long password"))
	data, err := remote.Login(ctx, "alice", "a long password")
	require.NoError(t, err)

	mirrorPath := filepath.Join(t.TempDir(), "mirror.db")
	mirror, err := local.Open(ctx, mirrorPath, data.UID, store.SourceRemote)
	require.NoError(t, err)

	s := New(remote, mirror, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s, mirror
}

func TestWritesAreMirrored(t *testing.T) {
	srv := newRemoteServer(t)
	s, mirror := newSyncStore(t, srv)
	ctx := context.Background()

	cat, err := s.CreateCategory(ctx, "Work", nil)
	require.NoError(t, err)

	doc, err := s.CreateDocument(ctx, store.NewDocument{Name: "plan", CategoryID: cat.ID}, "hello world")
	require.NoError(t, err)

	// the mirror holds the category under the server's version and source tag
	mcat, err := findMirrorCategory(ctx, mirror, cat.ID)
	require.NoError(t, err)
	require.NotNil(t, mcat)
	assert.Equal(t, cat.Version, mcat.Version)
	assert.Equal(t, store.SourceRemote, mcat.Source)

	mdoc, err := mirror.GetDocumentMeta(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, mdoc)
	assert.Equal(t, doc.Version, mdoc.Version)

	content, err := mirror.GetDocumentContent(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, content)
	assert.Equal(t, "hello world", *content)
}

func TestReadsAreMirrored(t *testing.T) {
	srv := newRemoteServer(t)
	s, mirror := newSyncStore(t, srv)
	ctx := context.Background()

	// write through the remote alone so the mirror has never seen the record
	doc, err := s.Remote().CreateDocument(ctx, store.NewDocument{Name: "unseen"}, "body text")
	require.NoError(t, err)
	missing, err := mirror.GetDocumentMeta(ctx, doc.ID)
	require.NoError(t, err)
	require.Nil(t, missing)

	// a read through the synchronizer populates the mirror
	got, err := s.GetDocumentMeta(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	mdoc, err := mirror.GetDocumentMeta(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, mdoc)
	assert.Equal(t, "unseen", mdoc.Name)

	// content reads carry the body into the mirror as well
	content, err := s.GetDocumentContent(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, content)
	mirrored, err := mirror.GetDocumentContent(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, mirrored)
	assert.Equal(t, "body text", *mirrored)
}

// The synchronizer reads meta before the body: a write landing between the
// two calls can then only leave the mirrored body newer than its version,
// which the next sync corrects. The other order would tag a stale body with
// the newer version, and the tie rule would keep it there.
func TestContentReadFetchesMetaFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.db")
	e, err := engine.Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	cfg := &config.Config{
		APIPrefix:                    "/api",
		SecretKey:                    "test-secret",
		AccessTokenValidityDuration:  time.Minute,
		RefreshTokenValidityDuration: time.Hour,
	}
	users := services.NewUserService(e.DB(), sq.StatementBuilder.PlaceholderFormat(sq.Question), cfg, nil)
	handler := httpapi.New(e, users, cfg, nil).Handler()

	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/documents/") {
			paths = append(paths, r.URL.Path)
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	s, mirror := newSyncStore(t, srv)
	ctx := context.Background()

	doc, err := s.Remote().CreateDocument(ctx, store.NewDocument{Name: "raced"}, "body text")
	require.NoError(t, err)

	paths = paths[:0]
	content, err := s.GetDocumentContent(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, content)

	require.Len(t, paths, 2)
	assert.True(t, strings.HasSuffix(paths[0], "/meta"), "meta must be read first, got %v", paths)
	assert.True(t, strings.HasSuffix(paths[1], "/content"))

	mdoc, err := mirror.GetDocumentMeta(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, mdoc)
	assert.Equal(t, doc.Version, mdoc.Version)
}

func TestMirrorTracksServerVersions(t *testing.T) {
	srv := newRemoteServer(t)
	s, mirror := newSyncStore(t, srv)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, store.NewDocument{Name: "draft"}, "v1")
	require.NoError(t, err)

	saved, err := s.SaveDocumentContent(ctx, doc.ID, "v2 body", time.Now().UnixMilli())
	require.NoError(t, err)
	require.Greater(t, saved.Version, doc.Version)

	mdoc, err := mirror.GetDocumentMeta(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, mdoc)
	assert.Equal(t, saved.Version, mdoc.Version)

	// a stale re-list does not roll the mirror back
	_, err = s.ListAllDocuments(ctx)
	require.NoError(t, err)
	mdoc, err = mirror.GetDocumentMeta(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Version, mdoc.Version)
}

func TestDeletesDropMirroredRows(t *testing.T) {
	srv := newRemoteServer(t)
	s, mirror := newSyncStore(t, srv)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, store.NewDocument{Name: "temp"}, "x")
	require.NoError(t, err)
	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	mdoc, err := mirror.GetDocumentMeta(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, mdoc)

	cat, err := s.CreateCategory(ctx, "Scratch", nil)
	require.NoError(t, err)
	require.NoError(t, s.DeleteCategory(ctx, cat.ID, ""))

	mcat, err := findMirrorCategory(ctx, mirror, cat.ID)
	require.NoError(t, err)
	assert.Nil(t, mcat)
}

func TestNoFallbackOnNetworkFailure(t *testing.T) {
	srv := newRemoteServer(t)
	s, mirror := newSyncStore(t, srv)
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, store.NewDocument{Name: "cached"}, "cached body")
	require.NoError(t, err)

	srv.Close()

	// the mirror holds the record, but a dead remote is still an error
	_, err = s.GetDocumentMeta(ctx, doc.ID)
	assert.ErrorIs(t, err, common.ErrStorage)

	mdoc, err := mirror.GetDocumentMeta(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, mdoc)
	assert.Equal(t, "cached", mdoc.Name)
}

func findMirrorCategory(ctx context.Context, mirror *local.Engine, id string) (*store.Category, error) {
	cats, err := mirror.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cats {
		if cats[i].ID == id {
			return &cats[i], nil
		}
	}
	return nil, nil
}
