package local

import (
	"context"
	"testing"

	"github.com/plainlyhq/plainly-core/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestMergeDocument_VersionRule(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, 0, store.SourceRemote)

	id := store.NewID()

	// versions arrive out of order: 3 first, then 2, then 3 again
	got, err := e.MergeDocument(ctx, store.DocumentMeta{ID: id, Name: "v3", Version: 3}, strptr("three"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)

	got, err = e.MergeDocument(ctx, store.DocumentMeta{ID: id, Name: "v2", Version: 2}, strptr("two"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version, "older snapshot must be discarded")
	assert.Equal(t, "v3", got.Name)

	content, err := e.GetDocumentContent(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, content)
	assert.Equal(t, "three", *content)

	// re-applying the winning snapshot is a no-op
	got, err = e.MergeDocument(ctx, store.DocumentMeta{ID: id, Name: "v3", Version: 3}, strptr("three"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)

	all, err := e.ListAllDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "merges never duplicate a record")
	assert.Equal(t, "v3", all[0].Name)
}

func TestMergeDocument_TieKeepsExisting(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, 0, store.SourceRemote)

	id := store.NewID()
	_, err := e.MergeDocument(ctx, store.DocumentMeta{ID: id, Name: "first", Version: 5}, strptr("first body"))
	require.NoError(t, err)

	got, err := e.MergeDocument(ctx, store.DocumentMeta{ID: id, Name: "second", Version: 5}, strptr("second body"))
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name, "equal versions keep the stored record")

	content, err := e.GetDocumentContent(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, content)
	assert.Equal(t, "first body", *content)
}

func TestMergeDocument_NewerWins(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, 0, store.SourceRemote)

	id := store.NewID()
	_, err := e.MergeDocument(ctx, store.DocumentMeta{ID: id, Name: "old", Version: 1}, strptr("old"))
	require.NoError(t, err)

	got, err := e.MergeDocument(ctx, store.DocumentMeta{ID: id, Name: "new", Version: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Name)

	// nil content leaves the mirrored content untouched
	content, err := e.GetDocumentContent(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, content)
	assert.Equal(t, "old", *content)
}

func TestMergeCategory_VersionRule(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, 0, store.SourceRemote)

	id := store.NewID()
	_, err := e.MergeCategory(ctx, store.Category{ID: id, Name: "Notes", Version: 2})
	require.NoError(t, err)

	got, err := e.MergeCategory(ctx, store.Category{ID: id, Name: "Stale", Version: 1})
	require.NoError(t, err)
	assert.Equal(t, "Notes", got.Name)

	got, err = e.MergeCategory(ctx, store.Category{ID: id, Name: "Renamed", Version: 3})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, int64(3), got.Version)
}

func TestMirrorNeverMintsVersions(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, 0, store.SourceRemote)

	id := store.NewID()
	_, err := e.MergeDocument(ctx, store.DocumentMeta{ID: id, Name: "a.md", Version: 7}, strptr("x"))
	require.NoError(t, err)

	// a direct write through the contract must not advance the version
	saved, err := e.SaveDocumentContent(ctx, id, "y", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), saved.Version)
}

func TestMerge_DiscardedSnapshotDoesNotNotify(t *testing.T) {
	ctx := context.Background()
	var changes int
	e := newEngine(t, 0, store.SourceRemote, WithChangeNotifier(func(kind, id string) {
		changes++
	}))

	docID := store.NewID()
	_, err := e.MergeDocument(ctx, store.DocumentMeta{ID: docID, Name: "a.md", Version: 2}, strptr("x"))
	require.NoError(t, err)
	catID := store.NewID()
	_, err = e.MergeCategory(ctx, store.Category{ID: catID, Name: "Notes", Version: 2})
	require.NoError(t, err)
	applied := changes

	// stale and tied snapshots change nothing, so no signal fires
	_, err = e.MergeDocument(ctx, store.DocumentMeta{ID: docID, Name: "stale", Version: 1}, strptr("y"))
	require.NoError(t, err)
	_, err = e.MergeDocument(ctx, store.DocumentMeta{ID: docID, Name: "tie", Version: 2}, strptr("y"))
	require.NoError(t, err)
	_, err = e.MergeCategory(ctx, store.Category{ID: catID, Name: "Tie", Version: 2})
	require.NoError(t, err)
	assert.Equal(t, applied, changes)

	_, err = e.MergeDocument(ctx, store.DocumentMeta{ID: docID, Name: "newer", Version: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, applied+1, changes)
}

func TestMergeDocument_UnknownCategoryFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, 0, store.SourceRemote)

	got, err := e.MergeDocument(ctx, store.DocumentMeta{
		ID:         store.NewID(),
		Name:       "a.md",
		CategoryID: store.NewID(),
		Version:    1,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultCategoryID, got.CategoryID)
}

func TestRemoveMirrored(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, 0, store.SourceRemote)

	id := store.NewID()
	_, err := e.MergeDocument(ctx, store.DocumentMeta{ID: id, Name: "a.md", Version: 1}, strptr("x"))
	require.NoError(t, err)

	require.NoError(t, e.RemoveMirrored(ctx, "document", id))
	meta, err := e.GetDocumentMeta(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, meta)

	require.Error(t, e.RemoveMirrored(ctx, "session", id))
}
