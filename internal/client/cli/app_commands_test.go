package cli

import (
	"bufio"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/store"
	"github.com/plainlyhq/plainly-core/internal/store/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalApp(t *testing.T) *App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.db")
	e, err := local.Open(context.Background(), path, common.LocalUserID, store.SourceLocal)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	return &App{mode: store.ModeLocal, store: e}
}

// withInput points the app's prompt reader at a scripted input.
func withInput(a *App, lines ...string) {
	a.reader = bufio.NewReader(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func TestAddNoteAndShow(t *testing.T) {
	a := newLocalApp(t)
	ctx := context.Background()

	// name, category (default), body, terminating blank line
	withInput(a, "shopping", "", "buy milk", "")
	require.NoError(t, a.AddNote(ctx))

	docs, err := a.store.ListAllDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "shopping", docs[0].Name)
	assert.Equal(t, store.DefaultCategoryID, docs[0].CategoryID)

	withInput(a, docs[0].ID)
	require.NoError(t, a.Show(ctx))

	content, err := a.store.GetDocumentContent(ctx, docs[0].ID)
	require.NoError(t, err)
	require.NotNil(t, content)
	assert.Equal(t, "buy milk", *content)
}

func TestCategoryCommands(t *testing.T) {
	a := newLocalApp(t)
	ctx := context.Background()

	withInput(a, "Work")
	require.NoError(t, a.AddCategory(ctx))

	cats, err := a.store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)

	var workID string
	for _, c := range cats {
		if c.Name == "Work" {
			workID = c.ID
		}
	}
	require.NotEmpty(t, workID)

	withInput(a, workID, "Projects")
	require.NoError(t, a.RenameCategory(ctx))

	withInput(a, workID, "")
	require.NoError(t, a.RemoveCategory(ctx))

	cats, err = a.store.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 1)
}

func TestSearchCommand(t *testing.T) {
	a := newLocalApp(t)
	ctx := context.Background()

	_, err := a.store.CreateDocument(ctx, store.NewDocument{Name: "groceries"}, "buy milk and eggs")
	require.NoError(t, err)
	_, err = a.store.CreateDocument(ctx, store.NewDocument{Name: "meeting"}, "agenda items")
	require.NoError(t, err)

	withInput(a, "milk eggs")
	require.NoError(t, a.Search(ctx))

	page, err := a.store.SearchDocuments(ctx, store.SearchQuery{Tokens: []string{"milk", "eggs"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
}

func TestRemoveCommandIsIdempotent(t *testing.T) {
	a := newLocalApp(t)
	ctx := context.Background()

	doc, err := a.store.CreateDocument(ctx, store.NewDocument{Name: "temp"}, "x")
	require.NoError(t, err)

	withInput(a, doc.ID)
	require.NoError(t, a.Remove(ctx))
	withInput(a, doc.ID)
	require.NoError(t, a.Remove(ctx))

	docs, err := a.store.ListAllDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLocalModeSkipsAuth(t *testing.T) {
	a := newLocalApp(t)
	ctx := context.Background()

	// no prompts are read in local mode
	require.NoError(t, a.Register(ctx))
	require.NoError(t, a.Login(ctx))
	require.NoError(t, a.Logout(ctx))
	assert.True(t, a.isReady())
}
