package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/plainlyhq/plainly-core/internal/api"
	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/server/config"
	"github.com/plainlyhq/plainly-core/internal/server/engine"
	"github.com/plainlyhq/plainly-core/internal/server/services"
	"github.com/plainlyhq/plainly-core/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
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
	srv := httptest.NewServer(New(e, users, cfg, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func doJSON(t *testing.T, c *http.Client, method, url string, body any) (*http.Response, api.Envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env api.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func signup(t *testing.T, c *http.Client, base, account string) {
	t.Helper()
	resp, env := doJSON(t, c, http.MethodPost, base+"/api/auth/register",
		api.Credentials{Account: account, Password: "a long password"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, api.CodeOK, env.ErrCode)

	resp, env = doJSON(t, c, http.MethodPost, base+"/api/auth/login",
		api.Credentials{Account: account, Password: "a long password"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, api.CodeOK, env.ErrCode)
}

func decodeData(t *testing.T, env api.Envelope, dst any) {
	t.Helper()
	require.Equal(t, api.CodeOK, env.ErrCode, env.ErrMsg)
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func dataIsNull(env api.Envelope) bool {
	return len(env.Data) == 0 || string(env.Data) == "null"
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t)

	// registering twice conflicts
	resp, env := doJSON(t, c, http.MethodPost, srv.URL+"/api/auth/register",
		api.Credentials{Account: "alice", Password: "a long password"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, env = doJSON(t, c, http.MethodPost, srv.URL+"/api/auth/register",
		api.Credentials{Account: "alice", Password: "a long password"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, api.CodeAccountExists, env.ErrCode)

	// wrong password
	resp, env = doJSON(t, c, http.MethodPost, srv.URL+"/api/auth/login",
		api.Credentials{Account: "alice", Password: "not the password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, api.CodeInvalidCredentials, env.ErrCode)

	// login sets the three cookies
	resp, env = doJSON(t, c, http.MethodPost, srv.URL+"/api/auth/login",
		api.Credentials{Account: "alice", Password: "a long password"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, api.CodeOK, env.ErrCode)
	names := map[string]bool{}
	for _, ck := range resp.Cookies() {
		names[ck.Name] = true
	}
	assert.True(t, names[common.AccessCookieName])
	assert.True(t, names[common.RefreshCookieName])
	assert.True(t, names[common.SessionFlagCookieName])

	// cookie-authenticated request works
	resp, env = doJSON(t, c, http.MethodGet, srv.URL+"/api/categories", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, api.CodeOK, env.ErrCode)

	// refresh rotates credentials
	resp, env = doJSON(t, c, http.MethodPost, srv.URL+"/api/auth/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, api.CodeOK, env.ErrCode)

	// logout clears the session
	resp, _ = doJSON(t, c, http.MethodPost, srv.URL+"/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, env = doJSON(t, c, http.MethodPost, srv.URL+"/api/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t)

	for _, path := range []string{"/api/categories", "/api/documents", "/api/config"} {
		resp, env := doJSON(t, c, http.MethodGet, srv.URL+path, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		assert.Equal(t, api.CodeUnauthorized, env.ErrCode, path)
	}
}

func TestBearerTokenAccepted(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t)

	_, _ = doJSON(t, c, http.MethodPost, srv.URL+"/api/auth/register",
		api.Credentials{Account: "alice", Password: "a long password"})
	_, env := doJSON(t, c, http.MethodPost, srv.URL+"/api/auth/login",
		api.Credentials{Account: "alice", Password: "a long password"})
	var tokens api.TokenData
	decodeData(t, env, &tokens)
	require.NotEmpty(t, tokens.AccessToken)

	// no jar: bearer only
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/categories", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCategoryEndpoints(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t)
	signup(t, c, srv.URL, "alice")

	resp, env := doJSON(t, c, http.MethodPost, srv.URL+"/api/categories", api.NameRequest{Name: "Work"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var cat store.Category
	decodeData(t, env, &cat)
	assert.Equal(t, "Work", cat.Name)
	assert.Len(t, cat.ID, 32)

	_, env = doJSON(t, c, http.MethodGet, srv.URL+"/api/categories", nil)
	var cats []store.Category
	decodeData(t, env, &cats)
	assert.Len(t, cats, 2) // Work plus the default

	_, env = doJSON(t, c, http.MethodPut, srv.URL+"/api/categories/"+cat.ID, api.NameRequest{Name: "Office"})
	var renamed store.Category
	decodeData(t, env, &renamed)
	assert.Equal(t, "Office", renamed.Name)

	resp, env = doJSON(t, c, http.MethodPut, srv.URL+"/api/categories/"+store.NewID(), api.NameRequest{Name: "X"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, api.CodeNotFound, env.ErrCode)

	resp, _ = doJSON(t, c, http.MethodDelete, srv.URL+"/api/categories/"+cat.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, env = doJSON(t, c, http.MethodGet, srv.URL+"/api/categories/count", nil)
	var withCount []store.CategoryWithCount
	decodeData(t, env, &withCount)
	assert.Len(t, withCount, 1)
}

func TestDocumentEndpoints(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t)
	signup(t, c, srv.URL, "alice")

	resp, env := doJSON(t, c, http.MethodPost, srv.URL+"/api/documents",
		api.CreateDocumentRequest{NewDocument: store.NewDocument{Name: "greeting"}, Content: "hello world"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var doc store.DocumentMeta
	decodeData(t, env, &doc)
	require.NotNil(t, doc.CharCount)
	assert.Equal(t, int64(11), *doc.CharCount)

	_, env = doJSON(t, c, http.MethodGet, srv.URL+"/api/documents/"+doc.ID+"/content", nil)
	var content api.ContentData
	decodeData(t, env, &content)
	require.NotNil(t, content.Content)
	assert.Equal(t, "hello world", *content.Content)

	_, env = doJSON(t, c, http.MethodPut, srv.URL+"/api/documents/"+doc.ID+"/content",
		api.ContentRequest{Content: "goodbye"})
	var saved store.DocumentMeta
	decodeData(t, env, &saved)
	assert.Equal(t, doc.Version+1, saved.Version)

	_, env = doJSON(t, c, http.MethodPatch, srv.URL+"/api/documents/"+doc.ID+"/meta",
		map[string]string{"name": "farewell"})
	var patched store.DocumentMeta
	decodeData(t, env, &patched)
	assert.Equal(t, "farewell", patched.Name)

	_, env = doJSON(t, c, http.MethodPost, srv.URL+"/api/documents/search",
		store.SearchQuery{Tokens: []string{"goodbye"}})
	var page store.DocumentPage
	decodeData(t, env, &page)
	assert.Equal(t, int64(1), page.Total)

	_, env = doJSON(t, c, http.MethodGet, srv.URL+fmt.Sprintf("/api/documents?offset=%d&limit=%d", 0, 10), nil)
	decodeData(t, env, &page)
	assert.Equal(t, int64(1), page.Total)

	resp, _ = doJSON(t, c, http.MethodDelete, srv.URL+"/api/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// a missing document reads as data:null, not an error
	resp, env = doJSON(t, c, http.MethodGet, srv.URL+"/api/documents/"+doc.ID+"/meta", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, dataIsNull(env))
}

func TestBatchEndpoints(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t)
	signup(t, c, srv.URL, "alice")

	catID := store.NewID()
	_, env := doJSON(t, c, http.MethodPost, srv.URL+"/api/categories/batch",
		[]store.Category{{ID: catID, Name: "Synced", Version: 2}})
	var catResult map[string]store.Category
	decodeData(t, env, &catResult)
	require.Contains(t, catResult, catID)
	assert.Equal(t, int64(2), catResult[catID].Version)

	docID := store.NewID()
	body := "pushed"
	_, env = doJSON(t, c, http.MethodPost, srv.URL+"/api/documents/batch",
		[]api.DocumentSnapshot{{
			DocumentMeta: store.DocumentMeta{ID: docID, Name: "note", CategoryID: catID, Version: 3},
			Content:      &body,
		}})
	var docResult map[string]store.DocumentMeta
	decodeData(t, env, &docResult)
	require.Contains(t, docResult, docID)
	assert.Equal(t, int64(3), docResult[docID].Version)
	assert.Equal(t, catID, docResult[docID].CategoryID)
}

func TestConfigEndpoints(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t)
	signup(t, c, srv.URL, "alice")

	_, env := doJSON(t, c, http.MethodGet, srv.URL+"/api/config/theme", nil)
	var got api.ValueData
	decodeData(t, env, &got)
	assert.Nil(t, got.Value)

	resp, _ := doJSON(t, c, http.MethodPut, srv.URL+"/api/config/theme", map[string]string{"value": "dark"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, env = doJSON(t, c, http.MethodGet, srv.URL+"/api/config/theme", nil)
	decodeData(t, env, &got)
	require.NotNil(t, got.Value)
	assert.Equal(t, "dark", *got.Value)

	_, env = doJSON(t, c, http.MethodGet, srv.URL+"/api/config", nil)
	var keys []string
	decodeData(t, env, &keys)
	assert.Equal(t, []string{"theme"}, keys)

	resp, _ = doJSON(t, c, http.MethodDelete, srv.URL+"/api/config/theme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAccessTokenDiesAfterLogoutAll(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t)
	signup(t, c, srv.URL, "alice")

	resp, _ := doJSON(t, c, http.MethodPost, srv.URL+"/api/auth/logout-all", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := doJSON(t, c, http.MethodGet, srv.URL+"/api/categories", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEqual(t, api.CodeOK, env.ErrCode)
}
