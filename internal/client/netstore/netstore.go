// Package netstore implements the store contract over the HTTP API. Each
// operation is one request; on a 401-equivalent reply the client performs
// exactly one credential refresh and one retry, then gives up. Credentials
// live in the cookie jar, never in client fields.
package netstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/plainlyhq/plainly-core/internal/api"
	"github.com/plainlyhq/plainly-core/internal/common"
	"github.com/plainlyhq/plainly-core/internal/logging"
	"github.com/plainlyhq/plainly-core/internal/store"
)

type Client struct {
	base string
	http *http.Client
	log  logging.Logger
}

var _ store.Store = (*Client)(nil)

type Option func(*Client)

func WithLogger(log logging.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithHTTPClient replaces the underlying client. The caller is responsible
// for attaching a cookie jar if cookie auth is wanted.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New builds a client for a base URL that includes the API prefix, e.g.
// http://localhost:8080/api.
func New(baseURL string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%w: invalid base url: %v", common.ErrValidation, err)
	}
	c := &Client{base: strings.TrimRight(baseURL, "/"), log: logging.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}
	return c, nil
}

// Close is part of the store contract; there is nothing to release.
func (c *Client) Close() error { return nil }

// --- auth surface ---

func (c *Client) Register(ctx context.Context, account, password string) error {
	return c.doOnce(ctx, http.MethodPost, "/auth/register",
		api.Credentials{Account: account, Password: password}, nil)
}

func (c *Client) Login(ctx context.Context, account, password string) (*api.TokenData, error) {
	var data api.TokenData
	err := c.doOnce(ctx, http.MethodPost, "/auth/login",
		api.Credentials{Account: account, Password: password}, &data)
	if err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.doOnce(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func (c *Client) LogoutAll(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout-all", nil, nil)
}

func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.do(ctx, http.MethodPost, "/auth/password", api.PasswordChange{Current: current, Next: next}, nil)
}

func (c *Client) refresh(ctx context.Context) error {
	return c.doOnce(ctx, http.MethodPost, "/auth/refresh", nil, nil)
}

// --- store contract ---

func (c *Client) ListCategories(ctx context.Context) ([]store.Category, error) {
	var result []store.Category
	if err := c.do(ctx, http.MethodGet, "/categories", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) ListCategoriesWithCount(ctx context.Context) ([]store.CategoryWithCount, error) {
	var result []store.CategoryWithCount
	if err := c.do(ctx, http.MethodGet, "/categories/count", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) CreateCategory(ctx context.Context, name string, opts *store.CategoryOptions) (*store.Category, error) {
	req := api.CreateCategoryRequest{Name: name}
	if opts != nil {
		req.CategoryOptions = *opts
	}
	var cat store.Category
	if err := c.do(ctx, http.MethodPost, "/categories", req, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Client) RenameCategory(ctx context.Context, id, name string) (*store.Category, error) {
	var cat store.Category
	if err := c.do(ctx, http.MethodPut, "/categories/"+url.PathEscape(id), api.NameRequest{Name: name}, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Client) DeleteCategory(ctx context.Context, id, reassignTo string) error {
	path := "/categories/" + url.PathEscape(id)
	if reassignTo != "" {
		path += "?reassignTo=" + url.QueryEscape(reassignTo)
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// PushCategories applies a batch of category snapshots server-side and
// returns the winning record per id.
func (c *Client) PushCategories(ctx context.Context, cats []store.Category) (map[string]store.Category, error) {
	var result map[string]store.Category
	if err := c.do(ctx, http.MethodPost, "/categories/batch", cats, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) CreateDocument(ctx context.Context, doc store.NewDocument, content string) (*store.DocumentMeta, error) {
	var meta store.DocumentMeta
	req := api.CreateDocumentRequest{NewDocument: doc, Content: content}
	if err := c.do(ctx, http.MethodPost, "/documents", req, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Client) GetDocumentMeta(ctx context.Context, id string) (*store.DocumentMeta, error) {
	var meta *store.DocumentMeta
	if err := c.do(ctx, http.MethodGet, "/documents/"+url.PathEscape(id)+"/meta", nil, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (c *Client) UpdateDocumentMeta(ctx context.Context, id string, upd store.DocumentUpdate) (*store.DocumentMeta, error) {
	var meta store.DocumentMeta
	if err := c.do(ctx, http.MethodPatch, "/documents/"+url.PathEscape(id)+"/meta", upd, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Client) ListDocumentsPage(ctx context.Context, offset, limit int) (*store.DocumentPage, error) {
	var page store.DocumentPage
	path := fmt.Sprintf("/documents?offset=%d&limit=%d", offset, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) ListAllDocuments(ctx context.Context) ([]store.DocumentMeta, error) {
	var result []store.DocumentMeta
	if err := c.do(ctx, http.MethodGet, "/documents/all", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) GetDocumentContent(ctx context.Context, id string) (*string, error) {
	var data api.ContentData
	if err := c.do(ctx, http.MethodGet, "/documents/"+url.PathEscape(id)+"/content", nil, &data); err != nil {
		return nil, err
	}
	return data.Content, nil
}

func (c *Client) SaveDocumentContent(ctx context.Context, id, content string, updatedAt int64) (*store.DocumentMeta, error) {
	var meta store.DocumentMeta
	req := api.ContentRequest{Content: content, UpdatedAt: updatedAt}
	if err := c.do(ctx, http.MethodPut, "/documents/"+url.PathEscape(id)+"/content", req, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/documents/"+url.PathEscape(id), nil, nil)
}

func (c *Client) EnsureDocumentCharCount(ctx context.Context, meta *store.DocumentMeta) (*store.DocumentMeta, error) {
	if meta == nil {
		return nil, fmt.Errorf("%w: nil document meta", common.ErrValidation)
	}
	if meta.CharCount != nil {
		return meta, nil
	}
	var ensured store.DocumentMeta
	if err := c.do(ctx, http.MethodPost, "/documents/"+url.PathEscape(meta.ID)+"/charcount", nil, &ensured); err != nil {
		return nil, err
	}
	return &ensured, nil
}

func (c *Client) SearchDocuments(ctx context.Context, q store.SearchQuery) (*store.DocumentPage, error) {
	var page store.DocumentPage
	if err := c.do(ctx, http.MethodPost, "/documents/search", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// PushDocuments applies a batch of document snapshots server-side and
// returns the winning record per id.
func (c *Client) PushDocuments(ctx context.Context, docs []api.DocumentSnapshot) (map[string]store.DocumentMeta, error) {
	var result map[string]store.DocumentMeta
	if err := c.do(ctx, http.MethodPost, "/documents/batch", docs, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) GetConfig(ctx context.Context, key string) (*string, error) {
	var data api.ValueData
	if err := c.do(ctx, http.MethodGet, "/config/"+url.PathEscape(key), nil, &data); err != nil {
		return nil, err
	}
	return data.Value, nil
}

func (c *Client) SetConfig(ctx context.Context, key, value string) error {
	return c.do(ctx, http.MethodPut, "/config/"+url.PathEscape(key), api.ValueData{Value: &value}, nil)
}

func (c *Client) RemoveConfig(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/config/"+url.PathEscape(key), nil, nil)
}

func (c *Client) ListConfigKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := c.do(ctx, http.MethodGet, "/config", nil, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// --- transport ---

// do sends one request; on an auth failure it refreshes once and retries
// once. A second failure propagates.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	err := c.doOnce(ctx, method, path, body, out)
	if !isAuthFailure(err) {
		return err
	}
	c.log.Debug(ctx, "auth failure, refreshing credentials", "path", path)
	if rerr := c.refresh(ctx); rerr != nil {
		return err
	}
	return c.doOnce(ctx, method, path, body, out)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	payload := &bytes.Buffer{}
	if body != nil {
		if err := json.NewEncoder(payload).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	defer resp.Body.Close()

	var env api.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: malformed response (%s)", common.ErrStorage, resp.Status)
	}
	if err := api.CodeError(env.ErrCode, env.ErrMsg); err != nil {
		return err
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: malformed response payload", common.ErrStorage)
		}
	}
	return nil
}

func isAuthFailure(err error) bool {
	return errors.Is(err, common.ErrUnauthorized) || errors.Is(err, common.ErrTokenExpired)
}
